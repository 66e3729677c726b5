// Package theme presents a provisioning run to the operator.
//
// A Manager maps pillars to mythological patrons and translates action
// verbs for the greek, norse and egyptian themes. Renderer turns the engine's
// event stream into styled terminal output; JSONRenderer writes one JSON
// object per event instead.
package theme
