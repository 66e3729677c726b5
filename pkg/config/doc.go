// Package config loads MythOS profiles and traits from disk and holds the CLI
// settings.
//
// # Documents
//
// FileStore implements engine.ConfigStore over a directory tree:
//
//	<root>/profiles/<name>.{yaml,yml,toml,cue,star}
//	<root>/traits/<name>.{yaml,yml,toml,cue,star}
//
// All formats describe the same document:
//
//	description: Gaming rig
//	bootstrap: true
//	theme: norse
//	traits: [base]
//	pillars:
//	  gaming: [steam, gamemode]
//	  developer:
//
// pillars is either a mapping from pillar name to an optional step list or a
// plain list of pillar names. Declaration order is preserved in every format,
// since pillars run in the order they are declared. A traits key inside a
// trait is ignored. Unknown keys are rejected.
//
// Starlark documents define the same keys as globals and may branch on the
// predeclared host struct:
//
//	pillars = {"developer": []}
//	if host.arch == "amd64":
//	    pillars["gaming"] = ["steam"]
//
// # Errors
//
// A missing profile is engine.ErrConfigNotFound. A missing trait yields an
// empty trait together with engine.ErrTraitNotFound, which callers treat as a
// warning. Malformed documents are engine.ErrValidation.
//
// # Settings
//
// AppConfig is read from mythos.yaml and overridden by MYTHOS_ROOT,
// MYTHOS_THEME, MYTHOS_POLICY, MYTHOS_HISTORY and MYTHOS_LOG_LEVEL.
package config
