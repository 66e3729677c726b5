// Package stores keeps the history of provisioning runs in SQLite.
//
// The schema is created by embedded golang-migrate migrations:
//
//	runs      one row per run: profile, status, abort reason, counts
//	outcomes  the outcome log of each run, in recording order
//	events    every engine event, with the full event as JSON
//
// Journal turns the engine's event stream into rows, so a run is recorded
// as it happens and an interrupted run stays visible as pending.
//
//	store, err := stores.Open(ctx, path)
//	journal := stores.NewJournal(store, logger)
//	publisher.Subscribe(journal.Publish, nil)
package stores
