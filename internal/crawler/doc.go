// Package crawler defines the shared vocabulary of the flare ingest engine:
// raw and normalized filing records, the Location/Operator/Flare entities,
// the run error taxonomy, and the collaborator interfaces (navigator, store,
// archiver, notifier) that the controller sequences.
package crawler
