// Package mongo registers MongoDB-backed run-history storage for agent runs.
//
// Use clients/mongo to build the low-level client and pass it to NewSink to
// obtain a runlog.Sink that persists one summary record per completed run.
package mongo
