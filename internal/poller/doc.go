// Package poller implements the Snapshot Poller component.
//
// The Snapshot Poller:
//   - Polls the REST order book for each configured symbol on an interval
//   - Bounds in-flight requests with a weighted semaphore
//   - Converts responses to snapshots with source="rest"
//   - Hands snapshots to a SnapshotHandler (normally the writer EventSink)
package poller
