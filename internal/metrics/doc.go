// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Realtime session state, frame and event rates, keepalive round trips
//   - Decode failures and unknown frames per topic
//   - REST request counts and latencies per endpoint
//   - Writer rows, errors and buffer depth
//   - Poller snapshot outcomes
//
// All recording methods are safe to call on a nil *Metrics.
package metrics
