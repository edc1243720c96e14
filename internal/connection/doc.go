// Package connection implements the realtime feed connection.
//
// A Session negotiates a token, dials the first reachable instance server,
// waits for the welcome frame and then runs a single owner goroutine that:
//   - sends application pings and enforces the pong deadline
//   - writes subscribe/unsubscribe frames and resolves them on ack
//   - decodes data frames through the router and queues them in order
//
// A Session never reconnects. Supervisor re-opens sessions with exponential
// backoff and replays the desired subscriptions.
package connection
