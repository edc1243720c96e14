// Package api provides the KuCoin REST client.
//
// REST endpoint:
//   - Production: https://api.kucoin.com
//
// Every response is wrapped in an envelope {"code", "data", "msg"}; code
// "200000" means success. Private endpoints are signed per request with
// package auth, and each retry attempt is signed afresh.
//
// Negotiate performs the bullet handshake that yields a one-time websocket
// token and the ordered list of instance servers to dial.
package api
