// Package feed implements the quote feed client.
//
// The feed package provides:
//   - Client: a single WebSocket connection with keepalive and staleness checks
//   - Conn: a feed session owning the socket, command/response correlation,
//     the last-error state, and reconnection with exponential backoff
//   - Subscription: a tagged binding of symbols to an event listener; listener
//     callbacks run on the subscription's own delivery goroutine
//
// A subscription must be fully detached before its connection closes.
// Conn.Close enforces this by closing all live subscriptions first.
package feed
