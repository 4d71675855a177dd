// Package stream maintains a single websocket connection to an early-warning
// feed and exposes its messages as a lazy, non-restartable frame sequence.
//
// Client.Dial(ctx, endpoint) opens one connection. The returned Conn is bound
// to ctx: cancelling it closes the socket and unblocks Next.
//
// While a Conn is open it sends a ping control frame every PingInterval and
// extends the read deadline on every received frame and pong. A feed that
// stays silent for ReadTimeout therefore ends the sequence with an error.
//
// Conn.Next blocks for the next text or binary message. Any read error ends
// the sequence for good; callers reconnect by dialling again. Reconnect
// policy lives with the caller, not here.
package stream
