// Package notify delivers qualifying earthquake events to a Gotify server.
//
// Gotify.Deliver posts one message with bounded retry. Network errors, 5xx
// and 429 responses are transient and retried with exponential backoff. Any
// other non-2xx status is permanent: it is attempted once, logged as needing
// operator action, and recorded in Gotify.Status.
//
// Queue decouples delivery from ingestion. Submit never blocks; when the
// buffer is full the oldest pending event is evicted. Shutdown stops intake,
// lets in-flight deliveries finish within a grace period and then abandons
// any remaining retries.
//
// Request format:
//
//	POST {url}/message
//	X-Gotify-Key: <application token>
//
//	{
//	  "title":    "JMA EEW: 6弱",
//	  "message":  "...",
//	  "priority": 10,
//	  "extras":   {"quakewatch::delivery": {"id": "<uuid>", ...}}
//	}
package notify
