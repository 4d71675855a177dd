// Package ws implements the websocket status hub.
//
// Hub broadcasts the per-source report (same schema as GET /api/v1/sources)
// to every connected client on a fixed interval, and once immediately on
// connect:
//
//	{
//	  "event": "sources",
//	  "data":  { /* api.SourcesResponse */ }
//	}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/status.
package ws
