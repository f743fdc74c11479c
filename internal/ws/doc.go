// Package ws implements the WebSocket hub for sourcewatch.
//
// Hub manages a set of connected clients. Broadcasts are push-driven: the
// monitor calls Hub.Broadcast when a check run completes or alerts are
// raised, and every connected client receives the event.
//
// Message format sent to clients:
//
//	{
//	  "event": "run_summary",
//	  "data":  { /* scheduler.Summary */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. WebSocket endpoint is mounted at /ws/stream by the server.
package ws
