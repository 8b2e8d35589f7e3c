// Package ws implements the WebSocket fan-out for scalarboard.
//
// Hub manages a set of connected clients and broadcasts the current
// chart snapshots for every known tag on a configurable interval
// (default 5s in production).
//
// New(store, registry, params, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker — blocks until ctx is
// cancelled, then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the
// current charts immediately on connect, then streams updates on each
// tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "charts",
//	  "data":  [ /* same schema as GET /api/v1/chart, one per tag */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the
// reverse proxy level. WebSocket endpoint is mounted at /ws/stream by
// the server.
package ws
