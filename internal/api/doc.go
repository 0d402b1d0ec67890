// Package api provides the HTTP REST API and WebSocket server for Breeze Core.
//
// It exposes the reconciled breezer fleet to local consumers: device
// listings, live state, command submission, and diagnostics. A
// WebSocket hub relays every reconciliation to subscribed clients so
// UIs stay current without polling the REST surface.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
