// Package api provides the HTTP REST API and WebSocket server for
// GridPulse Core.
//
// It exposes device and alert read endpoints, thin catalog administration,
// outbound device commands, and the two real-time viewer endpoints:
// /ws/monitor for live device-status updates and /ws/alert for alert
// delivery with client-driven acknowledgment.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication and token issuance are external collaborators; viewer
// identity arrives as query parameters set by the fronting gateway.
package api
