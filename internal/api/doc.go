// Package api implements the HTTP REST API and WebSocket server for the
// irrigation control plane.
//
// Two kinds of caller use it:
//   - Growers and admins on the dashboard, authenticated with a JWT issued
//     by POST /api/v1/auth/login.
//   - Field devices, authenticated with their X-API-KEY header.
//
// The caller is resolved once in middleware into an irrigation.Caller and
// handlers never look at credentials again. Every state change goes through
// irrigation.Service, so HTTP, MQTT and the CLI share per-device
// serialisation.
//
// Live updates reach the dashboard through the WebSocket hub, which is an
// irrigation.Notifier scoped to the connected user's device. Clients obtain a
// single-use ticket from POST /api/v1/auth/ws-ticket so the JWT never
// appears in a URL.
package api
