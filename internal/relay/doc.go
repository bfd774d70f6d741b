// Package relay implements a realtime trip relay: WebSocket connection
// admission, room membership, event routing, a synchronous HTTP control API
// for the trusted backend, and a live log tap delivered to logs-viewer
// connections.
//
// The implementation is organized into specialized files for admission,
// membership, routing, transport, and the control surface to keep the
// codebase maintainable and testable as the project grows.
package relay
