package main

import (
	"net/http"

	"opreg/internal/websocket"
)

// Global hub instance. Audit records and fired expiry alerts are pushed
// to connected dashboard clients through it.
var wsHub = websocket.NewHub()

// handleWebSocket upgrades the HTTP connection to a WebSocket.
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.HandleWebSocket(wsHub, w, r)
}
