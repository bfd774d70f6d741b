// Package relay exposes the synchronous control API that lets the trusted
// backend trigger routed events and query relay state.
package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SecretHeader carries the control-plane shared secret. This is a
// service-to-service trust boundary, distinct from per-connection identity.
const SecretHeader = "X-API-Key"

type emitRequest struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type broadcastRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// requireSecret rejects control requests whose shared secret is absent or
// wrong. An empty configured secret fails closed: nothing gets through. The
// 401 carries no detail beyond "Unauthorized"; the log record carries the
// path so misuse can be diagnosed.
func requireSecret(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader(SecretHeader) != secret {
			log.Warn("control request unauthorized",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.Request.RemoteAddr))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// controlAPI implements the control surface handlers on top of the hub.
type controlAPI struct {
	hub *Hub
	log *zap.Logger
}

// health reports liveness and the current connection count; no secret needed.
func (a *controlAPI) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": a.hub.ConnectionCount(),
	})
}

// emit delivers an event to one room on behalf of the backend.
func (a *controlAPI) emit(c *gin.Context) {
	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.rejectInvalid(c, "invalid request body")
		return
	}
	if req.Room == "" || req.Event == "" {
		a.rejectInvalid(c, "room and event are required")
		return
	}

	a.hub.EmitToRoom(req.Room, req.Event, req.Data)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"room":    req.Room,
		"event":   req.Event,
	})
}

// broadcast delivers an event to every admitted connection.
func (a *controlAPI) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.rejectInvalid(c, "invalid request body")
		return
	}
	if req.Event == "" {
		a.rejectInvalid(c, "event is required")
		return
	}

	count := a.hub.BroadcastAll(req.Event, req.Data)
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"event":       req.Event,
		"clientCount": count,
	})
}

// rooms lists every room currently known to the membership registry.
func (a *controlAPI) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": a.hub.RoomNames()})
}

// rejectInvalid answers a malformed control request with a 400 and records
// it; the operation is not performed and has no partial effects.
func (a *controlAPI) rejectInvalid(c *gin.Context, reason string) {
	a.log.Warn("control request invalid",
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", reason))
	c.JSON(http.StatusBadRequest, gin.H{"error": reason})
}
