// Package relay manages individual WebSocket connections, handling read/write
// pumps, rate limiting, and event dispatch for each connection.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; refreshed by pongs.
	pongWait = 60 * time.Second
	// pingInterval must be shorter than pongWait.
	pingInterval = 54 * time.Second
	// sendBuffer is the per-connection outbound queue; delivery past it is
	// dropped rather than blocking the hub.
	sendBuffer = 256
)

// Client is one live transport session: the WebSocket connection, its
// identity as attached at admission time, and the admission-time trip id.
// Identity and trip id never change after admission. The closed flag and the
// room memberships are owned by the hub goroutine.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	addr     string
	identity Identity
	tripID   string
	closed   bool

	limiter        *rate.Limiter
	maxMessageSize int64
	log            *zap.Logger
}

// NewClient creates a connection record for an admitted socket. The conn may
// be nil in tests; the hub then skips the pump goroutines.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, identity Identity, trip string, cfg Config, log *zap.Logger) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		addr:           addr,
		identity:       identity,
		tripID:         trip,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		maxMessageSize: cfg.MaxMessageSize,
		log: log.With(
			zap.String("socket_id", id),
			zap.String("remote_addr", addr)),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity attached at admission time.
func (c *Client) Identity() Identity {
	return c.identity
}

func (c *Client) setupReadDeadlines() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError classifies a read failure so expected disconnects stay quiet.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", zap.Int64("max_bytes", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnecting", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("connection closed", zap.Error(err))
	default:
		c.log.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in read pump", zap.Error(err))
		}
	}()

	c.setupReadDeadlines()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.log.Warn("rate limit exceeded; discarding message")
			continue
		}

		c.dispatch(raw)
	}
}

// dispatch routes one inbound envelope. Malformed messages and unknown event
// names are dropped; the relay does no payload schema validation beyond what
// each handler needs.
func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("discarding malformed message", zap.Error(err))
		return
	}

	switch env.Event {
	case EventJoinTrip:
		if trip := c.decodeTripID(env.Data); trip != "" {
			c.hub.JoinTrip(c, trip)
		}
	case EventLeaveTrip:
		if trip := c.decodeTripID(env.Data); trip != "" {
			c.hub.LeaveTrip(c, trip)
		}
	case EventDriverLocation:
		payload := map[string]any{}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				c.log.Warn("discarding malformed location payload", zap.Error(err))
				return
			}
		}
		c.hub.RelayLocation(c, payload)
	case EventTest:
		c.respondTest(env.Data)
	default:
		c.log.Debug("ignoring unknown event", zap.String("event", env.Event))
	}
}

func (c *Client) decodeTripID(data json.RawMessage) string {
	var req tripRequest
	if len(data) == 0 || json.Unmarshal(data, &req) != nil || req.TripID == "" {
		c.log.Warn("trip event missing trip_id")
		return ""
	}
	return string(req.TripID)
}

// respondTest echoes a test event back to its sender with the resolved
// identity and a server timestamp. The hub goroutine owns the send channel's
// lifecycle, so the reply is queued there rather than written from the read
// pump directly.
func (c *Client) respondTest(data json.RawMessage) {
	payload, err := encodeEvent(EventTestResponse, testResponse{
		Message:   "relay test successful",
		Echo:      data,
		UserID:    c.identity.ID,
		UserType:  c.identity.Type,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.log.Error("test response encoding failed", zap.Error(err))
		return
	}
	delivered := false
	c.hub.do(func() { delivered = c.hub.trySend(c, payload) })
	if !delivered {
		c.log.Warn("dropping test response: client unavailable")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in write pump", zap.Error(err))
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn("error setting write deadline", zap.Error(err))
				return
			}
			if !ok {
				// The hub closed the send channel on purge.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("websocket write error", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn("error setting write deadline for ping", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
