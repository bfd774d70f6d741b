// Package relay coordinates connection registration, room membership, and
// event routing for the trip relay via the Hub type.
package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub is the relay's single-goroutine core. It exclusively owns the
// membership registry: every registration, membership mutation, and recipient
// resolution runs as a serialized operation on the hub goroutine, so routing
// always sees a consistent snapshot of membership without locks.
//
// Exported methods are safe to call from any goroutine and return only after
// the operation has been applied, which is what gives a join visibility to
// every subsequent emit.
type Hub struct {
	registry   *Registry
	register   chan *Client
	unregister chan *Client
	ops        chan func()
	records    <-chan LogRecord
	log        *zap.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub ready to manage connections. When an observer is
// provided, its records are fanned out as server:log events to logs-viewer
// connections.
func NewHub(observer *Observer, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   NewRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ops:        make(chan func()),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if observer != nil {
		h.records = observer.Records()
	}
	return h
}

// Start launches the hub's event loop. It must be called before any
// connection is registered.
func (h *Hub) Start() {
	go h.Run()
	h.log.Info("hub started")
}

// Run is the hub's main event loop. Everything that touches the registry
// happens here, one event at a time.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unregister:
			h.handleUnregister(c)

		case op := <-h.ops:
			op()

		case rec := <-h.records:
			h.deliverLogRecord(rec)
		}
	}
}

// Register hands a freshly admitted connection to the hub. The hub applies
// the automatic joins (personal room, trip room) and starts the pumps.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// Unregister triggers the disconnect purge for a connection. Idempotent.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// do runs op on the hub goroutine and waits for it to complete. During
// shutdown it degrades to a no-op.
func (h *Hub) do(op func()) {
	doneCh := make(chan struct{})
	select {
	case h.ops <- func() { op(); close(doneCh) }:
	case <-h.ctx.Done():
		return
	}
	select {
	case <-doneCh:
	case <-h.ctx.Done():
	}
}

// EmitToRoom delivers an event to every current member of the room. A room
// with no members is a silent no-op. Returns the number of recipients.
func (h *Hub) EmitToRoom(room, event string, data any) int {
	var delivered int
	h.do(func() {
		delivered = h.deliverRoom(room, event, data, nil)
		h.log.Info("event emitted",
			zap.String("room", room),
			zap.String("event", event),
			zap.Int("recipients", delivered))
	})
	return delivered
}

// BroadcastAll delivers an event to every currently admitted connection and
// returns the connection count at the time of the broadcast.
func (h *Hub) BroadcastAll(event string, data any) int {
	var count int
	h.do(func() {
		count = h.registry.Count()
		payload, err := encodeEvent(event, data)
		if err != nil {
			h.log.Error("event encoding failed", zap.String("event", event), zap.Error(err))
			return
		}
		var failed []*Client
		for _, c := range h.registry.All() {
			if !h.trySend(c, payload) {
				failed = append(failed, c)
			}
		}
		h.removeSlowClients(failed)
		h.log.Info("event broadcast", zap.String("event", event), zap.Int("connections", count))
	})
	return count
}

// RelayExcludingSender delivers an event to every member of the room except
// the sender, for peer notifications where the originator must not receive
// its own echo.
func (h *Hub) RelayExcludingSender(sender *Client, room, event string, data any) int {
	var delivered int
	h.do(func() {
		delivered = h.deliverRoom(room, event, data, sender)
	})
	return delivered
}

// JoinTrip adds the connection to a trip room and notifies the existing
// members. Joining a room the connection already belongs to changes nothing
// and notifies nobody.
func (h *Hub) JoinTrip(c *Client, trip string) {
	if trip == "" {
		return
	}
	room := tripRoom(trip)
	h.do(func() {
		if !h.registry.Join(c.id, room) {
			return
		}
		h.deliverRoom(room, EventUserJoined, joinNotice{
			UserID:   c.identity.ID,
			UserType: c.identity.Type,
			SocketID: c.id,
		}, c)
		h.log.Info("joined trip room", zap.String("room", room), zap.String("socket_id", c.id))
	})
}

// LeaveTrip removes the connection from a trip room and notifies the
// remaining members. Leaving a room the connection is not in is a no-op.
func (h *Hub) LeaveTrip(c *Client, trip string) {
	if trip == "" {
		return
	}
	room := tripRoom(trip)
	h.do(func() {
		if !h.registry.Leave(c.id, room) {
			return
		}
		h.deliverRoom(room, EventUserLeft, leaveNotice{
			UserID:   c.identity.ID,
			SocketID: c.id,
		}, c)
		h.log.Info("left trip room", zap.String("room", room), zap.String("socket_id", c.id))
	})
}

// RelayLocation routes a driver:location event: the target room comes from
// the payload's trip_id, falling back to the sender's admission-time trip.
// The relayed payload is augmented with the sender's identity id and a
// server-assigned timestamp. With no resolvable room the event is dropped;
// this path is best effort.
func (h *Hub) RelayLocation(c *Client, payload map[string]any) {
	trip := stringField(payload, "trip_id")
	if trip == "" {
		trip = c.tripID
	}
	if trip == "" {
		h.log.Warn("location update dropped: no target trip room",
			zap.String("socket_id", c.id),
			zap.String("driver_id", c.identity.ID))
		return
	}
	room := tripRoom(trip)

	augmented := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		augmented[k] = v
	}
	augmented["driver_id"] = c.identity.ID
	augmented["timestamp"] = time.Now().UnixMilli()

	h.do(func() {
		n := h.deliverRoom(room, EventDriverLocation, augmented, c)
		h.log.Info("location relayed",
			zap.String("room", room),
			zap.String("driver_id", c.identity.ID),
			zap.Int("recipients", n))
	})
}

// ConnectionCount returns the number of currently admitted connections.
func (h *Hub) ConnectionCount() int {
	var n int
	h.do(func() { n = h.registry.Count() })
	return n
}

// RoomNames returns every room name with nonzero membership.
func (h *Hub) RoomNames() []string {
	names := []string{}
	h.do(func() { names = h.registry.RoomNames() })
	return names
}

func (h *Hub) handleRegister(c *Client) {
	if c == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	h.registry.Add(c)
	if room := c.identity.PersonalRoom(); room != "" {
		h.registry.Join(c.id, room)
	}
	if c.tripID != "" {
		room := tripRoom(c.tripID)
		h.registry.Join(c.id, room)
		h.deliverRoom(room, EventUserJoined, joinNotice{
			UserID:   c.identity.ID,
			UserType: c.identity.Type,
			SocketID: c.id,
		}, c)
	}

	h.log.Info("client connected",
		zap.String("socket_id", c.id),
		zap.String("user_id", c.identity.ID),
		zap.String("user_type", c.identity.Type),
		zap.String("remote_addr", c.addr),
		zap.Int("connections", h.registry.Count()))

	if c.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Hub) handleUnregister(c *Client) {
	if c == nil || !h.dropClient(c) {
		return
	}
	h.log.Info("client disconnected",
		zap.String("socket_id", c.id),
		zap.String("user_id", c.identity.ID),
		zap.Int("connections", h.registry.Count()))
}

// deliverRoom resolves the room's member set and sends the encoded event to
// every member except exclude. Runs on the hub goroutine only.
func (h *Hub) deliverRoom(room, event string, data any, exclude *Client) int {
	members := h.registry.Members(room)
	if len(members) == 0 {
		return 0
	}
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("event encoding failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	delivered := 0
	var failed []*Client
	for _, m := range members {
		if m == exclude {
			continue
		}
		if h.trySend(m, payload) {
			delivered++
		} else {
			failed = append(failed, m)
		}
	}
	h.removeSlowClients(failed)
	return delivered
}

// deliverLogRecord fans a tap record out to logs-viewer connections. This
// path must not log: a log here would feed back into the tap.
func (h *Hub) deliverLogRecord(rec LogRecord) {
	payload, err := encodeEvent(EventServerLog, rec)
	if err != nil {
		return
	}
	var failed []*Client
	for _, c := range h.registry.All() {
		if c.identity.Type != ClassLogsViewer {
			continue
		}
		if !h.trySend(c, payload) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.dropClient(c)
	}
}

// trySend queues a payload on the client's send buffer. Delivery is best
// effort: a full buffer or a closed client counts as a failed send.
func (h *Hub) trySend(c *Client, payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// dropClient purges a connection from the registry and closes its send
// channel. Reports whether the client was still registered.
func (h *Hub) dropClient(c *Client) bool {
	if h.registry.Get(c.id) == nil {
		return false
	}
	h.registry.Remove(c.id)
	c.closed = true
	close(c.send)
	return true
}

func (h *Hub) removeSlowClients(failed []*Client) {
	for _, c := range failed {
		if h.dropClient(c) {
			h.log.Warn("client dropped: send buffer full",
				zap.String("socket_id", c.id),
				zap.String("remote_addr", c.addr))
		}
	}
}

// shutdownClients closes every active connection during hub shutdown.
func (h *Hub) shutdownClients() {
	clients := h.registry.All()
	for _, c := range clients {
		if c.conn == nil {
			continue
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection",
				zap.String("remote_addr", c.addr),
				zap.Error(err))
		}
	}
	h.log.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the event loop and waits for the pump goroutines to finish,
// or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// stringField renders a payload field as a string, tolerating the numeric
// ids JSON clients tend to send.
func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
