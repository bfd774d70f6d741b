// Package relay defines the wire envelope and the event vocabulary shared by
// socket clients, the control API, and the hub.
package relay

import (
	"encoding/json"
	"strings"
)

// Client-initiated events.
const (
	EventJoinTrip       = "join:trip"
	EventLeaveTrip      = "leave:trip"
	EventDriverLocation = "driver:location"
	EventTest           = "test"
)

// Server-initiated events.
const (
	EventUserJoined   = "user:joined"
	EventUserLeft     = "user:left"
	EventServerLog    = "server:log"
	EventTestResponse = "test:response"
)

// Envelope is the wire format for every socket message in both directions:
// an event name plus an arbitrary JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent marshals an outbound envelope for the given event and payload.
// An empty raw payload, as produced by a control request without a data field,
// counts as no payload.
func encodeEvent(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if raw, ok := data.(json.RawMessage); ok && len(raw) == 0 {
		data = nil
	}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = payload
	}
	return json.Marshal(env)
}

// tripID tolerates both string and numeric JSON trip identifiers.
type tripID string

// UnmarshalJSON implements json.Unmarshaler.
func (t *tripID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = tripID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = tripID(n.String())
	return nil
}

// tripRequest is the payload of join:trip and leave:trip.
type tripRequest struct {
	TripID tripID `json:"trip_id"`
}

// joinNotice is the user:joined payload delivered to existing room peers.
type joinNotice struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	SocketID string `json:"socket_id"`
}

// leaveNotice is the user:left payload delivered to remaining room peers.
type leaveNotice struct {
	UserID   string `json:"user_id"`
	SocketID string `json:"socket_id"`
}

// testResponse echoes a test event back to its sender.
type testResponse struct {
	Message   string          `json:"message"`
	Echo      json.RawMessage `json:"echo,omitempty"`
	UserID    string          `json:"user_id"`
	UserType  string          `json:"user_type"`
	Timestamp int64           `json:"timestamp"`
}

// tripRoom returns the room key addressing all connections on a trip.
func tripRoom(id string) string {
	return "trip:" + id
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
