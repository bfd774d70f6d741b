package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "control-secret"

// newControlServer starts a relay server with a running hub and returns the
// pieces a control-plane test needs.
func newControlServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	cfg := sanitizeConfig(Config{APIKey: testSecret, Environment: "production"})
	hub := NewHub(nil, zap.NewNop())
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	gate := NewGate(&stubValidator{err: ErrInvalidToken}, true, zap.NewNop())
	server := NewServer(cfg, hub, gate, zap.NewNop())

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func controlRequest(t *testing.T, ts *httptest.Server, method, path, secret string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	decoded := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestControlHealth(t *testing.T) {
	ts, hub := newControlServer(t)
	registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "")

	resp, body := controlRequest(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}

func TestControlEmit(t *testing.T) {
	ts, hub := newControlServer(t)
	member := registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "42")

	resp, body := controlRequest(t, ts, http.MethodPost, "/emit", testSecret, map[string]any{
		"room":  "trip:42",
		"event": "ping",
		"data":  map[string]any{"x": 1},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "trip:42", body["room"])
	assert.Equal(t, "ping", body["event"])

	env := recvEvent(t, member)
	assert.Equal(t, "ping", env.Event)
	assert.Equal(t, float64(1), decodePayload(t, env)["x"])
}

func TestControlEmitWithoutDataOmitsPayload(t *testing.T) {
	ts, hub := newControlServer(t)
	member := registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "42")

	resp, _ := controlRequest(t, ts, http.MethodPost, "/emit", testSecret, map[string]any{
		"room":  "trip:42",
		"event": "ping",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := recvEvent(t, member)
	assert.Equal(t, "ping", env.Event)
	assert.Nil(t, env.Data, "envelope must omit data, not carry null")
}

func TestControlEmitMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing event", body: map[string]any{"room": "trip:42"}},
		{name: "missing room", body: map[string]any{"event": "ping"}},
		{name: "empty body", body: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, hub := newControlServer(t)
			member := registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "42")

			resp, body := controlRequest(t, ts, http.MethodPost, "/emit", testSecret, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body, "error")
			assertNoEvent(t, member)
		})
	}
}

func TestControlBroadcast(t *testing.T) {
	ts, hub := newControlServer(t)
	a := registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "")
	b := registerClient(t, hub, Identity{ID: "2", Type: ClassUser}, "")

	resp, body := controlRequest(t, ts, http.MethodPost, "/broadcast", testSecret, map[string]any{
		"event": "announce",
		"data":  map[string]any{"msg": "hello"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "announce", body["event"])
	assert.Equal(t, float64(2), body["clientCount"])

	for _, c := range []*Client{a, b} {
		env := recvEvent(t, c)
		assert.Equal(t, "announce", env.Event)
	}
}

func TestControlUnauthorized(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{name: "missing secret", secret: ""},
		{name: "wrong secret", secret: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, hub := newControlServer(t)
			member := registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "")

			resp, body := controlRequest(t, ts, http.MethodPost, "/broadcast", tt.secret, map[string]any{
				"event": "announce",
			})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Unauthorized", body["error"])
			assertNoEvent(t, member)
		})
	}
}

func TestControlRooms(t *testing.T) {
	ts, hub := newControlServer(t)
	registerClient(t, hub, Identity{ID: "1", Type: ClassUser}, "42")

	resp, body := controlRequest(t, ts, http.MethodGet, "/rooms", testSecret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"trip:42", "user:1"}, body["rooms"])
}

func TestControlRoomsEmptyList(t *testing.T) {
	ts, _ := newControlServer(t)

	resp, body := controlRequest(t, ts, http.MethodGet, "/rooms", testSecret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["rooms"])
}
