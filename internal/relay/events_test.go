package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
		ok   bool
	}{
		{name: "string id", json: `{"trip_id":"42"}`, want: "42", ok: true},
		{name: "numeric id", json: `{"trip_id":42}`, want: "42", ok: true},
		{name: "float id", json: `{"trip_id":4.5}`, want: "4.5", ok: true},
		{name: "object id", json: `{"trip_id":{}}`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req tripRequest
			err := json.Unmarshal([]byte(tt.json), &req)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(req.TripID))
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	raw, err := encodeEvent("ping", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping","data":{"x":1}}`, string(raw))
}

func TestEncodeEventWithoutPayload(t *testing.T) {
	raw, err := encodeEvent("ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))
}

func TestEncodeEventEmptyRawPayload(t *testing.T) {
	raw, err := encodeEvent("ping", json.RawMessage(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))
}

func TestPersonalRoom(t *testing.T) {
	assert.Equal(t, "driver:7", Identity{ID: "7", Type: "driver"}.PersonalRoom())
	assert.Empty(t, Identity{Type: "driver"}.PersonalRoom())
}
