package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return sanitizeConfig(Config{})
}

func newRegistryClient(ident Identity) *Client {
	return NewClient(nil, nil, "127.0.0.1:1", ident, "", testConfig(), zap.NewNop())
}

func TestRegistryJoinIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newRegistryClient(Identity{ID: "1", Type: ClassUser})
	reg.Add(c)

	assert.True(t, reg.Join(c.id, "trip:42"))
	assert.False(t, reg.Join(c.id, "trip:42"), "second join must not change membership")
	assert.Len(t, reg.Members("trip:42"), 1)
}

func TestRegistryJoinUnknownClient(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Join("nope", "trip:42"))
	assert.Empty(t, reg.Members("trip:42"))
}

func TestRegistryLeave(t *testing.T) {
	reg := NewRegistry()
	c := newRegistryClient(Identity{ID: "1", Type: ClassUser})
	reg.Add(c)
	reg.Join(c.id, "trip:42")

	assert.False(t, reg.Leave(c.id, "trip:7"), "leaving an unjoined room is a no-op")
	assert.True(t, reg.Leave(c.id, "trip:42"))
	assert.Empty(t, reg.Members("trip:42"))
	assert.Empty(t, reg.RoomNames(), "empty rooms must vanish")
}

func TestRegistryMembersOfUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	members := reg.Members("no-such-room")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRegistryRemovePurgesEveryRoom(t *testing.T) {
	reg := NewRegistry()
	a := newRegistryClient(Identity{ID: "1", Type: ClassUser})
	b := newRegistryClient(Identity{ID: "2", Type: ClassUser})
	reg.Add(a)
	reg.Add(b)
	reg.Join(a.id, "trip:42")
	reg.Join(a.id, "user:1")
	reg.Join(b.id, "trip:42")

	removed := reg.Remove(a.id)
	require.Same(t, a, removed)

	assert.Empty(t, reg.Members("user:1"))
	require.Len(t, reg.Members("trip:42"), 1)
	assert.Same(t, b, reg.Members("trip:42")[0])
	assert.Equal(t, 1, reg.Count())
	assert.Nil(t, reg.Remove(a.id), "second remove finds nothing")
}

func TestRegistryRoomNames(t *testing.T) {
	reg := NewRegistry()
	a := newRegistryClient(Identity{ID: "1", Type: ClassUser})
	reg.Add(a)
	reg.Join(a.id, "trip:9")
	reg.Join(a.id, "trip:1")

	assert.Equal(t, []string{"trip:1", "trip:9"}, reg.RoomNames())
}
