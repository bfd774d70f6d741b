// Package relay tracks which live connections belong to which named rooms via
// the Registry type.
package relay

import "sort"

// Registry is the room membership table: an arena of connections indexed by
// socket id, rooms as sets of ids, and a reverse index from id to rooms.
// Rooms exist implicitly: they appear on first join and vanish when their
// last member leaves or disconnects.
//
// The registry is owned by the hub goroutine and must only be touched from
// operations running on it; it carries no locking of its own.
type Registry struct {
	clients map[string]*Client
	rooms   map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Add places a connection into the arena with no memberships.
func (r *Registry) Add(c *Client) {
	r.clients[c.id] = c
	r.joined[c.id] = make(map[string]struct{})
}

// Get returns the connection with the given id, or nil.
func (r *Registry) Get(id string) *Client {
	return r.clients[id]
}

// Join adds the connection to a room, creating the room on first join.
// Joining a room the connection already belongs to is a no-op. It reports
// whether the membership actually changed.
func (r *Registry) Join(id, room string) bool {
	if _, ok := r.clients[id]; !ok || room == "" {
		return false
	}
	if _, ok := r.joined[id][room]; ok {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	r.joined[id][room] = struct{}{}
	return true
}

// Leave removes the connection from a room. Leaving a room the connection
// does not belong to is a no-op. It reports whether the connection was a
// member.
func (r *Registry) Leave(id, room string) bool {
	if _, ok := r.joined[id][room]; !ok {
		return false
	}
	delete(r.joined[id], room)
	r.removeFromRoom(id, room)
	return true
}

// Remove purges the connection: it is dropped from every room it belonged to
// and from the arena. Returns the removed connection, or nil if unknown.
func (r *Registry) Remove(id string) *Client {
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	for room := range r.joined[id] {
		r.removeFromRoom(id, room)
	}
	delete(r.joined, id)
	delete(r.clients, id)
	return c
}

// Members returns every live connection currently in the room. A room with no
// members reads as an empty set, never an error.
func (r *Registry) Members(room string) []*Client {
	ids := r.rooms[room]
	members := make([]*Client, 0, len(ids))
	for id := range ids {
		members = append(members, r.clients[id])
	}
	return members
}

// InRoom reports whether the connection currently belongs to the room.
func (r *Registry) InRoom(id, room string) bool {
	_, ok := r.joined[id][room]
	return ok
}

// RoomNames returns the sorted names of every room with nonzero membership.
func (r *Registry) RoomNames() []string {
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every connection in the arena.
func (r *Registry) All() []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of connections in the arena.
func (r *Registry) Count() int {
	return len(r.clients)
}

func (r *Registry) removeFromRoom(id, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
