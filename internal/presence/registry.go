// Package presence tracks which live connections belong to which user and
// which room each connection is currently in.
package presence

import (
	"sort"
	"sync"
)

// Connection is the server-held state of one live transport session.
type Connection struct {
	ID       string
	Username string
	Room     string
	// Pinned connections took their username from a verified token and
	// must not be re-registered under another name.
	Pinned bool
}

// Registry maps usernames to their live connections and back. One Registry
// is created per server process and shared by reference; every method takes
// the same lock.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	users map[string]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		users: make(map[string]map[string]struct{}),
	}
}

// RegisterUsername attributes connID to username. Registering the same pair
// twice is a no-op; a previous, different username is detached first.
func (r *Registry) RegisterUsername(connID, username string) {
	if connID == "" || username == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.register(connID, username)
}

// PinUsername registers username for connID and marks the identity as
// verified.
func (r *Registry) PinUsername(connID, username string) {
	if connID == "" || username == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.register(connID, username).Pinned = true
}

func (r *Registry) register(connID, username string) *Connection {
	c := r.connection(connID)
	if c.Username == username {
		return c
	}
	if c.Username != "" {
		r.detach(connID, c.Username)
	}

	set, ok := r.users[username]
	if !ok {
		set = make(map[string]struct{})
		r.users[username] = set
	}
	set[connID] = struct{}{}
	c.Username = username
	return c
}

// SetRoom overwrites the current room of connID. An empty room means the
// connection is not in any room. The username mapping is untouched.
func (r *Registry) SetRoom(connID, room string) {
	if connID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connection(connID).Room = room
}

// ConnectionsFor returns a sorted snapshot of the connections claiming
// username. The result is nil when the user has no live connections.
func (r *Registry) ConnectionsFor(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[username]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionsInRoom returns a sorted snapshot of the connections whose
// current room is room.
func (r *Registry) ConnectionsInRoom(room string) []string {
	if room == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, c := range r.conns {
		if c.Room == room {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// UsernameOf returns the username claimed by connID, or "".
func (r *Registry) UsernameOf(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		return c.Username
	}
	return ""
}

// RoomOf returns the current room of connID, or "".
func (r *Registry) RoomOf(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		return c.Room
	}
	return ""
}

// Lookup returns a copy of the state held for connID.
func (r *Registry) Lookup(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// OnlineUsernames returns the sorted usernames with at least one live
// connection.
func (r *Registry) OnlineUsernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

// Remove forgets connID entirely. It is safe to call for connections that
// never registered or were already removed.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	if c.Username != "" {
		r.detach(connID, c.Username)
	}
	delete(r.conns, connID)
}

// connection returns the entry for connID, creating it on first use.
// Callers hold r.mu.
func (r *Registry) connection(connID string) *Connection {
	c, ok := r.conns[connID]
	if !ok {
		c = &Connection{ID: connID}
		r.conns[connID] = c
	}
	return c
}

// detach drops connID from username's set and deletes the set once empty.
// Callers hold r.mu.
func (r *Registry) detach(connID, username string) {
	set, ok := r.users[username]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, username)
	}
}
