// Package rooms holds the fixed set of chat rooms a connection may join.
package rooms

// DefaultRooms is used when no room list is configured.
var DefaultRooms = []string{"devops", "cloud computing", "covid19", "sports", "nodeJS"}

// Policy is an immutable allow-list of room names. It is built once at
// startup and shared read-only, so it needs no locking.
type Policy struct {
	names   []string
	allowed map[string]struct{}
}

// NewPolicy builds a Policy from names, dropping blanks and duplicates.
// An empty list falls back to DefaultRooms.
func NewPolicy(names []string) *Policy {
	if len(names) == 0 {
		names = DefaultRooms
	}

	p := &Policy{allowed: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := p.allowed[name]; dup {
			continue
		}
		p.allowed[name] = struct{}{}
		p.names = append(p.names, name)
	}
	return p
}

// Allowed reports whether room is one of the configured rooms.
func (p *Policy) Allowed(room string) bool {
	_, ok := p.allowed[room]
	return ok
}

// Rooms returns the configured rooms in configured order.
func (p *Policy) Rooms() []string {
	return append([]string(nil), p.names...)
}
