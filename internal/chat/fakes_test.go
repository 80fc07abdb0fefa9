package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// delivery is one call recorded by fakeTransport.
type delivery struct {
	method  string // "to", "room" or "roomExcept"
	target  string // connection id or room
	except  string
	event   string
	payload any
}

type fakeTransport struct {
	mu           sync.Mutex
	deliveries   []delivery
	joins        []string // "conn:room"
	leaves       []string
	onDisconnect []func(string)
}

func (t *fakeTransport) SendTo(connID, event string, payload any) {
	t.record(delivery{method: "to", target: connID, event: event, payload: payload})
}

func (t *fakeTransport) SendToRoom(room, event string, payload any) {
	t.record(delivery{method: "room", target: room, event: event, payload: payload})
}

func (t *fakeTransport) SendToRoomExcept(room, exceptConnID, event string, payload any) {
	t.record(delivery{method: "roomExcept", target: room, except: exceptConnID, event: event, payload: payload})
}

func (t *fakeTransport) JoinRoom(connID, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins = append(t.joins, connID+":"+room)
}

func (t *fakeTransport) LeaveRoom(connID, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves = append(t.leaves, connID+":"+room)
}

func (t *fakeTransport) OnDisconnect(fn func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = append(t.onDisconnect, fn)
}

func (t *fakeTransport) record(d delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliveries = append(t.deliveries, d)
}

// disconnect simulates the transport noticing connID has gone.
func (t *fakeTransport) disconnect(connID string) {
	t.mu.Lock()
	fns := append([]func(string)(nil), t.onDisconnect...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(connID)
	}
}

// take returns and clears the recorded deliveries.
func (t *fakeTransport) take() []delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.deliveries
	t.deliveries = nil
	return out
}

// memStore is an in-memory MessageStore. The func fields, when set,
// replace the default behaviour.
type memStore struct {
	mu      sync.Mutex
	group   []*GroupMessage
	private []*PrivateMessage
	nextID  int64

	appendGroupFunc   func(ctx context.Context, sender, room, body string) (*GroupMessage, error)
	appendPrivateFunc func(ctx context.Context, sender, recipient, body string) (*PrivateMessage, error)
}

func (s *memStore) AppendGroupMessage(ctx context.Context, sender, room, body string) (*GroupMessage, error) {
	if s.appendGroupFunc != nil {
		return s.appendGroupFunc(ctx, sender, room, body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := &GroupMessage{ID: s.nextID, FromUser: sender, Room: room, Message: body, DateSent: time.Now().UTC()}
	s.group = append(s.group, msg)
	return msg, nil
}

func (s *memStore) AppendPrivateMessage(ctx context.Context, sender, recipient, body string) (*PrivateMessage, error) {
	if s.appendPrivateFunc != nil {
		return s.appendPrivateFunc(ctx, sender, recipient, body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := &PrivateMessage{ID: s.nextID, FromUser: sender, ToUser: recipient, Message: body, DateSent: time.Now().UTC()}
	s.private = append(s.private, msg)
	return msg, nil
}

func (s *memStore) ListGroupMessages(_ context.Context, room string, limit int) ([]*GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*GroupMessage
	for _, m := range s.group {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.group), len(s.private)
}

// fakeDirectory knows a fixed set of users.
type fakeDirectory struct {
	users map[string]bool
	err   error
}

func newFakeDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]bool)}
	for _, n := range names {
		d.users[n] = true
	}
	return d
}

func (d *fakeDirectory) UsernameExists(_ context.Context, username string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.users[username], nil
}

func (d *fakeDirectory) ListUsernames(context.Context, string) ([]string, error) {
	return nil, nil
}
