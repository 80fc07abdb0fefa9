package chat

import (
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEvent string
		wantData  map[string]any
		wantErr   bool
	}{
		{
			name:      "object data",
			raw:       `{"event":"joinRoom","data":{"username":"alice","room":"devops"}}`,
			wantEvent: "joinRoom",
			wantData:  map[string]any{"username": "alice", "room": "devops"},
		},
		{
			name:      "no data",
			raw:       `{"event":"typing"}`,
			wantEvent: "typing",
			wantData:  map[string]any{},
		},
		{
			name:      "null data",
			raw:       `{"event":"typing","data":null}`,
			wantEvent: "typing",
			wantData:  map[string]any{},
		},
		{
			name:      "non-object data",
			raw:       `{"event":"typing","data":[1,2]}`,
			wantEvent: "typing",
			wantData:  map[string]any{},
		},
		{
			name:      "mixed field types",
			raw:       `{"event":"groupMessage","data":{"message":7,"room":null}}`,
			wantEvent: "groupMessage",
			wantData:  map[string]any{"message": float64(7), "room": nil},
		},
		{name: "no event", raw: `{"data":{}}`, wantErr: true},
		{name: "not json", raw: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, data, err := decodeEvent([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEvent: %v", err)
			}
			if event != tt.wantEvent {
				t.Errorf("event = %q, want %q", event, tt.wantEvent)
			}
			if !reflect.DeepEqual(data, tt.wantData) {
				t.Errorf("data = %#v, want %#v", data, tt.wantData)
			}
		})
	}
}

func TestEncodeEnvelope(t *testing.T) {
	raw, err := encodeEnvelope(EventServerError, ErrorPayload{Message: "nope"})
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}
	if want := `{"event":"serverError","data":{"message":"nope"}}`; string(raw) != want {
		t.Errorf("frame = %s, want %s", raw, want)
	}
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://chat.example.com"}, "", true},
		{"listed", []string{"https://chat.example.com"}, "https://chat.example.com", true},
		{"case and trailing path", []string{"https://Chat.Example.com/"}, "HTTPS://chat.example.com", true},
		{"port matters", []string{"http://localhost:3000"}, "http://localhost:8080", false},
		{"not listed", []string{"https://chat.example.com"}, "https://evil.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"empty list", nil, "https://chat.example.com", false},
		{"malformed origin", []string{"https://chat.example.com"}, "chat.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOriginPolicy(tt.allowed)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := p.check(r); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
