package user

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory Store. getErr, when set, is returned by every
// lookup.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*User
	nextID int
	getErr error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*User)}
}

func (m *memStore) CreateUser(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return nil, ErrUsernameTaken
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	stored := *u
	m.users[u.Username] = &stored
	return u, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return false, m.getErr
	}
	_, ok := m.users[username]
	return ok, nil
}

func (m *memStore) ListUsernames(_ context.Context, exclude string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.users {
		if name != exclude {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

const testSecret = "test-secret"

func newTestService(store Store) *Service {
	s := NewService(store, testSecret)
	s.bcryptCost = bcrypt.MinCost
	return s
}

func signup(t *testing.T, s *Service, username, password string) {
	t.Helper()
	_, err := s.Signup(context.Background(), &SignupRequest{
		Username:  username,
		Firstname: "Ada",
		Lastname:  "Lovelace",
		Password:  password,
	})
	if err != nil {
		t.Fatalf("Signup(%q): %v", username, err)
	}
}

func TestService_Signup(t *testing.T) {
	store := newMemStore()
	s := newTestService(store)

	u, err := s.Signup(context.Background(), &SignupRequest{
		Username:  "  alice  ",
		Firstname: "Alice",
		Lastname:  "<b>Smith</b>",
		Password:  "secret",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Username = %q, want %q", u.Username, "alice")
	}
	if u.Lastname != "Smith" {
		t.Errorf("Lastname = %q, want markup stripped", u.Lastname)
	}
	if u.Password == "secret" {
		t.Error("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestService_SignupRejects(t *testing.T) {
	tests := []struct {
		name string
		req  SignupRequest
		want error
	}{
		{"missing username", SignupRequest{Firstname: "a", Lastname: "b", Password: "p"}, ErrMissingFields},
		{"blank username", SignupRequest{Username: "   ", Firstname: "a", Lastname: "b", Password: "p"}, ErrMissingFields},
		{"missing password", SignupRequest{Username: "bob", Firstname: "a", Lastname: "b"}, ErrMissingFields},
		{"missing names", SignupRequest{Username: "bob", Password: "p"}, ErrMissingFields},
		{"taken", SignupRequest{Username: "alice", Firstname: "a", Lastname: "b", Password: "p"}, ErrUsernameTaken},
	}

	s := newTestService(newMemStore())
	signup(t, s, "alice", "pw")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Signup(context.Background(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Signup error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_SignupStoreError(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	s := newTestService(store)

	_, err := s.Signup(context.Background(), &SignupRequest{Username: "a", Firstname: "a", Lastname: "b", Password: "p"})
	if err == nil || errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("Signup error = %v, want store error", err)
	}
}

func TestService_LoginAndValidateToken(t *testing.T) {
	s := newTestService(newMemStore())
	signup(t, s, "alice", "pw")

	res, err := s.Login(context.Background(), &LoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Success || res.AccessToken == "" {
		t.Fatalf("Login response = %+v", res)
	}
	if res.User.Username != "alice" || res.User.Firstname != "Ada" {
		t.Errorf("profile = %+v", res.User)
	}

	id, username, err := s.ValidateToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != 1 || username != "alice" {
		t.Errorf("ValidateToken = (%d, %q), want (1, alice)", id, username)
	}
}

func TestService_LoginRejects(t *testing.T) {
	s := newTestService(newMemStore())
	signup(t, s, "alice", "pw")

	tests := []struct {
		name string
		req  LoginRequest
		want error
	}{
		{"wrong password", LoginRequest{Username: "alice", Password: "nope"}, ErrInvalidCredentials},
		{"unknown user", LoginRequest{Username: "bob", Password: "pw"}, ErrInvalidCredentials},
		{"empty", LoginRequest{}, ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Login(context.Background(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Login error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_ValidateTokenRejects(t *testing.T) {
	s := newTestService(newMemStore())

	sign := func(method jwt.SigningMethod, key any, claims MyJWTClaims) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}
	valid := MyJWTClaims{
		ID:       1,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	foreign := valid
	foreign.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other"), valid)},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testSecret), foreign)},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), valid)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken accepted an invalid token")
			}
		})
	}
}

func TestService_Directory(t *testing.T) {
	s := newTestService(newMemStore())
	for _, name := range []string{"carol", "alice", "bob"} {
		signup(t, s, name, "pw")
	}

	ok, err := s.UsernameExists(context.Background(), "bob")
	if err != nil || !ok {
		t.Errorf("UsernameExists(bob) = %v, %v", ok, err)
	}
	ok, err = s.UsernameExists(context.Background(), "dave")
	if err != nil || ok {
		t.Errorf("UsernameExists(dave) = %v, %v", ok, err)
	}

	names, err := s.ListUsernames(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListUsernames: %v", err)
	}
	if len(names) != 2 || names[0] != "alice" || names[1] != "carol" {
		t.Errorf("ListUsernames = %v, want [alice carol]", names)
	}
}
