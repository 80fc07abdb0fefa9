package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"roomchat/internal/sanitize"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer   = "roomchat"
	tokenLifetime = 24 * time.Hour
	maxNameLength = 100
	userListLimit = 500
)

type Service struct {
	repo       Store
	jwtSecret  string
	bcryptCost int
}

type MyJWTClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string) *Service {
	return &Service{
		repo:       repo,
		jwtSecret:  secret,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Signup creates an account. The username is sanitized exactly like the
// usernames in chat events.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*User, error) {
	u := &User{
		Username:  sanitize.Username(req.Username),
		Firstname: sanitize.Clean(req.Firstname, maxNameLength),
		Lastname:  sanitize.Clean(req.Lastname, maxNameLength),
	}
	if u.Username == "" || u.Firstname == "" || u.Lastname == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	if _, err := s.repo.GetUserByUsername(ctx, u.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u.Password = string(hashedPwd)

	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Success:     true,
		AccessToken: ss,
		User: Profile{
			Username:  u.Username,
			Firstname: u.Firstname,
			Lastname:  u.Lastname,
		},
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	return claims.ID, claims.Username, nil
}

// UsernameExists reports whether username has signed up.
func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.repo.UsernameExists(ctx, username)
}

// ListUsernames returns signed-up usernames in order, without exclude.
func (s *Service) ListUsernames(ctx context.Context, exclude string) ([]string, error) {
	return s.repo.ListUsernames(ctx, exclude, userListLimit)
}
