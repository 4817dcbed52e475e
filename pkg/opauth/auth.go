// Package opauth authenticates operators calling the HTTP control
// plane. It never touches device connections: devices remain
// unauthenticated at the transport level, per the gateway's scope.
package opauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("opauth: invalid credentials")
	ErrInvalidToken       = errors.New("opauth: invalid or expired token")
)

// Claims is the JWT payload issued to an authenticated operator.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates bearer tokens for the single configured
// operator account.
type Service struct {
	username     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
}

// New builds a Service for one operator account. passwordHash is a
// bcrypt hash, normally produced offline and stored in configuration.
func New(username, passwordHash, jwtSecret string, ttl time.Duration) *Service {
	return &Service{
		username:     username,
		passwordHash: passwordHash,
		secret:       []byte(jwtSecret),
		ttl:          ttl,
	}
}

// Login verifies username/password and issues a signed bearer token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("opauth: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning the
// authenticated username.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// Middleware rejects any request lacking a valid "Bearer <token>"
// Authorization header before it reaches next.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.ValidateToken(tokenString); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashPassword is a helper for generating OperatorConfig.PasswordHash
// offline; it is not called from any request path.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("opauth: hash password: %w", err)
	}
	return string(hash), nil
}
