package opauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	return New("operator", hash, "test-secret", time.Hour)
}

func TestLoginSuccess(t *testing.T) {
	s := newTestService(t)
	token, err := s.Login("operator", "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	username, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", username)
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestService(t)
	_, err := s.Login("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	s := newTestService(t)
	_, err := s.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	s := newTestService(t)
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/unlock", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	s := newTestService(t)
	token, err := s.Login("operator", "correct horse battery staple")
	require.NoError(t, err)

	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/unlock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
