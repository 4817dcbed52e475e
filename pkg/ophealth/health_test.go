package ophealth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scootergw/gateway/internal/sysmon"
	"github.com/scootergw/gateway/pkg/session"
)

func TestServeHTTPReportsActiveSessions(t *testing.T) {
	registry := session.NewRegistry(zerolog.Nop())
	mon := sysmon.Start(time.Hour)
	defer mon.Stop()

	checker := New(registry, mon, time.Now().Add(-5*time.Second))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.True(t, status.Healthy)
	require.GreaterOrEqual(t, status.UptimeSeconds, int64(5))
	require.Equal(t, 0, status.ActiveSessions)
}
