package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scootergw/gateway/pkg/protocol"
)

func TestHubBroadcastsToSubscriber(t *testing.T) {
	hub := New(8, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("123456789012345", protocol.Heartbeat{
		Header:       protocol.Header{Vendor: "LZ", IMEI: "123456789012345"},
		Status:       protocol.LockStatusLocked,
		VoltageCenti: 3780,
		Signal:       22,
		Power:        78,
		Charging:     protocol.ChargingUncharged,
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "123456789012345")
	require.Contains(t, string(data), "H0")
}
