// Package telemetry broadcasts unsolicited device frames (heartbeats,
// positioning reports, alarms, beeps) to connected operator dashboards
// over a websocket.
package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/protocol"
)

// Hub fans decoded telemetry frames out to every connected websocket
// client. It implements session.TelemetrySink.
type Hub struct {
	logger        zerolog.Logger
	upgrader      websocket.Upgrader
	bufferPerConn int

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// New builds an empty Hub. bufferPerConn bounds how many pending
// messages a slow client may accumulate; further frames for that
// client are dropped while it stays connected.
func New(bufferPerConn int, logger zerolog.Logger) *Hub {
	return &Hub{
		logger:        logger,
		bufferPerConn: bufferPerConn,
		clients:       make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type envelope struct {
	IMEI      string          `json:"imei"`
	Code      protocol.Command `json:"code"`
	Payload   protocol.Message `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Publish implements session.TelemetrySink: it encodes msg as JSON and
// fans it out to every connected client, dropping the frame for any
// client whose buffer is full rather than blocking the device reader.
func (h *Hub) Publish(imei string, msg protocol.Message) {
	data, err := json.Marshal(envelope{
		IMEI:      imei,
		Code:      msg.Code(),
		Payload:   msg,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("imei", imei).Msg("failed to marshal telemetry frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- data:
		default:
			h.logger.Warn().Msg("telemetry client too slow, dropping frame")
		}
	}
}

// ServeWS upgrades r to a websocket and registers it as a telemetry
// subscriber until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("telemetry websocket upgrade failed")
		return
	}

	ch := make(chan []byte, h.bufferPerConn)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("telemetry client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.disconnect(conn)
				return
			}
		case <-done:
			h.disconnect(conn)
			return
		}
	}
}

func (h *Hub) disconnect(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("telemetry client disconnected")
}

// ClientCount returns the number of currently connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
