// Package session owns the process-wide mapping from device IMEI to an
// exclusively-lockable TCP connection, and the two-tier locking
// discipline that lets many operator workflows run concurrently on
// different devices without contending on the registry itself.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/protocol"
)

// Session is one connected device's runtime state: its IMEI, an
// exclusively lockable connection, and the registration timestamp.
// workflowMu is held for the full duration of an operator workflow,
// never just for a single send/receive.
type Session struct {
	IMEI         string
	Vendor       string
	RegisteredAt time.Time

	conn       net.Conn
	workflowMu sync.Mutex
	activeCh   atomic.Pointer[chan protocol.Message]
	telemetry  TelemetrySink
	closed     atomic.Bool
}

// Dispatch routes one decoded inbound frame: to the checked-out
// workflow's channel if one is active, otherwise to the telemetry sink.
// It is called by the gateway's per-connection reader, never by a
// workflow directly.
func (s *Session) Dispatch(msg protocol.Message) {
	if p := s.activeCh.Load(); p != nil {
		select {
		case *p <- msg:
		default:
			// Workflow isn't keeping up; this frame is lost rather than
			// blocking the reader. A well-behaved step drains promptly.
		}
		return
	}
	if s.telemetry != nil {
		s.telemetry.Publish(s.IMEI, msg)
	}
}

// Conn exposes the raw connection for the gateway's read loop only.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Registry is the shared IMEI -> Session map. The outer lock protects
// only structural mutation (insert/remove/lookup) and is held briefly;
// each Session's own workflowMu is held for as long as one operator
// workflow needs exclusive use of the connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register inserts or replaces the session for imei. If a session
// already existed for that IMEI, it is returned (still with its
// connection open) so the caller can close it; the registry never
// holds two live entries for the same IMEI.
func (r *Registry) Register(imei, vendor string, conn net.Conn, telemetry TelemetrySink) (current, previous *Session) {
	sess := &Session{
		IMEI:         imei,
		Vendor:       vendor,
		RegisteredAt: time.Now(),
		conn:         conn,
		telemetry:    telemetry,
	}

	r.mu.Lock()
	previous = r.sessions[imei]
	r.sessions[imei] = sess
	r.mu.Unlock()

	r.logger.Info().Str("imei", imei).Bool("replaced", previous != nil).Msg("session registered")
	return sess, previous
}

// Checkout acquires exclusive use of the session for imei. The registry
// lock is held only long enough to look the session up; the returned
// Handle holds the session's own lock until Release is called.
func (r *Registry) Checkout(imei string) (*Handle, error) {
	r.mu.RLock()
	sess, ok := r.sessions[imei]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	sess.workflowMu.Lock()
	if sess.closed.Load() {
		sess.workflowMu.Unlock()
		return nil, ErrClosed
	}

	ch := make(chan protocol.Message, 8)
	sess.activeCh.Store(&ch)

	return &Handle{session: sess, ch: ch, logger: r.logger}, nil
}

// Unregister removes and closes sess, but only if it is still the
// registry's current entry for its IMEI. A duplicate Q0 sign-in
// replaces the map entry for an IMEI while the displaced connection's
// own read loop is still unwinding; that read loop's deferred cleanup
// must not be allowed to delete and close the session that replaced
// it. Comparing identity under the same lock Register uses to publish
// the replacement closes that race.
func (r *Registry) Unregister(sess *Session) {
	r.mu.Lock()
	current, ok := r.sessions[sess.IMEI]
	stale := ok && current != sess
	if ok && !stale {
		delete(r.sessions, sess.IMEI)
	}
	r.mu.Unlock()

	if !ok || stale {
		return
	}
	sess.closed.Store(true)
	_ = sess.conn.Close()
	r.logger.Info().Str("imei", sess.IMEI).Msg("session unregistered")
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns the live session for imei without checking it out, for
// read-only inspection (e.g. registration time in a status endpoint).
func (r *Registry) Get(imei string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[imei]
	return sess, ok
}
