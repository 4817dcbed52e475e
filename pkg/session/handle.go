package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/protocol"
)

// Handle is the caller's exclusive access to one Session, returned by
// Registry.Checkout. It must be released exactly once, normally via a
// deferred Release in the workflow that checked it out.
type Handle struct {
	session *Session
	ch      chan protocol.Message
	logger  zerolog.Logger
}

// IMEI returns the device identifier of the held session.
func (h *Handle) IMEI() string {
	return h.session.IMEI
}

// Vendor returns the vendor tag of the held session.
func (h *Handle) Vendor() string {
	return h.session.Vendor
}

// Send writes a pre-encoded wire frame to the device, failing fast if
// the connection has been closed out from under this handle.
func (h *Handle) Send(frame string) error {
	if h.session.closed.Load() {
		return ErrClosed
	}
	h.session.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := h.session.conn.Write([]byte(frame))
	if err != nil {
		return err
	}
	return nil
}

// Expect blocks until a decoded frame arrives on this handle's channel
// or timeout elapses, whichever comes first.
func (h *Handle) Expect(timeout time.Duration) (protocol.Message, error) {
	select {
	case msg := <-h.ch:
		return msg, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Forward republishes a frame that a workflow step read but decided was
// not the response it was waiting for, so it still reaches telemetry
// instead of being silently dropped.
func (h *Handle) Forward(msg protocol.Message) {
	if h.session.telemetry != nil {
		h.session.telemetry.Publish(h.session.IMEI, msg)
	}
}

// Release ends the workflow's exclusive hold on the session, returning
// the connection to telemetry-only dispatch and unblocking the next
// Checkout for this IMEI. The channel itself is left unclosed and
// simply abandoned: the reader goroutine may still hold a reference to
// it from a Dispatch call racing this Release, and sending on it after
// Release must never panic.
func (h *Handle) Release() {
	h.session.activeCh.Store(nil)
	h.session.workflowMu.Unlock()
}
