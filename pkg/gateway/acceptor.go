// Package gateway runs the device-facing TCP listener: it accepts
// connections, performs the initial sign-in handshake, and spawns a
// per-connection reader that feeds decoded frames into the session
// registry.
package gateway

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/session"
)

// Acceptor owns the device TCP listener.
type Acceptor struct {
	registry  *session.Registry
	vendor    string
	telemetry session.TelemetrySink
	logger    zerolog.Logger

	handshakeWindow int // read buffer size for the first frame, bytes
}

// New builds an Acceptor bound to registry, validating the vendor tag
// on every inbound frame and routing unsolicited telemetry to sink.
func New(registry *session.Registry, vendor string, sink session.TelemetrySink, handshakeBufferBytes int, logger zerolog.Logger) *Acceptor {
	return &Acceptor{
		registry:        registry,
		vendor:          vendor,
		telemetry:       sink,
		logger:          logger,
		handshakeWindow: handshakeBufferBytes,
	}
}

// Serve accepts connections on addr until ctx is cancelled. Accept
// errors are logged and the loop keeps accepting. It returns an error
// only if the listener cannot be opened, and nil on shutdown triggered
// by ctx.
func (a *Acceptor) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	a.logger.Info().Str("addr", addr).Msg("gateway listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				a.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go a.handle(conn)
	}
}

func (a *Acceptor) handle(conn net.Conn) {
	imei, err := a.handshake(conn)
	if err != nil {
		a.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("handshake failed, dropping connection")
		conn.Close()
		return
	}

	current, previous := a.registry.Register(imei, a.vendor, conn, a.telemetry)
	if previous != nil {
		// The registry has already swapped the map entry for this IMEI;
		// only the stale connection itself needs closing. Its read loop
		// will observe the close, return, and Unregister(previous), which
		// is now a no-op since current already replaced it in the map.
		previous.Conn().Close()
	}

	a.readLoop(current, conn)
}
