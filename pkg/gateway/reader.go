package gateway

import (
	"bufio"
	"io"
	"net"

	"github.com/scootergw/gateway/pkg/protocol"
	"github.com/scootergw/gateway/pkg/session"
)

// handshake reads up to the configured window for the first frame,
// which must decode as Q0 with a 15-digit IMEI, and returns that IMEI.
// The sign-in frame's readings are not forwarded anywhere.
func (a *Acceptor) handshake(conn net.Conn) (imei string, err error) {
	raw := make([]byte, a.handshakeWindow)
	n, err := readFrameBytes(conn, raw)
	if err != nil {
		return "", err
	}

	msg, err := protocol.Decode(raw[:n], a.vendor)
	if err != nil {
		return "", err
	}
	signIn, ok := msg.(protocol.SignIn)
	if !ok {
		return "", errNotSignIn
	}
	return signIn.IMEI, nil
}

// readFrameBytes reads from conn until it has consumed one complete
// "#\n"-terminated frame or buf is exhausted.
func readFrameBytes(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if hasTerminator(buf[:total]) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, errFrameTooLarge
}

func hasTerminator(b []byte) bool {
	return len(b) >= 2 && b[len(b)-2] == '#' && b[len(b)-1] == '\n'
}

// readLoop decodes subsequent frames on sess's connection for the life
// of the connection, dispatching each to the session so an in-progress
// workflow's Expect or the telemetry sink receives it. sess is the
// exact session this connection registered as; its deferred Unregister
// call only ever tears down that session, never whatever session
// currently holds its IMEI, so a reconnect that has already replaced
// it is left untouched.
func (a *Acceptor) readLoop(sess *session.Session, conn net.Conn) {
	imei := sess.IMEI
	defer a.registry.Unregister(sess)

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				a.logger.Debug().Err(err).Str("imei", imei).Msg("read error, closing session")
			}
			return
		}

		msg, err := protocol.Decode([]byte(line), a.vendor)
		if err != nil {
			a.logger.Debug().Err(err).Str("imei", imei).Str("frame", line).Msg("dropping undecodable frame")
			continue
		}

		sess.Dispatch(msg)
	}
}
