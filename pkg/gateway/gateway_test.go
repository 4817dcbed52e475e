package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootergw/gateway/pkg/protocol"
	"github.com/scootergw/gateway/pkg/session"
)

type recordingSink struct {
	received chan protocol.Message
}

func (s *recordingSink) Publish(imei string, msg protocol.Message) {
	s.received <- msg
}

func TestHandshakeRegistersSession(t *testing.T) {
	registry := session.NewRegistry(zerolog.Nop())
	sink := &recordingSink{received: make(chan protocol.Message, 4)}
	a := New(registry, "LZ", sink, 1024, zerolog.Nop())

	gwConn, devConn := net.Pipe()
	defer devConn.Close()

	go a.handle(gwConn)

	_, err := devConn.Write([]byte("*SCOR,LZ,123456789012345,Q0,4210,88,20#\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := registry.Get("123456789012345")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestHandshakeRejectsNonSignIn(t *testing.T) {
	registry := session.NewRegistry(zerolog.Nop())
	a := New(registry, "LZ", nil, 1024, zerolog.Nop())

	gwConn, devConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		a.handle(gwConn)
		close(done)
	}()

	devConn.Write([]byte("*SCOR,LZ,123456789012345,H0,0,3780,22,78,0#\n"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle did not return after a non-Q0 first frame")
	}
	_, ok := registry.Get("123456789012345")
	assert.False(t, ok)
	devConn.Close()
}

func TestReadLoopDispatchesTelemetry(t *testing.T) {
	registry := session.NewRegistry(zerolog.Nop())
	sink := &recordingSink{received: make(chan protocol.Message, 4)}
	a := New(registry, "LZ", sink, 1024, zerolog.Nop())

	gwConn, devConn := net.Pipe()
	defer devConn.Close()

	go a.handle(gwConn)

	devConn.Write([]byte("*SCOR,LZ,123456789012345,Q0,4210,88,20#\n"))
	require.Eventually(t, func() bool {
		_, ok := registry.Get("123456789012345")
		return ok
	}, time.Second, 5*time.Millisecond)

	devConn.Write([]byte("*SCOR,LZ,123456789012345,H0,0,3780,22,78,0#\n"))

	select {
	case msg := <-sink.received:
		hb, ok := msg.(protocol.Heartbeat)
		require.True(t, ok)
		assert.Equal(t, protocol.LockStatusUnlocked, hb.Status)
	case <-time.After(time.Second):
		t.Fatal("telemetry sink never received the heartbeat")
	}
}

// TestReconnectReplacesWithoutEvictingNewSession exercises the race a
// duplicate Q0 creates: the first connection's read loop only learns
// its connection was closed (by the second handshake's registration)
// after the replacement session is already live, and its deferred
// cleanup must not tear that replacement down.
func TestReconnectReplacesWithoutEvictingNewSession(t *testing.T) {
	registry := session.NewRegistry(zerolog.Nop())
	a := New(registry, "LZ", nil, 1024, zerolog.Nop())
	const imei = "123456789012345"

	gwConn1, devConn1 := net.Pipe()
	go a.handle(gwConn1)

	_, err := devConn1.Write([]byte("*SCOR,LZ,123456789012345,Q0,4210,88,20#\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := registry.Get(imei)
		return ok
	}, time.Second, 5*time.Millisecond)
	first, _ := registry.Get(imei)

	gwConn2, devConn2 := net.Pipe()
	defer devConn2.Close()
	go a.handle(gwConn2)

	_, err = devConn2.Write([]byte("*SCOR,LZ,123456789012345,Q0,4210,88,20#\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, ok := registry.Get(imei)
		return ok && sess != first
	}, time.Second, 5*time.Millisecond)

	// The first connection should now observe its conn closed and its
	// read loop unwind, running Unregister(first) as a no-op.
	devConn1.Close()

	require.Eventually(t, func() bool {
		_, ok := registry.Get(imei)
		return ok
	}, time.Second, 5*time.Millisecond, "the replacement session must still be registered")

	second, ok := registry.Get(imei)
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, registry.Count())
}
