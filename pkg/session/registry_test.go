package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegisterReplacesPreviousSession(t *testing.T) {
	r := newTestRegistry()

	c1, c1Peer := net.Pipe()
	defer c1Peer.Close()
	c2, c2Peer := net.Pipe()
	defer c2Peer.Close()
	defer c1.Close()
	defer c2.Close()

	first, prev := r.Register("111111111111111", "acme", c1, nil)
	require.Nil(t, prev)
	require.Equal(t, "111111111111111", first.IMEI)

	second, prev := r.Register("111111111111111", "acme", c2, nil)
	require.NotNil(t, prev)
	assert.Same(t, first, prev, "the displaced session must be the original, observable by the caller")
	assert.NotSame(t, first, second)

	h, err := r.Checkout("111111111111111")
	require.NoError(t, err)
	defer h.Release()
	assert.Same(t, second, h.session, "checkout after re-register must resolve to the newest session")

	assert.Equal(t, 1, r.Count())
}

func TestCheckoutNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Checkout("000000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckoutBlocksConcurrentCheckout(t *testing.T) {
	r := newTestRegistry()
	conn, peer := net.Pipe()
	defer conn.Close()
	defer peer.Close()

	r.Register("222222222222222", "acme", conn, nil)

	h1, err := r.Checkout("222222222222222")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		h2, err := r.Checkout("222222222222222")
		require.NoError(t, err)
		close(acquired)
		h2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second checkout must not succeed while the first handle is held")
	case <-time.After(100 * time.Millisecond):
	}

	h1.Release()
	wg.Wait()
}

func TestUnregisterClosesConnection(t *testing.T) {
	r := newTestRegistry()
	conn, peer := net.Pipe()
	defer peer.Close()

	sess, _ := r.Register("333333333333333", "acme", conn, nil)
	r.Unregister(sess)

	_, ok := r.Get("333333333333333")
	assert.False(t, ok)

	_, err := conn.Write([]byte("x"))
	assert.Error(t, err, "writing to a closed connection must fail")
}

func TestUnregisterOfStaleSessionLeavesReplacementIntact(t *testing.T) {
	r := newTestRegistry()

	c1, c1Peer := net.Pipe()
	defer c1Peer.Close()
	defer c1.Close()
	c2, c2Peer := net.Pipe()
	defer c2Peer.Close()
	defer c2.Close()

	first, prev := r.Register("444444444444444", "acme", c1, nil)
	require.Nil(t, prev)

	second, prev := r.Register("444444444444444", "acme", c2, nil)
	require.Same(t, first, prev)

	// Simulate the displaced connection's read loop unwinding and
	// running its deferred Unregister(first) after the replacement is
	// already live in the map.
	r.Unregister(first)

	current, ok := r.Get("444444444444444")
	require.True(t, ok, "the replacement session must survive the stale session's teardown")
	assert.Same(t, second, current)
	assert.Equal(t, 1, r.Count())

	_, err := c2.Write([]byte("x"))
	assert.NoError(t, err, "the replacement's connection must still be open")
}
