package session

import "errors"

// ErrNotFound is returned by Checkout when no session is registered for
// the requested IMEI.
var ErrNotFound = errors.New("session: client not found")

// ErrTimeout is returned by Handle.Expect when no matching frame arrives
// within the step's deadline.
var ErrTimeout = errors.New("session: timed out waiting for response")

// ErrClosed is returned by Registry.Checkout and Handle.Send once the
// session has been unregistered. Handle.Expect does not return it; a
// step waiting on a closed session ends with ErrTimeout.
var ErrClosed = errors.New("session: connection closed")
