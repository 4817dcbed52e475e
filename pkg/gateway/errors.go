package gateway

import "errors"

var errNotSignIn = errors.New("gateway: first frame was not a Q0 sign-in")

var errFrameTooLarge = errors.New("gateway: handshake frame exceeded the read window")
