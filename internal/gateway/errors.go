package gateway

import "errors"

var (
	// ErrCommandFailed indicates all delivery attempts were exhausted.
	ErrCommandFailed = errors.New("gateway: command failed")

	// ErrUnconfirmed indicates one attempt timed out waiting for the
	// bridge to echo the requested state.
	ErrUnconfirmed = errors.New("gateway: command not confirmed")

	// ErrNotConnected indicates the broker connection is down.
	ErrNotConnected = errors.New("gateway: broker not connected")
)
