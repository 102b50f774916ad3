package hub

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Invoke before Connect succeeds, after
// Disconnect, and while the connection is being re-established.
var ErrNotConnected = errors.New("hub: not connected")

// ConnectionError reports a dial or handshake that did not complete.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("hub: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvokeError is a server-side rejection of an invocation.
type InvokeError struct {
	Method  string
	Code    string
	Message string
}

func (e *InvokeError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("hub: %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("hub: %s: %s (%s)", e.Method, e.Message, e.Code)
}
