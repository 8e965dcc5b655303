package relay

import (
	"errors"
	"fmt"
)

var ErrConnectionClosed = errors.New("connection closed")

// TransportError reports a connection-level failure. Op is "read", "write",
// "send" or "upgrade".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
