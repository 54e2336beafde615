package transport

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Send when the session has a socket but the
// Engine.IO + namespace handshake has not completed. Messages must never be
// written, or silently queued, before the namespace ack is observed.
var ErrNotReady = errors.New("session not ready: handshake incomplete")

// ErrClosed rejects every pending request when the connection is torn down,
// and Send/Connect calls against a closed or idle session.
var ErrClosed = errors.New("connection closed")

// TimeoutError reports a request whose acknowledgment did not arrive within
// the per-request deadline. Only the one request is affected; the connection
// stays usable.
type TimeoutError struct {
	Event string
	MsgID int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q (id %d) timed out waiting for response", e.Event, e.MsgID)
}
