package conn

import (
	"errors"

	"github.com/syntrixbase/natsub/internal/core/subscription"
)

var (
	// ErrConnClosed is returned for operations on a closed connection.
	ErrConnClosed = errors.New("conn: connection closed")
	// ErrBadSubject is returned for an empty or malformed subject.
	ErrBadSubject = errors.New("conn: invalid subject")
	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("conn: invalid timeout")
	// ErrNoResponders is returned when a request reached no subscriber.
	ErrNoResponders = errors.New("conn: no responders available for request")
	// ErrNoServers is returned when the server pool is exhausted.
	ErrNoServers = errors.New("conn: no servers available for connection")
	// ErrTimeout is returned when a request or flush gets no answer in time.
	ErrTimeout = subscription.ErrTimeout
)
