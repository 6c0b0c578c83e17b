package subscription

import (
	"errors"

	"github.com/syntrixbase/natsub/internal/core/queue"
)

var (
	// ErrConnectionClosed is returned when the owning connection is gone.
	ErrConnectionClosed = errors.New("subscription: connection closed")
	// ErrMaxMessages is returned once the delivery limit has been reached.
	ErrMaxMessages = errors.New("subscription: maximum messages delivered")
	// ErrBadSubscription is returned for operations on a closed or unbound subscription.
	ErrBadSubscription = errors.New("subscription: invalid subscription")
	// ErrSlowConsumer is returned once after messages were dropped for a lagging consumer.
	ErrSlowConsumer = errors.New("subscription: slow consumer, messages dropped")
	// ErrTimeout is returned when no message arrives within the requested window.
	ErrTimeout = queue.ErrTimeout

	// ErrMsgNoReply is returned when responding to a message without a reply subject.
	ErrMsgNoReply = errors.New("subscription: message does not have a reply")
	// ErrMsgNotBound is returned when a message is not bound to a connection.
	ErrMsgNotBound = errors.New("subscription: message is not bound to a connection")
	// ErrMsgAlreadyAcked is returned when a terminal ack was already sent.
	ErrMsgAlreadyAcked = errors.New("subscription: message was already acknowledged")
)
