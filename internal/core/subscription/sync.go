package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/syntrixbase/natsub/internal/core/metrics"
)

// SyncSubscription delivers messages to callers of NextMsg.
type SyncSubscription struct {
	*Subscription
}

// NewSync creates a pull subscription owned by conn.
func NewSync(conn Conn, subject, queueGroup string, opts ...Option) *SyncSubscription {
	s := &SyncSubscription{Subscription: newSubscription(conn, subject, queueGroup, metrics.KindSync, opts)}
	s.announced = true
	return s
}

// NextMsg waits up to timeout for the next message. A negative timeout
// waits until a message arrives or the subscription closes. A timeout
// leaves the subscription usable.
//
// At the delivery limit a message that lost the race for the final slot
// is discarded and ErrMaxMessages returned in its place.
func (s *SyncSubscription) NextMsg(timeout time.Duration) (*Message, error) {
	s.mu.Lock()
	if err := s.checkPullLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.draining && s.queue.Len() == 0 {
		s.mu.Unlock()
		s.finish()
		return nil, ErrBadSubscription
	}
	q := s.queue
	s.mu.Unlock()

	msg, err := q.Pull(timeout)
	if errors.Is(err, ErrTimeout) {
		return nil, fmt.Errorf("subscription: next msg: %w", err)
	}
	if err != nil {
		return nil, s.closedErr(err)
	}

	s.mu.Lock()
	deliver, last := s.tallyLocked(msg)
	s.mu.Unlock()

	if !deliver {
		s.metrics.IncDropped(s.kind, metrics.ReasonMaxExceeded)
		return nil, ErrMaxMessages
	}
	if last {
		s.finish()
	} else {
		s.finishIfDrained()
	}
	s.metrics.IncDelivered(s.kind)
	return msg, nil
}

// checkPullLocked validates the subscription before a pull. The order
// is significant: a lost connection outranks every other condition.
func (s *SyncSubscription) checkPullLocked() error {
	switch {
	case s.connClosed:
		return ErrConnectionClosed
	case s.max > 0 && s.delivered >= uint64(s.max):
		return ErrMaxMessages
	case s.closed:
		return ErrBadSubscription
	case s.slow:
		s.slow = false
		return ErrSlowConsumer
	}
	return nil
}
