package subscription

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/natsub/internal/core/protocol"
)

// Message is an inbound message routed to a subscription.
type Message struct {
	Subject string
	Reply   string
	Header  nats.Header
	Data    []byte

	// Sub is the subscription the message was delivered on.
	Sub *Subscription

	conn  Conn
	acked atomic.Bool
}

// NewMsg builds a message that is not yet bound to a connection.
func NewMsg(subject, reply string, header nats.Header, data []byte) *Message {
	return &Message{
		Subject: subject,
		Reply:   reply,
		Header:  header,
		Data:    data,
	}
}

// Size is the payload size counted against pending byte limits.
func (m *Message) Size() int {
	return len(m.Data)
}

// Status returns the control status carried in the header, if any.
func (m *Message) Status() (protocol.Status, bool) {
	st, ok, err := protocol.StatusFromHeader(m.Header)
	if err != nil {
		return protocol.Status{}, false
	}
	return st, ok
}

// Respond publishes data to the message's reply subject.
func (m *Message) Respond(data []byte) error {
	if m.Reply == "" {
		return ErrMsgNoReply
	}
	if m.conn == nil {
		return ErrMsgNotBound
	}
	return m.conn.Publish(m.Reply, data)
}

// Ack acknowledges the message.
func (m *Message) Ack() error {
	return m.ack(protocol.AckAck, 0)
}

// Nak asks for immediate redelivery.
func (m *Message) Nak() error {
	return m.ack(protocol.AckNak, 0)
}

// NakWithDelay asks for redelivery after delay.
func (m *Message) NakWithDelay(delay time.Duration) error {
	return m.ack(protocol.AckNak, delay)
}

// InProgress extends the redelivery deadline. It may be sent repeatedly.
func (m *Message) InProgress() error {
	return m.ack(protocol.AckProgress, 0)
}

// Term stops redelivery of the message.
func (m *Message) Term() error {
	return m.ack(protocol.AckTerm, 0)
}

// Acked reports whether a terminal ack has been sent.
func (m *Message) Acked() bool {
	return m.acked.Load()
}

func (m *Message) ack(verb protocol.AckVerb, delay time.Duration) error {
	if !verb.Valid() {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownAck, int(verb))
	}
	if m.Reply == "" {
		return ErrMsgNoReply
	}
	if m.conn == nil {
		return ErrMsgNotBound
	}

	terminal := verb.Terminal()
	if terminal {
		if !m.acked.CompareAndSwap(false, true) {
			return ErrMsgAlreadyAcked
		}
	} else if m.acked.Load() {
		return ErrMsgAlreadyAcked
	}

	if err := m.conn.Publish(m.Reply, protocol.EncodeAck(verb, delay)); err != nil {
		if terminal {
			m.acked.Store(false)
		}
		return err
	}
	return nil
}
