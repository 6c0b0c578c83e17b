package conn

import (
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"

	"github.com/syntrixbase/natsub/internal/core/subscription"
)

type mockTransport struct {
	mock.Mock

	mu      sync.Mutex
	sink    Sink
	respSID uint64
}

func (m *mockTransport) Bind(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *mockTransport) Subscribe(sid uint64, subject, queue string) error {
	if strings.HasSuffix(subject, ".*") {
		m.mu.Lock()
		m.respSID = sid
		m.mu.Unlock()
	}
	return m.Called(sid, subject, queue).Error(0)
}

func (m *mockTransport) Unsubscribe(sid uint64, max int) error {
	return m.Called(sid, max).Error(0)
}

func (m *mockTransport) Publish(subject, reply string, header nats.Header, data []byte) error {
	return m.Called(subject, reply, header, data).Error(0)
}

func (m *mockTransport) Ping(pong func()) error {
	return m.Called(pong).Error(0)
}

func (m *mockTransport) Close() error {
	return m.Called().Error(0)
}

func (m *mockTransport) deliver(sid uint64, msg *subscription.Message) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink.Deliver(sid, msg)
}

func (m *mockTransport) responseSID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respSID
}

// newMockTransport accepts subscribe and unsubscribe calls.
func newMockTransport() *mockTransport {
	t := &mockTransport{}
	t.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	t.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil).Maybe()
	return t
}
