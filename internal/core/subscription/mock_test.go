package subscription

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) SendSubscriptionMessage(sub *Subscription) error {
	return m.Called(sub).Error(0)
}

func (m *mockConn) SendUnsubscribeMessage(sub *Subscription) error {
	return m.Called(sub).Error(0)
}

func (m *mockConn) RemoveSubscription(sub *Subscription) {
	m.Called(sub)
}

func (m *mockConn) Publish(subject string, data []byte) error {
	return m.Called(subject, data).Error(0)
}

// newLenientConn accepts every call without failing.
func newLenientConn(t *testing.T) *mockConn {
	t.Helper()
	c := &mockConn{}
	c.On("SendSubscriptionMessage", mock.Anything).Return(nil).Maybe()
	c.On("SendUnsubscribeMessage", mock.Anything).Return(nil).Maybe()
	c.On("RemoveSubscription", mock.Anything).Return().Maybe()
	c.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return c
}

func testMsg(i int) *Message {
	return NewMsg("orders.created", "", nil, []byte(fmt.Sprintf("m%d", i)))
}
