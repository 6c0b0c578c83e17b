package subscription

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// collector records handler invocations.
type collector struct {
	mu   sync.Mutex
	data []string
	ch   chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 1024)}
}

func (c *collector) handle(msg *Message) {
	c.mu.Lock()
	c.data = append(c.data, string(msg.Data))
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", i, n)
		}
	}
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.data...)
}

func waitDone(t *testing.T, a *AsyncSubscription) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestAsync_DeliversInOrder(t *testing.T) {
	c := newLenientConn(t)
	a := NewAsync(c, "orders.created", "")
	col := newCollector()
	require.NoError(t, a.SetHandler(col.handle))

	want := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		require.True(t, a.ProcessMsg(testMsg(i)))
		want = append(want, fmt.Sprintf("m%d", i))
	}
	col.wait(t, 500)
	assert.Equal(t, want, col.got())
	c.AssertNumberOfCalls(t, "SendSubscriptionMessage", 1)

	require.NoError(t, a.Unsubscribe())
	waitDone(t, a)
}

func TestAsync_MaxMessages(t *testing.T) {
	for _, n := range []int{2, 3, 7} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			c := newLenientConn(t)
			a := NewAsync(c, "orders.created", "")
			col := newCollector()
			require.NoError(t, a.SetHandler(col.handle))
			require.NoError(t, a.AutoUnsubscribe(3))

			for i := 0; i < n; i++ {
				a.ProcessMsg(testMsg(i))
			}
			col.wait(t, min(n, 3))

			if n >= 3 {
				waitDone(t, a)
				assert.False(t, a.IsValid())
				c.AssertNumberOfCalls(t, "RemoveSubscription", 1)
				assert.False(t, a.ProcessMsg(testMsg(100)))
			} else {
				assert.True(t, a.IsValid())
			}
			assert.Len(t, col.got(), min(n, 3))
			assert.LessOrEqual(t, a.Delivered(), uint64(3))
		})
	}
}

func TestAsync_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	a := NewAsync(newLenientConn(t), "orders.created", "")
	col := newCollector()
	require.NoError(t, a.SetHandler(func(msg *Message) {
		if string(msg.Data) == "m1" {
			col.ch <- struct{}{}
			panic(errors.New("boom"))
		}
		col.handle(msg)
	}))

	for i := 0; i < 3; i++ {
		require.True(t, a.ProcessMsg(testMsg(i)))
	}
	col.wait(t, 3)
	assert.Equal(t, []string{"m0", "m2"}, col.got())
	assert.True(t, a.IsValid())
	require.NoError(t, a.Unsubscribe())
}

func TestAsync_DropsWithoutConsumer(t *testing.T) {
	c := newLenientConn(t)
	a := NewAsync(c, "orders.created", "")

	// Not started: accepted and discarded.
	assert.True(t, a.ProcessMsg(testMsg(0)))
	c.AssertNotCalled(t, "SendSubscriptionMessage", mock.Anything)

	// Started without a handler: still discarded.
	require.NoError(t, a.Start())
	assert.True(t, a.ProcessMsg(testMsg(1)))
	msgs, _ := a.Pending()
	assert.Equal(t, 0, msgs)

	col := newCollector()
	require.NoError(t, a.SetHandler(col.handle))
	require.True(t, a.ProcessMsg(testMsg(2)))
	col.wait(t, 1)
	assert.Equal(t, []string{"m2"}, col.got())
	require.NoError(t, a.Unsubscribe())
}

func TestAsync_StartIsIdempotent(t *testing.T) {
	c := newLenientConn(t)
	a := NewAsync(c, "orders.created", "")

	require.NoError(t, a.Start())
	require.NoError(t, a.Start())
	require.NoError(t, a.SetHandler(func(*Message) {}))
	c.AssertNumberOfCalls(t, "SendSubscriptionMessage", 1)

	require.NoError(t, a.Unsubscribe())
	waitDone(t, a)
	assert.ErrorIs(t, a.Start(), ErrBadSubscription)
	assert.ErrorIs(t, a.SetHandler(func(*Message) {}), ErrBadSubscription)
}

func TestAsync_StartFailureCanBeRetried(t *testing.T) {
	c := &mockConn{}
	errSend := errors.New("write failed")
	c.On("SendSubscriptionMessage", mock.Anything).Return(errSend).Once()
	c.On("SendSubscriptionMessage", mock.Anything).Return(nil).Once()
	c.On("RemoveSubscription", mock.Anything).Return()
	c.On("SendUnsubscribeMessage", mock.Anything).Return(nil)

	a := NewAsync(c, "orders.created", "")
	assert.ErrorIs(t, a.Start(), errSend)
	assert.True(t, a.ProcessMsg(testMsg(0)), "not started, dropped")

	require.NoError(t, a.Start())
	require.NoError(t, a.Unsubscribe())
	waitDone(t, a)
	c.AssertExpectations(t)
}

func TestAsync_UnsubscribeFromHandler(t *testing.T) {
	c := newLenientConn(t)
	a := NewAsync(c, "orders.created", "")
	col := newCollector()
	require.NoError(t, a.SetHandler(func(msg *Message) {
		col.handle(msg)
		_ = a.Unsubscribe()
	}))

	require.True(t, a.ProcessMsg(testMsg(0)))
	waitDone(t, a)
	assert.Equal(t, []string{"m0"}, col.got())
	assert.False(t, a.ProcessMsg(testMsg(1)))
	c.AssertNumberOfCalls(t, "RemoveSubscription", 1)
}

func TestAsync_UnsubscribeTwice(t *testing.T) {
	c := newLenientConn(t)
	a := NewAsync(c, "orders.created", "")
	require.NoError(t, a.SetHandler(func(*Message) {}))

	require.NoError(t, a.Unsubscribe())
	require.NoError(t, a.Unsubscribe())
	waitDone(t, a)
	c.AssertNumberOfCalls(t, "SendUnsubscribeMessage", 1)
}

func TestAsync_DoneBeforeStart(t *testing.T) {
	a := NewAsync(newLenientConn(t), "orders.created", "")
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed for an unstarted subscription")
	}
}

func TestAsync_ConnectionClosedStopsWorker(t *testing.T) {
	a := NewAsync(newLenientConn(t), "orders.created", "")
	require.NoError(t, a.SetHandler(func(*Message) {}))

	a.MarkConnectionClosed()
	waitDone(t, a)
	assert.False(t, a.ProcessMsg(testMsg(0)))
	assert.False(t, a.IsValid())
	assert.ErrorIs(t, a.AutoUnsubscribe(1), ErrConnectionClosed)
}

func TestAsync_SlowFlagStillDelivers(t *testing.T) {
	a := NewAsync(newLenientConn(t), "orders.created", "")
	col := newCollector()
	require.NoError(t, a.SetHandler(col.handle))

	require.True(t, a.MarkSlowConsumer())
	require.True(t, a.ProcessMsg(testMsg(0)))
	col.wait(t, 1)

	assert.Equal(t, []string{"m0"}, col.got())
	assert.True(t, a.MarkSlowConsumer(), "flag cleared by the worker")
	require.NoError(t, a.Unsubscribe())
}

func TestAsync_Drain(t *testing.T) {
	a := NewAsync(newLenientConn(t), "orders.created", "")
	release := make(chan struct{})
	col := newCollector()
	require.NoError(t, a.SetHandler(func(msg *Message) {
		<-release
		col.handle(msg)
	}))

	for i := 0; i < 3; i++ {
		require.True(t, a.ProcessMsg(testMsg(i)))
	}
	require.NoError(t, a.Drain())
	assert.False(t, a.ProcessMsg(testMsg(3)))

	close(release)
	col.wait(t, 3)
	waitDone(t, a)
	assert.Equal(t, []string{"m0", "m1", "m2"}, col.got())
	assert.False(t, a.IsValid())
}

func TestAsync_UnsubscribeBeforeStartSendsNoFrame(t *testing.T) {
	tests := []struct {
		name string
		stop func(a *AsyncSubscription) error
	}{
		{"unsubscribe", func(a *AsyncSubscription) error { return a.Unsubscribe() }},
		{"drain", func(a *AsyncSubscription) error { return a.Drain() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLenientConn(t)
			a := NewAsync(c, "orders.created", "")

			require.NoError(t, tt.stop(a))
			assert.False(t, a.IsValid())
			c.AssertNotCalled(t, "SendSubscriptionMessage", mock.Anything)
			c.AssertNotCalled(t, "SendUnsubscribeMessage", mock.Anything)
		})
	}
}

func TestAsync_UnsubscribeDuringStart(t *testing.T) {
	c := &mockConn{}
	var a *AsyncSubscription
	c.On("SendSubscriptionMessage", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		require.NoError(t, a.Unsubscribe())
	}).Once()
	c.On("RemoveSubscription", mock.Anything).Return().Once()
	c.On("SendUnsubscribeMessage", mock.Anything).Return(nil).Once()

	a = NewAsync(c, "orders.created", "")
	assert.ErrorIs(t, a.Start(), ErrBadSubscription)
	waitDone(t, a)
	c.AssertExpectations(t)
}
