package protocol

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code string
		desc string
		want Kind
	}{
		{"flow control", "100", DescFlowControl, KindFlowControl},
		{"heartbeat", "100", DescIdleHeartbeat, KindHeartbeat},
		{"no responders", "503", DescNoResponders, KindNoResponders},
		{"no responders without description", "503", "", KindNoResponders},
		{"other control", "100", "Something else", KindOpaque},
		{"not found", "404", "No Messages", KindOpaque},
		{"timeout", "408", "Request Timeout", KindOpaque},
		{"conflict", "409", "Consumer Deleted", KindOpaque},
		{"503 other text", "503", "Service Unavailable", KindOpaque},
		{"padded code", " 100 ", DescIdleHeartbeat, KindHeartbeat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _, err := Classify(tt.code, tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestNewStatus_DefaultDescription(t *testing.T) {
	st, err := NewStatus("404", "")
	require.NoError(t, err)
	assert.Equal(t, 404, st.Code)
	assert.Equal(t, "Server Status Message: 404", st.Description)

	st, err = NewStatus("503", "   ")
	require.NoError(t, err)
	assert.Equal(t, DescNoResponders, st.Description)
}

func TestNewStatus_InvalidCode(t *testing.T) {
	_, err := NewStatus("abc", "x")
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewStatus("", "")
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParseStatusLine(t *testing.T) {
	st, err := ParseStatusLine("NATS/1.0 100 Idle Heartbeat")
	require.NoError(t, err)
	assert.Equal(t, Status{Code: 100, Description: DescIdleHeartbeat}, st)
	assert.Equal(t, KindHeartbeat, st.Kind())

	st, err = ParseStatusLine("NATS/1.0 503\r\n")
	require.NoError(t, err)
	assert.Equal(t, KindNoResponders, st.Kind())

	_, err = ParseStatusLine("HTTP/1.1 200 OK")
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = ParseStatusLine("NATS/1.0")
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = ParseStatusLine("NATS/1.0 xx Bad")
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestStatusFromHeader(t *testing.T) {
	_, ok, err := StatusFromHeader(nil)
	assert.False(t, ok)
	assert.NoError(t, err)

	h := nats.Header{}
	h.Set("Foo", "bar")
	_, ok, err = StatusFromHeader(h)
	assert.False(t, ok)
	assert.NoError(t, err)

	st, ok, err := StatusFromHeader(StatusHeader(StatusControl, DescFlowControl))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, KindFlowControl, st.Kind())

	h = nats.Header{}
	h.Set(HeaderStatus, "1x0")
	_, ok, err = StatusFromHeader(h)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestStatusHeader_OmitsEmptyDescription(t *testing.T) {
	h := StatusHeader(StatusNoResponders, "")
	assert.Equal(t, "503", h.Get(HeaderStatus))
	_, present := h[HeaderDescription]
	assert.False(t, present)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "opaque", KindOpaque.String())
	assert.Equal(t, "flow_control", KindFlowControl.String())
	assert.Equal(t, "heartbeat", KindHeartbeat.String())
	assert.Equal(t, "no_responders", KindNoResponders.String())
	assert.Equal(t, "100 Idle Heartbeat", Status{Code: 100, Description: DescIdleHeartbeat}.String())
}
