package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeAck(t *testing.T) {
	assert.Equal(t, "+ACK", string(EncodeAck(AckAck, 0)))
	assert.Equal(t, "-NAK", string(EncodeAck(AckNak, -time.Second)))
	assert.Equal(t, "+WPI", string(EncodeAck(AckProgress, 0)))
	assert.Equal(t, `+TERM {"delay": 5000000}`, string(EncodeAck(AckTerm, 5*time.Millisecond)))
	assert.Equal(t, `-NAK {"delay": 1000000000}`, string(EncodeAck(AckNak, time.Second)))
	assert.Nil(t, EncodeAck(AckVerb(42), 0))
	assert.Nil(t, EncodeAck(AckVerb(-1), time.Second))
}

func TestAckVerb_Terminal(t *testing.T) {
	assert.True(t, AckAck.Terminal())
	assert.True(t, AckNak.Terminal())
	assert.True(t, AckTerm.Terminal())
	assert.False(t, AckProgress.Terminal())
	assert.False(t, AckVerb(42).Terminal())
	assert.False(t, AckVerb(-1).Terminal())
}

func TestAckVerb_Valid(t *testing.T) {
	for _, v := range []AckVerb{AckAck, AckNak, AckProgress, AckTerm} {
		assert.True(t, v.Valid(), v.String())
	}
	assert.False(t, AckVerb(4).Valid())
	assert.False(t, AckVerb(-1).Valid())
}

func TestAckVerb_Token(t *testing.T) {
	assert.Equal(t, "+ACK", AckAck.Token())
	assert.Equal(t, "-NAK", AckNak.Token())
	assert.Equal(t, "+WPI", AckProgress.Token())
	assert.Equal(t, "+TERM", AckTerm.Token())
	assert.Equal(t, "", AckVerb(42).Token())
	assert.Equal(t, "unknown", AckVerb(42).String())
	assert.Equal(t, "in_progress", AckProgress.String())
}
