package protocol

import (
	"errors"
	"strconv"
	"time"
)

// ErrUnknownAck is returned for an ack verb outside the known set.
var ErrUnknownAck = errors.New("protocol: unknown ack verb")

// AckVerb is a consumer acknowledgment verb.
type AckVerb int

const (
	// AckAck acknowledges successful processing.
	AckAck AckVerb = iota
	// AckNak requests redelivery.
	AckNak
	// AckProgress resets the server's redelivery timer.
	AckProgress
	// AckTerm stops redelivery without success.
	AckTerm
)

var ackTokens = [...]string{
	AckAck:      "+ACK",
	AckNak:      "-NAK",
	AckProgress: "+WPI",
	AckTerm:     "+TERM",
}

// Valid reports whether v is one of the known verbs.
func (v AckVerb) Valid() bool {
	return v >= AckAck && v <= AckTerm
}

// Token returns the protocol token for v.
func (v AckVerb) Token() string {
	if !v.Valid() {
		return ""
	}
	return ackTokens[v]
}

// Terminal reports whether v ends redelivery of the message. Unknown
// verbs are not terminal.
func (v AckVerb) Terminal() bool {
	return v.Valid() && v != AckProgress
}

func (v AckVerb) String() string {
	switch v {
	case AckAck:
		return "ack"
	case AckNak:
		return "nak"
	case AckProgress:
		return "in_progress"
	case AckTerm:
		return "term"
	default:
		return "unknown"
	}
}

// EncodeAck builds the ack payload for v. A positive delay requests
// redelivery after that many nanoseconds:
//
//	-NAK {"delay": 5000000}
//
// An unknown verb encodes to nil.
func EncodeAck(v AckVerb, delay time.Duration) []byte {
	if !v.Valid() {
		return nil
	}
	token := v.Token()
	if delay <= 0 {
		return []byte(token)
	}
	buf := make([]byte, 0, len(token)+32)
	buf = append(buf, token...)
	buf = append(buf, ` {"delay": `...)
	buf = strconv.AppendInt(buf, int64(delay), 10)
	buf = append(buf, '}')
	return buf
}
