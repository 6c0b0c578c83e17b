// Package protocol holds the subscriber-side control vocabulary: status
// classification of inbound control frames and acknowledgment payloads.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
)

// ErrInvalidHeader is returned when a status frame cannot be parsed.
var ErrInvalidHeader = errors.New("protocol: invalid status header")

// Status codes reserved by the server.
const (
	StatusControl        = 100 // flow control and idle heartbeats
	StatusNotFound       = 404
	StatusRequestTimeout = 408
	StatusConflict       = 409
	StatusNoResponders   = 503
)

// Canonical descriptions that accompany reserved codes.
const (
	DescFlowControl   = "FlowControl Request"
	DescIdleHeartbeat = "Idle Heartbeat"
	DescNoResponders  = "No Responders Available For Request"
)

// Header keys and the status line prefix used on the wire.
const (
	HeaderStatus          = "Status"
	HeaderDescription     = "Description"
	HeaderConsumerStalled = "Nats-Consumer-Stalled"
	HeaderLine            = "NATS/1.0"
)

// Kind classifies a status frame.
type Kind int

const (
	// KindOpaque is an application-visible status, delivered like any message.
	KindOpaque Kind = iota
	// KindFlowControl asks the subscriber to reply so the server resumes delivery.
	KindFlowControl
	// KindHeartbeat is a liveness signal from an idle consumer.
	KindHeartbeat
	// KindNoResponders reports that a request reached no subscriber.
	KindNoResponders
)

func (k Kind) String() string {
	switch k {
	case KindFlowControl:
		return "flow_control"
	case KindHeartbeat:
		return "heartbeat"
	case KindNoResponders:
		return "no_responders"
	default:
		return "opaque"
	}
}

// Status is a parsed control status.
type Status struct {
	Code        int
	Description string
}

// Kind classifies s by exact (code, description) match. Code 100 carries
// two meanings, so the code alone never decides.
func (s Status) Kind() Kind {
	switch {
	case s.Code == StatusControl && s.Description == DescFlowControl:
		return KindFlowControl
	case s.Code == StatusControl && s.Description == DescIdleHeartbeat:
		return KindHeartbeat
	case s.Code == StatusNoResponders && s.Description == DescNoResponders:
		return KindNoResponders
	default:
		return KindOpaque
	}
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code, s.Description)
}

// NewStatus parses a status code token and optional description.
// A missing description on 503 takes the canonical no-responders text
// (servers omit it); any other missing description becomes
// "Server Status Message: <code>".
func NewStatus(code, description string) (Status, error) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return Status{}, fmt.Errorf("%w: code %q", ErrInvalidHeader, code)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		if n == StatusNoResponders {
			description = DescNoResponders
		} else {
			description = fmt.Sprintf("Server Status Message: %d", n)
		}
	}
	return Status{Code: n, Description: description}, nil
}

// Classify parses and classifies in one step.
func Classify(code, description string) (Kind, Status, error) {
	st, err := NewStatus(code, description)
	if err != nil {
		return KindOpaque, Status{}, err
	}
	return st.Kind(), st, nil
}

// ParseStatusLine parses a raw header line such as
// "NATS/1.0 100 Idle Heartbeat" or "NATS/1.0 503".
func ParseStatusLine(line string) (Status, error) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, HeaderLine)
	if !ok {
		return Status{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidHeader, HeaderLine)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Status{}, fmt.Errorf("%w: missing status code", ErrInvalidHeader)
	}
	code, description, _ := strings.Cut(rest, " ")
	return NewStatus(code, description)
}

// StatusFromHeader extracts the status carried in h. ok is false for
// ordinary messages without a status.
func StatusFromHeader(h nats.Header) (st Status, ok bool, err error) {
	if h == nil {
		return Status{}, false, nil
	}
	code := h.Get(HeaderStatus)
	if code == "" {
		return Status{}, false, nil
	}
	st, err = NewStatus(code, h.Get(HeaderDescription))
	if err != nil {
		return Status{}, true, err
	}
	return st, true, nil
}

// StatusHeader builds the header a server attaches to a status frame.
func StatusHeader(code int, description string) nats.Header {
	h := nats.Header{}
	h.Set(HeaderStatus, strconv.Itoa(code))
	if description != "" {
		h.Set(HeaderDescription, description)
	}
	return h
}
