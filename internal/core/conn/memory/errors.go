// Package memory provides an in-process broker and the transport that
// connects a conn.Conn to it, for standalone mode and tests.
package memory

import "errors"

var (
	// ErrBrokerClosed is returned when operating on a closed broker.
	ErrBrokerClosed = errors.New("memory: broker is closed")

	// ErrTransportClosed is returned when operating on a closed transport.
	ErrTransportClosed = errors.New("memory: transport is closed")

	// ErrInvalidSubject is returned for publishes to wildcard or empty subjects.
	ErrInvalidSubject = errors.New("memory: invalid publish subject")

	// ErrDuplicateSID is returned when a transport reuses a live sid.
	ErrDuplicateSID = errors.New("memory: sid already subscribed")
)
