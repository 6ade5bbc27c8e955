package imapclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned when using a session that has been closed.
	ErrClosed = errors.New("imapclient: session closed")
	// ErrPoolClosed is returned by Acquire after the pool has been closed.
	ErrPoolClosed = errors.New("imapclient: pool closed")
	// ErrPoolExhausted is returned when a dedicated session is requested
	// but the pool already holds its maximum number of sessions, or when
	// every slot is taken by a session still being dialed.
	ErrPoolExhausted = errors.New("imapclient: pool exhausted")
	// ErrCancelled is returned by Exchange.Next after Cancel.
	ErrCancelled = errors.New("imapclient: command cancelled")
	// ErrUIDUnknown is returned when an operation needs the UID of a message
	// that has not been fetched.
	ErrUIDUnknown = errors.New("imapclient: message UID unknown")
	// ErrIdleUnsupported is returned by Idle when the server doesn't
	// advertise the IDLE capability.
	ErrIdleUnsupported = errors.New("imapclient: server doesn't support IDLE")
)

// StatusType is the status condition of a tagged response.
type StatusType string

const (
	StatusOK  StatusType = "OK"
	StatusNO  StatusType = "NO"
	StatusBAD StatusType = "BAD"
)

// StatusError is returned when the server completes a command with NO or
// BAD.
type StatusError struct {
	Tag     string
	Command string
	Type    StatusType
	Text    string
	// Line is the raw tagged line, without terminator.
	Line string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("imapclient: %v failed: %v %v", err.Command, err.Type, err.Text)
}

// AuthError is returned when the server rejects the credentials.
type AuthError struct {
	Username string
	Err      error
}

func (err *AuthError) Error() string {
	return fmt.Sprintf("imapclient: authentication failed for %q: %v", err.Username, err.Err)
}

func (err *AuthError) Unwrap() error {
	return err.Err
}

// TransportError is a failure of the underlying connection. The session is
// unusable afterwards.
type TransportError struct {
	Op  string
	Err error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("imapclient: %v: %v", err.Op, err.Err)
}

func (err *TransportError) Unwrap() error {
	return err.Err
}

// ParseError describes a server response that could not be parsed.
type ParseError struct {
	// Response is the raw response text.
	Response string
	// Offset is the position in Response at which parsing failed.
	Offset int
	// Field names the element being parsed, e.g. "ENVELOPE".
	Field string
	Err   error
	// Partial holds the fields parsed before the failure. It is only set
	// when the caller asked for diagnostics.
	Partial *Message
}

func (err *ParseError) Error() string {
	resp := strings.TrimRight(err.Response, "\r\n")
	if len(resp) > 200 {
		resp = resp[:200] + "..."
	}
	return fmt.Sprintf("imapclient: parsing %v: %v in %q", err.Field, err.Err, resp)
}

func (err *ParseError) Unwrap() error {
	return err.Err
}

// FetchError collects the per-message failures of a FETCH. The messages
// that could be parsed are returned alongside it.
type FetchError struct {
	Failures []*ParseError
}

func (err *FetchError) Error() string {
	if len(err.Failures) == 1 {
		return err.Failures[0].Error()
	}
	return fmt.Sprintf("imapclient: %v messages could not be parsed; first: %v", len(err.Failures), err.Failures[0])
}

func (err *FetchError) Unwrap() []error {
	l := make([]error, len(err.Failures))
	for i, f := range err.Failures {
		l[i] = f
	}
	return l
}
