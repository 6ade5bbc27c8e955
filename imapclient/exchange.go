package imapclient

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/overmail/kamel/internal/imapwire"
	"github.com/overmail/kamel/internal/metrics"
)

// ResponseKind is the kind of an item received while a command is in
// flight.
type ResponseKind int

const (
	// ResponseLine is an untagged line, or the remainder of a line that was
	// interrupted by a literal.
	ResponseLine ResponseKind = iota + 1
	// ResponseLiteral holds the raw bytes announced by a "{N}" marker.
	ResponseLiteral
	// ResponseContinuation is a "+" continuation request.
	ResponseContinuation
)

// Response is one item received for a command.
type Response struct {
	Kind ResponseKind
	// Line holds the line without its terminator. It is empty for literals.
	Line    string
	Literal []byte
}

// Exchange is a command in flight and the responses the server sends for it.
//
// Responses are queued in the order they arrive and never block the
// session's read loop. An exchange finishes when the tagged completion is
// received or the session fails.
type Exchange struct {
	session *Session
	tag     string
	command string
	name    string
	idle    bool
	started time.Time

	notify chan struct{}
	done   chan struct{}

	mutex     sync.Mutex
	queue     []Response
	finished  bool
	cancelled bool
	err       error
	status    string

	cancelOnce sync.Once
	cancelErr  error
}

func newExchange(s *Session, tag, command string) *Exchange {
	name := commandName(command)
	return &Exchange{
		session: s,
		tag:     tag,
		command: command,
		name:    name,
		idle:    name == "IDLE",
		started: time.Now(),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// commandName returns the upper-cased command name, including the UID
// prefix for UID commands.
func commandName(command string) string {
	fields := strings.Fields(strings.ToUpper(command))
	switch {
	case len(fields) == 0:
		return ""
	case fields[0] == "UID" && len(fields) > 1:
		return "UID " + fields[1]
	default:
		return fields[0]
	}
}

// Tag returns the tag of the command, e.g. "A007".
func (ex *Exchange) Tag() string {
	return ex.tag
}

// Command returns the command text that was sent, without tag.
func (ex *Exchange) Command() string {
	return ex.command
}

// Done returns a channel closed when the command has finished.
func (ex *Exchange) Done() <-chan struct{} {
	return ex.done
}

func (ex *Exchange) signal() {
	select {
	case ex.notify <- struct{}{}:
	default:
	}
}

func (ex *Exchange) push(resp Response) {
	ex.mutex.Lock()
	defer ex.mutex.Unlock()
	if ex.finished || ex.cancelled {
		return
	}
	ex.queue = append(ex.queue, resp)
	ex.signal()
}

func (ex *Exchange) finish(status string, err error) {
	ex.mutex.Lock()
	if ex.finished {
		ex.mutex.Unlock()
		return
	}
	ex.finished = true
	ex.status = status
	ex.err = err
	ex.mutex.Unlock()
	close(ex.done)

	metrics.CommandsTotal.WithLabelValues(ex.name, status).Inc()
	metrics.CommandDuration.WithLabelValues(ex.name).Observe(time.Since(ex.started).Seconds())
}

// Next returns the next queued response. It returns io.EOF once the command
// completed successfully and every response has been consumed, the
// completion error if it failed, and ErrCancelled after Cancel.
func (ex *Exchange) Next(ctx context.Context) (Response, error) {
	for {
		ex.mutex.Lock()
		switch {
		case ex.cancelled:
			ex.mutex.Unlock()
			return Response{}, ErrCancelled
		case len(ex.queue) > 0:
			resp := ex.queue[0]
			ex.queue[0] = Response{}
			ex.queue = ex.queue[1:]
			ex.mutex.Unlock()
			return resp, nil
		case ex.finished:
			err := ex.err
			ex.mutex.Unlock()
			if err == nil {
				err = io.EOF
			}
			return Response{}, err
		}
		ex.mutex.Unlock()

		select {
		case <-ex.notify:
		case <-ex.done:
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
}

// NextResponse returns the next complete untagged response in wire form: a
// line whose literals have been joined back in, terminated by CRLF.
// Continuation requests are skipped.
func (ex *Exchange) NextResponse(ctx context.Context) ([]byte, error) {
	for {
		resp, cont, err := ex.nextResponse(ctx)
		if err != nil || !cont {
			return resp, err
		}
	}
}

// nextResponse is NextResponse, except that a continuation request read
// outside of a response is reported with cont set.
func (ex *Exchange) nextResponse(ctx context.Context) (resp []byte, cont bool, err error) {
	var buf []byte
	for {
		item, err := ex.Next(ctx)
		if err != nil {
			if len(buf) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, false, err
		}

		switch item.Kind {
		case ResponseContinuation:
			if buf == nil {
				return nil, true, nil
			}
			buf = append(buf, item.Line...)
			buf = append(buf, '\r', '\n')
		case ResponseLiteral:
			buf = append(buf, item.Literal...)
			continue
		case ResponseLine:
			buf = append(buf, item.Line...)
			buf = append(buf, '\r', '\n')
		}
		n, ok := imapwire.LiteralSize(item.Line)
		if !ok {
			return buf, false, nil
		}
		buf = slices.Grow(buf, int(n)+len(item.Line))
	}
}

// Wait blocks until the command has finished and returns its result.
func (ex *Exchange) Wait(ctx context.Context) error {
	select {
	case <-ex.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	ex.mutex.Lock()
	defer ex.mutex.Unlock()
	return ex.err
}

// Cancel stops consuming the command. Queued and later responses are
// discarded. For IDLE, DONE is written to the server, at most once. The
// exchange keeps the session until the server completes the command, so
// late responses are never attributed to the next command.
func (ex *Exchange) Cancel() error {
	ex.cancelOnce.Do(func() {
		ex.mutex.Lock()
		finished := ex.finished
		ex.cancelled = true
		ex.queue = nil
		ex.mutex.Unlock()
		ex.signal()

		if ex.idle && !finished {
			ex.cancelErr = ex.session.writeLine("DONE")
		}
	})
	return ex.cancelErr
}

// Cancelled reports whether Cancel was called.
func (ex *Exchange) Cancelled() bool {
	ex.mutex.Lock()
	defer ex.mutex.Unlock()
	return ex.cancelled
}
