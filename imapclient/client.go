package imapclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/overmail/kamel/internal/imapwire"
	"github.com/overmail/kamel/internal/metrics"
)

const (
	defaultDialTimeout    = 30 * time.Second
	defaultMaxLiteralSize = 256 << 20
)

// Options contains options for Session and Pool.
type Options struct {
	// TLSConfig is used for implicit TLS. ServerName defaults to the host.
	TLSConfig *tls.Config
	// Raw ingress and egress data will be written to this writer, if any
	DebugWriter io.Writer
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// DialTimeout bounds the TCP connect and TLS handshake.
	DialTimeout time.Duration
	// MaxLiteralSize is the largest literal accepted from the server.
	MaxLiteralSize int64
	// Retry controls how the pool retries failed connection attempts.
	Retry RetryOptions
}

// RetryOptions configures exponential backoff between connection
// attempts. A zero value disables retrying.
type RetryOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (options *Options) logger() *slog.Logger {
	if options.Logger == nil {
		return slog.Default()
	}
	return options.Logger
}

func (options *Options) dialTimeout() time.Duration {
	if options.DialTimeout <= 0 {
		return defaultDialTimeout
	}
	return options.DialTimeout
}

func (options *Options) maxLiteralSize() int64 {
	if options.MaxLiteralSize <= 0 {
		return defaultMaxLiteralSize
	}
	return options.MaxLiteralSize
}

func (options *Options) wrapReadWriter(rw io.ReadWriter) io.ReadWriter {
	if options.DebugWriter == nil {
		return rw
	}
	return struct {
		io.Reader
		io.Writer
	}{
		Reader: io.TeeReader(rw, options.DebugWriter),
		Writer: io.MultiWriter(rw, options.DebugWriter),
	}
}

// Session is a single IMAP connection.
//
// At most one command is in flight at a time: Execute blocks until the
// previous command has completed. Every response read from the server is
// delivered to the command in flight.
type Session struct {
	conn    net.Conn
	options Options
	logger  *slog.Logger
	br      *bufio.Reader
	bw      *bufio.Writer

	writeMutex sync.Mutex

	// lock is the command lock; holding it means a command may be sent.
	lock     chan struct{}
	ready    chan struct{}
	greetErr error
	greeting string
	readDone chan struct{}

	mutex   sync.Mutex
	nextTag uint64
	current *Exchange
	err     error
	caps    CapSet

	closeOnce sync.Once
}

// NewSession creates a session over an established connection.
//
// This function doesn't perform I/O.
//
// A nil options pointer is equivalent to a zero options value.
func NewSession(conn net.Conn, options *Options) *Session {
	if options == nil {
		options = &Options{}
	}

	rw := options.wrapReadWriter(conn)
	s := &Session{
		conn:     conn,
		options:  *options,
		logger:   options.logger().With("remote", conn.RemoteAddr().String()),
		br:       bufio.NewReader(rw),
		bw:       bufio.NewWriter(rw),
		lock:     make(chan struct{}, 1),
		ready:    make(chan struct{}),
		readDone: make(chan struct{}),
	}
	metrics.SessionsCurrent.Inc()
	go s.read()
	return s
}

// DialSession connects to host:port, with implicit TLS if useTLS is set.
// It returns once the transport is established; the greeting is awaited by
// the first command.
func DialSession(ctx context.Context, host string, port int, useTLS bool, options *Options) (*Session, error) {
	if options == nil {
		options = &Options{}
	}

	ctx, cancel := context.WithTimeout(ctx, options.dialTimeout())
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}

	if useTLS {
		tlsConfig := &tls.Config{}
		if options.TLSConfig != nil {
			tlsConfig = options.TLSConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = host
		}
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &TransportError{Op: "TLS handshake with " + addr, Err: err}
		}
		conn = tlsConn
	}

	return NewSession(conn, options), nil
}

// WaitGreeting blocks until the server greeting has been received.
func (s *Session) WaitGreeting(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.greetErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Greeting returns the text of the server greeting, once received.
func (s *Session) Greeting() string {
	select {
	case <-s.ready:
		return s.greeting
	default:
		return ""
	}
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	return len(s.lock) > 0
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Broken reports whether the session can no longer be used.
func (s *Session) Broken() bool {
	return s.Err() != nil
}

// Execute sends a command and returns its exchange.
//
// Execute waits for the command lock and for the server greeting. The
// command text must not contain the tag or the line terminator.
func (s *Session) Execute(ctx context.Context, command string) (*Exchange, error) {
	select {
	case s.lock <- struct{}{}:
	case <-s.readDone:
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := s.WaitGreeting(ctx); err != nil {
		<-s.lock
		return nil, err
	}

	s.mutex.Lock()
	if s.err != nil {
		err := s.err
		s.mutex.Unlock()
		<-s.lock
		return nil, err
	}
	tag := fmt.Sprintf("A%03d", s.nextTag)
	s.nextTag++
	ex := newExchange(s, tag, command)
	s.current = ex
	s.mutex.Unlock()

	s.logger.Debug("sending command", "tag", tag, "command", ex.name)
	if err := s.writeLine(tag + " " + command); err != nil {
		return nil, err
	}
	return ex, nil
}

// Run executes a command and collects its untagged responses.
func (s *Session) Run(ctx context.Context, command string) ([][]byte, error) {
	ex, err := s.Execute(ctx, command)
	if err != nil {
		return nil, err
	}
	var resps [][]byte
	for {
		resp, err := ex.NextResponse(ctx)
		if err == io.EOF {
			return resps, nil
		} else if err != nil {
			return resps, err
		}
		resps = append(resps, resp)
	}
}

func (s *Session) writeLine(line string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	_, err := s.bw.WriteString(line + "\r\n")
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		return s.fail(&TransportError{Op: "write", Err: err})
	}
	return nil
}

// fail ends the session with err, failing the command in flight. The first
// error wins and is returned.
func (s *Session) fail(err error) error {
	s.mutex.Lock()
	if s.err == nil {
		s.err = err
	}
	err = s.err
	ex := s.current
	s.current = nil
	s.mutex.Unlock()

	s.conn.Close()
	if ex != nil {
		<-s.lock
		ex.finish("error", err)
	}
	return err
}

// complete releases the command lock and finishes ex with the status of its
// tagged line.
func (s *Session) complete(ex *Exchange, line string) {
	s.mutex.Lock()
	if s.current != ex {
		s.mutex.Unlock()
		return
	}
	s.current = nil
	s.mutex.Unlock()

	status, err := parseTagged(ex, line)
	if err != nil {
		s.logger.Debug("command failed", "tag", ex.tag, "command", ex.name, "status", status)
	}
	<-s.lock
	ex.finish(status, err)
}

func parseTagged(ex *Exchange, line string) (string, error) {
	fields := strings.SplitN(line, " ", 3)
	typ := ""
	if len(fields) > 1 {
		typ = strings.ToUpper(fields[1])
	}
	text := ""
	if len(fields) > 2 {
		text = fields[2]
	}
	if typ == string(StatusOK) {
		return typ, nil
	}
	return typ, &StatusError{
		Tag:     ex.tag,
		Command: ex.name,
		Type:    StatusType(typ),
		Text:    text,
		Line:    line,
	}
}

func parseGreeting(line string) (string, error) {
	var typ, text string
	dec := imapwire.NewDecoder([]byte(line))
	if !dec.Special('*') || !dec.SP() || !dec.Atom(&typ) {
		return "", fmt.Errorf("imapclient: malformed greeting %q", line)
	}
	if dec.SP() {
		dec.Text(&text)
	}
	switch strings.ToUpper(typ) {
	case "OK", "PREAUTH":
		return text, nil
	case "BYE":
		return text, fmt.Errorf("imapclient: server refused connection: %v", text)
	default:
		return text, fmt.Errorf("imapclient: unexpected greeting %q", line)
	}
}

func (s *Session) readLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// read continuously reads data coming from the server and routes it to the
// command in flight.
func (s *Session) read() {
	defer close(s.readDone)
	defer metrics.SessionsCurrent.Dec()

	greeted := false
	// target receives the continuation of a line interrupted by a literal
	var target *Exchange
	continued := false
	for {
		line, err := s.readLine()
		if err != nil {
			if s.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("connection lost", "error", err)
			}
			err = s.fail(&TransportError{Op: "read", Err: err})
			if !greeted {
				s.greetErr = err
				close(s.ready)
			}
			return
		}

		if !greeted {
			greeted = true
			s.greeting, s.greetErr = parseGreeting(line)
			if s.greetErr != nil {
				s.logger.Warn("bad greeting", "error", s.greetErr)
			} else if caps := capsFromText(s.greeting); caps != nil {
				s.setCaps(caps)
			}
			close(s.ready)
			continue
		}

		if continued {
			if target != nil {
				target.push(Response{Kind: ResponseLine, Line: line})
			}
		} else {
			target = s.dispatch(line)
		}

		n, ok := imapwire.LiteralSize(line)
		continued = ok
		if !ok {
			target = nil
			continue
		}
		if n > s.options.maxLiteralSize() {
			s.fail(&TransportError{Op: "read literal", Err: fmt.Errorf("literal of %v bytes exceeds limit", n)})
			return
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(s.br, b); err != nil {
			s.fail(&TransportError{Op: "read literal", Err: err})
			return
		}
		if target != nil {
			target.push(Response{Kind: ResponseLiteral, Literal: b})
		}
	}
}

// dispatch routes a line and returns the exchange it was queued to, if any.
func (s *Session) dispatch(line string) *Exchange {
	s.mutex.Lock()
	ex := s.current
	s.mutex.Unlock()

	switch {
	case ex != nil && strings.HasPrefix(line, ex.tag+" "):
		s.complete(ex, line)
		return nil
	case strings.HasPrefix(line, "+"):
		if ex == nil {
			s.logger.Debug("dropping unsolicited continuation request", "line", line)
			return nil
		}
		ex.push(Response{Kind: ResponseContinuation, Line: line})
		return ex
	case strings.HasPrefix(line, "* "):
		if ex == nil {
			if strings.HasPrefix(strings.ToUpper(line), "* BYE") {
				s.logger.Warn("server is closing the connection", "line", line)
			} else {
				s.logger.Debug("dropping unsolicited response", "line", line)
			}
			return nil
		}
		ex.push(Response{Kind: ResponseLine, Line: line})
		return ex
	default:
		s.logger.Warn("dropping response with unknown tag", "line", line)
		return nil
	}
}

// Close immediately closes the connection. A command in flight fails with
// ErrClosed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mutex.Lock()
		if s.err == nil {
			s.err = ErrClosed
		}
		s.mutex.Unlock()

		err = s.conn.Close()
		s.fail(ErrClosed)
		<-s.readDone
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
