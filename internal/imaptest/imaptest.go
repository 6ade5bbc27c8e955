// Package imaptest provides a scripted IMAP server for tests.
package imaptest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Greeting is the greeting written by Mux.Serve.
const Greeting = "* OK [CAPABILITY IMAP4rev1 IDLE AUTH=PLAIN] kamel test server ready"

// Conn is the server side of a test connection.
type Conn struct {
	net.Conn
	br *bufio.Reader
}

// NewConn wraps the server side of a connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{Conn: conn, br: bufio.NewReader(conn)}
}

// ReadLine reads a line sent by the client, without its terminator.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadCommand reads a command line and splits it into its tag, its upper
// cased name (with the UID prefix for UID commands) and its arguments.
func (c *Conn) ReadCommand() (tag, name, args string, err error) {
	line, err := c.ReadLine()
	if err != nil {
		return "", "", "", err
	}
	tag, rest, _ := strings.Cut(line, " ")
	name, args, _ = strings.Cut(rest, " ")
	name = strings.ToUpper(name)
	if name == "UID" {
		var sub string
		sub, args, _ = strings.Cut(args, " ")
		name += " " + strings.ToUpper(sub)
	}
	return tag, name, args, nil
}

// Writef writes a formatted line followed by CRLF.
func (c *Conn) Writef(format string, args ...interface{}) error {
	return c.WriteRaw(fmt.Sprintf(format, args...) + "\r\n")
}

// WriteRaw writes s as is.
func (c *Conn) WriteRaw(s string) error {
	_, err := io.WriteString(c.Conn, s)
	return err
}

// WriteLiteral writes prefix followed by a "{N}" literal holding b, then
// suffix and CRLF.
func (c *Conn) WriteLiteral(prefix string, b []byte, suffix string) error {
	return c.WriteRaw(prefix + "{" + strconv.Itoa(len(b)) + "}\r\n" + string(b) + suffix + "\r\n")
}

// CommandFunc handles one command. It writes the untagged responses and
// the tagged completion.
type CommandFunc func(c *Conn, tag, args string) error

// Mux dispatches commands by name, e.g. "LOGIN" or "UID FETCH". Unknown
// commands are answered with BAD.
type Mux map[string]CommandFunc

// Serve greets the client and answers commands until the connection is
// closed or a handler fails.
func (mux Mux) Serve(c *Conn) error {
	return mux.ServeGreeting(c, Greeting)
}

// ServeGreeting is Serve with a custom greeting line.
func (mux Mux) ServeGreeting(c *Conn, greeting string) error {
	if err := c.Writef("%s", greeting); err != nil {
		return err
	}
	for {
		tag, name, args, err := c.ReadCommand()
		if err != nil {
			return err
		}
		f, ok := mux[name]
		if !ok {
			if err := c.Writef("%s BAD unknown command %s", tag, name); err != nil {
				return err
			}
			continue
		}
		if err := f(c, tag, args); err != nil {
			return err
		}
	}
}

// OK returns a handler that completes a command with OK and no untagged
// responses.
func OK(untagged ...string) CommandFunc {
	return func(c *Conn, tag, args string) error {
		for _, line := range untagged {
			if err := c.Writef("%s", line); err != nil {
				return err
			}
		}
		return c.Writef("%s OK done", tag)
	}
}

// Login returns a LOGIN handler that accepts a single username and
// password.
func Login(username, password string) CommandFunc {
	want := strconv.Quote(username) + " " + strconv.Quote(password)
	return func(c *Conn, tag, args string) error {
		if args != want {
			return c.Writef("%s NO [AUTHENTICATIONFAILED] invalid credentials", tag)
		}
		return c.Writef("%s OK LOGIN completed", tag)
	}
}

// Server accepts connections on a loopback address and serves each of them
// with a handler.
type Server struct {
	t       testing.TB
	ln      net.Listener
	handler func(c *Conn) error

	wg     sync.WaitGroup
	mutex  sync.Mutex
	conns  []*Conn
	closed bool
}

// NewServer starts a server on 127.0.0.1. It is closed when the test
// ends. Handler errors other than a closed connection fail the test.
func NewServer(t testing.TB, handler func(c *Conn) error) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() = %v", err)
	}
	srv := &Server{t: t, ln: ln, handler: handler}
	srv.wg.Add(1)
	go srv.accept()
	t.Cleanup(func() {
		srv.Close()
	})
	return srv
}

func (srv *Server) accept() {
	defer srv.wg.Done()
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		c := NewConn(conn)
		srv.mutex.Lock()
		if srv.closed {
			srv.mutex.Unlock()
			conn.Close()
			return
		}
		srv.conns = append(srv.conns, c)
		srv.mutex.Unlock()

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			defer c.Close()
			if err := srv.handler(c); err != nil && !isClosed(err) {
				srv.t.Errorf("handler: %v", err)
			}
		}()
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "broken pipe")
}

// Addr returns the host and port the server listens on.
func (srv *Server) Addr() (host string, port int) {
	addr := srv.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Accepted returns the number of connections accepted so far.
func (srv *Server) Accepted() int {
	srv.mutex.Lock()
	defer srv.mutex.Unlock()
	return len(srv.conns)
}

// Close stops listening, closes every connection and waits for the
// handlers to return.
func (srv *Server) Close() error {
	err := srv.ln.Close()
	srv.mutex.Lock()
	srv.closed = true
	for _, c := range srv.conns {
		c.Close()
	}
	srv.mutex.Unlock()
	srv.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Pipe returns both ends of an in-memory connection. The server end is
// served by handler in a new goroutine.
func Pipe(t testing.TB, handler func(c *Conn) error) net.Conn {
	clientConn, serverConn := net.Pipe()
	c := NewConn(serverConn)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c.Close()
		if err := handler(c); err != nil && !isClosed(err) {
			t.Errorf("handler: %v", err)
		}
	}()
	t.Cleanup(func() {
		clientConn.Close()
		<-done
	})
	return clientConn
}
