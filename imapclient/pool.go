package imapclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/metrics"
	"github.com/overmail/kamel/internal/retry"
)

const (
	DefaultPort           = 993
	DefaultMaxConnections = 5
)

// Credentials authenticate a pool's sessions.
type Credentials struct {
	Username string
	Password string
	// Mechanism is "LOGIN" (the default) or "PLAIN".
	Mechanism string
}

// Config describes the server a pool connects to.
type Config struct {
	Host string
	// Port defaults to 993.
	Port int
	// TLS enables implicit TLS.
	TLS         bool
	Credentials Credentials
	// MaxConnections caps the number of sessions. Defaults to 5.
	MaxConnections int
}

// Pool is a bounded set of authenticated sessions to one server.
//
// Shared sessions serve short commands such as LIST. Dedicated sessions,
// requested with Acquire(ctx, true), belong to a single user such as a
// folder handle until released.
type Pool struct {
	cfg     Config
	options Options
	logger  *slog.Logger

	mutex     sync.Mutex
	shared    []*Session
	dedicated []*Session
	dialing   int
	next      int
	closed    bool

	// dial opens an authenticated session
	dial func(ctx context.Context) (*Session, error)
}

// NewPool creates a pool. It doesn't perform I/O.
//
// A nil options pointer is equivalent to a zero options value.
func NewPool(cfg Config, options *Options) *Pool {
	if options == nil {
		options = &Options{}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	p := &Pool{
		cfg:     cfg,
		options: *options,
		logger:  options.logger().With("host", cfg.Host),
	}
	p.dial = p.dialSession
	return p
}

// Config returns the pool configuration, with defaults applied.
func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) total() int {
	return len(p.shared) + len(p.dedicated) + p.dialing
}

// Acquire returns an authenticated session.
//
// With requireNew, a new session is opened and reserved for the caller,
// who must give it back with Release. Otherwise an idle shared session is
// returned, a new one is opened if the pool has room, and as a last resort
// a busy session is handed out: its commands then queue behind the one in
// flight. Shared sessions are preferred. When every session is dedicated, an
// idle dedicated session is preferred over one blocked in IDLE.
//
// requireNew fails with ErrPoolExhausted when the pool is at capacity.
func (p *Pool) Acquire(ctx context.Context, requireNew bool) (*Session, error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, ErrPoolClosed
	}
	p.evictBroken()

	if !requireNew {
		for _, s := range p.shared {
			if !s.Busy() {
				p.mutex.Unlock()
				return s, nil
			}
		}
	}

	if p.total() >= p.cfg.MaxConnections {
		s := p.oversubscribe(requireNew)
		p.mutex.Unlock()
		if s == nil {
			return nil, ErrPoolExhausted
		}
		metrics.PoolOversubscribed.Inc()
		p.logger.Debug("all sessions busy, sharing one")
		return s, nil
	}

	p.dialing++
	p.mutex.Unlock()

	s, err := p.dial(ctx)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.dialing--
	if err != nil {
		return nil, err
	}
	if p.closed {
		s.Close()
		return nil, ErrPoolClosed
	}
	if requireNew {
		p.dedicated = append(p.dedicated, s)
	} else {
		p.shared = append(p.shared, s)
	}
	return s, nil
}

// oversubscribe picks a session to share once the pool is full, or nil
// when requireNew forbids it. The caller must hold the mutex.
func (p *Pool) oversubscribe(requireNew bool) *Session {
	if requireNew {
		return nil
	}
	candidates := p.shared
	if len(candidates) == 0 {
		for _, s := range p.dedicated {
			if !s.Busy() {
				return s
			}
		}
		candidates = p.dedicated
	}
	if len(candidates) == 0 {
		return nil
	}
	s := candidates[p.next%len(candidates)]
	p.next++
	return s
}

// evictBroken drops sessions whose connection has failed. The caller must
// hold the mutex.
func (p *Pool) evictBroken() {
	p.shared = removeSessions(p.shared, func(s *Session) bool {
		if !s.Broken() {
			return false
		}
		p.logger.Info("evicting broken session", "error", s.Err())
		s.Close()
		return true
	})
	p.dedicated = removeSessions(p.dedicated, (*Session).Broken)
}

// removeSessions filters l in place.
func removeSessions(l []*Session, drop func(s *Session) bool) []*Session {
	kept := l[:0]
	for _, s := range l {
		if !drop(s) {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(l); i++ {
		l[i] = nil
	}
	return kept
}

// Release closes a dedicated session and frees its slot.
func (p *Pool) Release(s *Session) error {
	p.mutex.Lock()
	p.dedicated = removeSessions(p.dedicated, func(other *Session) bool {
		return other == s
	})
	p.mutex.Unlock()
	return s.Close()
}

func (p *Pool) dialSession(ctx context.Context) (*Session, error) {
	var s *Session
	cfg := retry.BackoffConfig{
		InitialInterval: p.options.Retry.InitialInterval,
		MaxInterval:     p.options.Retry.MaxInterval,
		Multiplier:      2,
		Jitter:          true,
		MaxRetries:      p.options.Retry.MaxRetries,
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = retry.DefaultBackoffConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = retry.DefaultBackoffConfig().MaxInterval
	}

	err := retry.Do(ctx, cfg, func() error {
		var err error
		s, err = p.openSession(ctx)
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return retry.Stop(err)
		}
		return err
	}, func(attempt int, err error) {
		p.logger.Warn("connection attempt failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		metrics.SessionsOpened.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.SessionsOpened.WithLabelValues("success").Inc()
	return s, nil
}

// openSession connects, waits for the greeting and authenticates.
func (p *Pool) openSession(ctx context.Context) (*Session, error) {
	s, err := DialSession(ctx, p.cfg.Host, p.cfg.Port, p.cfg.TLS, &p.options)
	if err != nil {
		return nil, err
	}
	if err := s.WaitGreeting(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := authenticateSession(ctx, s, p.cfg.Credentials); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// TestConnection checks that a session can be opened and authenticated.
func (p *Pool) TestConnection(ctx context.Context) error {
	_, err := p.Acquire(ctx, false)
	return err
}

// Size returns the number of open sessions.
func (p *Pool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.shared) + len(p.dedicated)
}

// Folder binds a folder descriptor to this pool.
func (p *Pool) Folder(desc *kamel.FolderDescriptor) *Folder {
	return newFolder(p, desc)
}

// Close closes every session. Subsequent calls to Acquire fail with
// ErrPoolClosed.
func (p *Pool) Close() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	sessions := append(append([]*Session(nil), p.shared...), p.dedicated...)
	p.shared = nil
	p.dedicated = nil
	p.mutex.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := s.Close(); err != nil {
				return fmt.Errorf("imapclient: closing session: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
