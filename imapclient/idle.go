package imapclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/metrics"
)

const (
	// DefaultIdleRestartInterval is how long an IDLE command runs before it
	// is re-issued. RFC 2177 requires clients to restart before 29 minutes.
	DefaultIdleRestartInterval = 25 * time.Minute

	idleDoneTimeout = 30 * time.Second
)

// IdleState is the state of an IdleFolder.
type IdleState int

const (
	IdleNotStarted IdleState = iota
	// IdleRequested means IDLE was sent and the server has not acknowledged
	// it yet.
	IdleRequested
	Idling
	IdleDone
)

func (state IdleState) String() string {
	switch state {
	case IdleNotStarted:
		return "not started"
	case IdleRequested:
		return "requested"
	case Idling:
		return "idling"
	case IdleDone:
		return "done"
	default:
		return fmt.Sprintf("IdleState(%d)", int(state))
	}
}

// IdleListeners hold one list of listeners per kind of mailbox change
// announced during IDLE. Listeners are called in registration order from the
// goroutine running Idle. They must not be added while Idle is running.
type IdleListeners struct {
	NewMessage     []func(seqNum uint32)
	RemovedMessage []func(seqNum uint32)
	FlagsChanged   []func(seqNum uint32, flags kamel.FlagSet)

	// RestartInterval defaults to DefaultIdleRestartInterval. A negative
	// value never restarts.
	RestartInterval time.Duration
}

// OnNewMessage adds a listener for EXISTS.
func (l *IdleListeners) OnNewMessage(f func(seqNum uint32)) {
	l.NewMessage = append(l.NewMessage, f)
}

// OnRemovedMessage adds a listener for EXPUNGE.
func (l *IdleListeners) OnRemovedMessage(f func(seqNum uint32)) {
	l.RemovedMessage = append(l.RemovedMessage, f)
}

// OnFlagsChanged adds a listener for unsolicited FETCH responses carrying
// FLAGS.
func (l *IdleListeners) OnFlagsChanged(f func(seqNum uint32, flags kamel.FlagSet)) {
	l.FlagsChanged = append(l.FlagsChanged, f)
}

func (l *IdleListeners) restartInterval() time.Duration {
	if l.RestartInterval == 0 {
		return DefaultIdleRestartInterval
	}
	return l.RestartInterval
}

// IdleFolder watches a folder with IDLE on a session of its own, so that
// the folder's regular session stays available for other commands.
type IdleFolder struct {
	folder *Folder
	logger *slog.Logger

	mutex   sync.Mutex
	state   IdleState
	stopped bool
	session *Session
	ex      *Exchange
}

// IdleFolder returns an idle session bound to the folder. No I/O happens
// until Idle is called.
func (f *Folder) IdleFolder() *IdleFolder {
	return &IdleFolder{
		folder: f,
		logger: f.logger.With("idle", true),
	}
}

// State returns the current state.
func (idle *IdleFolder) State() IdleState {
	idle.mutex.Lock()
	defer idle.mutex.Unlock()
	return idle.state
}

func (idle *IdleFolder) setState(state IdleState) {
	idle.mutex.Lock()
	idle.state = state
	idle.mutex.Unlock()
}

func (idle *IdleFolder) isStopped() bool {
	idle.mutex.Lock()
	defer idle.mutex.Unlock()
	return idle.stopped
}

// Idle selects the folder and runs IDLE until Cancel is called or ctx is
// done, dispatching mailbox changes to listeners. It returns nil when
// stopped that way, and an error if the session or the server ends it.
func (idle *IdleFolder) Idle(ctx context.Context, listeners *IdleListeners) error {
	if listeners == nil {
		listeners = &IdleListeners{}
	}

	idle.mutex.Lock()
	if idle.state == IdleRequested || idle.state == Idling {
		idle.mutex.Unlock()
		return fmt.Errorf("imapclient: IDLE already running on %v", idle.folder.Name())
	}
	idle.state = IdleRequested
	idle.stopped = false
	idle.mutex.Unlock()
	defer idle.setState(IdleDone)

	s, err := idle.selected(ctx)
	if err != nil {
		return err
	}
	caps := s.Caps()
	if caps == nil {
		if caps, err = s.Capability(ctx); err != nil {
			idle.logger.Debug("CAPABILITY failed, trying IDLE anyway", "error", err)
		}
	}
	if caps != nil && !caps.Has("IDLE") {
		return ErrIdleUnsupported
	}

	for {
		restart, err := idle.run(ctx, s, listeners)
		if err != nil || !restart {
			return err
		}
		idle.logger.Debug("restarting IDLE")
	}
}

func (idle *IdleFolder) selected(ctx context.Context) (*Session, error) {
	idle.mutex.Lock()
	s := idle.session
	idle.mutex.Unlock()
	if s != nil && !s.Broken() {
		return s, nil
	}
	if s != nil {
		idle.folder.pool.Release(s)
	}

	s, _, err := openFolderSession(ctx, idle.folder.pool, idle.folder.desc)
	if err != nil {
		return nil, err
	}
	idle.mutex.Lock()
	idle.session = s
	idle.mutex.Unlock()
	return s, nil
}

// run issues one IDLE command and consumes it. It reports whether IDLE
// should be issued again.
func (idle *IdleFolder) run(ctx context.Context, s *Session, listeners *IdleListeners) (restart bool, err error) {
	ex, err := s.Execute(ctx, "IDLE")
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	idle.mutex.Lock()
	idle.ex = ex
	idle.state = IdleRequested
	stopped := idle.stopped
	idle.mutex.Unlock()
	defer func() {
		idle.mutex.Lock()
		idle.ex = nil
		idle.mutex.Unlock()
	}()
	if stopped {
		ex.Cancel()
		return false, idle.waitDone(ctx, ex)
	}

	var timer *time.Timer
	if d := listeners.restartInterval(); d > 0 {
		timer = time.AfterFunc(d, func() {
			ex.Cancel()
		})
		defer timer.Stop()
	}

	for {
		resp, cont, err := ex.nextResponse(ctx)
		switch {
		case err == io.EOF:
			// the server ended IDLE on its own
			return !idle.isStopped(), nil
		case errors.Is(err, ErrCancelled) || ctx.Err() != nil:
			ex.Cancel()
			if err := idle.waitDone(ctx, ex); err != nil {
				return false, err
			}
			return !idle.isStopped() && ctx.Err() == nil, nil
		case err != nil:
			return false, err
		case cont:
			idle.setState(Idling)
			idle.logger.Debug("idling")
			continue
		}

		idle.dispatch(resp, listeners)
	}
}

// waitDone waits for the tagged completion of a cancelled IDLE command. A
// server that doesn't answer DONE in time loses the session.
func (idle *IdleFolder) waitDone(ctx context.Context, ex *Exchange) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idleDoneTimeout)
	defer cancel()
	err := ex.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		idle.logger.Warn("no response to DONE, closing session")
		ex.session.Close()
		return nil
	}
	return err
}

func (idle *IdleFolder) dispatch(resp []byte, listeners *IdleListeners) {
	seqNum, kind := responseKind(resp)
	switch kind {
	case "EXISTS":
		metrics.IdleEvents.WithLabelValues("exists").Inc()
		for _, f := range listeners.NewMessage {
			if idle.isStopped() {
				return
			}
			f(seqNum)
		}
	case "EXPUNGE":
		metrics.IdleEvents.WithLabelValues("expunge").Inc()
		for _, f := range listeners.RemovedMessage {
			if idle.isStopped() {
				return
			}
			f(seqNum)
		}
	case "FETCH":
		msg, err := readFetch(resp, false)
		if err != nil {
			idle.logger.Warn("skipping malformed FETCH during IDLE", "error", err)
			return
		}
		flags, ok := msg.Flags.Get()
		if !ok {
			return
		}
		metrics.IdleEvents.WithLabelValues("flags").Inc()
		for _, f := range listeners.FlagsChanged {
			if idle.isStopped() {
				return
			}
			f(msg.SeqNum, flags)
		}
	}
}

// Cancel stops a running Idle, sending DONE to the server. It may be called
// in any state and from any goroutine; it does nothing if Idle isn't
// running. Responses handled after Cancel don't reach the listeners.
func (idle *IdleFolder) Cancel() error {
	idle.mutex.Lock()
	if idle.state != IdleRequested && idle.state != Idling {
		idle.mutex.Unlock()
		return nil
	}
	idle.stopped = true
	ex := idle.ex
	idle.mutex.Unlock()

	if ex == nil {
		return nil
	}
	return ex.Cancel()
}

// Close cancels IDLE and releases the session.
func (idle *IdleFolder) Close() error {
	idle.Cancel()

	idle.mutex.Lock()
	s := idle.session
	idle.session = nil
	idle.mutex.Unlock()
	if s == nil {
		return nil
	}
	return idle.folder.pool.Release(s)
}
