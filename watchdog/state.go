package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guseggert/watchdog/watchdog/sdnotify"
)

// State is the state shared by the control handlers and the main loop.
// Every field is guarded by mu.
// done is closed while holding mu when terminated flips, which makes it the timed
// equivalent of a condition variable broadcast: a waiter can never miss it.
type State struct {
	lookup sdnotify.LookupFunc

	mu         sync.Mutex
	terminated bool
	exitCode   ExitCode
	notify     *sdnotify.Conn
	done       chan struct{}
}

// NewState returns a State that resolves the notification address with lookup each time forwarding is enabled.
func NewState(lookup sdnotify.LookupFunc) *State {
	return &State{
		lookup:   lookup,
		exitCode: ExitUncaughtException,
		done:     make(chan struct{}),
	}
}

// RequestExit records code and wakes the main loop.
// Only the first call has an effect.
func (s *State) RequestExit(code ExitCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.exitCode = code
	close(s.done)
}

func (s *State) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// ExitCode returns the recorded exit code, or ExitUncaughtException if no exit was requested.
func (s *State) ExitCode() ExitCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Wait blocks until an exit is requested, the timeout elapses, or ctx is done.
// It reports whether an exit was requested.
func (s *State) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// EnableNotify opens the notification socket unless one is already open.
// With no address configured it does nothing. On error the socket stays closed.
func (s *State) EnableNotify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify != nil {
		return nil
	}
	addr := s.lookup()
	if addr == "" {
		return nil
	}
	conn, err := sdnotify.Dial(addr)
	if err != nil {
		return err
	}
	s.notify = conn
	return nil
}

// DisableNotify closes the notification socket if one is open.
func (s *State) DisableNotify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		return nil
	}
	err := s.notify.Close()
	s.notify = nil
	if err != nil {
		return fmt.Errorf("closing notification socket: %w", err)
	}
	return nil
}

func (s *State) NotifyEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify != nil
}

// SendIfEnabled sends token on the notification socket if one is open.
// sent is false when forwarding is disabled or the send failed.
// The send is bounded by sdnotify.SendTimeout, so a stalled supervisor cannot hold mu.
func (s *State) SendIfEnabled(token string) (sent bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		return false, nil
	}
	if err := s.notify.Send(token); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the notification socket.
func (s *State) Close() error {
	return s.DisableNotify()
}
