// Package control holds the run-scoped state shared by the controller and
// the workers: lifecycle state, pause gate, cancellation and counters.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"social-checker/internal/stats"
)

// ErrInvalidTransition is returned for a command not allowed in the current state
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of a run
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Cancelled; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Finished reports whether s is terminal
func (s State) Finished() bool {
	return s == Completed || s == Cancelled
}

// CounterSource supplies the counters of the run, consistent with its results
type CounterSource interface {
	Counters() stats.Counters
}

// ControlState is created per run. Transitions are made by the controller;
// workers only read flags.
type ControlState struct {
	mu        sync.Mutex
	state     State
	active    bool
	cancelled bool
	// resumed is open while paused and closed on Resume/Stop
	resumed   chan struct{}
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	counters  CounterSource
	err       error
	startedAt time.Time
	endedAt   time.Time
}

// New creates an idle control state
func New() *ControlState {
	return &ControlState{
		state: Idle,
		done:  make(chan struct{}),
	}
}

// Start moves Idle to Running. The returned context is cancelled by Stop.
func (c *ControlState) Start(parent context.Context, counters CounterSource) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return nil, fmt.Errorf("start from %s: %w", c.state, ErrInvalidTransition)
	}
	if parent == nil {
		parent = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	c.counters = counters
	c.state = Running
	c.active = true
	c.startedAt = time.Now()
	return c.ctx, nil
}

// Pause moves Running to Paused
func (c *ControlState) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return fmt.Errorf("pause from %s: %w", c.state, ErrInvalidTransition)
	}
	c.state = Paused
	c.resumed = make(chan struct{})
	return nil
}

// Resume moves Paused to Running
func (c *ControlState) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Paused {
		return fmt.Errorf("resume from %s: %w", c.state, ErrInvalidTransition)
	}
	c.state = Running
	c.releaseLocked()
	return nil
}

// Stop cancels a running or paused run. It is a no-op once the run has
// finished or before it started.
func (c *ControlState) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running && c.state != Paused {
		return nil
	}
	c.state = Cancelled
	c.cancelled = true
	c.releaseLocked()
	c.cancel()
	return nil
}

// Finish is called by the scheduler once every worker has exited.
// err marks a run-level failure and forces the Cancelled state.
func (c *ControlState) Finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	switch {
	case err != nil:
		c.state = Cancelled
		c.cancelled = true
		c.err = err
	case c.state == Running || c.state == Paused:
		c.state = Completed
	}
	c.active = false
	c.endedAt = time.Now()
	c.releaseLocked()
	if c.cancel != nil {
		c.cancel()
	}
	close(c.done)
}

func (c *ControlState) releaseLocked() {
	if c.resumed != nil {
		close(c.resumed)
		c.resumed = nil
	}
}

// WaitIfPaused blocks while the run is paused.
// It returns ctx.Err() if the run is stopped or ctx ends while waiting.
func (c *ControlState) WaitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.cancelled {
			c.mu.Unlock()
			return context.Canceled
		}
		wait := c.resumed
		c.mu.Unlock()

		if wait == nil {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Commit runs fn once the run is not paused. fn runs under the state lock so
// a concurrent Pause is ordered entirely before or after it. A stopped run,
// or ctx ending while paused, still runs fn: the work it publishes is done.
func (c *ControlState) Commit(ctx context.Context, fn func()) {
	for {
		c.mu.Lock()
		wait := c.resumed
		if wait == nil || c.cancelled {
			fn()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			c.mu.Lock()
			fn()
			c.mu.Unlock()
			return
		}
	}
}

// State returns the lifecycle state
func (c *ControlState) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether workers may still be running
func (c *ControlState) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Paused reports whether the run is paused
func (c *ControlState) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Paused
}

// Cancelled reports whether Stop was issued or the run failed
func (c *ControlState) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Err returns the run-level failure, if any
func (c *ControlState) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the run has finished and no worker is active
func (c *ControlState) Done() <-chan struct{} {
	return c.done
}

// Counters returns the run counters; zero before Start
func (c *ControlState) Counters() stats.Counters {
	c.mu.Lock()
	src := c.counters
	c.mu.Unlock()

	if src == nil {
		return stats.Counters{}
	}
	return src.Counters()
}

// Times returns when the run started and ended; zero values if not yet
func (c *ControlState) Times() (startedAt, endedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt, c.endedAt
}

// Elapsed returns run duration so far
func (c *ControlState) Elapsed() time.Duration {
	started, ended := c.Times()
	if started.IsZero() {
		return 0
	}
	if ended.IsZero() {
		return time.Since(started)
	}
	return ended.Sub(started)
}
