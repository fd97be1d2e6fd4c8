package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"social-checker/internal/aggregator"
	"social-checker/internal/control"
	"social-checker/internal/parser"
	"social-checker/internal/probe"
	"social-checker/internal/queue"
	"social-checker/internal/ratelimit"
	"social-checker/pkg/types"
)

var (
	// ErrNoWorkers is the run-level failure when every worker failed to start
	ErrNoWorkers = errors.New("no worker could start")
	// ErrRunActive is returned by Start while a run is still active
	ErrRunActive = errors.New("a run is already active")
	// ErrNoRun is returned by control commands before the first Start
	ErrNoRun = errors.New("no run has been started")
)

// WorkerStartupError reports a worker that could not open its transport session
type WorkerStartupError struct {
	WorkerID int
	Err      error
}

func (e *WorkerStartupError) Error() string {
	return fmt.Sprintf("worker %d failed to start: %v", e.WorkerID, e.Err)
}

func (e *WorkerStartupError) Unwrap() error { return e.Err }

// Resolver maps a platform name to its canonical name and probe factory
type Resolver interface {
	Resolve(platform string) (string, probe.Factory, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(platform string) (string, probe.Factory, error)

func (f ResolverFunc) Resolve(platform string) (string, probe.Factory, error) {
	return f(platform)
}

// Options configures the worker pool
type Options struct {
	Workers  int
	MinDelay time.Duration
	MaxDelay time.Duration
	// PollInterval bounds how long an idle worker waits on the queue
	PollInterval time.Duration
	// ProbeTimeout bounds a single probe; Stop does not interrupt a probe
	ProbeTimeout time.Duration
	// StatsInterval enables the periodic progress log; zero disables it
	StatsInterval time.Duration
	// Seed for the per-worker delay generators; zero picks one from the clock
	Seed uint64
}

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultProbeTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.Seed == 0 {
		o.Seed = uint64(time.Now().UnixNano())
	}
	return o
}

// Manager owns the current run and starts a fresh one on each Start
type Manager struct {
	mu       sync.Mutex
	opts     Options
	resolver Resolver
	logger   *zap.Logger
	reports  *fanout
	current  *Run
}

// New creates a manager
func New(resolver Resolver, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:     opts.withDefaults(),
		resolver: resolver,
		logger:   logger,
		reports:  &fanout{logger: logger},
	}
}

// AddReporter registers r for all following runs
func (m *Manager) AddReporter(r Reporter) {
	m.reports.add(r)
}

// Options returns the effective pool options
func (m *Manager) Options() Options {
	return m.opts
}

// Start launches a run over entries. Invalid input or an unknown platform
// is rejected before any state changes. ctx cancellation stops the run.
func (m *Manager) Start(ctx context.Context, entries []types.AccountEntry, platform string) (*Run, error) {
	if len(entries) == 0 {
		return nil, &parser.InputError{Err: parser.ErrEmptyInput}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// the previous run owns the reporters until RunFinished was delivered
	if m.current != nil && !m.current.Ended() {
		return nil, ErrRunActive
	}

	name, factory, err := m.resolver.Resolve(platform)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:       uuid.New(),
		Platform: name,
		Total:    len(entries),
		State:    control.New(),
		Queue:    queue.New(),
		Results:  aggregator.New(len(entries)),
		finished: make(chan struct{}),
	}
	run.requested = min(m.opts.Workers, len(entries))

	for _, e := range entries {
		if err := run.Queue.Enqueue(e); err != nil {
			return nil, err
		}
	}
	run.Queue.Close()
	runCtx, err := run.State.Start(ctx, run.Results)
	if err != nil {
		return nil, err
	}
	m.current = run

	m.logger.Info("run started",
		zap.Stringer("run", run.ID),
		zap.String("platform", name),
		zap.Int("accounts", run.Total),
		zap.Int("workers", run.requested))
	m.reports.RunStarted(run.Status())

	go m.execute(runCtx, run, factory)
	return run, nil
}

// Current returns the latest run, or nil before the first Start
func (m *Manager) Current() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) withRun(fn func(*Run) error) error {
	run := m.Current()
	if run == nil {
		return ErrNoRun
	}
	return fn(run)
}

// Pause pauses the current run
func (m *Manager) Pause() error {
	return m.withRun(func(r *Run) error {
		if err := r.State.Pause(); err != nil {
			return err
		}
		m.logger.Info("run paused", zap.Stringer("run", r.ID))
		return nil
	})
}

// Resume resumes the current run
func (m *Manager) Resume() error {
	return m.withRun(func(r *Run) error {
		if err := r.State.Resume(); err != nil {
			return err
		}
		m.logger.Info("run resumed", zap.Stringer("run", r.ID))
		return nil
	})
}

// Stop cancels the current run. Stopping a finished run does nothing.
func (m *Manager) Stop() error {
	return m.withRun(func(r *Run) error {
		if r.State.Active() && !r.State.Cancelled() {
			m.logger.Info("run stop requested", zap.Stringer("run", r.ID))
		}
		return r.State.Stop()
	})
}

// execute runs the pool and finishes the run once every worker exited
func (m *Manager) execute(ctx context.Context, run *Run, factory probe.Factory) {
	defer close(run.finished)

	ready := make(chan error, run.requested)

	var workerWG sync.WaitGroup
	for w := 0; w < run.requested; w++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			m.worker(ctx, run, factory, workerID, ready)
		}(w)
	}

	stopProgress := make(chan struct{})
	if m.opts.StatsInterval > 0 {
		go m.progressLoop(run, stopProgress)
	}

	var startErrs error
	for i := 0; i < run.requested; i++ {
		if err := <-ready; err != nil {
			startErrs = multierr.Append(startErrs, err)
		}
	}
	workerWG.Wait()
	close(stopProgress)

	// the caller's context ended without an explicit Stop
	if ctx.Err() != nil {
		_ = run.State.Stop()
	}

	var runErr error
	if run.started.Load() == 0 {
		runErr = fmt.Errorf("%w: %v", ErrNoWorkers, startErrs)
	}
	run.State.Finish(runErr)

	status := run.Status()
	fields := []zap.Field{
		zap.Stringer("run", run.ID),
		zap.Stringer("state", status.State),
		zap.String("checked", humanize.Comma(status.Counters.Total)),
		zap.Int64("live", status.Counters.Live),
		zap.Int64("suspended", status.Counters.Suspended),
		zap.Int64("unknown", status.Counters.Unknown),
		zap.Int64("error", status.Counters.Error),
		zap.Float64("cpm", status.CPM),
		zap.Duration("elapsed", run.State.Elapsed()),
	}
	if runErr != nil {
		m.logger.Error("run failed", append(fields, zap.Error(runErr))...)
	} else {
		m.logger.Info("run finished", fields...)
	}
	m.reports.RunFinished(status)
}

// progressLoop logs a progress line every StatsInterval until stop closes
func (m *Manager) progressLoop(run *Run, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s := run.Status()
			m.logger.Info("progress",
				zap.Stringer("state", s.State),
				zap.Float64("cpm", s.CPM),
				zap.String("checked", humanize.Comma(s.Counters.Total)+"/"+humanize.Comma(int64(s.Total))),
				zap.Int64("live", s.Counters.Live),
				zap.Int64("suspended", s.Counters.Suspended),
				zap.Float64("progress", s.Progress))
		}
	}
}

// newLimiter gives each worker its own delay sequence
func newLimiter(opts Options, workerID int) *ratelimit.Limiter {
	return ratelimit.New(opts.MinDelay, opts.MaxDelay, opts.Seed+uint64(workerID)*0x9e3779b97f4a7c15)
}

var _ control.CounterSource = (*aggregator.ResultAggregator)(nil)
