package manager

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"social-checker/internal/probe"
	"social-checker/internal/queue"
	"social-checker/internal/ratelimit"
	"social-checker/pkg/types"
)

// worker owns one probe session for the whole run. It reports its startup
// result on ready exactly once, then drains the queue until it is empty,
// the run is stopped or ctx ends.
func (m *Manager) worker(ctx context.Context, run *Run, factory probe.Factory, workerID int, ready chan<- error) {
	log := m.logger.With(zap.Stringer("run", run.ID), zap.Int("worker", workerID))

	session, err := factory.Open(ctx, workerID)
	if err != nil {
		log.Warn("worker failed to start", zap.Error(err))
		ready <- &WorkerStartupError{WorkerID: workerID, Err: err}
		return
	}
	run.started.Add(1)
	ready <- nil

	defer func() {
		if err := session.Close(); err != nil {
			log.Debug("session close failed", zap.Error(err))
		}
	}()

	limiter := newLimiter(m.opts, workerID)
	processed := 0
	defer func() { log.Debug("worker exited", zap.Int("processed", processed)) }()

	for {
		if err := run.State.WaitIfPaused(ctx); err != nil {
			return
		}

		entry, err := run.Queue.TryDequeue(ctx, m.opts.PollInterval)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			continue
		case err != nil:
			// drained, or the run was stopped
			return
		}

		run.inFlight.Add(1)
		done := m.process(ctx, run, session, limiter, entry, log)
		run.inFlight.Add(-1)
		if !done {
			return
		}
		processed++
	}
}

// process checks one entry and publishes its result. It returns false when
// the run was stopped before the probe started; the entry is then dropped.
func (m *Manager) process(ctx context.Context, run *Run, session probe.Session, limiter *ratelimit.Limiter, entry types.AccountEntry, log *zap.Logger) bool {
	if err := run.State.WaitIfPaused(ctx); err != nil {
		return false
	}
	if err := limiter.Wait(ctx); err != nil {
		return false
	}
	// Pause may have been requested during the delay
	if err := run.State.WaitIfPaused(ctx); err != nil {
		return false
	}

	outcome := m.probe(ctx, session, entry.Username)
	result := types.CheckResult{
		Entry:      entry,
		Status:     outcome.Status,
		Platform:   run.Platform,
		Diagnostic: outcome.Diagnostic,
	}

	// A result is never published while paused. It is still published after
	// Stop since the remote call was already made.
	run.State.Commit(ctx, func() {
		run.Results.Publish(result)
	})

	log.Debug("checked",
		zap.Uint("seq", entry.SequenceIndex),
		zap.String("username", entry.Username),
		zap.Stringer("status", outcome.Status),
		zap.String("diagnostic", outcome.Diagnostic))

	m.reports.Progress(types.ProgressEvent{
		SequenceIndex: entry.SequenceIndex,
		Total:         run.Total,
		Username:      entry.Username,
		Status:        outcome.Status,
	}, result)
	return true
}

// probe runs one check. Stop does not interrupt it; only ProbeTimeout does.
// Errors and panics become an Error outcome.
func (m *Manager) probe(ctx context.Context, session probe.Session, username string) (outcome types.ProbeOutcome) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = types.ProbeOutcome{Status: types.Error, Diagnostic: fmt.Sprintf("probe panic: %v", r)}
		}
	}()

	out, err := session.Check(pctx, username)
	if err != nil {
		return types.ProbeOutcome{Status: types.Error, Diagnostic: err.Error()}
	}
	if out.Status < types.Live || out.Status > types.Error {
		return types.ProbeOutcome{Status: types.Error, Diagnostic: fmt.Sprintf("invalid status %d", out.Status)}
	}
	return out
}
