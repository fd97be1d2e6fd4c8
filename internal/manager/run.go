package manager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"social-checker/internal/aggregator"
	"social-checker/internal/control"
	"social-checker/internal/queue"
	"social-checker/internal/stats"
)

// Run is one batch from Start to Completed or Cancelled.
// Nothing in a Run is shared with the next one.
type Run struct {
	ID       uuid.UUID
	Platform string
	Total    int

	State   *control.ControlState
	Queue   *queue.JobQueue
	Results *aggregator.ResultAggregator

	requested int
	started   atomic.Int32
	inFlight  atomic.Int32
	// closed after the final log line and RunFinished delivery
	finished chan struct{}
}

// Status is a point-in-time view of a run
type Status struct {
	ID       string        `json:"id"`
	Platform string        `json:"platform"`
	State    control.State `json:"state"`
	Total    int           `json:"total"`
	Pending  int           `json:"pending"`
	// Dispatched counts entries handed to a worker, finished or not
	Dispatched int            `json:"dispatched"`
	Counters   stats.Counters `json:"counters"`
	Progress   float64        `json:"progress"`
	CPM        float64        `json:"cpm"`
	Workers    int            `json:"workers"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Status returns the current view of the run
func (r *Run) Status() Status {
	counters := r.State.Counters()
	started, ended := r.State.Times()

	s := Status{
		ID:         r.ID.String(),
		Platform:   r.Platform,
		State:      r.State.State(),
		Total:      r.Total,
		Pending:    r.Queue.Len(),
		Dispatched: r.Queue.Claimed(),
		Counters:   counters,
		Progress:   stats.Progress(counters.Total, r.Total),
		CPM:        stats.CPM(counters.Total, r.State.Elapsed()),
		Workers:    int(r.started.Load()),
		StartedAt:  started,
	}
	if !ended.IsZero() {
		s.EndedAt = &ended
	}
	if err := r.State.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// Snapshot returns a consistent copy of the results so far
func (r *Run) Snapshot() aggregator.Snapshot {
	return r.Results.Snapshot()
}

// InFlight returns how many dequeued entries are still being processed
func (r *Run) InFlight() int {
	return int(r.inFlight.Load())
}

// Finished is closed once the run has ended and reporters were notified
func (r *Run) Finished() <-chan struct{} {
	return r.finished
}

// Ended reports whether the run has finished and reporters were notified
func (r *Run) Ended() bool {
	select {
	case <-r.finished:
		return true
	default:
		return false
	}
}

// Wait blocks until the run finishes or ctx ends.
// It returns the run-level failure, if any.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.finished:
		return r.State.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
