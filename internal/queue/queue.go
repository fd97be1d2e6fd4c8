// Package queue implements the FIFO work list shared by checker workers.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"social-checker/pkg/types"
)

var (
	// ErrEmpty means no entry became available before the timeout
	ErrEmpty = errors.New("queue empty")
	// ErrDrained means the queue is closed and holds no more entries
	ErrDrained = errors.New("queue drained")
	// ErrClosed is returned by Enqueue after Close
	ErrClosed = errors.New("queue closed")
)

// JobQueue is an unbounded FIFO safe for concurrent producers and consumers.
// Each entry is handed to at most one dequeuer.
type JobQueue struct {
	mu      sync.Mutex
	items   []types.AccountEntry
	head    int
	closed  bool
	notify  chan struct{}
	claimed int
}

// New creates an empty queue
func New() *JobQueue {
	return &JobQueue{notify: make(chan struct{})}
}

// Enqueue appends entry at the tail
func (q *JobQueue) Enqueue(entry types.AccountEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, entry)
	q.wakeLocked()
	return nil
}

// Close seals the queue; remaining entries can still be dequeued
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.wakeLocked()
	}
}

// wakeLocked releases every goroutine waiting in TryDequeue
func (q *JobQueue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// TryDequeue removes and returns the head entry.
// It waits at most timeout for an entry and never blocks indefinitely.
func (q *JobQueue) TryDequeue(ctx context.Context, timeout time.Duration) (types.AccountEntry, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			entry := q.items[q.head]
			q.items[q.head] = types.AccountEntry{}
			q.head++
			q.claimed++
			// Reclaim the consumed prefix once it dominates the slice
			if q.head > 1024 && q.head*2 > len(q.items) {
				q.items = append([]types.AccountEntry(nil), q.items[q.head:]...)
				q.head = 0
			}
			q.mu.Unlock()
			return entry, nil
		}
		if q.closed {
			q.mu.Unlock()
			return types.AccountEntry{}, ErrDrained
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return types.AccountEntry{}, ErrEmpty
		case <-ctx.Done():
			return types.AccountEntry{}, ctx.Err()
		}
	}
}

// Len returns the number of entries not yet dequeued
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Claimed returns how many entries have been dequeued so far
func (q *JobQueue) Claimed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.claimed
}
