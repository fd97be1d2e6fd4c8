// Package aggregator collects check results into per-status buckets.
package aggregator

import (
	"sync"

	"social-checker/internal/stats"
	"social-checker/pkg/types"
)

// Snapshot is a point-in-time copy of an aggregator
type Snapshot struct {
	// All holds every result in completion order
	All      []types.CheckResult
	Buckets  map[types.CheckStatus][]types.CheckResult
	Counters stats.Counters
}

// Bucket returns the results for status, in completion order
func (s Snapshot) Bucket(status types.CheckStatus) []types.CheckResult {
	return s.Buckets[status]
}

// ResultAggregator is an append-only, concurrency-safe result store.
// Counters change in the same critical section as the buckets.
type ResultAggregator struct {
	mu       sync.RWMutex
	all      []types.CheckResult
	buckets  [len(types.Statuses)][]types.CheckResult
	counters stats.Counters
}

// New creates an empty aggregator; capacity is a sizing hint
func New(capacity int) *ResultAggregator {
	return &ResultAggregator{
		all: make([]types.CheckResult, 0, capacity),
	}
}

// Publish appends result to its status bucket and to the combined sequence
func (a *ResultAggregator) Publish(result types.CheckResult) {
	idx := bucketIndex(result.Status)

	a.mu.Lock()
	a.all = append(a.all, result)
	a.buckets[idx] = append(a.buckets[idx], result)
	a.counters.Increment(result.Status)
	a.mu.Unlock()
}

// Counters returns the current totals
func (a *ResultAggregator) Counters() stats.Counters {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counters
}

// Len returns the number of published results
func (a *ResultAggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.all)
}

// Snapshot copies results and counters under one read lock
func (a *ResultAggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		All:      append([]types.CheckResult(nil), a.all...),
		Buckets:  make(map[types.CheckStatus][]types.CheckResult, len(types.Statuses)),
		Counters: a.counters,
	}
	for i, status := range types.Statuses {
		snap.Buckets[status] = append([]types.CheckResult(nil), a.buckets[i]...)
	}
	return snap
}

// bucketIndex maps out-of-range statuses to the error bucket
func bucketIndex(status types.CheckStatus) int {
	if status < 0 || int(status) >= len(types.Statuses) {
		return int(types.Error)
	}
	return int(status)
}
