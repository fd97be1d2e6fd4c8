package aggregator

import (
	"fmt"
	"sync"
	"testing"

	"social-checker/pkg/types"
)

func result(i int, status types.CheckStatus) types.CheckResult {
	name := fmt.Sprintf("user%d", i)
	return types.CheckResult{
		Entry:    types.AccountEntry{RawLine: name, Username: name, SequenceIndex: uint(i)},
		Status:   status,
		Platform: "Instagram",
	}
}

func TestPublishPartitions(t *testing.T) {
	a := New(0)
	a.Publish(result(1, types.Live))
	a.Publish(result(2, types.Suspended))
	a.Publish(result(3, types.Live))
	a.Publish(result(4, types.Error))
	a.Publish(result(5, types.Unknown))

	snap := a.Snapshot()
	if len(snap.All) != 5 {
		t.Fatalf("All has %d results, want 5", len(snap.All))
	}
	live := snap.Bucket(types.Live)
	if len(live) != 2 || live[0].Entry.SequenceIndex != 1 || live[1].Entry.SequenceIndex != 3 {
		t.Errorf("live bucket = %+v", live)
	}
	c := snap.Counters
	if c.Total != 5 || c.Live != 2 || c.Suspended != 1 || c.Unknown != 1 || c.Error != 1 {
		t.Errorf("counters = %+v", c)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a := New(0)
	a.Publish(result(1, types.Live))

	snap := a.Snapshot()
	a.Publish(result(2, types.Live))

	if len(snap.All) != 1 || len(snap.Bucket(types.Live)) != 1 {
		t.Errorf("snapshot changed after later Publish: %+v", snap)
	}
	if snap.Counters.Total != 1 {
		t.Errorf("snapshot counters changed: %+v", snap.Counters)
	}
}

func TestConcurrentPublishConsistent(t *testing.T) {
	const (
		workers = 8
		each    = 500
	)
	a := New(workers * each)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				a.Publish(result(w*each+i, types.Statuses[i%len(types.Statuses)]))
			}
		}(w)
	}

	// Readers must never observe counters that disagree with the buckets
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			snap := a.Snapshot()
			if int64(len(snap.All)) != snap.Counters.Total {
				t.Errorf("All=%d Total=%d", len(snap.All), snap.Counters.Total)
				return
			}
			for _, status := range types.Statuses {
				if int64(len(snap.Bucket(status))) != snap.Counters.Of(status) {
					t.Errorf("bucket %s=%d counter=%d", status, len(snap.Bucket(status)), snap.Counters.Of(status))
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done

	snap := a.Snapshot()
	if snap.Counters.Total != workers*each || snap.Counters.Sum() != workers*each {
		t.Fatalf("counters = %+v", snap.Counters)
	}

	seen := make(map[uint]bool, workers*each)
	for _, r := range snap.All {
		if seen[r.Entry.SequenceIndex] {
			t.Fatalf("result %d appears twice", r.Entry.SequenceIndex)
		}
		seen[r.Entry.SequenceIndex] = true
	}
}

func TestOutOfRangeStatusGoesToError(t *testing.T) {
	a := New(0)
	a.Publish(result(1, types.CheckStatus(99)))

	snap := a.Snapshot()
	if len(snap.Bucket(types.Error)) != 1 || snap.Counters.Error != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
