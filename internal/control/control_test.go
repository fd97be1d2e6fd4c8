package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"social-checker/internal/stats"
)

type fixedCounters stats.Counters

func (f fixedCounters) Counters() stats.Counters { return stats.Counters(f) }

func TestTransitions(t *testing.T) {
	c := New()
	if c.State() != Idle {
		t.Fatalf("initial state = %s", c.State())
	}

	if err := c.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause() from idle error = %v", err)
	}
	if err := c.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume() from idle error = %v", err)
	}

	if _, err := c.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := c.Start(context.Background(), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start() error = %v", err)
	}
	if !c.Active() || c.State() != Running {
		t.Fatalf("after Start: active=%v state=%s", c.Active(), c.State())
	}

	if err := c.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume() while running error = %v", err)
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !c.Paused() {
		t.Error("Paused() = false after Pause")
	}
	if err := c.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Pause() error = %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	c.Finish(nil)
	if c.State() != Completed || c.Active() {
		t.Errorf("after Finish: state=%s active=%v", c.State(), c.Active())
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() after completion error = %v", err)
	}
	if c.State() != Completed {
		t.Errorf("Stop() changed a completed run to %s", c.State())
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Finish")
	}
}

func TestStopCancelsContext(t *testing.T) {
	c := New()
	ctx, err := c.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled by Stop")
	}
	if !c.Cancelled() || c.State() != Cancelled {
		t.Errorf("cancelled=%v state=%s", c.Cancelled(), c.State())
	}
	// Workers still hold the run until Finish
	if !c.Active() {
		t.Error("Active() = false before Finish")
	}
	c.Finish(nil)
	if c.Active() || c.State() != Cancelled {
		t.Errorf("after Finish: active=%v state=%s", c.Active(), c.State())
	}
}

func TestWaitIfPaused(t *testing.T) {
	c := New()
	ctx, _ := c.Start(context.Background(), nil)

	if err := c.WaitIfPaused(ctx); err != nil {
		t.Fatalf("WaitIfPaused() while running error = %v", err)
	}

	_ = c.Pause()
	released := make(chan error, 1)
	go func() { released <- c.WaitIfPaused(ctx) }()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	_ = c.Resume()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("WaitIfPaused() after Resume error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused not released by Resume")
	}
}

func TestWaitIfPausedReleasedByStop(t *testing.T) {
	c := New()
	ctx, _ := c.Start(context.Background(), nil)
	_ = c.Pause()

	released := make(chan error, 1)
	go func() { released <- c.WaitIfPaused(ctx) }()

	time.Sleep(20 * time.Millisecond)
	_ = c.Stop()

	select {
	case err := <-released:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused not released by Stop")
	}
}

func TestCommitHeldWhilePaused(t *testing.T) {
	c := New()
	ctx, _ := c.Start(context.Background(), nil)
	_ = c.Pause()

	committed := make(chan struct{})
	go c.Commit(ctx, func() { close(committed) })

	select {
	case <-committed:
		t.Fatal("Commit ran while paused")
	case <-time.After(50 * time.Millisecond):
	}

	_ = c.Resume()
	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatal("Commit not run after Resume")
	}
}

func TestCommitRunsAfterStop(t *testing.T) {
	c := New()
	ctx, _ := c.Start(context.Background(), nil)
	_ = c.Pause()

	committed := make(chan struct{})
	go c.Commit(ctx, func() { close(committed) })
	time.Sleep(20 * time.Millisecond)
	_ = c.Stop()

	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatal("Commit not run after Stop")
	}
}

func TestFinishWithError(t *testing.T) {
	c := New()
	_, _ = c.Start(context.Background(), nil)

	boom := errors.New("no workers")
	c.Finish(boom)

	if c.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", c.State())
	}
	if !errors.Is(c.Err(), boom) {
		t.Errorf("Err() = %v", c.Err())
	}
	if c.Active() {
		t.Error("Active() = true after failure")
	}
}

func TestCountersDelegate(t *testing.T) {
	c := New()
	if got := c.Counters(); got != (stats.Counters{}) {
		t.Errorf("Counters() before Start = %+v", got)
	}

	want := stats.Counters{Total: 3, Live: 2, Error: 1}
	_, _ = c.Start(context.Background(), fixedCounters(want))
	if got := c.Counters(); got != want {
		t.Errorf("Counters() = %+v, want %+v", got, want)
	}
}

func TestStateText(t *testing.T) {
	for st := Idle; st <= Cancelled; st++ {
		b, _ := st.MarshalText()
		var got State
		if err := got.UnmarshalText(b); err != nil || got != st {
			t.Errorf("round trip %s = %s, %v", st, got, err)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("exploded")); err == nil {
		t.Error("UnmarshalText accepted an unknown state")
	}
}
