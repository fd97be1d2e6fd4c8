package manager

import (
	"sync"

	"go.uber.org/zap"

	"social-checker/pkg/types"
)

// Reporter receives run events. Progress is called concurrently from workers.
type Reporter interface {
	RunStarted(status Status)
	Progress(event types.ProgressEvent, result types.CheckResult)
	RunFinished(status Status)
}

// NopReporter can be embedded to implement only some Reporter methods
type NopReporter struct{}

func (NopReporter) RunStarted(Status)                                {}
func (NopReporter) Progress(types.ProgressEvent, types.CheckResult) {}
func (NopReporter) RunFinished(Status)                               {}

// fanout delivers every event to each registered reporter.
// A panicking reporter is logged and skipped.
type fanout struct {
	mu        sync.RWMutex
	reporters []Reporter
	logger    *zap.Logger
}

func (f *fanout) add(r Reporter) {
	f.mu.Lock()
	f.reporters = append(f.reporters, r)
	f.mu.Unlock()
}

func (f *fanout) each(fn func(Reporter)) {
	f.mu.RLock()
	reporters := f.reporters
	f.mu.RUnlock()

	for _, r := range reporters {
		func() {
			defer func() {
				if p := recover(); p != nil {
					f.logger.Error("reporter panicked", zap.Any("panic", p))
				}
			}()
			fn(r)
		}()
	}
}

func (f *fanout) RunStarted(s Status) {
	f.each(func(r Reporter) { r.RunStarted(s) })
}

func (f *fanout) Progress(e types.ProgressEvent, res types.CheckResult) {
	f.each(func(r Reporter) { r.Progress(e, res) })
}

func (f *fanout) RunFinished(s Status) {
	f.each(func(r Reporter) { r.RunFinished(s) })
}
