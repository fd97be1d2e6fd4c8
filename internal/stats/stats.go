package stats

import (
	"math"
	"time"

	"social-checker/pkg/types"
)

// Counters holds per-status totals for one run.
// It is a plain value; the owner serializes mutation.
type Counters struct {
	Total     int64 `json:"total"`
	Live      int64 `json:"live"`
	Suspended int64 `json:"suspended"`
	Unknown   int64 `json:"unknown"`
	Error     int64 `json:"error"`
}

// Increment increments the appropriate counter
func (c *Counters) Increment(status types.CheckStatus) {
	c.Total++

	switch status {
	case types.Live:
		c.Live++
	case types.Suspended:
		c.Suspended++
	case types.Unknown:
		c.Unknown++
	default:
		c.Error++
	}
}

// Of returns the count for one status
func (c Counters) Of(status types.CheckStatus) int64 {
	switch status {
	case types.Live:
		return c.Live
	case types.Suspended:
		return c.Suspended
	case types.Unknown:
		return c.Unknown
	default:
		return c.Error
	}
}

// Sum is live+suspended+unknown+error; equals Total for a consistent snapshot
func (c Counters) Sum() int64 {
	return c.Live + c.Suspended + c.Unknown + c.Error
}

// CPM returns checks per minute for checked items over elapsed
func CPM(checked int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0.0
	}
	cpm := (float64(checked) / secs) * 60
	return math.Round(cpm*10) / 10
}

// Progress returns done/total as a percentage rounded to one decimal
func Progress(done int64, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return math.Round((float64(done)/float64(total))*100*10) / 10
}
