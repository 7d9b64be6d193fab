package engine

import (
	"time"

	"github.com/ivlev/motion2video/internal/events"
)

// throttle decides which progress values are worth reporting.
type throttle struct {
	step     float64
	interval time.Duration
	now      func() time.Time

	last   float64
	lastAt time.Time
	done   bool
}

func newThrottle(step float64, interval time.Duration, now func() time.Time) *throttle {
	return &throttle{step: step, interval: interval, now: now, lastAt: now()}
}

// ready reports whether p should be published. Completion is always
// reported, exactly once.
func (t *throttle) ready(p float64) bool {
	if t.done {
		return false
	}
	now := t.now()
	if p >= 1 {
		t.done = true
	} else if p-t.last < t.step-1e-9 && (t.interval <= 0 || now.Sub(t.lastAt) < t.interval) {
		return false
	}
	t.last, t.lastAt = p, now
	return true
}

func (e *Exporter) report(job string, p float64, fn ProgressFunc) {
	if fn != nil {
		fn(p)
	}
	e.bus.Publish(events.Event{Topic: events.TopicProgress, Job: job, Progress: p})
}
