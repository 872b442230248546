// Package timing provides the request-scoped stage log and degradation
// bookkeeping that end up in the response payload.
package timing

import (
	"time"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Timer is an append-only per-stage latency log. Owned by one pipeline run.
type Timer struct {
	startedAt time.Time
	stages    []domain.StageTiming
	now       func() time.Time
}

// NewTimer creates a timer starting now.
func NewTimer() *Timer {
	return &Timer{startedAt: time.Now(), now: time.Now}
}

// NewTimerAt creates a timer with an injected clock, for tests.
func NewTimerAt(now func() time.Time) *Timer {
	return &Timer{startedAt: now(), now: now}
}

// Track starts timing a stage and returns the stop function that records it.
func (t *Timer) Track(stage string) func() {
	start := t.now()
	return func() {
		t.stages = append(t.stages, domain.StageTiming{
			Stage:  stage,
			Millis: t.now().Sub(start).Milliseconds(),
		})
	}
}

// MarkSkipped records a stage that was never started.
func (t *Timer) MarkSkipped(stage string) {
	t.stages = append(t.stages, domain.StageTiming{Stage: stage, Skipped: true})
}

// Stages returns the recorded stage log.
func (t *Timer) Stages() []domain.StageTiming { return t.stages }

// TotalMS returns milliseconds elapsed since the timer started.
func (t *Timer) TotalMS() int64 {
	return t.now().Sub(t.startedAt).Milliseconds()
}

// Metrics collects degradation reasons over one request.
type Metrics struct {
	degraded bool
	reasons  []string
	seen     map[string]struct{}
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{seen: make(map[string]struct{})}
}

// AddReason records a degradation reason and flips the degraded flag.
// Duplicate reasons are recorded once.
func (m *Metrics) AddReason(r domain.DegradationReason) {
	if r == "" {
		return
	}
	m.degraded = true
	if _, ok := m.seen[string(r)]; ok {
		return
	}
	m.seen[string(r)] = struct{}{}
	m.reasons = append(m.reasons, string(r))
}

// SetDegraded forces the degraded flag (used for budget-skip degradation
// where the reason list already carries the skipped operations).
func (m *Metrics) SetDegraded() { m.degraded = true }

// Degraded reports whether any reason was recorded.
func (m *Metrics) Degraded() bool { return m.degraded }

// Reasons returns the recorded reasons in insertion order.
func (m *Metrics) Reasons() []string { return m.reasons }
