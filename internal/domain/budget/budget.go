// Package budget tracks the per-request time budget consulted by every
// optional pipeline stage.
package budget

import (
	"sort"
	"time"
)

// Operation names an optional operation class gated by the budget.
type Operation string

const (
	// OpVectorSearch is the embedding + vector-similarity retrieval pass.
	OpVectorSearch Operation = "vector_search"
	// OpTier4Embedding is the query-embedding call itself.
	OpTier4Embedding Operation = "tier4_embedding"
	// OpTier5LLM covers LLM reparse and LLM-assisted location resolution.
	OpTier5LLM Operation = "tier5_llm"
)

// Thresholds holds the minimum remaining time for an operation class to
// still be worth starting.
type Thresholds struct {
	VectorSearch time.Duration
	Embedding    time.Duration
	LLM          time.Duration
}

// Budget is the request-scoped deadline tracker. It is owned by a single
// pipeline run and never shared across requests, so it needs no locking.
type Budget struct {
	total      time.Duration
	startedAt  time.Time
	thresholds Thresholds
	skipped    map[Operation]struct{}
	now        func() time.Time
}

// New creates a budget starting now.
func New(total time.Duration, thresholds Thresholds) *Budget {
	return &Budget{
		total:      total,
		startedAt:  time.Now(),
		thresholds: thresholds,
		skipped:    make(map[Operation]struct{}),
		now:        time.Now,
	}
}

// NewAt creates a budget with an injected clock, for tests.
func NewAt(total time.Duration, thresholds Thresholds, now func() time.Time) *Budget {
	b := New(total, thresholds)
	b.startedAt = now()
	b.now = now
	return b
}

// Total returns the full budget duration.
func (b *Budget) Total() time.Duration { return b.total }

// Remaining returns the time left, floored at zero.
func (b *Budget) Remaining() time.Duration {
	rem := b.total - b.now().Sub(b.startedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// CanAfford reports whether the remaining time still clears the minimum
// threshold for the given operation class. Pure function of Remaining():
// a prior true does not guarantee a later true.
func (b *Budget) CanAfford(op Operation) bool {
	return b.Remaining() >= b.threshold(op)
}

func (b *Budget) threshold(op Operation) time.Duration {
	switch op {
	case OpVectorSearch:
		return b.thresholds.VectorSearch
	case OpTier4Embedding:
		return b.thresholds.Embedding
	case OpTier5LLM:
		return b.thresholds.LLM
	}
	return 0
}

// Skip records that an operation was omitted. Once skipped, the operation
// must not be started.
func (b *Budget) Skip(op Operation) {
	b.skipped[op] = struct{}{}
}

// WasSkipped reports whether the operation was recorded as skipped.
func (b *Budget) WasSkipped(op Operation) bool {
	_, ok := b.skipped[op]
	return ok
}

// Skipped returns the skipped operation names, sorted.
func (b *Budget) Skipped() []string {
	out := make([]string, 0, len(b.skipped))
	for op := range b.skipped {
		out = append(out, string(op))
	}
	sort.Strings(out)
	return out
}

// IsDegraded is true iff at least one operation was skipped.
func (b *Budget) IsDegraded() bool {
	return len(b.skipped) > 0
}
