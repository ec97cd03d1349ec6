package ledger

import (
	"fmt"
	"time"
)

// Period is one contiguous span during which a single model was active.
// A zero End means the period is still open. Periods are append-only
// history: the next switch closes them, reconciliation amends their usage,
// nothing ever removes them.
type Period struct {
	Model ModelRef  `json:"model"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitzero"`
	Usage Usage     `json:"usage"`
}

// Open reports whether the period has no end yet (currently active).
func (p Period) Open() bool {
	return p.End.IsZero()
}

// Contains reports whether ts falls inside the period's [Start, End) range.
func (p Period) Contains(ts time.Time) bool {
	if ts.Before(p.Start) {
		return false
	}
	return p.Open() || p.End.After(ts)
}

// Timeline is the ordered, non-overlapping sequence of model periods for one
// task. Insertion order is chronological order; periods are never reordered
// or deleted. A Timeline is owned by exactly one task.
type Timeline struct {
	periods []Period
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// RestoreTimeline rebuilds a timeline from persisted periods, validating the
// structural invariants: chronological order, at most one open period, and
// an open period only in last position.
func RestoreTimeline(periods []Period) (*Timeline, error) {
	for i, p := range periods {
		if !p.Open() && !p.End.After(p.Start) {
			return nil, fmt.Errorf("period %d: end %s is not after start %s", i, p.End, p.Start)
		}
		if i < len(periods)-1 {
			if p.Open() {
				return nil, fmt.Errorf("period %d: open period is not last", i)
			}
			if periods[i+1].Start.Before(p.End) {
				return nil, fmt.Errorf("period %d: overlaps next period", i)
			}
		}
	}
	t := &Timeline{periods: make([]Period, len(periods))}
	copy(t.periods, periods)
	return t, nil
}

// RecordSwitch closes the open period (if any) at ts and appends a fresh
// period for the given model. Switching to the same model again still opens
// a new period; every switch is a new accounting span.
// It returns the index of the new period.
func (t *Timeline) RecordSwitch(m ModelRef, ts time.Time) int {
	if n := len(t.periods); n > 0 && t.periods[n-1].Open() {
		t.periods[n-1].End = ts
	}
	t.periods = append(t.periods, Period{Model: m, Start: ts})
	return len(t.periods) - 1
}

// ActiveAt returns a copy of the period that was active at ts, scanning in
// chronological order. The second return is false when ts precedes the first
// period or the timeline is empty.
func (t *Timeline) ActiveAt(ts time.Time) (Period, bool) {
	if i := t.indexAt(ts); i >= 0 {
		return t.periods[i], true
	}
	return Period{}, false
}

// indexAt returns the index of the period containing ts, or -1.
func (t *Timeline) indexAt(ts time.Time) int {
	for i, p := range t.periods {
		if p.Contains(ts) {
			return i
		}
	}
	return -1
}

// Current returns a copy of the last period if it is still open.
func (t *Timeline) Current() (Period, bool) {
	if n := len(t.periods); n > 0 && t.periods[n-1].Open() {
		return t.periods[n-1], true
	}
	return Period{}, false
}

// All returns a copy of every period, closed and open, in order.
func (t *Timeline) All() []Period {
	out := make([]Period, len(t.periods))
	copy(out, t.periods)
	return out
}

// Len returns the number of periods.
func (t *Timeline) Len() int {
	return len(t.periods)
}

// At returns a copy of the period at index i.
func (t *Timeline) At(i int) Period {
	return t.periods[i]
}
