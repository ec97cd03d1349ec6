package ledger

import (
	"fmt"
	"sort"
	"time"
)

// Policy selects the reconciliation arithmetic for delayed (final) reports.
type Policy string

const (
	// PolicyDelta overwrites the owning period's token and cost figures with
	// the authoritative final values and adds only the delta to the task
	// totals, so a final report never double counts on top of whatever
	// immediate estimate already accumulated. This is the default.
	PolicyDelta Policy = "delta"
	// PolicyAccumulate treats final reports like immediate ones and adds
	// their values on top of the period's accumulated usage.
	PolicyAccumulate Policy = "accumulate"
)

// ValidPolicy reports whether p is a known reconciliation policy.
func ValidPolicy(p Policy) bool {
	return p == PolicyDelta || p == PolicyAccumulate
}

// Ledger owns the model-usage accounting for a single task: the period
// timeline, the request dedup set, and the running task totals. All mutating
// methods expect a single logical writer; readers get copies, never aliases.
type Ledger struct {
	timeline *Timeline
	applied  map[string]struct{}
	totals   Usage
	policy   Policy
	events   Events
}

// New creates an empty ledger with the given reconciliation policy.
func New(policy Policy, events Events) *Ledger {
	if events == nil {
		events = NopEvents{}
	}
	return &Ledger{
		timeline: NewTimeline(),
		applied:  make(map[string]struct{}),
		policy:   policy,
		events:   events,
	}
}

// Restore rebuilds a ledger from persisted periods and applied request ids.
// Task totals are recomputed as the sum of the period snapshots; they are not
// persisted independently.
func Restore(periods []Period, appliedIDs []string, policy Policy, events Events) (*Ledger, error) {
	tl, err := RestoreTimeline(periods)
	if err != nil {
		return nil, fmt.Errorf("restoring timeline: %w", err)
	}
	l := New(policy, events)
	l.timeline = tl
	for _, id := range appliedIDs {
		l.applied[id] = struct{}{}
	}
	for _, p := range periods {
		l.totals.Add(p.Usage)
	}
	return l, nil
}

// RecordSwitch closes the active period at ts and opens a new one for the
// given model. It returns the index of the new period.
func (l *Ledger) RecordSwitch(m ModelRef, ts time.Time) int {
	seq := l.timeline.RecordSwitch(m, ts)
	l.events.SwitchRecorded(m)
	return seq
}

// ApplyImmediate merges a synchronous per-request report into the period
// active at ts and into the task totals. Immediate figures accumulate.
func (l *Ledger) ApplyImmediate(ts time.Time, r ImmediateReport) ApplyResult {
	if r.RequestID != "" {
		if l.seen(r.RequestID) {
			l.events.ReportDropped(KindImmediate, OutcomeDuplicate)
			return dropped(OutcomeDuplicate)
		}
		l.applied[r.RequestID] = struct{}{}
	}

	idx := l.timeline.indexAt(ts)
	if idx < 0 {
		l.events.ReportDropped(KindImmediate, OutcomeOrphan)
		return dropped(OutcomeOrphan)
	}

	add := Usage{
		TokensIn:    r.TokensIn,
		TokensOut:   r.TokensOut,
		CacheWrites: r.CacheWrites,
		CacheReads:  r.CacheReads,
		Cost:        r.Cost,
	}
	l.timeline.periods[idx].Usage.Add(add)
	l.totals.Add(add)

	l.events.ReportApplied(KindImmediate, l.timeline.periods[idx].Model)
	return ApplyResult{Outcome: OutcomeApplied, PeriodSeq: idx}
}

// ApplyDelayed merges an out-of-band billing confirmation. The owning period
// is resolved from the report's own start timestamp (falling back to ts) and
// must be consistent with the report's model label; otherwise the report is
// dropped rather than guessed at. Token and cost figures follow the ledger's
// reconciliation policy; cache counters always accumulate.
func (l *Ledger) ApplyDelayed(ts time.Time, r DelayedReport) ApplyResult {
	if r.RequestID == "" || r.ModelLabel == "" {
		l.events.ReportDropped(KindDelayed, OutcomeInvalid)
		return dropped(OutcomeInvalid)
	}
	if l.seen(r.RequestID) {
		l.events.ReportDropped(KindDelayed, OutcomeDuplicate)
		return dropped(OutcomeDuplicate)
	}
	l.applied[r.RequestID] = struct{}{}

	effective := r.ReportTime
	if effective.IsZero() {
		effective = ts
	}

	idx := l.timeline.indexAt(effective)
	if idx < 0 {
		l.events.ReportDropped(KindDelayed, OutcomeOrphan)
		return dropped(OutcomeOrphan)
	}

	p := &l.timeline.periods[idx]
	if !p.Model.MatchesLabel(r.ModelLabel) {
		l.events.ReportDropped(KindDelayed, OutcomeUnmatched)
		return dropped(OutcomeUnmatched)
	}

	switch l.policy {
	case PolicyAccumulate:
		add := Usage{TokensIn: r.FinalTokensIn, TokensOut: r.FinalTokensOut, Cost: r.FinalCost}
		p.Usage.Add(add)
		l.totals.Add(add)
	default: // PolicyDelta
		// Overwrite with the authoritative final values; only the delta
		// against the previous figures reaches the totals. The totals always
		// contain the period's previous contribution, so remove-then-add
		// cannot underflow.
		l.totals.TokensIn = l.totals.TokensIn - p.Usage.TokensIn + r.FinalTokensIn
		l.totals.TokensOut = l.totals.TokensOut - p.Usage.TokensOut + r.FinalTokensOut
		l.totals.Cost = l.totals.Cost - p.Usage.Cost + r.FinalCost
		p.Usage.TokensIn = r.FinalTokensIn
		p.Usage.TokensOut = r.FinalTokensOut
		p.Usage.Cost = r.FinalCost
	}

	p.Usage.CacheWrites += r.CacheWrites
	p.Usage.CacheReads += r.CacheReads
	l.totals.CacheWrites += r.CacheWrites
	l.totals.CacheReads += r.CacheReads

	l.events.ReportApplied(KindDelayed, p.Model)
	return ApplyResult{Outcome: OutcomeApplied, PeriodSeq: idx}
}

func (l *Ledger) seen(requestID string) bool {
	_, ok := l.applied[requestID]
	return ok
}

// Totals returns a copy of the task-wide grand totals.
func (l *Ledger) Totals() Usage {
	return l.totals
}

// PerModel returns the accumulated usage per model identity, summed across
// every period sharing that identity, not just the most recent one.
func (l *Ledger) PerModel() map[ModelRef]Usage {
	out := make(map[ModelRef]Usage)
	for _, p := range l.timeline.periods {
		u := out[p.Model]
		u.Add(p.Usage)
		out[p.Model] = u
	}
	return out
}

// Periods returns a copy of the full period history in order.
func (l *Ledger) Periods() []Period {
	return l.timeline.All()
}

// Period returns a copy of the period at index seq.
func (l *Ledger) Period(seq int) Period {
	return l.timeline.At(seq)
}

// Current returns a copy of the open period, if any.
func (l *Ledger) Current() (Period, bool) {
	return l.timeline.Current()
}

// ActiveAt returns a copy of the period active at ts, if any.
func (l *Ledger) ActiveAt(ts time.Time) (Period, bool) {
	return l.timeline.ActiveAt(ts)
}

// AppliedRequests returns the dedup set as a sorted slice, for persistence.
func (l *Ledger) AppliedRequests() []string {
	ids := make([]string, 0, len(l.applied))
	for id := range l.applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
