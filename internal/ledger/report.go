package ledger

import "time"

// ImmediateReport carries the usage figures returned synchronously with a
// completed model request. The request id is optional; when present it joins
// the dedup set so a later delayed report for the same request id is not
// double counted on top of it under the accumulate policy.
type ImmediateReport struct {
	RequestID   string
	TokensIn    uint64
	TokensOut   uint64
	CacheWrites uint64
	CacheReads  uint64
	Cost        float64
}

// DelayedReport is an authoritative usage/cost confirmation from an external
// billing channel. It arrives out of band, possibly long after the model has
// switched again, and self-reports when the request started (ReportTime), not
// when the confirmation was delivered. Delivery is at-least-once.
type DelayedReport struct {
	RequestID      string
	ModelLabel     string
	ReportTime     time.Time
	FinalTokensIn  uint64
	FinalTokensOut uint64
	FinalCost      float64
	CacheWrites    uint64
	CacheReads     uint64
}

// Outcome classifies what the ledger did with a report.
type Outcome string

const (
	// OutcomeApplied means the report was merged into a period and the totals.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the request id was already counted; no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeOrphan means no period contains the report's timestamp.
	OutcomeOrphan Outcome = "orphan"
	// OutcomeUnmatched means the delayed report's model label does not
	// identify the period resolved from its timestamp.
	OutcomeUnmatched Outcome = "unmatched_label"
	// OutcomeInvalid means the report is missing fields required for its shape.
	OutcomeInvalid Outcome = "invalid"
)

// ApplyResult describes how a report was handled. PeriodSeq is the index of
// the period the report merged into, or -1 when the report was dropped.
type ApplyResult struct {
	Outcome   Outcome
	PeriodSeq int
}

func dropped(o Outcome) ApplyResult {
	return ApplyResult{Outcome: o, PeriodSeq: -1}
}
