package ledger

import "strings"

// Usage is an immutable snapshot of token and cost accounting for one period.
// All counters are non-negative; cost is informational, not a billing source
// of truth.
type Usage struct {
	TokensIn    uint64  `json:"tokens_in"`
	TokensOut   uint64  `json:"tokens_out"`
	CacheWrites uint64  `json:"cache_writes"`
	CacheReads  uint64  `json:"cache_reads"`
	Cost        float64 `json:"cost"`
}

// Add accumulates another snapshot into u component-wise.
func (u *Usage) Add(o Usage) {
	u.TokensIn += o.TokensIn
	u.TokensOut += o.TokensOut
	u.CacheWrites += o.CacheWrites
	u.CacheReads += o.CacheReads
	u.Cost += o.Cost
}

// IsZero reports whether every field of the snapshot is zero.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// ModelRef identifies a backend model by provider and model id.
type ModelRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// String returns the canonical "provider/id" form.
func (m ModelRef) String() string {
	return m.Provider + "/" + m.ID
}

// MatchesLabel reports whether a billing-provider label identifies this model.
// Labels may be the full "provider/id" form or a suffix-only identifier with
// the provider prefix missing (e.g. just the model id).
func (m ModelRef) MatchesLabel(label string) bool {
	if label == "" {
		return false
	}
	full := m.String()
	if label == full || label == m.ID {
		return true
	}
	return strings.HasSuffix(full, "/"+label)
}
