package ledger

import "time"

// Message is a conversation message as the binder sees it: a timestamp and,
// once bound, an optional model tag. Storage and rendering live elsewhere.
type Message struct {
	ID    string    `json:"id"`
	Time  time.Time `json:"ts"`
	Model *ModelRef `json:"model,omitempty"`
}

// PeriodLookup resolves the period active at a timestamp. Both Timeline and
// Ledger satisfy it.
type PeriodLookup interface {
	ActiveAt(ts time.Time) (Period, bool)
}

// Binder stamps conversation messages with the model that was active when
// they were produced. Binding reads the timeline as it is at bind time; a
// later delayed report amends historical usage but never historical model
// identity, so tags are never revised afterwards.
type Binder struct {
	lookup PeriodLookup
}

// NewBinder creates a binder over the given timeline or ledger.
func NewBinder(lookup PeriodLookup) *Binder {
	return &Binder{lookup: lookup}
}

// Bind stamps the message's model tag from the period active at its
// timestamp. It returns false and leaves the message untagged when no period
// matches; the display layer falls back to the task's nominal model.
func (b *Binder) Bind(m *Message) bool {
	p, ok := b.lookup.ActiveAt(m.Time)
	if !ok {
		return false
	}
	ref := p.Model
	m.Model = &ref
	return true
}
