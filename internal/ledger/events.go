package ledger

// ReportKind distinguishes the two report shapes at the observability hook.
type ReportKind string

const (
	KindImmediate ReportKind = "immediate"
	KindDelayed   ReportKind = "delayed"
)

// Events is the observability hook the ledger emits through. Implementations
// must not block; the ledger calls them inline on the write path.
type Events interface {
	SwitchRecorded(model ModelRef)
	ReportApplied(kind ReportKind, model ModelRef)
	ReportDropped(kind ReportKind, outcome Outcome)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) SwitchRecorded(ModelRef)            {}
func (NopEvents) ReportApplied(ReportKind, ModelRef) {}
func (NopEvents) ReportDropped(ReportKind, Outcome)  {}
