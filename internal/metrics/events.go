package metrics

import "github.com/jspohr/tollbook/internal/ledger"

// LedgerEvents bridges the ledger's observability hook onto Prometheus
// counters. Satisfies ledger.Events.
type LedgerEvents struct {
	m *Metrics
}

// NewLedgerEvents wraps m as a ledger event sink.
func NewLedgerEvents(m *Metrics) *LedgerEvents {
	return &LedgerEvents{m: m}
}

func (e *LedgerEvents) SwitchRecorded(ledger.ModelRef) {
	e.m.SwitchesTotal.Inc()
}

func (e *LedgerEvents) ReportApplied(kind ledger.ReportKind, _ ledger.ModelRef) {
	e.m.ReportsAppliedTotal.WithLabelValues(string(kind)).Inc()
}

func (e *LedgerEvents) ReportDropped(kind ledger.ReportKind, outcome ledger.Outcome) {
	e.m.ReportsDroppedTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}
