package ledger

import (
	"math"
	"reflect"
	"testing"
)

var (
	gpt4   = ModelRef{Provider: "openai", ID: "gpt-4"}
	claude = ModelRef{Provider: "anthropic", ID: "claude-3"}
)

// recordingEvents captures emitted events for assertions.
type recordingEvents struct {
	switches int
	applied  []ReportKind
	dropped  []Outcome
}

func (e *recordingEvents) SwitchRecorded(ModelRef) { e.switches++ }
func (e *recordingEvents) ReportApplied(k ReportKind, _ ModelRef) {
	e.applied = append(e.applied, k)
}
func (e *recordingEvents) ReportDropped(_ ReportKind, o Outcome) {
	e.dropped = append(e.dropped, o)
}

func costEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func sumPerModel(l *Ledger) Usage {
	var sum Usage
	for _, u := range l.PerModel() {
		sum.Add(u)
	}
	return sum
}

func TestLedger_ImmediateReportsAccumulatePerModel(t *testing.T) {
	l := New(PolicyDelta, nil)

	l.RecordSwitch(gpt4, at(0))
	res := l.ApplyImmediate(at(5), ImmediateReport{TokensIn: 100, TokensOut: 50, Cost: 0.01})
	if res.Outcome != OutcomeApplied || res.PeriodSeq != 0 {
		t.Fatalf("first apply = %+v, want applied to period 0", res)
	}

	l.RecordSwitch(claude, at(10))
	res = l.ApplyImmediate(at(15), ImmediateReport{TokensIn: 80, TokensOut: 40, Cost: 0.02})
	if res.Outcome != OutcomeApplied || res.PeriodSeq != 1 {
		t.Fatalf("second apply = %+v, want applied to period 1", res)
	}

	perModel := l.PerModel()
	wantGPT := Usage{TokensIn: 100, TokensOut: 50, Cost: 0.01}
	wantClaude := Usage{TokensIn: 80, TokensOut: 40, Cost: 0.02}
	if !reflect.DeepEqual(perModel[gpt4], wantGPT) {
		t.Errorf("perModel[gpt4] = %+v, want %+v", perModel[gpt4], wantGPT)
	}
	if !reflect.DeepEqual(perModel[claude], wantClaude) {
		t.Errorf("perModel[claude] = %+v, want %+v", perModel[claude], wantClaude)
	}

	totals := l.Totals()
	if totals.TokensIn != 180 || totals.TokensOut != 90 || !costEqual(totals.Cost, 0.03) {
		t.Errorf("totals = %+v, want {180 90 _ _ 0.03}", totals)
	}
	if sum := sumPerModel(l); !reflect.DeepEqual(sum, totals) {
		t.Errorf("sum(perModel) = %+v != totals %+v", sum, totals)
	}
}

func TestLedger_PerModelSumsRecurringModelAcrossPeriods(t *testing.T) {
	l := New(PolicyDelta, nil)

	l.RecordSwitch(gpt4, at(0))
	l.ApplyImmediate(at(1), ImmediateReport{TokensIn: 10, Cost: 0.001})
	l.RecordSwitch(claude, at(10))
	l.ApplyImmediate(at(11), ImmediateReport{TokensIn: 20, Cost: 0.002})
	l.RecordSwitch(gpt4, at(20)) // round trip back
	l.ApplyImmediate(at(21), ImmediateReport{TokensIn: 30, Cost: 0.003})

	got := l.PerModel()[gpt4]
	if got.TokensIn != 40 || !costEqual(got.Cost, 0.004) {
		t.Fatalf("perModel[gpt4] = %+v, want tokens_in 40 across both gpt-4 periods", got)
	}
	if sum := sumPerModel(l); !reflect.DeepEqual(sum, l.Totals()) {
		t.Errorf("sum(perModel) = %+v != totals %+v", sum, l.Totals())
	}
}

func TestLedger_DuplicateDelayedReportIsNoOp(t *testing.T) {
	ev := &recordingEvents{}
	l := New(PolicyDelta, ev)
	l.RecordSwitch(gpt4, at(0))

	report := DelayedReport{
		RequestID:      "r1",
		ModelLabel:     "gpt-4",
		ReportTime:     at(5),
		FinalTokensIn:  100,
		FinalTokensOut: 50,
		FinalCost:      0.012,
	}

	first := l.ApplyDelayed(at(1000), report)
	if first.Outcome != OutcomeApplied {
		t.Fatalf("first delivery = %+v, want applied", first)
	}
	after := l.Totals()

	second := l.ApplyDelayed(at(2000), report)
	if second.Outcome != OutcomeDuplicate {
		t.Fatalf("second delivery = %+v, want duplicate", second)
	}
	if !reflect.DeepEqual(l.Totals(), after) {
		t.Errorf("totals changed on duplicate: %+v -> %+v", after, l.Totals())
	}
	if len(ev.dropped) != 1 || ev.dropped[0] != OutcomeDuplicate {
		t.Errorf("dropped events = %v, want one duplicate", ev.dropped)
	}
}

func TestLedger_DelayedReportLandsInEarlierClosedPeriod(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))
	l.RecordSwitch(claude, at(10))

	// Confirmation arrives long after the switch but self-reports t=5.
	res := l.ApplyDelayed(at(1000), DelayedReport{
		RequestID:      "r1",
		ModelLabel:     "gpt-4",
		ReportTime:     at(5),
		FinalTokensIn:  100,
		FinalTokensOut: 50,
		FinalCost:      0.012,
	})
	if res.Outcome != OutcomeApplied || res.PeriodSeq != 0 {
		t.Fatalf("result = %+v, want applied to the closed gpt-4 period", res)
	}

	perModel := l.PerModel()
	if !costEqual(perModel[gpt4].Cost, 0.012) {
		t.Errorf("gpt-4 cost = %v, want 0.012", perModel[gpt4].Cost)
	}
	if !perModel[claude].IsZero() {
		t.Errorf("claude usage = %+v, want untouched", perModel[claude])
	}
}

func TestLedger_DeltaPolicyReconcilesAgainstPartialEstimate(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))

	// Partial in-band estimate first.
	l.ApplyImmediate(at(5), ImmediateReport{TokensIn: 90, TokensOut: 45, Cost: 0.010})

	// Authoritative final figures overwrite, totals move by the delta only.
	res := l.ApplyDelayed(at(1000), DelayedReport{
		RequestID:      "r1",
		ModelLabel:     "gpt-4",
		ReportTime:     at(5),
		FinalTokensIn:  100,
		FinalTokensOut: 50,
		FinalCost:      0.012,
	})
	if res.Outcome != OutcomeApplied {
		t.Fatalf("result = %+v, want applied", res)
	}

	p := l.Period(0)
	if p.Usage.TokensIn != 100 || p.Usage.TokensOut != 50 || !costEqual(p.Usage.Cost, 0.012) {
		t.Errorf("period usage = %+v, want overwritten final values", p.Usage)
	}
	totals := l.Totals()
	if totals.TokensIn != 100 || totals.TokensOut != 50 || !costEqual(totals.Cost, 0.012) {
		t.Errorf("totals = %+v, want final values, not partial+final", totals)
	}
}

func TestLedger_DeltaPolicyHandlesFinalBelowEstimate(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))
	l.ApplyImmediate(at(5), ImmediateReport{TokensIn: 120, Cost: 0.020})

	l.ApplyDelayed(at(1000), DelayedReport{
		RequestID:     "r1",
		ModelLabel:    "gpt-4",
		ReportTime:    at(5),
		FinalTokensIn: 100,
		FinalCost:     0.012,
	})

	totals := l.Totals()
	if totals.TokensIn != 100 || !costEqual(totals.Cost, 0.012) {
		t.Fatalf("totals = %+v, want corrected downward to final values", totals)
	}
}

func TestLedger_AccumulatePolicyAddsFinalOnTop(t *testing.T) {
	l := New(PolicyAccumulate, nil)
	l.RecordSwitch(gpt4, at(0))
	l.ApplyImmediate(at(5), ImmediateReport{TokensIn: 90, Cost: 0.010})

	l.ApplyDelayed(at(1000), DelayedReport{
		RequestID:     "r1",
		ModelLabel:    "gpt-4",
		ReportTime:    at(5),
		FinalTokensIn: 100,
		FinalCost:     0.012,
	})

	totals := l.Totals()
	if totals.TokensIn != 190 || !costEqual(totals.Cost, 0.022) {
		t.Fatalf("totals = %+v, want accumulated partial+final", totals)
	}
}

func TestLedger_CacheCountersAlwaysAccumulate(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))
	l.ApplyImmediate(at(1), ImmediateReport{CacheWrites: 10, CacheReads: 5})

	l.ApplyDelayed(at(1000), DelayedReport{
		RequestID:   "r1",
		ModelLabel:  "gpt-4",
		ReportTime:  at(2),
		CacheWrites: 3,
		CacheReads:  7,
	})

	totals := l.Totals()
	if totals.CacheWrites != 13 || totals.CacheReads != 12 {
		t.Fatalf("cache counters = %d/%d, want 13/12 (accumulate, never overwrite)", totals.CacheWrites, totals.CacheReads)
	}
}

func TestLedger_DropConditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *Ledger)
		apply func(l *Ledger) ApplyResult
		want  Outcome
	}{
		{
			"immediate with empty timeline is an orphan",
			func(l *Ledger) {},
			func(l *Ledger) ApplyResult {
				return l.ApplyImmediate(at(5), ImmediateReport{TokensIn: 10})
			},
			OutcomeOrphan,
		},
		{
			"delayed predating first period is an orphan",
			func(l *Ledger) { l.RecordSwitch(gpt4, at(10)) },
			func(l *Ledger) ApplyResult {
				return l.ApplyDelayed(at(1000), DelayedReport{
					RequestID: "r1", ModelLabel: "gpt-4", ReportTime: at(5),
				})
			},
			OutcomeOrphan,
		},
		{
			"delayed with mismatched label is dropped, not guessed",
			func(l *Ledger) { l.RecordSwitch(gpt4, at(0)) },
			func(l *Ledger) ApplyResult {
				return l.ApplyDelayed(at(1000), DelayedReport{
					RequestID: "r1", ModelLabel: "claude-3", ReportTime: at(5),
				})
			},
			OutcomeUnmatched,
		},
		{
			"delayed without request id is invalid",
			func(l *Ledger) { l.RecordSwitch(gpt4, at(0)) },
			func(l *Ledger) ApplyResult {
				return l.ApplyDelayed(at(5), DelayedReport{ModelLabel: "gpt-4"})
			},
			OutcomeInvalid,
		},
		{
			"delayed without model label is invalid",
			func(l *Ledger) { l.RecordSwitch(gpt4, at(0)) },
			func(l *Ledger) ApplyResult {
				return l.ApplyDelayed(at(5), DelayedReport{RequestID: "r1"})
			},
			OutcomeInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(PolicyDelta, nil)
			tt.setup(l)
			before := l.Totals()

			res := tt.apply(l)
			if res.Outcome != tt.want {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tt.want)
			}
			if res.PeriodSeq != -1 {
				t.Errorf("period seq = %d, want -1 for dropped report", res.PeriodSeq)
			}
			if !reflect.DeepEqual(l.Totals(), before) {
				t.Errorf("totals corrupted by dropped report: %+v", l.Totals())
			}
		})
	}
}

func TestLedger_RestoreRecomputesTotalsAndKeepsDedup(t *testing.T) {
	periods := []Period{
		{Model: gpt4, Start: at(0), End: at(10), Usage: Usage{TokensIn: 100, TokensOut: 50, Cost: 0.01}},
		{Model: claude, Start: at(10), Usage: Usage{TokensIn: 80, TokensOut: 40, Cost: 0.02}},
	}

	l, err := Restore(periods, []string{"r1"}, PolicyDelta, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	totals := l.Totals()
	if totals.TokensIn != 180 || totals.TokensOut != 90 || !costEqual(totals.Cost, 0.03) {
		t.Fatalf("recomputed totals = %+v, want sum of period snapshots", totals)
	}

	// The persisted dedup set still guards replays after reload.
	res := l.ApplyDelayed(at(1000), DelayedReport{
		RequestID: "r1", ModelLabel: "gpt-4", ReportTime: at(5), FinalTokensIn: 100,
	})
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("replay after restore = %s, want duplicate", res.Outcome)
	}

	cur, ok := l.Current()
	if !ok || cur.Model != claude {
		t.Errorf("Current() = %+v, %v; want restored open claude period", cur, ok)
	}
}

func TestLedger_ImmediateRequestIDJoinsDedupSet(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))

	l.ApplyImmediate(at(5), ImmediateReport{RequestID: "r1", TokensIn: 90})

	// A second immediate report for the same request is dropped too.
	res := l.ApplyImmediate(at(6), ImmediateReport{RequestID: "r1", TokensIn: 90})
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want duplicate", res.Outcome)
	}
	if got := l.Totals().TokensIn; got != 90 {
		t.Errorf("tokens_in = %d, want 90", got)
	}
}
