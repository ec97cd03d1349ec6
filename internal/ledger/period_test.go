package ledger

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func TestTimeline_RecordSwitchClosesAndOpens(t *testing.T) {
	tl := NewTimeline()
	tl.RecordSwitch(ModelRef{Provider: "openai", ID: "gpt-4"}, at(0))
	tl.RecordSwitch(ModelRef{Provider: "anthropic", ID: "claude-3"}, at(10))
	tl.RecordSwitch(ModelRef{Provider: "openai", ID: "gpt-4"}, at(20))

	periods := tl.All()
	if len(periods) != 3 {
		t.Fatalf("expected 3 periods, got %d", len(periods))
	}

	for i, p := range periods {
		if i < len(periods)-1 {
			if p.Open() {
				t.Errorf("period %d: expected closed", i)
			}
			if !p.End.Equal(periods[i+1].Start) {
				t.Errorf("period %d: end %s does not meet next start %s", i, p.End, periods[i+1].Start)
			}
		}
	}
	if !periods[2].Open() {
		t.Errorf("last period: expected open")
	}

	cur, ok := tl.Current()
	if !ok || cur.Model.ID != "gpt-4" || !cur.Start.Equal(at(20)) {
		t.Errorf("Current() = %+v, %v; want open gpt-4 period at t=20", cur, ok)
	}
}

func TestTimeline_SameModelStillOpensNewPeriod(t *testing.T) {
	tl := NewTimeline()
	m := ModelRef{Provider: "openai", ID: "gpt-4"}
	tl.RecordSwitch(m, at(0))
	tl.RecordSwitch(m, at(5))

	if tl.Len() != 2 {
		t.Fatalf("expected 2 periods after same-model switch, got %d", tl.Len())
	}
	if tl.At(0).Open() {
		t.Errorf("first period should be closed")
	}
}

func TestTimeline_ActiveAt(t *testing.T) {
	tl := NewTimeline()
	tl.RecordSwitch(ModelRef{Provider: "openai", ID: "gpt-4"}, at(10))
	tl.RecordSwitch(ModelRef{Provider: "anthropic", ID: "claude-3"}, at(20))

	tests := []struct {
		name   string
		ts     time.Time
		wantID string
		wantOK bool
	}{
		{"before first period", at(5), "", false},
		{"start of first period", at(10), "gpt-4", true},
		{"inside first period", at(15), "gpt-4", true},
		{"boundary belongs to new period", at(20), "claude-3", true},
		{"inside open period", at(1000), "claude-3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := tl.ActiveAt(tt.ts)
			if ok != tt.wantOK {
				t.Fatalf("ActiveAt(%s) ok = %v, want %v", tt.ts, ok, tt.wantOK)
			}
			if ok && p.Model.ID != tt.wantID {
				t.Errorf("ActiveAt(%s) model = %s, want %s", tt.ts, p.Model.ID, tt.wantID)
			}
		})
	}
}

func TestTimeline_CurrentEmptyOrClosed(t *testing.T) {
	tl := NewTimeline()
	if _, ok := tl.Current(); ok {
		t.Fatalf("empty timeline should have no current period")
	}

	// A restored timeline whose last period is closed has no active model.
	restored, err := RestoreTimeline([]Period{
		{Model: ModelRef{Provider: "openai", ID: "gpt-4"}, Start: at(0), End: at(10)},
	})
	if err != nil {
		t.Fatalf("RestoreTimeline: %v", err)
	}
	if _, ok := restored.Current(); ok {
		t.Errorf("timeline with only closed periods should have no current period")
	}
}

func TestRestoreTimeline_RejectsInvalidHistory(t *testing.T) {
	gpt := ModelRef{Provider: "openai", ID: "gpt-4"}

	tests := []struct {
		name    string
		periods []Period
	}{
		{
			"end not after start",
			[]Period{{Model: gpt, Start: at(10), End: at(10)}},
		},
		{
			"open period not last",
			[]Period{
				{Model: gpt, Start: at(0)},
				{Model: gpt, Start: at(10), End: at(20)},
			},
		},
		{
			"overlapping periods",
			[]Period{
				{Model: gpt, Start: at(0), End: at(10)},
				{Model: gpt, Start: at(5), End: at(20)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RestoreTimeline(tt.periods); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestTimeline_AllReturnsCopy(t *testing.T) {
	tl := NewTimeline()
	tl.RecordSwitch(ModelRef{Provider: "openai", ID: "gpt-4"}, at(0))

	view := tl.All()
	view[0].Usage.TokensIn = 999

	if got := tl.At(0).Usage.TokensIn; got != 0 {
		t.Fatalf("mutating All() result leaked into timeline: tokens_in = %d", got)
	}
}

func TestModelRef_MatchesLabel(t *testing.T) {
	m := ModelRef{Provider: "openai", ID: "gpt-4"}

	tests := []struct {
		label string
		want  bool
	}{
		{"openai/gpt-4", true},
		{"gpt-4", true},
		{"", false},
		{"gpt-3.5", false},
		{"4", false}, // bare suffix of the id is not an identifier
		{"anthropic/gpt-4", false},
	}

	for _, tt := range tests {
		if got := m.MatchesLabel(tt.label); got != tt.want {
			t.Errorf("MatchesLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}
