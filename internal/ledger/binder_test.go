package ledger

import "testing"

func TestBinder_StampsModelActiveAtMessageTime(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(0))

	msg := Message{ID: "m1", Time: at(5)}
	binder := NewBinder(l)
	if !binder.Bind(&msg) {
		t.Fatalf("expected message inside the gpt-4 period to bind")
	}

	// Later switches and reports do not revise the tag.
	l.RecordSwitch(claude, at(10))
	l.ApplyImmediate(at(15), ImmediateReport{TokensIn: 80})

	if msg.Model == nil || *msg.Model != gpt4 {
		t.Errorf("message tag = %v, want %v", msg.Model, gpt4)
	}
}

func TestBinder_LeavesUnmatchedMessageUntagged(t *testing.T) {
	l := New(PolicyDelta, nil)
	l.RecordSwitch(gpt4, at(10))

	msg := Message{ID: "m1", Time: at(5)}
	if NewBinder(l).Bind(&msg) {
		t.Fatalf("message before the first period must not bind")
	}
	if msg.Model != nil {
		t.Errorf("message tag = %v, want nil (display layer falls back to nominal model)", msg.Model)
	}
}

func TestBinder_TagIsACopyNotAnAlias(t *testing.T) {
	tl := NewTimeline()
	tl.RecordSwitch(gpt4, at(0))

	msg := Message{ID: "m1", Time: at(1)}
	NewBinder(tl).Bind(&msg)

	// Mutating the bound tag must not reach the timeline.
	msg.Model.ID = "altered"
	if got := tl.At(0).Model; got != gpt4 {
		t.Fatalf("timeline model changed via bound tag: %+v", got)
	}
}
