package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jspohr/tollbook/internal/journal"
	"github.com/jspohr/tollbook/internal/ledger"
	"github.com/jspohr/tollbook/internal/task"
)

// StateLoader loads a task's persisted ledger state. task.Store satisfies it.
type StateLoader interface {
	LoadLedgerState(ctx context.Context, taskID string) ([]ledger.Period, []string, error)
}

// Recorder accepts ledger mutations for write-behind persistence.
// journal.Journal satisfies it.
type Recorder interface {
	Record(e journal.Entry)
}

// Hub owns one ledger per task. A task's ledger is reconstructed from
// persisted state on first touch and kept for the task's lifetime; a
// per-task mutex serializes mutations so each ledger sees a single logical
// writer, and reads hand out the ledger's snapshot copies. There is no
// shared mutable state across tasks beyond the entry map itself.
type Hub struct {
	loader  StateLoader
	journal Recorder
	policy  ledger.Policy
	events  ledger.Events

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
}

// New creates a Hub. events may be nil.
func New(loader StateLoader, journal Recorder, policy ledger.Policy, events ledger.Events) *Hub {
	return &Hub{
		loader:  loader,
		journal: journal,
		policy:  policy,
		events:  events,
		entries: make(map[string]*entry),
	}
}

// get returns the entry for taskID, loading persisted state on first touch.
// The returned entry is locked; the caller must unlock it.
func (h *Hub) get(ctx context.Context, taskID string) (*entry, error) {
	h.mu.Lock()
	e, ok := h.entries[taskID]
	if !ok {
		e = &entry{}
		h.entries[taskID] = e
	}
	h.mu.Unlock()

	e.mu.Lock()
	if e.ledger == nil {
		periods, appliedIDs, err := h.loader.LoadLedgerState(ctx, taskID)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("loading ledger state for task %s: %w", taskID, err)
		}
		l, err := ledger.Restore(periods, appliedIDs, h.policy, h.events)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("restoring ledger for task %s: %w", taskID, err)
		}
		e.ledger = l
	}
	return e, nil
}

// RecordSwitch closes the task's active period at ts and opens a new one for
// the given model.
func (h *Hub) RecordSwitch(ctx context.Context, taskID string, m ledger.ModelRef, ts time.Time) error {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	seq := e.ledger.RecordSwitch(m, ts)

	rows := []task.PeriodRow{{Seq: seq, Period: e.ledger.Period(seq)}}
	if seq > 0 {
		// The previous period's end was just set; persist its closed snapshot.
		rows = append([]task.PeriodRow{{Seq: seq - 1, Period: e.ledger.Period(seq - 1)}}, rows...)
	}
	h.journal.Record(journal.Entry{TaskID: taskID, Periods: rows})
	return nil
}

// ApplyImmediate merges a synchronous per-request report into the task's
// ledger.
func (h *Hub) ApplyImmediate(ctx context.Context, taskID string, ts time.Time, r ledger.ImmediateReport) (ledger.ApplyResult, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return ledger.ApplyResult{}, err
	}
	defer e.mu.Unlock()

	res := e.ledger.ApplyImmediate(ts, r)
	h.journalApply(taskID, e.ledger, res, r.RequestID)
	return res, nil
}

// ApplyDelayed merges an out-of-band billing confirmation into the task's
// ledger.
func (h *Hub) ApplyDelayed(ctx context.Context, taskID string, ts time.Time, r ledger.DelayedReport) (ledger.ApplyResult, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return ledger.ApplyResult{}, err
	}
	defer e.mu.Unlock()

	res := e.ledger.ApplyDelayed(ts, r)
	h.journalApply(taskID, e.ledger, res, r.RequestID)
	return res, nil
}

// journalApply persists whatever an apply changed: the amended period row
// and/or the consumed request id. Dropped reports can still consume their
// request id (orphans, unmatched labels), and that consumption must survive
// a reload.
func (h *Hub) journalApply(taskID string, l *ledger.Ledger, res ledger.ApplyResult, requestID string) {
	var entry journal.Entry
	entry.TaskID = taskID

	if res.Outcome == ledger.OutcomeApplied {
		entry.Periods = []task.PeriodRow{{Seq: res.PeriodSeq, Period: l.Period(res.PeriodSeq)}}
	}
	if requestID != "" && res.Outcome != ledger.OutcomeDuplicate && res.Outcome != ledger.OutcomeInvalid {
		entry.AppliedRequests = []string{requestID}
	}

	if len(entry.Periods) > 0 || len(entry.AppliedRequests) > 0 {
		h.journal.Record(entry)
	}
}

// Totals returns the task's grand totals.
func (h *Hub) Totals(ctx context.Context, taskID string) (ledger.Usage, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return ledger.Usage{}, err
	}
	defer e.mu.Unlock()
	return e.ledger.Totals(), nil
}

// PerModel returns the task's per-model usage breakdown.
func (h *Hub) PerModel(ctx context.Context, taskID string) (map[ledger.ModelRef]ledger.Usage, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.ledger.PerModel(), nil
}

// Periods returns the task's full period history.
func (h *Hub) Periods(ctx context.Context, taskID string) ([]ledger.Period, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.ledger.Periods(), nil
}

// Current returns the task's open period, if any.
func (h *Hub) Current(ctx context.Context, taskID string) (ledger.Period, bool, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return ledger.Period{}, false, err
	}
	defer e.mu.Unlock()
	p, ok := e.ledger.Current()
	return p, ok, nil
}

// BindMessages stamps each message with the model active at its timestamp.
// Messages outside every period stay untagged.
func (h *Hub) BindMessages(ctx context.Context, taskID string, msgs []ledger.Message) ([]ledger.Message, error) {
	e, err := h.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	binder := ledger.NewBinder(e.ledger)
	out := make([]ledger.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		binder.Bind(&out[i])
	}
	return out, nil
}
