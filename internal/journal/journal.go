package journal

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jspohr/tollbook/internal/task"
)

// BatchWriter is the interface the Journal persists through. It exists to
// allow testing without a real database; task.Store satisfies it.
type BatchWriter interface {
	UpsertPeriods(ctx context.Context, taskID string, rows []task.PeriodRow) error
	InsertAppliedRequests(ctx context.Context, taskID string, ids []string) error
}

// FlushObserver is notified after each flush attempt. Implementations must
// not block.
type FlushObserver interface {
	JournalFlush(entries int, took time.Duration, err error)
}

// Entry is one ledger mutation to persist: amended period snapshots and/or
// newly applied request ids for a task.
type Entry struct {
	TaskID          string
	Periods         []task.PeriodRow
	AppliedRequests []string
}

// Journal buffers ledger mutations in memory and flushes them to the store
// in batches, so the ingest write path never waits on the database. It is
// safe for concurrent use.
type Journal struct {
	store         BatchWriter
	observer      FlushObserver
	buffer        []Entry
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
}

// New creates a Journal that flushes to the given store when the buffer
// reaches batchSize or every flushInterval, whichever comes first. observer
// may be nil.
func New(store BatchWriter, batchSize int, flushInterval time.Duration, observer FlushObserver) *Journal {
	return &Journal{
		store:         store,
		observer:      observer,
		buffer:        make([]Entry, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// Start begins a background goroutine that flushes buffered entries on a
// timer. It blocks until Stop is called or the context is cancelled.
func (j *Journal) Start(ctx context.Context) {
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.flush()
		case <-ctx.Done():
			j.flush()
			return
		case <-j.done:
			j.flush()
			return
		}
	}
}

// Record adds an entry to the buffer. If the buffer reaches batchSize, a
// flush is triggered immediately.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	j.buffer = append(j.buffer, e)
	shouldFlush := len(j.buffer) >= j.batchSize
	j.mu.Unlock()

	if shouldFlush {
		j.flush()
	}
}

// flush drains all buffered entries, coalesces them per task, and writes
// them to the store. Errors are logged rather than returned so the ingest
// path is never blocked; the ledger's in-memory state stays authoritative
// and the next flush of the same period rows converges the store again.
func (j *Journal) flush() {
	j.mu.Lock()
	if len(j.buffer) == 0 {
		j.mu.Unlock()
		return
	}
	batch := j.buffer
	j.buffer = make([]Entry, 0, j.batchSize)
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	var firstErr error
	for _, e := range coalesce(batch) {
		if err := j.store.UpsertPeriods(ctx, e.TaskID, e.Periods); err != nil {
			slog.Error("failed to flush period snapshots", "task_id", e.TaskID, "count", len(e.Periods), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := j.store.InsertAppliedRequests(ctx, e.TaskID, e.AppliedRequests); err != nil {
			slog.Error("failed to flush applied requests", "task_id", e.TaskID, "count", len(e.AppliedRequests), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if j.observer != nil {
		j.observer.JournalFlush(len(batch), time.Since(start), firstErr)
	}
}

// coalesce merges entries per task, keeping only the latest snapshot of each
// period seq. Entries for a task flush in their recorded order, so the last
// snapshot wins.
func coalesce(batch []Entry) []Entry {
	type agg struct {
		periods map[int]task.PeriodRow
		ids     []string
	}

	byTask := make(map[string]*agg)
	var order []string
	for _, e := range batch {
		a, ok := byTask[e.TaskID]
		if !ok {
			a = &agg{periods: make(map[int]task.PeriodRow)}
			byTask[e.TaskID] = a
			order = append(order, e.TaskID)
		}
		for _, row := range e.Periods {
			a.periods[row.Seq] = row
		}
		a.ids = append(a.ids, e.AppliedRequests...)
	}

	out := make([]Entry, 0, len(order))
	for _, taskID := range order {
		a := byTask[taskID]
		rows := make([]task.PeriodRow, 0, len(a.periods))
		for _, row := range a.periods {
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, k int) bool { return rows[i].Seq < rows[k].Seq })
		out = append(out, Entry{TaskID: taskID, Periods: rows, AppliedRequests: a.ids})
	}
	return out
}

// Stop signals the background goroutine to exit and performs a final flush.
func (j *Journal) Stop() {
	close(j.done)
}
