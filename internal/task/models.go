package task

import (
	"time"

	"github.com/jspohr/tollbook/internal/ledger"
)

// Task is one long-running conversation whose model usage the ledger tracks.
// DefaultModel is the nominal model the display layer falls back to for
// messages the binder could not tag.
type Task struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DefaultModel ledger.ModelRef `json:"default_model"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateTaskInput holds the fields for creating a task.
type CreateTaskInput struct {
	Name         string          `json:"name"`
	DefaultModel ledger.ModelRef `json:"default_model"`
}

// PeriodRow is a model period as persisted: the period snapshot plus its
// position in the task's timeline. (task_id, seq) is the upsert key, so
// amending a period's usage overwrites the same row.
type PeriodRow struct {
	Seq    int
	Period ledger.Period
}
