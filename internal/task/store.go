package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jspohr/tollbook/internal/ledger"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

// Store provides database operations for tasks and their persisted ledger
// state (period timeline and applied-request dedup set).
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new task and returns it with its generated id.
func (s *Store) Create(ctx context.Context, in CreateTaskInput) (*Task, error) {
	t := &Task{Name: in.Name, DefaultModel: in.DefaultModel}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (name, default_provider, default_model_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		in.Name, in.DefaultModel.Provider, in.DefaultModel.ID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// GetByID retrieves a task by its id.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	t := &Task{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, default_provider, default_model_id, created_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.DefaultModel.Provider, &t.DefaultModel.ID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// List returns all tasks, newest first.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, default_provider, default_model_id, created_at
		 FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.Name, &t.DefaultModel.Provider, &t.DefaultModel.ID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}

// LoadLedgerState loads the persisted period timeline (ordered by seq) and
// the applied-request ids for a task, from which the in-memory ledger is
// reconstructed verbatim.
func (s *Store) LoadLedgerState(ctx context.Context, taskID string) ([]ledger.Period, []string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, model_id, start_ts, end_ts,
		        tokens_in, tokens_out, cache_writes, cache_reads, cost
		 FROM periods WHERE task_id = $1 ORDER BY seq`,
		taskID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("loading periods: %w", err)
	}
	defer rows.Close()

	var periods []ledger.Period
	for rows.Next() {
		var p ledger.Period
		var end *time.Time
		var tokensIn, tokensOut, cacheWrites, cacheReads int64
		if err := rows.Scan(
			&p.Model.Provider, &p.Model.ID, &p.Start, &end,
			&tokensIn, &tokensOut, &cacheWrites, &cacheReads, &p.Usage.Cost,
		); err != nil {
			return nil, nil, fmt.Errorf("scanning period row: %w", err)
		}
		if end != nil {
			p.End = *end
		}
		p.Usage.TokensIn = uint64(tokensIn)
		p.Usage.TokensOut = uint64(tokensOut)
		p.Usage.CacheWrites = uint64(cacheWrites)
		p.Usage.CacheReads = uint64(cacheReads)
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating period rows: %w", err)
	}

	idRows, err := s.pool.Query(ctx,
		`SELECT request_id FROM applied_requests WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading applied requests: %w", err)
	}
	defer idRows.Close()

	var ids []string
	for idRows.Next() {
		var id string
		if err := idRows.Scan(&id); err != nil {
			return nil, nil, fmt.Errorf("scanning applied request row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := idRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating applied request rows: %w", err)
	}

	return periods, ids, nil
}

// UpsertPeriods writes period snapshots for a task in a single multi-row
// statement, overwriting rows that share (task_id, seq). It is a no-op when
// rows is empty.
func (s *Store) UpsertPeriods(ctx context.Context, taskID string, periodRows []PeriodRow) error {
	if len(periodRows) == 0 {
		return nil
	}

	const cols = 11
	args := make([]any, 0, len(periodRows)*cols)
	values := make([]string, 0, len(periodRows))

	for i, row := range periodRows {
		base := i * cols
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		var end *time.Time
		if !row.Period.Open() {
			e := row.Period.End
			end = &e
		}
		args = append(args,
			taskID,
			row.Seq,
			row.Period.Model.Provider,
			row.Period.Model.ID,
			row.Period.Start,
			end,
			int64(row.Period.Usage.TokensIn),
			int64(row.Period.Usage.TokensOut),
			int64(row.Period.Usage.CacheWrites),
			int64(row.Period.Usage.CacheReads),
			row.Period.Usage.Cost,
		)
	}

	query := `INSERT INTO periods
		(task_id, seq, provider, model_id, start_ts, end_ts,
		 tokens_in, tokens_out, cache_writes, cache_reads, cost)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (task_id, seq) DO UPDATE SET
		 end_ts = EXCLUDED.end_ts,
		 tokens_in = EXCLUDED.tokens_in,
		 tokens_out = EXCLUDED.tokens_out,
		 cache_writes = EXCLUDED.cache_writes,
		 cache_reads = EXCLUDED.cache_reads,
		 cost = EXCLUDED.cost`

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upserting periods: %w", err)
	}

	return nil
}

// InsertAppliedRequests records applied request ids for a task. Conflicts are
// ignored; the dedup set only ever grows.
func (s *Store) InsertAppliedRequests(ctx context.Context, taskID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)*2)
	values := make([]string, 0, len(ids))
	for i, id := range ids {
		values = append(values, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, taskID, id)
	}

	query := `INSERT INTO applied_requests (task_id, request_id)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (task_id, request_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting applied requests: %w", err)
	}

	return nil
}
