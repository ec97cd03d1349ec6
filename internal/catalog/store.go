package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a catalog entry does not exist.
var ErrNotFound = errors.New("model not found")

// Store provides database operations for the model catalog.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const modelColumns = `id, provider, model_id, input_per_mtok, output_per_mtok,
	cache_write_per_mtok, cache_read_per_mtok, created_at, updated_at`

func scanModel(row pgx.Row) (*Model, error) {
	m := &Model{}
	err := row.Scan(
		&m.ID, &m.Provider, &m.ModelID,
		&m.InputPerMTok, &m.OutputPerMTok,
		&m.CacheWritePerMTok, &m.CacheReadPerMTok,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert creates a catalog entry or re-prices an existing one, keyed by
// (provider, model_id).
func (s *Store) Upsert(ctx context.Context, in UpsertModelInput) (*Model, error) {
	m, err := scanModel(s.pool.QueryRow(ctx,
		`INSERT INTO models
			(provider, model_id, input_per_mtok, output_per_mtok,
			 cache_write_per_mtok, cache_read_per_mtok)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider, model_id) DO UPDATE SET
			input_per_mtok = EXCLUDED.input_per_mtok,
			output_per_mtok = EXCLUDED.output_per_mtok,
			cache_write_per_mtok = EXCLUDED.cache_write_per_mtok,
			cache_read_per_mtok = EXCLUDED.cache_read_per_mtok,
			updated_at = now()
		 RETURNING `+modelColumns,
		in.Provider, in.ModelID, in.InputPerMTok, in.OutputPerMTok,
		in.CacheWritePerMTok, in.CacheReadPerMTok,
	))
	if err != nil {
		return nil, fmt.Errorf("upserting model: %w", err)
	}
	return m, nil
}

// GetByRef retrieves a catalog entry by its (provider, model_id) identity.
func (s *Store) GetByRef(ctx context.Context, provider, modelID string) (*Model, error) {
	m, err := scanModel(s.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM models WHERE provider = $1 AND model_id = $2`,
		provider, modelID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting model: %w", err)
	}
	return m, nil
}

// List returns every catalog entry ordered by provider then model id.
func (s *Store) List(ctx context.Context) ([]*Model, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+modelColumns+` FROM models ORDER BY provider, model_id`)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model row: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model rows: %w", err)
	}
	return models, nil
}

// Delete removes a catalog entry by its (provider, model_id) identity.
func (s *Store) Delete(ctx context.Context, provider, modelID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM models WHERE provider = $1 AND model_id = $2`,
		provider, modelID,
	)
	if err != nil {
		return fmt.Errorf("deleting model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
