package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/jspohr/tollbook/internal/ledger"
)

// Validation errors returned by the Service layer.
var (
	ErrProviderRequired = errors.New("provider is required")
	ErrModelIDRequired  = errors.New("model_id is required")
	ErrNegativePrice    = errors.New("prices must not be negative")
)

const tokensPerMTok = 1_000_000

// Service provides validated business logic over the catalog Store.
type Service struct {
	store *Store
}

// NewService creates a new Service wrapping the given Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Upsert validates the input and creates or re-prices the entry.
func (s *Service) Upsert(ctx context.Context, in UpsertModelInput) (*Model, error) {
	if err := validateUpsert(in); err != nil {
		return nil, err
	}
	return s.store.Upsert(ctx, in)
}

// GetByRef retrieves a catalog entry by model identity.
func (s *Service) GetByRef(ctx context.Context, provider, modelID string) (*Model, error) {
	return s.store.GetByRef(ctx, provider, modelID)
}

// List returns every catalog entry.
func (s *Service) List(ctx context.Context) ([]*Model, error) {
	return s.store.List(ctx)
}

// Delete removes a catalog entry.
func (s *Service) Delete(ctx context.Context, provider, modelID string) error {
	return s.store.Delete(ctx, provider, modelID)
}

// EstimateCost prices raw token counts for the given model. The second
// return is false when the model is not in the catalog; callers then apply
// the report with zero cost rather than guessing a price.
func (s *Service) EstimateCost(ctx context.Context, ref ledger.ModelRef, u ledger.Usage) (float64, bool, error) {
	m, err := s.store.GetByRef(ctx, ref.Provider, ref.ID)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return CostFor(m, u), true, nil
}

// CostFor computes the USD cost of the given token counts under the model's
// per-million-token prices. The cost field of u is ignored.
func CostFor(m *Model, u ledger.Usage) float64 {
	return float64(u.TokensIn)*m.InputPerMTok/tokensPerMTok +
		float64(u.TokensOut)*m.OutputPerMTok/tokensPerMTok +
		float64(u.CacheWrites)*m.CacheWritePerMTok/tokensPerMTok +
		float64(u.CacheReads)*m.CacheReadPerMTok/tokensPerMTok
}

func validateUpsert(in UpsertModelInput) error {
	if strings.TrimSpace(in.Provider) == "" {
		return ErrProviderRequired
	}
	if strings.TrimSpace(in.ModelID) == "" {
		return ErrModelIDRequired
	}
	if in.InputPerMTok < 0 || in.OutputPerMTok < 0 ||
		in.CacheWritePerMTok < 0 || in.CacheReadPerMTok < 0 {
		return ErrNegativePrice
	}
	return nil
}
