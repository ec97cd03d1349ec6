package catalog

import (
	"time"

	"github.com/jspohr/tollbook/internal/ledger"
)

// Model is a catalog entry for a known backend model: its identity plus
// per-million-token pricing in USD, used to estimate the cost of immediate
// reports that arrive with raw token counts only.
type Model struct {
	ID                string    `json:"id"`
	Provider          string    `json:"provider"`
	ModelID           string    `json:"model_id"`
	InputPerMTok      float64   `json:"input_per_mtok"`
	OutputPerMTok     float64   `json:"output_per_mtok"`
	CacheWritePerMTok float64   `json:"cache_write_per_mtok"`
	CacheReadPerMTok  float64   `json:"cache_read_per_mtok"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Ref returns the model's ledger identity.
func (m *Model) Ref() ledger.ModelRef {
	return ledger.ModelRef{Provider: m.Provider, ID: m.ModelID}
}

// UpsertModelInput holds the fields for creating or re-pricing a catalog
// entry. (Provider, ModelID) is the natural key.
type UpsertModelInput struct {
	Provider          string  `json:"provider"`
	ModelID           string  `json:"model_id"`
	InputPerMTok      float64 `json:"input_per_mtok"`
	OutputPerMTok     float64 `json:"output_per_mtok"`
	CacheWritePerMTok float64 `json:"cache_write_per_mtok"`
	CacheReadPerMTok  float64 `json:"cache_read_per_mtok"`
}
