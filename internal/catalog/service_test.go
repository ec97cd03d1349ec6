package catalog

import (
	"errors"
	"math"
	"testing"

	"github.com/jspohr/tollbook/internal/ledger"
)

func TestValidateUpsert(t *testing.T) {
	valid := UpsertModelInput{
		Provider:      "openai",
		ModelID:       "gpt-4",
		InputPerMTok:  30,
		OutputPerMTok: 60,
	}

	tests := []struct {
		name    string
		modify  func(*UpsertModelInput)
		wantErr error
	}{
		{"valid", func(in *UpsertModelInput) {}, nil},
		{"missing provider", func(in *UpsertModelInput) { in.Provider = " " }, ErrProviderRequired},
		{"missing model id", func(in *UpsertModelInput) { in.ModelID = "" }, ErrModelIDRequired},
		{"negative input price", func(in *UpsertModelInput) { in.InputPerMTok = -1 }, ErrNegativePrice},
		{"negative cache price", func(in *UpsertModelInput) { in.CacheReadPerMTok = -0.1 }, ErrNegativePrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			err := validateUpsert(in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateUpsert() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCostFor(t *testing.T) {
	m := &Model{
		Provider:          "anthropic",
		ModelID:           "claude-3",
		InputPerMTok:      3,
		OutputPerMTok:     15,
		CacheWritePerMTok: 3.75,
		CacheReadPerMTok:  0.3,
	}

	tests := []struct {
		name  string
		usage ledger.Usage
		want  float64
	}{
		{"zero usage", ledger.Usage{}, 0},
		{"input only", ledger.Usage{TokensIn: 1_000_000}, 3},
		{
			"mixed",
			ledger.Usage{TokensIn: 500_000, TokensOut: 100_000, CacheWrites: 200_000, CacheReads: 1_000_000},
			0.5*3 + 0.1*15 + 0.2*3.75 + 1*0.3,
		},
		{"cost field ignored", ledger.Usage{TokensIn: 1_000_000, Cost: 99}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CostFor(m, tt.usage)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CostFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
