package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jspohr/tollbook/internal/auth"
	"github.com/jspohr/tollbook/internal/catalog"
	"github.com/jspohr/tollbook/internal/config"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a starter model price table and generate an ingest key",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// starterModels is a small price table (USD per million tokens) covering the
// models producers commonly report against.
var starterModels = []catalog.UpsertModelInput{
	{
		Provider:          "anthropic",
		ModelID:           "claude-opus-4",
		InputPerMTok:      15.0,
		OutputPerMTok:     75.0,
		CacheWritePerMTok: 18.75,
		CacheReadPerMTok:  1.50,
	},
	{
		Provider:          "anthropic",
		ModelID:           "claude-sonnet-4",
		InputPerMTok:      3.0,
		OutputPerMTok:     15.0,
		CacheWritePerMTok: 3.75,
		CacheReadPerMTok:  0.30,
	},
	{
		Provider:          "anthropic",
		ModelID:           "claude-haiku-3.5",
		InputPerMTok:      0.80,
		OutputPerMTok:     4.0,
		CacheWritePerMTok: 1.0,
		CacheReadPerMTok:  0.08,
	},
	{
		Provider:          "openai",
		ModelID:           "gpt-4o",
		InputPerMTok:      2.50,
		OutputPerMTok:     10.0,
		CacheReadPerMTok:  1.25,
	},
	{
		Provider:          "openai",
		ModelID:           "gpt-4o-mini",
		InputPerMTok:      0.15,
		OutputPerMTok:     0.60,
		CacheReadPerMTok:  0.075,
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	catalogService := catalog.NewService(catalog.NewStore(pool))

	// Check if seed has already run.
	existing, err := catalogService.List(ctx)
	if err != nil {
		return fmt.Errorf("checking existing models: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("model catalog already populated, skipping seed")
		return nil
	}

	for _, input := range starterModels {
		m, err := catalogService.Upsert(ctx, input)
		if err != nil {
			return fmt.Errorf("seeding model %s/%s: %w", input.Provider, input.ModelID, err)
		}
		slog.Info("seeded model", "model", m.Ref().String(), "input_per_mtok", m.InputPerMTok)
	}

	// Generate a producer key for the ingest routes.
	key, plaintext, err := auth.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating ingest key: %w", err)
	}

	fmt.Printf("\n=== Seed Complete ===\n")
	fmt.Printf("Models:          %d priced\n", len(starterModels))
	fmt.Printf("Ingest Key:      %s\n", plaintext)
	fmt.Printf("Ingest Key Hash: %s\n", key.Hash)
	fmt.Printf("\nPut the hash in configs/tollbook.yaml under auth.ingest_key_hash,\n")
	fmt.Printf("then try it:\n")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' -X POST http://localhost:8080/api/v1/tasks -d '{\"name\":\"demo\"}'\n", plaintext)

	return nil
}
