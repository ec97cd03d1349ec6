package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jspohr/tollbook/internal/api"
	"github.com/jspohr/tollbook/internal/catalog"
	"github.com/jspohr/tollbook/internal/config"
	"github.com/jspohr/tollbook/internal/hub"
	"github.com/jspohr/tollbook/internal/journal"
	"github.com/jspohr/tollbook/internal/ledger"
	"github.com/jspohr/tollbook/internal/metrics"
	"github.com/jspohr/tollbook/internal/ratelimit"
	"github.com/jspohr/tollbook/internal/task"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tollbook ledger server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	taskStore := task.NewStore(pool)
	catalogService := catalog.NewService(catalog.NewStore(pool))

	jrnl := journal.New(taskStore, cfg.Journal.BatchSize, cfg.Journal.FlushInterval, m)
	go jrnl.Start(ctx)

	ledgerHub := hub.New(taskStore, jrnl, ledger.Policy(cfg.Ledger.ReconcilePolicy), metrics.NewLedgerEvents(m))

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		TaskStore:      taskStore,
		Hub:            ledgerHub,
		Catalog:        catalogService,
		Metrics:        m,
		Limiter:        limiter,
		IngestKeyHash:  cfg.Auth.IngestKeyHash,
		AdminKeyHash:   cfg.Auth.AdminKeyHash,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Final flush so buffered ledger mutations reach the store.
	jrnl.Stop()

	return srv.Shutdown(shutdownCtx)
}
