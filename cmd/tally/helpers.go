package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/arnold17091984/accounting-automation/internal/ai"
	"github.com/arnold17091984/accounting-automation/internal/approval"
	"github.com/arnold17091984/accounting-automation/internal/budget"
	"github.com/arnold17091984/accounting-automation/internal/classify"
	"github.com/arnold17091984/accounting-automation/internal/config"
	"github.com/arnold17091984/accounting-automation/internal/detect"
	"github.com/arnold17091984/accounting-automation/internal/engine"
	"github.com/arnold17091984/accounting-automation/internal/ledger"
	"github.com/arnold17091984/accounting-automation/internal/lookup"
	"github.com/arnold17091984/accounting-automation/internal/service"
	"github.com/arnold17091984/accounting-automation/internal/storage"
)

// expandPath resolves ~ and environment variables in configured paths.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// loadConfig builds the live config store from the global viper instance.
func loadConfig() (*config.Store, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return config.NewStore(cfg, viper.GetViper()), nil
}

// initStorage opens the migrated database configured for this run.
func initStorage(ctx context.Context, cfgStore *config.Store) (*storage.SQLiteStorage, error) {
	dbPath := expandPath(cfgStore.Snapshot().DatabasePath)
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// buildEngine wires the full pipeline from configuration.
func buildEngine(ctx context.Context) (*engine.Engine, *storage.SQLiteStorage, *config.Store, error) {
	cfgStore, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := cfgStore.Snapshot()

	store, err := initStorage(ctx, cfgStore)
	if err != nil {
		return nil, nil, nil, err
	}

	inferencer, err := ai.NewAnthropicClient(ai.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	journalPath := viper.GetString("ledger.journal_path")
	if journalPath == "" {
		journalPath = "tally-journal.csv"
	}
	poster, err := ledger.NewJournalPoster(expandPath(journalPath))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	var notifier service.Notifier // optional; nil logs only

	index := lookup.NewIndex(store, cfg.Thresholds.Learn)
	cascade := classify.NewCascade(index, inferencer, store, cfgStore)
	dups := detect.NewDuplicateDetector(cfg.Duplicate)
	scanner := detect.NewAnomalyScanner(cfg.Anomaly)
	budgets := budget.NewEngine(store, notifier, cfgStore)
	workflow := approval.NewWorkflow(store, poster, notifier, cfgStore)

	eng := engine.New(store, cascade, index, dups, scanner, store, budgets, workflow, cfgStore)
	return eng, store, cfgStore, nil
}
