package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/arnold17091984/accounting-automation/internal/ingest"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Ingest and process statement exports",
		Long: `Parse OFX/QFX or CSV statement exports and run every transaction through
the pipeline: classification, duplicate and anomaly detection, approval
gating and, where auto-approved, ledger posting.

Examples:
  tally process --entity main ~/Downloads/card_jan.qfx
  tally process --entity main --format csv --layout wallet exports/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().String("entity", "", "entity code the statements belong to (required)")
	cmd.Flags().String("format", "ofx", "input format (ofx, csv)")
	cmd.Flags().String("layout", "generic", "CSV layout (generic, wallet, bank-card)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	entity, _ := cmd.Flags().GetString("entity")
	format, _ := cmd.Flags().GetString("format")
	layoutName, _ := cmd.Flags().GetString("layout")

	eng, store, cfgStore, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cfg := cfgStore.Snapshot()
	if !cfg.HasEntity(entity) {
		return fmt.Errorf("unknown entity %q", entity)
	}

	files, err := expandGlobs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to process")
	}

	layout, ok := ingest.Layouts()[layoutName]
	if !ok {
		return fmt.Errorf("unknown CSV layout %q", layoutName)
	}

	var txns []model.Transaction
	bar := progressbar.Default(int64(len(files)), "parsing statements")
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			slog.Error("failed to open file", "file", path, "error", err)
			_ = bar.Add(1)
			continue
		}

		var res *ingest.Result
		switch format {
		case "csv":
			res, err = ingest.ParseCSV(f, layout, entity, cfg.Currency)
		default:
			res, err = ingest.ParseOFX(f, entity, cfg.Currency)
		}
		_ = f.Close()
		_ = bar.Add(1)

		if err != nil {
			slog.Error("failed to parse file", "file", path, "error", err)
			continue
		}
		for _, rowErr := range res.RowErrors {
			slog.Warn("skipped row", "file", filepath.Base(path), "error", rowErr)
		}
		txns = append(txns, res.Transactions...)
	}

	if len(txns) == 0 {
		return fmt.Errorf("no transactions parsed")
	}

	stats, err := eng.Process(ctx, txns)
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d transactions in %s\n", stats.Total, stats.Duration.Round(1e6))
	fmt.Printf("  classified:       %d\n", stats.Classified)
	fmt.Printf("  auto-approved:    %d\n", stats.AutoApproved)
	fmt.Printf("  routed to review: %d\n", stats.RoutedToHuman)
	fmt.Printf("  duplicates:       %d\n", stats.Duplicates)
	fmt.Printf("  anomalies:        %d\n", stats.Anomalies)
	fmt.Printf("  rejected input:   %d\n", stats.Rejected)
	fmt.Printf("  learned rules:    %d\n", stats.LearnedRules)
	return nil
}

func expandGlobs(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("no files match pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}
