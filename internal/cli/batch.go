package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/model"
	"github.com/duffmetro/metroscope/internal/worker"
)

var (
	batchData    string
	batchSheet   string
	batchOutDir  string
	batchWorkers int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate dossiers for every system in a dataset",
	Long: `Batch profiles all systems in the dataset concurrently and writes one
Markdown dossier per system.

Example:
  metroscope batch --data systems.xlsx --out profiles/ --workers 4`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchData, "data", "", "dataset file (.xlsx or .csv)")
	batchCmd.Flags().StringVar(&batchSheet, "sheet", "", "Excel sheet name (default: first sheet)")
	batchCmd.Flags().StringVar(&batchOutDir, "out", "profiles", "output directory")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent workers (default from config)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "overall batch timeout")
	_ = batchCmd.MarkFlagRequired("data")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := dataset.LoadFile(batchData, batchSheet)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	reportIssues(table)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.session.Close()
	a.session.SetDatasetVersion(table.Version)

	if err := os.MkdirAll(batchOutDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	jobs := make([]worker.Job, 0, len(table.Rows))
	for _, row := range table.Rows {
		if id := row.String(dataset.ColSystemID); id != "" {
			jobs = append(jobs, worker.Job{SystemID: id, Row: row})
		}
	}

	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.Concurrency.BatchWorkers
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "Profiling %d systems with %d workers...\n", len(jobs), workers)

	pool := worker.NewPool(workers, a.workflow)
	outcomes := pool.Run(ctx, table.Version, jobs)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	succeeded := 0

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			var runErr *model.RunError
			if errors.As(outcome.Err, &runErr) {
				_, _ = red.Fprintf(os.Stderr, "✗ %s: %s (%s)\n", outcome.SystemID, runErr.Reason, runErr.State)
			} else {
				_, _ = red.Fprintf(os.Stderr, "✗ %s: %v\n", outcome.SystemID, outcome.Err)
			}
			continue
		}

		path := filepath.Join(batchOutDir, safeFileName(outcome.SystemID)+".md")
		if err := a.renderer.WriteMarkdown(outcome.Result.Dossier, path); err != nil {
			_, _ = red.Fprintf(os.Stderr, "✗ %s: %v\n", outcome.SystemID, err)
			continue
		}
		succeeded++
		if verbose {
			_, _ = green.Fprintf(os.Stderr, "✓ %s -> %s\n", outcome.SystemID, path)
		}
	}

	fmt.Fprintf(os.Stderr, "Done: %d/%d dossiers written to %s\n", succeeded, len(jobs), batchOutDir)
	return nil
}

func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
