package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/profile"
)

var (
	watchData    string
	watchSheet   string
	watchTimeout time.Duration
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <system-id>",
	Short: "Re-profile a system whenever its dataset file changes",
	Long: `Watch profiles one system, then waits for the dataset file to change on
disk. Each change recomputes the dataset version; an edit that touches
the file contents invalidates the cached dossier and triggers a fresh
generation, while a no-op save reuses the cache.

Useful while curating a spreadsheet: save the file, see the updated
dossier.

Example:
  metroscope watch NYC_1 --data systems.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchData, "data", "", "dataset file (.xlsx or .csv)")
	watchCmd.Flags().StringVar(&watchSheet, "sheet", "", "Excel sheet name (default: first sheet)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 5*time.Minute, "per-run timeout")
	_ = watchCmd.MarkFlagRequired("data")
}

func runWatch(cmd *cobra.Command, args []string) error {
	systemID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.session.Close()

	if err := watchProfileOnce(a, systemID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors typically replace files
	// via rename, which drops a file-level watch.
	dir := filepath.Dir(watchData)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(watchData)
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", target)

	var debounce *time.Timer
	runs := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors fire several events per save; wait for quiet.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case runs <- struct{}{}:
				default:
				}
			})

		case <-runs:
			if err := watchProfileOnce(a, systemID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", target)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		}
	}
}

func watchProfileOnce(a *app, systemID string) error {
	table, err := dataset.LoadFile(watchData, watchSheet)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	reportIssues(table)
	a.session.SetDatasetVersion(table.Version)

	row, ok := table.FindBySystemID(systemID)
	if !ok {
		return fmt.Errorf("system %q not found in dataset (%d rows)", systemID, len(table.Rows))
	}

	ctx, cancel := context.WithTimeout(context.Background(), watchTimeout)
	defer cancel()

	result, err := a.workflow.Run(ctx, profile.Request{
		SystemID:       systemID,
		DatasetVersion: table.Version,
		Row:            row,
	})
	if err != nil {
		return describeRunError(err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	a.renderer.Summary(os.Stdout, result.Dossier, result.FromCache)
	return nil
}
