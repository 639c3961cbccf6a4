package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/model"
	"github.com/duffmetro/metroscope/internal/profile"
)

var (
	dataPath     string
	sheetName    string
	outJSON      string
	outMD        string
	forceRefresh bool
	runTimeout   time.Duration
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile <system-id>",
	Short: "Generate the dossier for one subway system",
	Long: `Profile runs the full generation workflow for one system:
- assemble a fact sheet from its dataset row
- retrieve web snippets (when a search credential is configured)
- synthesize a structured dossier with the language model
- validate it against the dossier schema, retrying once on failure
- cache it under (system id, dataset version)

Example:
  metroscope profile NYC_1 --data systems.xlsx
  metroscope profile TOKYO_1 --data systems.xlsx --force --md tokyo.md`,
	Args: cobra.ExactArgs(1),
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringVar(&dataPath, "data", "", "dataset file (.xlsx or .csv)")
	profileCmd.Flags().StringVar(&sheetName, "sheet", "", "Excel sheet name (default: first sheet)")
	profileCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	profileCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	profileCmd.Flags().BoolVar(&forceRefresh, "force", false, "bypass the cache and regenerate")
	profileCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "overall run timeout")
	_ = profileCmd.MarkFlagRequired("data")
}

func runProfile(cmd *cobra.Command, args []string) error {
	systemID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := dataset.LoadFile(dataPath, sheetName)
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

	row, ok := table.FindBySystemID(systemID)
	if !ok {
		return fmt.Errorf("system %q not found in dataset (%d rows)", systemID, len(table.Rows))
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Profiling %s (dataset version %.8s, retrieval %v)\n",
			systemID, table.Version, a.gateway.Available())
	}

	result, err := a.workflow.Run(ctx, profile.Request{
		SystemID:       systemID,
		DatasetVersion: table.Version,
		Row:            row,
		ForceRefresh:   forceRefresh,
	})
	if err != nil {
		return describeRunError(err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	if outJSON != "" {
		if err := a.renderer.WriteJSON(result.Dossier, outJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote JSON: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := a.renderer.WriteMarkdown(result.Dossier, outMD); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote Markdown: %s\n", outMD)
		}
	}

	a.renderer.Summary(os.Stdout, result.Dossier, result.FromCache)
	return nil
}

// describeRunError unpacks a structured run failure for the terminal.
func describeRunError(err error) error {
	var runErr *model.RunError
	if !errors.As(err, &runErr) {
		return err
	}

	fmt.Fprintf(os.Stderr, "Profile generation failed (%s): %s\n", runErr.State, runErr.Reason)
	for attempt, verr := range runErr.Validation {
		fmt.Fprintf(os.Stderr, "  attempt %d validation problems:\n", attempt+1)
		for _, issue := range verr.Issues {
			fmt.Fprintf(os.Stderr, "    - %s\n", issue)
		}
	}
	return err
}

func reportIssues(table *dataset.Table) {
	for _, issue := range table.Issues {
		fmt.Fprintf(os.Stderr, "Dataset warning: %s\n", issue)
	}
}
