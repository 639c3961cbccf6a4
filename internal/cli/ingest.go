package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/geo"
)

var (
	ingestData    string
	ingestSheet   string
	ingestOutCSV  string
	ingestGeocode bool
	ingestS3Save  bool
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Validate and preprocess a subway dataset",
	Long: `Ingest loads a spreadsheet, normalizes its columns, coerces numeric
values and reports anything it had to drop or could not parse. The
cleaned table can be written back out as CSV, enriched with coordinates,
or uploaded to S3 for sharing.

Example:
  metroscope ingest --data systems.xlsx
  metroscope ingest --data systems.xlsx --geocode --out cleaned.csv
  metroscope ingest --data systems.xlsx --s3`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestData, "data", "", "dataset file (.xlsx or .csv)")
	ingestCmd.Flags().StringVar(&ingestSheet, "sheet", "", "Excel sheet name (default: first sheet)")
	ingestCmd.Flags().StringVar(&ingestOutCSV, "out", "", "write the cleaned table as CSV")
	ingestCmd.Flags().BoolVar(&ingestGeocode, "geocode", false, "fill missing coordinates via Nominatim")
	ingestCmd.Flags().BoolVar(&ingestS3Save, "s3", false, "upload the cleaned table to the configured S3 bucket")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "overall ingest timeout")
	_ = ingestCmd.MarkFlagRequired("data")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := dataset.LoadFile(ingestData, ingestSheet)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if ingestGeocode {
		geocoder := geo.NewGeocoder(
			cfg.Geocode.BaseURL,
			cfg.HTTP.UserAgent,
			cfg.Geocode.RequestsPerSecond,
			cfg.HTTP.Timeout,
			byteStore(cfg),
		)
		unresolved, err := geocoder.FillTable(ctx, table)
		if err != nil {
			return fmt.Errorf("geocode dataset: %w", err)
		}
		for _, loc := range unresolved {
			fmt.Fprintf(os.Stderr, "Could not geocode: %s\n", loc)
		}
	}

	printIngestReport(table)

	if ingestOutCSV != "" {
		csvBytes, err := table.MarshalCSV()
		if err != nil {
			return fmt.Errorf("marshal table: %w", err)
		}
		if err := os.WriteFile(ingestOutCSV, csvBytes, 0644); err != nil {
			return fmt.Errorf("write %s: %w", ingestOutCSV, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote cleaned CSV: %s\n", ingestOutCSV)
	}

	if ingestS3Save {
		store, err := dataset.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return err
		}
		exists, err := store.Exists(ctx)
		if err != nil {
			return err
		}
		if exists && verbose {
			fmt.Fprintf(os.Stderr, "Replacing existing s3://%s/%s\n", cfg.S3.Bucket, cfg.S3.Key)
		}
		if err := store.Save(ctx, table); err != nil {
			return fmt.Errorf("upload table: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Uploaded table to s3://%s/%s\n", cfg.S3.Bucket, cfg.S3.Key)
	}

	return nil
}

func printIngestReport(table *dataset.Table) {
	bold := color.New(color.Bold)
	yellow := color.New(color.FgYellow)

	_, _ = bold.Printf("Dataset: %d systems, %d columns\n", len(table.Rows), len(table.Columns))
	fmt.Printf("Version: %s\n", table.Version)

	for _, issue := range table.Issues {
		_, _ = yellow.Printf("  ! %s\n", issue)
	}

	// Preview the first few rows so obvious mapping mistakes surface early.
	limit := 5
	if len(table.Rows) < limit {
		limit = len(table.Rows)
	}
	for _, row := range table.Rows[:limit] {
		name := row.String(dataset.ColSystemName)
		if name == "" {
			name = row.String(dataset.ColCity) + " Metro"
		}
		fmt.Printf("  %-16s %s (%s, %s)\n",
			row.String(dataset.ColSystemID), name,
			row.String(dataset.ColCity), row.String(dataset.ColCountry))
	}
	if len(table.Rows) > limit {
		fmt.Printf("  ... and %d more\n", len(table.Rows)-limit)
	}
}
