package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"devsheet/config"
	"devsheet/report"
	"devsheet/spread"
	"devsheet/storage"
)

var (
	exportRepo   string
	exportPerson string
	exportMode   string
	exportStart  string
	exportDays   int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the activity log or a rendered report to CSV/Excel",
	Long: `Export from the local database.

Modes:
- raw: every persisted activity item, one row each
- report: the spread timesheet for a window (requires --start)

Output format is inferred from the --output extension (.csv or .xlsx).`,
	Example: `
  # Raw activity items
  devsheet export --repo acme/widget --person "John Doe" --mode raw --output ./activity.csv

  # Rendered report for one week
  devsheet export --repo acme/widget --person "John Doe" --mode report --start 2026-03-02 --days 5 --output ./timesheet.xlsx
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}

		mode := strings.TrimSpace(strings.ToLower(exportMode))
		switch mode {
		case "", "raw":
			store, err := storage.OpenSQLite(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			log, err := store.LoadAll(exportPerson, exportRepo)
			if err != nil {
				return err
			}
			writer, err := report.ItemWriterForPath(exportOutput)
			if err != nil {
				return err
			}
			if err := writer.WriteItems(exportOutput, log.Items()); err != nil {
				return err
			}
			fmt.Printf("Export completed. Items: %d, Mode: raw, File: %s\n", log.Len(), exportOutput)
		case "report":
			start, err := parseDay(exportStart)
			if err != nil {
				return err
			}
			pipeline, closeStore, err := buildPipeline(cfg, pipelineOptions{
				person: exportPerson,
				repo:   exportRepo,
				out:    os.Stdout,
			})
			if err != nil {
				return err
			}
			defer closeStore()

			rows, err := pipeline.Report(cmd.Context(), spread.Window{Start: start, Days: exportDays})
			if err != nil {
				return err
			}
			writer, err := report.WriterForPath(exportOutput)
			if err != nil {
				return err
			}
			if err := writer.Write(exportOutput, rows); err != nil {
				return err
			}
			fmt.Printf("Export completed. Days: %d, Mode: report, File: %s\n", len(rows), exportOutput)
		default:
			return fmt.Errorf("unsupported export mode: %s (supported: raw, report)", exportMode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportRepo, "repo", "", "GitHub repository as owner/name")
	exportCmd.Flags().StringVar(&exportPerson, "person", "", "Name the activity is scoped to")
	exportCmd.Flags().StringVar(&exportMode, "mode", "raw", "Export mode: raw|report")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "First day of the report window (YYYY-MM-DD, report mode)")
	exportCmd.Flags().IntVar(&exportDays, "days", 5, "Number of days the window covers (report mode)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (.csv or .xlsx)")

	_ = exportCmd.MarkFlagRequired("repo")
	_ = exportCmd.MarkFlagRequired("person")
	_ = exportCmd.MarkFlagRequired("output")
}
