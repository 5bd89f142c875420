package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devsheet/config"
	"devsheet/report"
	"devsheet/spread"
)

var (
	reportRepo        string
	reportPerson      string
	reportStart       string
	reportDays        int
	reportOutput      string
	reportConsolidate bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a timesheet from already-persisted activity",
	Long: `Spread the persisted activity log over a window and print the timesheet.
Nothing is fetched; this works entirely from the local database, so the same
window can be re-reported any number of times.`,
	Example: `
  # One working week starting March 2nd
  devsheet report --repo acme/widget --person "John Doe" --start 2026-03-02 --days 5

  # Rewrite busy days into one paragraph through the language model
  devsheet report --repo acme/widget --person "John Doe" --start 2026-03-02 --days 5 --consolidate

  # Write the report to Excel as well
  devsheet report --repo acme/widget --person "John Doe" --start 2026-03-02 --days 5 -o ./timesheet.xlsx
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}
		start, err := parseDay(reportStart)
		if err != nil {
			return err
		}
		if reportDays < 1 {
			return fmt.Errorf("days must be at least 1, got %d", reportDays)
		}

		pipeline, closeStore, err := buildPipeline(cfg, pipelineOptions{
			person:     reportPerson,
			repo:       reportRepo,
			withEnrich: reportConsolidate,
			out:        os.Stdout,
		})
		if err != nil {
			return err
		}
		defer closeStore()

		rows, err := pipeline.Report(cmd.Context(), spread.Window{Start: start, Days: reportDays})
		if err != nil {
			return err
		}

		if err := report.WriteTable(os.Stdout, reportPerson, rows); err != nil {
			return err
		}

		if reportOutput != "" {
			writer, err := report.WriterForPath(reportOutput)
			if err != nil {
				return err
			}
			if err := writer.Write(reportOutput, rows); err != nil {
				return err
			}
			fmt.Printf("\nReport written to %s\n", reportOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportRepo, "repo", "", "GitHub repository as owner/name")
	reportCmd.Flags().StringVar(&reportPerson, "person", "", "Name the activity is scoped to")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "First day of the report window (YYYY-MM-DD)")
	reportCmd.Flags().IntVar(&reportDays, "days", 5, "Number of days the window covers")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Also write the report to this file (.csv or .xlsx)")
	reportCmd.Flags().BoolVar(&reportConsolidate, "consolidate", false, "Rewrite multi-item days into one paragraph through the language model")

	_ = reportCmd.MarkFlagRequired("repo")
	_ = reportCmd.MarkFlagRequired("person")
	_ = reportCmd.MarkFlagRequired("start")
}
