package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devsheet/config"
	"devsheet/report"
)

var (
	generateRepo        string
	generatePerson      string
	generateGitHubUser  string
	generateJiraProject string
	generateAliases     []string
	generateOutput      string
	generateDays        int
	generateNoEnrich    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Fetch activity, enrich it, and build a timesheet interactively",
	Long: `Run the full pipeline: collect commits and issue activity, unify them into
one log, rewrite each entry into narrative text, persist everything, then ask
for a report window and print the spread timesheet.

Identity and repository can come from flags or from interactive prompts.
The Jira source is used only when the config has a complete jira section.`,
	Example: `
  # Fully interactive
  devsheet generate

  # Flags for identity, prompt only for the window
  devsheet generate --repo acme/widget --person "John Doe" --github-user jdoe

  # Extra author spellings seen in the history
  devsheet generate --repo acme/widget --person "John Doe" --alias jdoe --alias "Jon Doe"

  # Also write the report to a file
  devsheet generate --repo acme/widget --output ./timesheet.csv
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		person := generatePerson
		if person == "" {
			person, err = promptRequiredString(reader, os.Stdout, "Your name (as it should appear on the timesheet)")
			if err != nil {
				return err
			}
		}
		repo := generateRepo
		if repo == "" {
			repo, err = promptRequiredString(reader, os.Stdout, "GitHub repository (owner/name)")
			if err != nil {
				return err
			}
		}
		githubUser := generateGitHubUser
		if githubUser == "" {
			githubUser, err = promptRequiredString(reader, os.Stdout, "GitHub username (login on your commits)")
			if err != nil {
				return err
			}
		}

		pipeline, closeStore, err := buildPipeline(cfg, pipelineOptions{
			person:       person,
			repo:         repo,
			githubUser:   githubUser,
			jiraProject:  generateJiraProject,
			aliases:      generateAliases,
			selector:     &promptSelector{in: reader, out: os.Stdout, defaultDays: generateDays},
			withEnrich:   !generateNoEnrich,
			withProgress: true,
			out:          os.Stdout,
		})
		if err != nil {
			return err
		}
		defer closeStore()

		result, err := pipeline.Run(cmd.Context())
		if err != nil {
			return err
		}

		fetch := result.Fetch
		fmt.Printf("Collected %d activity items (%d merged, %d links, %d malformed records dropped). Persisted: %d.\n",
			fetch.Log.Len(),
			fetch.Unify.ItemsMerged,
			fetch.Unify.LinksCreated,
			fetch.Unify.CommitsDropped+fetch.Unify.IssuesDropped,
			fetch.Saved,
		)
		if fetch.Unify.CommitsForeign > 0 {
			fmt.Printf("Excluded %d commits by other authors.\n", fetch.Unify.CommitsForeign)
		}
		if fetch.Enrich != nil && len(fetch.Enrich.Failed) > 0 {
			fmt.Printf("Enrichment fell back to raw text for %d items.\n", len(fetch.Enrich.Failed))
		}
		fmt.Println()

		if err := report.WriteTable(os.Stdout, person, result.Rows); err != nil {
			return err
		}

		if generateOutput != "" {
			writer, err := report.WriterForPath(generateOutput)
			if err != nil {
				return err
			}
			if err := writer.Write(generateOutput, result.Rows); err != nil {
				return err
			}
			fmt.Printf("\nReport written to %s\n", generateOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateRepo, "repo", "", "GitHub repository as owner/name (prompted when absent)")
	generateCmd.Flags().StringVar(&generatePerson, "person", "", "Name on the timesheet (prompted when absent)")
	generateCmd.Flags().StringVar(&generateGitHubUser, "github-user", "", "GitHub login used to filter commits and resolve authors (prompted when absent)")
	generateCmd.Flags().StringVar(&generateJiraProject, "jira-project", "", "Jira project key to restrict the issue search")
	generateCmd.Flags().StringArrayVar(&generateAliases, "alias", nil, "Additional author spelling to resolve to --person (repeatable)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Also write the report to this file (.csv or .xlsx)")
	generateCmd.Flags().IntVar(&generateDays, "days", 5, "Default number of days offered at the window prompt")
	generateCmd.Flags().BoolVar(&generateNoEnrich, "no-enrich", false, "Skip the language-model rewrite and keep raw texts")
}
