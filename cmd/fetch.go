package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devsheet/config"
)

var (
	fetchRepo        string
	fetchPerson      string
	fetchGitHubUser  string
	fetchJiraProject string
	fetchAliases     []string
	fetchNoEnrich    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch, unify, enrich, and persist activity without reporting",
	Long: `Collect commits and issue activity, unify and enrich them, and persist the
result to the local database. No report window is asked for; run "devsheet
report" afterwards to build timesheets from what was fetched.`,
	Example: `
  # Refresh the local activity log
  devsheet fetch --repo acme/widget --person "John Doe" --github-user jdoe

  # Fetch without the language-model rewrite
  devsheet fetch --repo acme/widget --person "John Doe" --no-enrich
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}

		pipeline, closeStore, err := buildPipeline(cfg, pipelineOptions{
			person:       fetchPerson,
			repo:         fetchRepo,
			githubUser:   fetchGitHubUser,
			jiraProject:  fetchJiraProject,
			aliases:      fetchAliases,
			withEnrich:   !fetchNoEnrich,
			withProgress: true,
			out:          os.Stdout,
		})
		if err != nil {
			return err
		}
		defer closeStore()

		result, err := pipeline.Fetch(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Fetch completed. Items: %d, Merged: %d, Links: %d, Dropped: %d, Foreign commits: %d, Persisted: %d, Sources skipped: %d/%d\n",
			result.Log.Len(),
			result.Unify.ItemsMerged,
			result.Unify.LinksCreated,
			result.Unify.CommitsDropped+result.Unify.IssuesDropped,
			result.Unify.CommitsForeign,
			result.Saved,
			result.Skipped,
			result.Sources,
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchRepo, "repo", "", "GitHub repository as owner/name")
	fetchCmd.Flags().StringVar(&fetchPerson, "person", "", "Name the activity is scoped to")
	fetchCmd.Flags().StringVar(&fetchGitHubUser, "github-user", "", "GitHub login used to filter commits and resolve authors")
	fetchCmd.Flags().StringVar(&fetchJiraProject, "jira-project", "", "Jira project key to restrict the issue search")
	fetchCmd.Flags().StringArrayVar(&fetchAliases, "alias", nil, "Additional author spelling to resolve to --person (repeatable)")
	fetchCmd.Flags().BoolVar(&fetchNoEnrich, "no-enrich", false, "Skip the language-model rewrite and keep raw texts")

	_ = fetchCmd.MarkFlagRequired("repo")
	_ = fetchCmd.MarkFlagRequired("person")
	_ = fetchCmd.MarkFlagRequired("github-user")
}
