package cmd

import "github.com/spf13/cobra"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage devsheet configuration file values.",
	Long: `Create, edit, and display the devsheet configuration file.

The configuration stores source credentials and pipeline tuning:
- github.token / github.lookback_days
- jira.url / jira.email / jira.api_token / jira.lookback_days
- enrich.url / enrich.model / batch_size / max_attempts / workers / requests_per_minute
- unify.similarity_threshold
- storage.path`,
	Example: `
  # Create default config in $HOME/.devsheet.yaml
  devsheet config create

  # Show active config and source file
  devsheet config show

  # Open active config in editor (creates example if missing)
  devsheet config edit
`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
