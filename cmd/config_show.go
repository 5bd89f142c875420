package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devsheet/config"
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show active configuration values.",
	Long: `Display the currently loaded configuration and the resolved config file path.

This command validates the configuration before printing values. Secrets are
masked.`,
	Example: `
  # Show active configuration
  devsheet config show
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			fmt.Println("Invalid config:", err)
			return
		}

		if configPath := viper.ConfigFileUsed(); configPath != "" {
			fmt.Println("Config file loaded from:", configPath)
		}
		fmt.Println("Configuration:")
		fmt.Printf("github.token: %s\n", maskSecret(cfg.GitHub.Token))
		fmt.Printf("github.lookback_days: %d\n", cfg.GitHub.LookbackDays)
		fmt.Printf("jira.url: %s\n", cfg.Jira.URL)
		fmt.Printf("jira.email: %s\n", cfg.Jira.Email)
		fmt.Printf("jira.api_token: %s\n", maskSecret(cfg.Jira.APIToken))
		fmt.Printf("jira.lookback_days: %d\n", cfg.Jira.LookbackDays)
		fmt.Printf("jira configured: %t\n", cfg.JiraConfigured())
		fmt.Printf("enrich.url: %s\n", cfg.Enrich.URL)
		fmt.Printf("enrich.model: %s\n", cfg.Enrich.Model)
		fmt.Printf("enrich.batch_size: %d\n", cfg.Enrich.BatchSize)
		fmt.Printf("enrich.max_attempts: %d\n", cfg.Enrich.MaxAttempts)
		fmt.Printf("enrich.workers: %d\n", cfg.Enrich.Workers)
		fmt.Printf("enrich.requests_per_minute: %d\n", cfg.Enrich.RequestsPerMinute)
		fmt.Printf("unify.similarity_threshold: %.2f\n", cfg.Unify.SimilarityThreshold)
		fmt.Printf("storage.path: %s\n", cfg.Storage.Path)
	},
}

func maskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
