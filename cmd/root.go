/*
Copyright © 2026

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devsheet/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devsheet",
	Short: "Turn commit and issue activity into a gap-free daily timesheet.",
	Long: `
devsheet collects what you actually did (GitHub commits across all branches,
Jira issues and worklogs), unifies it into one activity log in a local SQLite
database, rewrites each entry into plain narrative text with a local language
model, and spreads the result over a chosen window so that no day in the
report is empty.

Sources can be used together or alone; a skipped source is a warning, not an
error. The Jira section of the config is optional.
`,
	Example: `
  # Create configuration file
  devsheet config create

  # Fetch, enrich, and persist activity, then report interactively
  devsheet generate --repo acme/widget

  # Fetch and persist only (no report)
  devsheet fetch --repo acme/widget

  # Re-report an already-fetched window without touching the network
  devsheet report --repo acme/widget --start 2026-03-02 --days 5

  # Export the raw activity log or the rendered report
  devsheet export --repo acme/widget --mode raw --output ./activity.csv
  devsheet export --repo acme/widget --mode report --start 2026-03-02 --days 5 --output ./timesheet.xlsx
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	config.SetDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "configFile", "", "Config file override (default discovery: $HOME/.devsheet.yaml, then ./.devsheet.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".devsheet" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".devsheet")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "No config file found. Create one first with: devsheet config create")
	}
}
