package config

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	KeyGitHubLookbackDays = "github.lookback_days"
	KeyJiraLookbackDays   = "jira.lookback_days"
	KeyEnrichURL          = "enrich.url"
	KeyEnrichModel        = "enrich.model"
	KeyEnrichBatchSize    = "enrich.batch_size"
	KeyEnrichMaxAttempts  = "enrich.max_attempts"
	KeyEnrichWorkers      = "enrich.workers"
	KeyEnrichRatePerMin   = "enrich.requests_per_minute"
	KeyUnifyThreshold     = "unify.similarity_threshold"
	KeyStoragePath        = "storage.path"
)

type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	Jira    JiraConfig    `mapstructure:"jira"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Unify   UnifyConfig   `mapstructure:"unify"`
	Storage StorageConfig `mapstructure:"storage"`
}

type GitHubConfig struct {
	Token        string `mapstructure:"token"`
	LookbackDays int    `mapstructure:"lookback_days" validate:"gt=0"`
}

type JiraConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	Email        string `mapstructure:"email" validate:"omitempty,email"`
	APIToken     string `mapstructure:"api_token"`
	LookbackDays int    `mapstructure:"lookback_days" validate:"gt=0"`
}

type EnrichConfig struct {
	URL               string `mapstructure:"url" validate:"required,url"`
	Model             string `mapstructure:"model" validate:"required"`
	BatchSize         int    `mapstructure:"batch_size" validate:"gt=0"`
	MaxAttempts       int    `mapstructure:"max_attempts" validate:"gt=0"`
	Workers           int    `mapstructure:"workers" validate:"gt=0"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"gt=0"`
}

type UnifyConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
}

type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// JiraConfigured reports whether the issue-tracker source can be used at all.
func (c *Config) JiraConfigured() bool {
	return c.Jira.URL != "" && c.Jira.Email != "" && c.Jira.APIToken != ""
}

// SetDefaults sets default values if not provided
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// LoadAndValidate loads config from Viper and validates it
func LoadAndValidate() (*Config, error) {
	return loadAndValidateFromViper(viper.GetViper())
}

// ValidateYAMLContent validates configuration from raw YAML content.
func ValidateYAMLContent(content []byte) (*Config, error) {
	local := viper.New()
	setDefaults(local)
	local.SetConfigType("yaml")
	if err := local.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("read config content: %w", err)
	}
	return loadAndValidateFromViper(local)
}

// ExampleYAML returns the default configuration template.
func ExampleYAML() string {
	return `# devsheet configuration
github:
  # token can also come from the GITHUB_TOKEN environment variable
  token: ""
  lookback_days: 730

jira:
  # leave url empty to run with the GitHub source only
  url: ""
  email: ""
  # api_token can also come from the JIRA_API_TOKEN environment variable
  api_token: ""
  lookback_days: 30

enrich:
  url: "http://localhost:11434"
  model: "gemma3"
  batch_size: 10
  max_attempts: 3
  workers: 2
  requests_per_minute: 60

unify:
  similarity_threshold: 0.85

storage:
  path: "./devsheet.db"
`
}

func loadAndValidateFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// A Jira section is all-or-nothing: a partial one points at a config
	// mistake rather than an intentionally disabled source.
	partial := cfg.Jira.URL != "" || cfg.Jira.Email != "" || cfg.Jira.APIToken != ""
	if partial && !cfg.JiraConfigured() {
		return nil, fmt.Errorf("validation failed: jira requires url, email, and api_token together")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("jira.api_token", "JIRA_API_TOKEN")
	v.SetDefault(KeyGitHubLookbackDays, 730)
	v.SetDefault(KeyJiraLookbackDays, 30)
	v.SetDefault(KeyEnrichURL, "http://localhost:11434")
	v.SetDefault(KeyEnrichModel, "gemma3")
	v.SetDefault(KeyEnrichBatchSize, 10)
	v.SetDefault(KeyEnrichMaxAttempts, 3)
	v.SetDefault(KeyEnrichWorkers, 2)
	v.SetDefault(KeyEnrichRatePerMin, 60)
	v.SetDefault(KeyUnifyThreshold, 0.85)
	v.SetDefault(KeyStoragePath, "./devsheet.db")
}
