package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"devsheet/config"
	"devsheet/enrich"
	"devsheet/github"
	"devsheet/jira"
	"devsheet/run"
	"devsheet/spread"
	"devsheet/storage"
	"devsheet/unify"
)

const dayLayout = "2006-01-02"

func parseDay(value string) (time.Time, error) {
	parsed, err := time.Parse(dayLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q (want YYYY-MM-DD): %w", value, err)
	}
	return parsed, nil
}

func splitRepo(value string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", value)
	}
	return parts[0], parts[1], nil
}

func promptRequiredString(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	for {
		fmt.Fprintf(out, "%s: ", strings.TrimSpace(label))
		input, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.ToLower(label)), err)
		}
		value := strings.TrimSpace(input)
		if value == "" {
			fmt.Fprintln(out, "Value must not be empty.")
			continue
		}
		return value, nil
	}
}

// pipelineOptions collects everything the commands vary when wiring a run.
type pipelineOptions struct {
	person       string
	repo         string
	githubUser   string
	jiraProject  string
	aliases      []string
	selector     run.WindowSelector
	withEnrich   bool
	withProgress bool
	out          io.Writer
}

// buildPipeline wires the configured sources, enricher, and store into a
// pipeline. The returned closer must be called when the run is over.
func buildPipeline(cfg *config.Config, opts pipelineOptions) (*run.Pipeline, func() error, error) {
	owner, repoName, err := splitRepo(opts.repo)
	if err != nil {
		return nil, nil, err
	}

	var commits github.Client
	commits, err = github.NewClient(github.ClientConfig{
		Token:  cfg.GitHub.Token,
		Owner:  owner,
		Repo:   repoName,
		Author: opts.githubUser,
	})
	if err != nil {
		return nil, nil, err
	}

	var issues jira.Client
	if cfg.JiraConfigured() {
		issues, err = jira.NewClient(jira.ClientConfig{
			BaseURL:  cfg.Jira.URL,
			Email:    cfg.Jira.Email,
			APIToken: cfg.Jira.APIToken,
			Project:  opts.jiraProject,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	var enricher run.Enricher
	var consolidator enrich.Service
	if opts.withEnrich {
		service, err := enrich.NewOllamaService(enrich.OllamaConfig{
			BaseURL:           cfg.Enrich.URL,
			Model:             cfg.Enrich.Model,
			RequestsPerMinute: cfg.Enrich.RequestsPerMinute,
		})
		if err != nil {
			return nil, nil, err
		}
		consolidator = service

		batcherCfg := enrich.BatcherConfig{
			BatchSize:   cfg.Enrich.BatchSize,
			MaxAttempts: cfg.Enrich.MaxAttempts,
			Workers:     cfg.Enrich.Workers,
		}
		if opts.withProgress {
			batcherCfg.Progress = enrichProgress(opts.out)
		}
		enricher = enrich.NewBatcher(service, batcherCfg)
	}

	store, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	hints := identityHints(opts.person, opts.githubUser, opts.aliases)
	pipeline, err := run.NewPipeline(run.Config{
		Person:              opts.person,
		Project:             opts.repo,
		GitHubLookbackDays:  cfg.GitHub.LookbackDays,
		JiraLookbackDays:    cfg.Jira.LookbackDays,
		IdentityHints:       hints,
		Matcher:             unify.NewJaroWinklerMatcher(),
		SimilarityThreshold: cfg.Unify.SimilarityThreshold,
	}, run.Deps{
		Commits:      commits,
		Issues:       issues,
		Enricher:     enricher,
		Consolidator: consolidator,
		Store:        store,
		Selector:     opts.selector,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return pipeline, store.Close, nil
}

func identityHints(person, githubUser string, aliases []string) []unify.Identity {
	combined := make([]string, 0, len(aliases)+1)
	if githubUser != "" {
		combined = append(combined, githubUser)
	}
	combined = append(combined, aliases...)
	if person == "" {
		return nil
	}
	return []unify.Identity{{Canonical: person, Aliases: combined}}
}

func enrichProgress(out io.Writer) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Enriching"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWriter(out),
			)
		}
		_ = bar.Set(done)
		if done >= total {
			_ = bar.Finish()
			fmt.Fprintln(out)
		}
	}
}

// promptSelector asks for a window on stdin and reports the available
// activity range first so the choice is informed.
type promptSelector struct {
	in          *bufio.Reader
	out         io.Writer
	defaultDays int
}

func (s *promptSelector) SelectWindow(min, max time.Time, hasRange bool) (spread.Window, error) {
	if hasRange {
		fmt.Fprintf(s.out, "Activity available from %s to %s.\n", min.Format(dayLayout), max.Format(dayLayout))
	} else {
		fmt.Fprintln(s.out, "No persisted activity yet; the report will be empty.")
	}

	startInput, err := promptRequiredString(s.in, s.out, "Report start date (YYYY-MM-DD)")
	if err != nil {
		return spread.Window{}, err
	}
	start, err := parseDay(startInput)
	if err != nil {
		return spread.Window{}, &run.ValidationError{Reason: err.Error()}
	}

	fmt.Fprintf(s.out, "Days to cover [%d]: ", s.defaultDays)
	daysInput, err := s.in.ReadString('\n')
	if err != nil {
		return spread.Window{}, fmt.Errorf("read days: %w", err)
	}
	daysInput = strings.TrimSpace(daysInput)
	days := s.defaultDays
	if daysInput != "" {
		days, err = strconv.Atoi(daysInput)
		if err != nil {
			return spread.Window{}, &run.ValidationError{Reason: fmt.Sprintf("days must be a number, got %q", daysInput)}
		}
	}
	if days < 1 {
		return spread.Window{}, &run.ValidationError{Reason: fmt.Sprintf("days must be at least 1, got %d", days)}
	}

	return spread.Window{Start: start, Days: days}, nil
}

// fixedSelector returns a window chosen up front via flags.
type fixedSelector struct {
	window spread.Window
}

func (s *fixedSelector) SelectWindow(time.Time, time.Time, bool) (spread.Window, error) {
	return s.window, nil
}
