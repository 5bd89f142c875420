package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"devsheet/activity"
	"devsheet/enrich"
	"devsheet/report"
	"devsheet/spread"
	"devsheet/unify"
)

// State names one phase of the pipeline.
type State string

const (
	StateIdle            State = "idle"
	StateFetchingSources State = "fetching_sources"
	StateUnifying        State = "unifying"
	StateEnriching       State = "enriching"
	StatePersisting      State = "persisting"
	StateAwaitingWindow  State = "awaiting_window_selection"
	StateSpreading       State = "spreading"
	StateReporting       State = "reporting"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// ErrAllSourcesFailed is returned when every configured activity source was
// unreachable. A single failing source is only a warning.
var ErrAllSourcesFailed = errors.New("all activity sources failed")

// ValidationError marks window input that should be re-prompted, not fatal.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid window selection: " + e.Reason
}

// PersistenceError wraps storage failures, which always end the run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CommitFetcher collects commit evidence since a cutoff.
type CommitFetcher interface {
	FetchCommits(ctx context.Context, since time.Time) ([]activity.RawCommit, error)
}

// IssueFetcher collects issue and worklog evidence inside a lookback window.
type IssueFetcher interface {
	FetchIssues(ctx context.Context, lookbackDays int) ([]activity.RawIssue, error)
}

// Enricher fills enriched text for every pending item in the log.
type Enricher interface {
	Enrich(ctx context.Context, log *activity.Log) (*enrich.Report, error)
}

// Store is the persistence surface the pipeline depends on.
type Store interface {
	SaveItems(person, project string, items []activity.Item) (int, error)
	LoadRange(person, project string, from, to time.Time) (*activity.Log, error)
	AvailableRange(person, project string) (min, max time.Time, ok bool, err error)
}

// WindowSelector supplies the report window. hasRange reports whether any
// persisted activity exists; min and max bound it when it does.
type WindowSelector interface {
	SelectWindow(min, max time.Time, hasRange bool) (spread.Window, error)
}

type Config struct {
	Person              string
	Project             string
	GitHubLookbackDays  int
	JiraLookbackDays    int
	IdentityHints       []unify.Identity
	Matcher             unify.Matcher
	SimilarityThreshold float64
}

type Deps struct {
	Commits      CommitFetcher
	Issues       IssueFetcher
	Enricher     Enricher
	Consolidator enrich.Service
	Store        Store
	Selector     WindowSelector
	Logger       *slog.Logger
	Now          func() time.Time
}

// Pipeline runs the whole flow as a single-goroutine state machine. Only the
// enricher fans out internally.
type Pipeline struct {
	cfg   Config
	deps  Deps
	state State
	trace []State
}

func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.Person == "" || cfg.Project == "" {
		return nil, errors.New("person and project are required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		cfg:   cfg,
		deps:  deps,
		state: StateIdle,
		trace: []State{StateIdle},
	}, nil
}

func (p *Pipeline) State() State {
	return p.state
}

// Trace returns every state the pipeline has entered, in order.
func (p *Pipeline) Trace() []State {
	out := make([]State, len(p.trace))
	copy(out, p.trace)
	return out
}

func (p *Pipeline) transition(to State) {
	p.state = to
	p.trace = append(p.trace, to)
	p.deps.Logger.Debug("pipeline state", "state", string(to))
}

func (p *Pipeline) fail(err error) error {
	from := p.state
	p.transition(StateFailed)
	p.deps.Logger.Error("pipeline failed", "state", string(from), "error", err)
	return err
}

// FetchResult summarizes the collect-and-persist half of a run.
type FetchResult struct {
	Log     *activity.Log
	Unify   *unify.Result
	Enrich  *enrich.Report
	Saved   int
	Sources int
	Skipped int
}

// Result is the output of a full run.
type Result struct {
	Fetch  *FetchResult
	Window spread.Window
	Rows   []report.Row
}

// Fetch drives FetchingSources through Persisting and stops.
func (p *Pipeline) Fetch(ctx context.Context) (*FetchResult, error) {
	result := &FetchResult{}

	p.transition(StateFetchingSources)
	commits, issues, err := p.fetchSources(ctx, result)
	if err != nil {
		return nil, p.fail(err)
	}

	p.transition(StateUnifying)
	opts := unify.Options{Matcher: p.cfg.Matcher, Threshold: p.cfg.SimilarityThreshold}
	if len(p.cfg.IdentityHints) > 0 {
		// Branch history carries every contributor. Once aliases make
		// resolution possible, commits by anyone else stay out of the log.
		opts.Scope = p.cfg.Person
	}
	log, unifyResult := unify.Unify(commits, issues, p.cfg.IdentityHints, opts)
	result.Log = log
	result.Unify = unifyResult
	p.deps.Logger.Info("unified activity",
		"items", log.Len(),
		"merged", unifyResult.ItemsMerged,
		"links", unifyResult.LinksCreated,
		"dropped_commits", unifyResult.CommitsDropped,
		"foreign_commits", unifyResult.CommitsForeign,
		"dropped_issues", unifyResult.IssuesDropped,
	)

	p.transition(StateEnriching)
	if p.deps.Enricher != nil {
		enrichReport, err := p.deps.Enricher.Enrich(ctx, log)
		if err != nil {
			return nil, p.fail(fmt.Errorf("enrichment: %w", err))
		}
		result.Enrich = enrichReport
		p.deps.Logger.Info("enriched activity",
			"succeeded", len(enrichReport.Succeeded),
			"fallback", len(enrichReport.Failed),
		)
	}

	p.transition(StatePersisting)
	saved, err := p.deps.Store.SaveItems(p.cfg.Person, p.cfg.Project, log.Items())
	if err != nil {
		return nil, p.fail(&PersistenceError{Op: "save", Err: err})
	}
	result.Saved = saved
	p.deps.Logger.Info("persisted activity", "items", saved)

	return result, nil
}

// Run drives the full pipeline from fetch to report rows.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	fetchResult, err := p.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	window, err := p.selectWindow()
	if err != nil {
		return nil, p.fail(err)
	}

	rows, err := p.Report(ctx, window)
	if err != nil {
		return nil, err
	}
	return &Result{Fetch: fetchResult, Window: window, Rows: rows}, nil
}

// Report replays spreading and reporting from storage for a chosen window.
// It never fetches, so it also backs the offline report command.
func (p *Pipeline) Report(ctx context.Context, window spread.Window) ([]report.Row, error) {
	if window.Days < 1 {
		return nil, p.fail(&ValidationError{Reason: fmt.Sprintf("days must be at least 1, got %d", window.Days)})
	}

	p.transition(StateSpreading)
	// End() is the last day's midnight; the load must cover that whole day.
	log, err := p.deps.Store.LoadRange(p.cfg.Person, p.cfg.Project, window.Start, window.End().AddDate(0, 0, 1))
	if err != nil {
		return nil, p.fail(&PersistenceError{Op: "load", Err: err})
	}
	assignment := spread.Spread(log.Items(), window)

	p.transition(StateReporting)
	rows := report.Compile(ctx, assignment, report.Options{Consolidator: p.deps.Consolidator})

	p.transition(StateDone)
	return rows, nil
}

func (p *Pipeline) fetchSources(ctx context.Context, result *FetchResult) ([]activity.RawCommit, []activity.RawIssue, error) {
	var commits []activity.RawCommit
	var issues []activity.RawIssue

	if p.deps.Commits != nil {
		result.Sources++
		since := p.deps.Now().AddDate(0, 0, -p.cfg.GitHubLookbackDays)
		fetched, err := p.deps.Commits.FetchCommits(ctx, since)
		if err != nil {
			result.Skipped++
			p.deps.Logger.Warn("commit source failed, skipping", "error", err)
		} else {
			commits = fetched
			p.deps.Logger.Info("fetched commits", "count", len(fetched))
		}
	}

	if p.deps.Issues != nil {
		result.Sources++
		fetched, err := p.deps.Issues.FetchIssues(ctx, p.cfg.JiraLookbackDays)
		if err != nil {
			result.Skipped++
			p.deps.Logger.Warn("issue source failed, skipping", "error", err)
		} else {
			issues = fetched
			p.deps.Logger.Info("fetched issues", "count", len(fetched))
		}
	}

	if result.Sources == 0 {
		return nil, nil, errors.New("no activity sources configured")
	}
	if result.Skipped == result.Sources {
		return nil, nil, ErrAllSourcesFailed
	}
	return commits, issues, nil
}

func (p *Pipeline) selectWindow() (spread.Window, error) {
	if p.deps.Selector == nil {
		return spread.Window{}, errors.New("window selector is required")
	}

	p.transition(StateAwaitingWindow)
	min, max, hasRange, err := p.deps.Store.AvailableRange(p.cfg.Person, p.cfg.Project)
	if err != nil {
		return spread.Window{}, &PersistenceError{Op: "range", Err: err}
	}

	for {
		window, err := p.deps.Selector.SelectWindow(min, max, hasRange)
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			p.deps.Logger.Warn("window rejected, asking again", "reason", invalid.Reason)
			continue
		}
		if err != nil {
			return spread.Window{}, err
		}
		if window.Days < 1 {
			p.deps.Logger.Warn("window rejected, asking again", "reason", "days must be at least 1")
			continue
		}
		if hasRange && !window.Overlaps(min, max) {
			p.deps.Logger.Warn("window does not overlap available activity",
				"window_start", window.Start.Format("2006-01-02"),
				"window_days", window.Days,
			)
		}
		return window, nil
	}
}
