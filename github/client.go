package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"devsheet/activity"
)

const (
	defaultBaseURL = "https://api.github.com"
	perPage        = 100
)

// Client defines the repository operations needed to collect commit evidence.
type Client interface {
	ListBranches(ctx context.Context) ([]Branch, error)
	ListBranchCommits(ctx context.Context, branch string, since time.Time) ([]activity.RawCommit, error)
	FetchCommits(ctx context.Context, since time.Time) ([]activity.RawCommit, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	BaseURL    string
	Token      string
	Owner      string
	Repo       string
	Author     string
	HTTPClient httpDoer
}

type HTTPClient struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	author     string
	httpClient httpDoer
}

func NewClient(cfg ClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	parsedBase, err := url.Parse(baseURL)
	if err != nil || parsedBase.Scheme == "" || parsedBase.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	owner := strings.TrimSpace(cfg.Owner)
	repo := strings.TrimSpace(cfg.Repo)
	if owner == "" || repo == "" {
		return nil, errors.New("repository owner and name are required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		owner:      owner,
		repo:       repo,
		author:     strings.TrimSpace(cfg.Author),
		httpClient: doer,
	}, nil
}

type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type commitRecord struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

func (c *HTTPClient) ListBranches(ctx context.Context) ([]Branch, error) {
	var all []Branch
	for page := 1; ; page++ {
		path := fmt.Sprintf(
			"/repos/%s/%s/branches?per_page=%d&page=%d",
			url.PathEscape(c.owner),
			url.PathEscape(c.repo),
			perPage,
			page,
		)
		var out []Branch
		if err := c.doJSON(ctx, path, &out); err != nil {
			return nil, err
		}
		all = append(all, out...)
		if len(out) < perPage {
			return all, nil
		}
	}
}

func (c *HTTPClient) ListBranchCommits(ctx context.Context, branch string, since time.Time) ([]activity.RawCommit, error) {
	query := url.Values{}
	query.Set("sha", branch)
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("per_page", strconv.Itoa(perPage))
	if c.author != "" {
		query.Set("author", c.author)
	}

	var all []activity.RawCommit
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		path := fmt.Sprintf(
			"/repos/%s/%s/commits?%s",
			url.PathEscape(c.owner),
			url.PathEscape(c.repo),
			query.Encode(),
		)
		var out []commitRecord
		if err := c.doJSON(ctx, path, &out); err != nil {
			return nil, err
		}
		for _, record := range out {
			all = append(all, record.toRawCommit(branch))
		}
		if len(out) < perPage {
			return all, nil
		}
	}
}

// FetchCommits walks every branch and returns the union of its commits since
// the cutoff. A commit reachable from several branches appears once, under the
// first branch that listed it.
func (c *HTTPClient) FetchCommits(ctx context.Context, since time.Time) ([]activity.RawCommit, error) {
	branches, err := c.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })

	seen := make(map[string]struct{})
	var all []activity.RawCommit
	for _, branch := range branches {
		commits, err := c.ListBranchCommits(ctx, branch.Name, since)
		if err != nil {
			return nil, err
		}
		for _, commit := range commits {
			if _, ok := seen[commit.Hash]; ok {
				continue
			}
			seen[commit.Hash] = struct{}{}
			all = append(all, commit)
		}
	}
	return all, nil
}

func (r commitRecord) toRawCommit(branch string) activity.RawCommit {
	author := r.Commit.Author.Name
	if r.Author != nil && strings.TrimSpace(r.Author.Login) != "" {
		author = r.Author.Login
	}
	return activity.RawCommit{
		Hash:       r.SHA,
		AuthorRaw:  author,
		OccurredAt: r.Commit.Author.Date,
		Message:    r.Commit.Message,
		Branch:     branch,
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, endpointPath string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpointPath, nil)
	if err != nil {
		return fmt.Errorf("create request GET %s: %w", endpointPath, err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request GET %s failed: %w", endpointPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf(
			"request GET %s failed with status %d: %s",
			endpointPath,
			resp.StatusCode,
			strings.TrimSpace(string(responseBody)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response GET %s: %w", endpointPath, err)
	}
	return nil
}
