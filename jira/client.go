package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"devsheet/activity"
)

const (
	searchPageSize  = 50
	worklogPageSize = 100
	jiraTimeLayout  = "2006-01-02T15:04:05.000-0700"
)

// Client defines the issue-tracker operations needed to collect activity
// evidence for the authenticated user.
type Client interface {
	SearchIssues(ctx context.Context, lookbackDays int) ([]activity.RawIssue, error)
	ListWorklogs(ctx context.Context, issueKey string) ([]activity.RawWorklog, error)
	FetchIssues(ctx context.Context, lookbackDays int) ([]activity.RawIssue, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	BaseURL    string
	Email      string
	APIToken   string
	Project    string
	HTTPClient httpDoer
}

type HTTPClient struct {
	baseURL    string
	email      string
	apiToken   string
	project    string
	httpClient httpDoer
}

func NewClient(cfg ClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	parsedBase, err := url.Parse(baseURL)
	if err != nil || parsedBase.Scheme == "" || parsedBase.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	email := strings.TrimSpace(cfg.Email)
	apiToken := strings.TrimSpace(cfg.APIToken)
	if email == "" || apiToken == "" {
		return nil, errors.New("email and API token are required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPClient{
		baseURL:    baseURL,
		email:      email,
		apiToken:   apiToken,
		project:    strings.TrimSpace(cfg.Project),
		httpClient: doer,
	}, nil
}

// JiraTime decodes Jira's millisecond-offset timestamps, falling back to
// RFC3339 for servers that emit it.
type JiraTime struct {
	time.Time
}

func (t *JiraTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(jiraTimeLayout, raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse jira timestamp %q: %w", raw, err)
		}
	}
	t.Time = parsed
	return nil
}

type userRecord struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

func (u *userRecord) rawName() string {
	if u == nil {
		return ""
	}
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.EmailAddress
}

type issueRecord struct {
	Key    string `json:"key"`
	Fields struct {
		Summary  string      `json:"summary"`
		Updated  JiraTime    `json:"updated"`
		Assignee *userRecord `json:"assignee"`
	} `json:"fields"`
}

type searchResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Issues     []issueRecord `json:"issues"`
}

type worklogRecord struct {
	ID               string      `json:"id"`
	Author           *userRecord `json:"author"`
	Comment          string      `json:"comment"`
	Started          JiraTime    `json:"started"`
	TimeSpentSeconds int         `json:"timeSpentSeconds"`
}

type worklogResponse struct {
	StartAt    int             `json:"startAt"`
	MaxResults int             `json:"maxResults"`
	Total      int             `json:"total"`
	Worklogs   []worklogRecord `json:"worklogs"`
}

// SearchIssues returns issues the authenticated user was assigned to or
// logged work on inside the lookback window. Worklogs are not populated.
func (c *HTTPClient) SearchIssues(ctx context.Context, lookbackDays int) ([]activity.RawIssue, error) {
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("lookback days must be positive, got %d", lookbackDays)
	}

	jql := fmt.Sprintf(
		"(assignee = currentUser() OR worklogAuthor = currentUser()) AND updated >= -%dd ORDER BY updated DESC",
		lookbackDays,
	)
	if c.project != "" {
		jql = fmt.Sprintf("project = %s AND %s", c.project, jql)
	}

	var all []activity.RawIssue
	for startAt := 0; ; {
		query := url.Values{}
		query.Set("jql", jql)
		query.Set("fields", "summary,updated,assignee")
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(searchPageSize))

		var out searchResponse
		if err := c.doJSON(ctx, "/rest/api/2/search?"+query.Encode(), &out); err != nil {
			return nil, err
		}
		for _, record := range out.Issues {
			all = append(all, activity.RawIssue{
				Key:       record.Key,
				AuthorRaw: record.Fields.Assignee.rawName(),
				UpdatedAt: record.Fields.Updated.Time,
				Summary:   record.Fields.Summary,
			})
		}

		startAt += len(out.Issues)
		if len(out.Issues) == 0 || startAt >= out.Total {
			return all, nil
		}
	}
}

func (c *HTTPClient) ListWorklogs(ctx context.Context, issueKey string) ([]activity.RawWorklog, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return nil, errors.New("issue key is required")
	}

	var all []activity.RawWorklog
	for startAt := 0; ; {
		query := url.Values{}
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(worklogPageSize))

		path := fmt.Sprintf("/rest/api/2/issue/%s/worklog?%s", url.PathEscape(issueKey), query.Encode())
		var out worklogResponse
		if err := c.doJSON(ctx, path, &out); err != nil {
			return nil, err
		}
		for _, record := range out.Worklogs {
			all = append(all, activity.RawWorklog{
				ID:           record.ID,
				Started:      record.Started.Time,
				Comment:      record.Comment,
				SpentSeconds: record.TimeSpentSeconds,
			})
		}

		startAt += len(out.Worklogs)
		if len(out.Worklogs) == 0 || startAt >= out.Total {
			return all, nil
		}
	}
}

// FetchIssues combines the search with a worklog fetch per issue.
func (c *HTTPClient) FetchIssues(ctx context.Context, lookbackDays int) ([]activity.RawIssue, error) {
	issues, err := c.SearchIssues(ctx, lookbackDays)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		worklogs, err := c.ListWorklogs(ctx, issues[i].Key)
		if err != nil {
			return nil, fmt.Errorf("worklogs for %s: %w", issues[i].Key, err)
		}
		issues[i].Worklogs = worklogs
	}
	return issues, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, endpointPath string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpointPath, nil)
	if err != nil {
		return fmt.Errorf("create request GET %s: %w", endpointPath, err)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

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
