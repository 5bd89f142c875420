package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type fakeDoer struct {
	fn func(*http.Request) (*http.Response, error)
}

func (f fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return f.fn(req)
}

func jsonResponse(payload any) *http.Response {
	body, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(body))),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, doer fakeDoer) *HTTPClient {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    "https://acme.atlassian.net",
		Email:      "jdoe@example.com",
		APIToken:   "test-token",
		Project:    "PROJ1",
		HTTPClient: doer,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFetchIssues_SearchesAndAttachesWorklogs(t *testing.T) {
	t.Parallel()

	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "jdoe@example.com" || pass != "test-token" {
			t.Fatalf("missing or wrong basic auth")
		}

		switch r.URL.Path {
		case "/rest/api/2/search":
			jql := r.URL.Query().Get("jql")
			if !strings.HasPrefix(jql, "project = PROJ1 AND ") {
				t.Fatalf("expected project filter in jql, got %q", jql)
			}
			if !strings.Contains(jql, "assignee = currentUser() OR worklogAuthor = currentUser()") {
				t.Fatalf("unexpected jql %q", jql)
			}
			if !strings.Contains(jql, "updated >= -30d") {
				t.Fatalf("expected lookback in jql, got %q", jql)
			}
			return jsonResponse(searchResponse{
				StartAt: 0, MaxResults: 50, Total: 1,
				Issues: []issueRecord{func() issueRecord {
					var record issueRecord
					record.Key = "PROJ1-42"
					record.Fields.Summary = "Retry loop flaky under load"
					record.Fields.Updated = JiraTime{Time: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
					record.Fields.Assignee = &userRecord{DisplayName: "John Doe"}
					return record
				}()},
			}), nil
		case "/rest/api/2/issue/PROJ1-42/worklog":
			return jsonResponse(worklogResponse{
				StartAt: 0, MaxResults: 100, Total: 2,
				Worklogs: []worklogRecord{
					{
						ID:               "55",
						Author:           &userRecord{DisplayName: "John Doe"},
						Comment:          "Reproduced under load",
						Started:          JiraTime{Time: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
						TimeSpentSeconds: 3600,
					},
					{
						ID:               "56",
						Author:           &userRecord{DisplayName: "John Doe"},
						Comment:          "Patched the retry budget",
						Started:          JiraTime{Time: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
						TimeSpentSeconds: 7200,
					},
				},
			}), nil
		}
		return nil, fmt.Errorf("unexpected request %s %s", r.Method, r.URL.String())
	}}

	client := newTestClient(t, doer)
	issues, err := client.FetchIssues(context.Background(), 30)
	if err != nil {
		t.Fatalf("fetch issues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}

	issue := issues[0]
	if issue.Key != "PROJ1-42" || issue.AuthorRaw != "John Doe" {
		t.Fatalf("unexpected issue %+v", issue)
	}
	if len(issue.Worklogs) != 2 {
		t.Fatalf("expected 2 worklogs, got %d", len(issue.Worklogs))
	}
	if issue.Worklogs[0].ID != "55" || issue.Worklogs[0].SpentSeconds != 3600 {
		t.Fatalf("unexpected worklog %+v", issue.Worklogs[0])
	}
}

func TestSearchIssues_PaginatesUntilTotal(t *testing.T) {
	t.Parallel()

	pages := 0
	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		pages++
		startAt := r.URL.Query().Get("startAt")
		switch startAt {
		case "0":
			return jsonResponse(searchResponse{
				StartAt: 0, MaxResults: 50, Total: 51,
				Issues: make([]issueRecord, 50),
			}), nil
		case "50":
			var record issueRecord
			record.Key = "PROJ1-99"
			return jsonResponse(searchResponse{
				StartAt: 50, MaxResults: 50, Total: 51,
				Issues: []issueRecord{record},
			}), nil
		}
		return nil, fmt.Errorf("unexpected startAt %q", startAt)
	}}

	client := newTestClient(t, doer)
	issues, err := client.SearchIssues(context.Background(), 30)
	if err != nil {
		t.Fatalf("search issues: %v", err)
	}
	if len(issues) != 51 {
		t.Fatalf("expected 51 issues, got %d", len(issues))
	}
	if pages != 2 {
		t.Fatalf("expected 2 pages, got %d", pages)
	}
	if issues[50].Key != "PROJ1-99" {
		t.Fatalf("expected last page issue, got %+v", issues[50])
	}
}

func TestJiraTime_ParsesBothLayouts(t *testing.T) {
	t.Parallel()

	var jiraStyle JiraTime
	if err := json.Unmarshal([]byte(`"2026-03-04T10:15:00.000+0100"`), &jiraStyle); err != nil {
		t.Fatalf("parse jira layout: %v", err)
	}
	if jiraStyle.UTC().Hour() != 9 {
		t.Fatalf("unexpected hour %d", jiraStyle.UTC().Hour())
	}

	var rfcStyle JiraTime
	if err := json.Unmarshal([]byte(`"2026-03-04T10:15:00Z"`), &rfcStyle); err != nil {
		t.Fatalf("parse rfc layout: %v", err)
	}

	var bad JiraTime
	if err := json.Unmarshal([]byte(`"yesterday"`), &bad); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestFetchIssues_SurfacesHTTPFailures(t *testing.T) {
	t.Parallel()

	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusForbidden,
			Body:       io.NopCloser(strings.NewReader(`{"errorMessages":["Forbidden"]}`)),
			Header:     make(http.Header),
		}, nil
	}}

	client := newTestClient(t, doer)
	if _, err := client.FetchIssues(context.Background(), 30); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientConfig{Email: "a@b.c", APIToken: "x"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://acme.atlassian.net", APIToken: "x"}); err == nil {
		t.Fatal("expected error for missing email")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://acme.atlassian.net", Email: "a@b.c"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}
