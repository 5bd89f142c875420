package github

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

func branchPayload(names ...string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]any{
			"name":   name,
			"commit": map[string]any{"sha": "tip-" + name},
		})
	}
	return out
}

func commitPayload(sha, login, message string, date time.Time) map[string]any {
	return map[string]any{
		"sha": sha,
		"commit": map[string]any{
			"author": map[string]any{
				"name": "John Doe",
				"date": date.Format(time.RFC3339),
			},
			"message": message,
		},
		"author": map[string]any{"login": login},
	}
}

func TestFetchCommits_DedupsAcrossBranches(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	shared := commitPayload("cafe001", "jdoe", "fix retry loop PROJ1-42", cutoff.Add(26*time.Hour))
	mainOnly := commitPayload("beef002", "jdoe", "tighten request timeouts", cutoff.Add(30*time.Hour))
	featureOnly := commitPayload("feed003", "jdoe", "add worklog pagination", cutoff.Add(50*time.Hour))

	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Fatalf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Accept") != "application/vnd.github+json" {
			t.Fatalf("unexpected Accept header %q", r.Header.Get("Accept"))
		}

		switch r.URL.Path {
		case "/repos/acme/widget/branches":
			return jsonResponse(branchPayload("main", "feature/pager")), nil
		case "/repos/acme/widget/commits":
			if got := r.URL.Query().Get("since"); got != cutoff.Format(time.RFC3339) {
				t.Fatalf("unexpected since query %q", got)
			}
			if got := r.URL.Query().Get("author"); got != "jdoe" {
				t.Fatalf("unexpected author query %q", got)
			}
			switch r.URL.Query().Get("sha") {
			case "main":
				return jsonResponse([]map[string]any{shared, mainOnly}), nil
			case "feature/pager":
				return jsonResponse([]map[string]any{shared, featureOnly}), nil
			}
		}
		return nil, fmt.Errorf("unexpected request %s %s", r.Method, r.URL.String())
	}}

	client, err := NewClient(ClientConfig{
		Token:      "test-token",
		Owner:      "acme",
		Repo:       "widget",
		Author:     "jdoe",
		HTTPClient: doer,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	commits, err := client.FetchCommits(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("fetch commits: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("expected 3 unique commits, got %d", len(commits))
	}

	seen := make(map[string]int)
	for _, commit := range commits {
		seen[commit.Hash]++
		if commit.AuthorRaw != "jdoe" {
			t.Fatalf("expected login as raw author, got %q", commit.AuthorRaw)
		}
	}
	for sha, count := range seen {
		if count != 1 {
			t.Fatalf("commit %s appeared %d times", sha, count)
		}
	}
	// Branch names are walked sorted, so the shared commit belongs to the
	// first branch that listed it.
	if commits[0].Hash != "cafe001" || commits[0].Branch != "feature/pager" {
		t.Fatalf("unexpected first commit %+v", commits[0])
	}
}

func TestListBranchCommits_FallsBackToCommitAuthorName(t *testing.T) {
	t.Parallel()

	payload := []map[string]any{{
		"sha": "dead004",
		"commit": map[string]any{
			"author": map[string]any{
				"name": "John Doe",
				"date": "2026-03-02T09:00:00Z",
			},
			"message": "initial import",
		},
	}}

	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		return jsonResponse(payload), nil
	}}

	client, err := NewClient(ClientConfig{Owner: "acme", Repo: "widget", HTTPClient: doer})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	commits, err := client.ListBranchCommits(context.Background(), "main", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list branch commits: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	if commits[0].AuthorRaw != "John Doe" {
		t.Fatalf("expected git author name fallback, got %q", commits[0].AuthorRaw)
	}
}

func TestFetchCommits_SurfacesHTTPFailures(t *testing.T) {
	t.Parallel()

	doer := fakeDoer{fn: func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"message":"Bad credentials"}`)),
			Header:     make(http.Header),
		}, nil
	}}

	client, err := NewClient(ClientConfig{Owner: "acme", Repo: "widget", HTTPClient: doer})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchCommits(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientConfig{Repo: "widget"}); err == nil {
		t.Fatal("expected error for missing owner")
	}
	if _, err := NewClient(ClientConfig{Owner: "acme"}); err == nil {
		t.Fatal("expected error for missing repo")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "::bad::", Owner: "acme", Repo: "widget"}); err == nil {
		t.Fatal("expected error for invalid base URL")
	}

	client, err := NewClient(ClientConfig{Owner: "acme", Repo: "widget"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("expected default base URL, got %q", client.baseURL)
	}
}
