package unify

import (
	"fmt"
	"regexp"
	"strings"

	"devsheet/activity"
)

// issueKeyPattern matches issue-key-shaped tokens inside commit messages,
// e.g. "PROJ1-42".
var issueKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-[0-9]+\b`)

// Identity is one known person: the canonical name plus the alias strings
// (login, display name, email) raw author fields may carry.
type Identity struct {
	Canonical string
	Aliases   []string
}

type Options struct {
	Matcher   Matcher
	Threshold float64
	// Scope, when set, is the canonical identity the log belongs to.
	// Commit history carries every contributor, so commits resolving to
	// anyone else are dropped and counted, not merged in.
	Scope string
}

// Result carries the non-fatal outcomes of a unification pass. Malformed
// records are dropped and counted here, never surfaced as errors.
type Result struct {
	CommitsDropped    int
	CommitsForeign    int
	IssuesDropped     int
	ItemsMerged       int
	UnresolvedAuthors int
	LinksCreated      int
}

// Unify merges raw commit and issue records into one deduplicated,
// identity-resolved activity log. It touches no external service.
func Unify(commits []activity.RawCommit, issues []activity.RawIssue, hints []Identity, opts Options) (*activity.Log, *Result) {
	if opts.Matcher == nil {
		opts.Matcher = NewJaroWinklerMatcher()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.85
	}

	log := activity.NewLog()
	result := &Result{}
	resolver := newResolver(hints, opts)

	// Issue items first so commit links can attach to them in the same pass.
	issueItemsByKey := make(map[string][]string)
	for _, issue := range issues {
		items, dropped := issueItems(issue)
		result.IssuesDropped += dropped
		for _, item := range items {
			item.AuthorResolved = resolver.resolve(item.AuthorRaw)
			if !log.Add(item) {
				result.ItemsMerged++
				continue
			}
			issueItemsByKey[issue.Key] = append(issueItemsByKey[issue.Key], item.ID)
		}
	}

	for _, commit := range commits {
		if commit.Hash == "" || commit.OccurredAt.IsZero() {
			result.CommitsDropped++
			continue
		}
		if opts.Scope != "" && resolver.resolve(commit.AuthorRaw) != opts.Scope {
			result.CommitsForeign++
			continue
		}

		refs := issueKeyPattern.FindAllString(commit.Message, -1)
		item := activity.Item{
			ID:             commit.Hash,
			Source:         activity.SourceCode,
			OccurredAt:     commit.OccurredAt,
			AuthorRaw:      commit.AuthorRaw,
			AuthorResolved: resolver.resolve(commit.AuthorRaw),
			RawText:        strings.TrimSpace(commit.Message),
			LinkedRefs:     refs,
		}
		if !log.Add(item) {
			result.ItemsMerged++
			continue
		}

		// The link is advisory metadata in both directions; commit and
		// issue stay separate items.
		for _, key := range refs {
			for _, issueID := range issueItemsByKey[key] {
				if log.LinkRef(issueID, commit.Hash) {
					result.LinksCreated++
				}
			}
		}
	}

	result.UnresolvedAuthors = resolver.unresolved
	return log, result
}

// issueItems expands one raw issue into work items: one per worklog entry, or
// a single item for the issue itself when it carries no worklogs.
func issueItems(issue activity.RawIssue) ([]activity.Item, int) {
	if issue.Key == "" {
		total := len(issue.Worklogs)
		if total == 0 {
			total = 1
		}
		return nil, total
	}

	if len(issue.Worklogs) == 0 {
		if issue.UpdatedAt.IsZero() {
			return nil, 1
		}
		return []activity.Item{{
			ID:         issue.Key,
			Source:     activity.SourceIssue,
			OccurredAt: issue.UpdatedAt,
			AuthorRaw:  issue.AuthorRaw,
			RawText:    strings.TrimSpace(issue.Summary),
			LinkedRefs: []string{issue.Key},
		}}, 0
	}

	items := make([]activity.Item, 0, len(issue.Worklogs))
	dropped := 0
	for _, wl := range issue.Worklogs {
		if wl.ID == "" || wl.Started.IsZero() {
			dropped++
			continue
		}
		text := strings.TrimSpace(issue.Summary)
		if comment := strings.TrimSpace(wl.Comment); comment != "" {
			text = fmt.Sprintf("%s: %s", text, comment)
		}
		items = append(items, activity.Item{
			ID:         fmt.Sprintf("%s#%s", issue.Key, wl.ID),
			Source:     activity.SourceIssue,
			OccurredAt: wl.Started,
			AuthorRaw:  issue.AuthorRaw,
			RawText:    text,
			LinkedRefs: []string{issue.Key},
		})
	}
	return items, dropped
}

type resolver struct {
	opts       Options
	hints      []Identity
	cache      map[string]string
	unresolved int
}

func newResolver(hints []Identity, opts Options) *resolver {
	return &resolver{
		opts:  opts,
		hints: hints,
		cache: make(map[string]string),
	}
}

// resolve maps a raw author string to its canonical identity. An unmatched
// author keeps its raw value as its own identity; that is a surface, not an
// error.
func (r *resolver) resolve(raw string) string {
	normalized := NormalizeIdentity(raw)
	if normalized == "" {
		return raw
	}
	if cached, ok := r.cache[normalized]; ok {
		return cached
	}

	resolved := raw
	matched := false
	bestScore := 0.0
	for _, hint := range r.hints {
		for _, alias := range append([]string{hint.Canonical}, hint.Aliases...) {
			candidate := NormalizeIdentity(alias)
			if candidate == "" {
				continue
			}
			if candidate == normalized {
				resolved = hint.Canonical
				matched = true
				bestScore = 1
				break
			}
			score := r.opts.Matcher.Similarity(normalized, candidate)
			if score >= r.opts.Threshold && score > bestScore {
				resolved = hint.Canonical
				matched = true
				bestScore = score
			}
		}
		if bestScore == 1 {
			break
		}
	}

	if !matched && len(r.hints) > 0 {
		r.unresolved++
	}
	r.cache[normalized] = resolved
	return resolved
}
