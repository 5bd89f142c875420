package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devsheet/activity"
	"devsheet/enrich"
	"devsheet/spread"
)

const dateLayout = "2006-01-02"

// Row is one rendered day of the timesheet.
type Row struct {
	Date      time.Time
	Narrative string
	Sources   string
}

type Options struct {
	// Consolidator, when set, rewrites multi-item day narratives into a
	// single paragraph. Failures fall back to plain concatenation.
	Consolidator enrich.Service
}

// Compile renders an assignment into one row per day, in window order.
func Compile(ctx context.Context, assignment spread.Assignment, opts Options) []Row {
	rows := make([]Row, 0, len(assignment.Days))
	for _, day := range assignment.Days {
		rows = append(rows, compileDay(ctx, day, opts))
	}
	return rows
}

func compileDay(ctx context.Context, day spread.Day, opts Options) Row {
	parts := make([]string, 0, len(day.Entries))
	fresh := 0
	for _, entry := range day.Entries {
		parts = append(parts, entryText(entry))
		if !entry.Continuation {
			fresh++
		}
	}

	narrative := strings.Join(parts, " ")
	if opts.Consolidator != nil && fresh > 1 {
		if rewritten, err := consolidate(ctx, opts.Consolidator, day, narrative); err == nil {
			narrative = rewritten
		}
	}

	return Row{
		Date:      day.Date,
		Narrative: narrative,
		Sources:   sourcesTag(day.Entries),
	}
}

func entryText(entry spread.Entry) string {
	text := strings.TrimSpace(entry.Item.EnrichedText)
	if text == "" {
		text = strings.TrimSpace(entry.Item.RawText)
	}
	if entry.Continuation {
		text = "Continued work on: " + text
	}
	if len(entry.Item.LinkedRefs) > 0 {
		text = fmt.Sprintf("%s (%s)", strings.TrimSuffix(text, "."), strings.Join(entry.Item.LinkedRefs, ", "))
	}
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}

func consolidate(ctx context.Context, service enrich.Service, day spread.Day, narrative string) (string, error) {
	request := enrich.Request{
		ID:      day.Date.Format(dateLayout),
		RawText: narrative,
		Source:  "summary",
	}
	rewrites, err := service.EnrichBatch(ctx, []enrich.Request{request})
	if err != nil {
		return "", err
	}
	if len(rewrites) != 1 || strings.TrimSpace(rewrites[0].Text) == "" {
		return "", fmt.Errorf("consolidation for %s returned no usable text", request.ID)
	}
	return strings.TrimSpace(rewrites[0].Text), nil
}

func sourcesTag(entries []spread.Entry) string {
	var hasCode, hasIssue bool
	for _, entry := range entries {
		switch entry.Item.Source {
		case activity.SourceCode:
			hasCode = true
		case activity.SourceIssue:
			hasIssue = true
		}
	}
	switch {
	case hasCode && hasIssue:
		return "[GitHub + Jira]"
	case hasCode:
		return "[GitHub]"
	case hasIssue:
		return "[Jira]"
	default:
		return ""
	}
}
