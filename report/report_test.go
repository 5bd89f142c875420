package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devsheet/activity"
	"devsheet/enrich"
	"devsheet/spread"

	"github.com/xuri/excelize/v2"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		t.Fatalf("parse day %q: %v", value, err)
	}
	return parsed
}

func freshEntry(id string, source activity.Source, text string, refs ...string) spread.Entry {
	return spread.Entry{Item: activity.Item{
		ID:           id,
		Source:       source,
		EnrichedText: text,
		LinkedRefs:   refs,
	}}
}

func testAssignment(t *testing.T) spread.Assignment {
	t.Helper()
	return spread.Assignment{
		Window: spread.Window{Start: day(t, "2026-03-02"), Days: 3},
		Days: []spread.Day{
			{
				Date: day(t, "2026-03-02"),
				Entries: []spread.Entry{
					freshEntry("cafe001", activity.SourceCode, "Fixed the retry loop.", "PROJ1-42"),
					freshEntry("PROJ1-42#55", activity.SourceIssue, "Investigated flaky retries.", "PROJ1-42"),
				},
			},
			{
				Date: day(t, "2026-03-03"),
				Entries: []spread.Entry{
					{
						Item: activity.Item{
							ID:           "cafe001",
							Source:       activity.SourceCode,
							EnrichedText: "Fixed the retry loop.",
						},
						Continuation:  true,
						ContinuedFrom: "cafe001",
					},
				},
			},
			{
				Date: day(t, "2026-03-04"),
				Entries: []spread.Entry{
					freshEntry("beef002", activity.SourceCode, "Tightened request timeouts."),
				},
			},
		},
	}
}

func TestCompile_OneRowPerDayWithTagsAndCitations(t *testing.T) {
	t.Parallel()

	rows := Compile(context.Background(), testAssignment(t), Options{})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Sources != "[GitHub + Jira]" {
		t.Fatalf("unexpected sources tag %q", first.Sources)
	}
	if !strings.Contains(first.Narrative, "Fixed the retry loop (PROJ1-42).") {
		t.Fatalf("expected citation threading, got %q", first.Narrative)
	}
	if !strings.Contains(first.Narrative, "Investigated flaky retries (PROJ1-42).") {
		t.Fatalf("expected both items in narrative, got %q", first.Narrative)
	}

	second := rows[1]
	if !strings.HasPrefix(second.Narrative, "Continued work on: ") {
		t.Fatalf("expected continuation wording, got %q", second.Narrative)
	}
	if second.Sources != "[GitHub]" {
		t.Fatalf("unexpected sources tag %q", second.Sources)
	}

	if rows[2].Sources != "[GitHub]" || rows[2].Narrative != "Tightened request timeouts." {
		t.Fatalf("unexpected final row %+v", rows[2])
	}
}

type fakeConsolidator struct {
	calls int
	fail  bool
}

func (f *fakeConsolidator) EnrichBatch(_ context.Context, requests []enrich.Request) ([]enrich.Rewrite, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("model unavailable")
	}
	rewrites := make([]enrich.Rewrite, 0, len(requests))
	for _, request := range requests {
		rewrites = append(rewrites, enrich.Rewrite{ID: request.ID, Text: "Consolidated: " + request.RawText})
	}
	return rewrites, nil
}

func TestCompile_ConsolidatesMultiItemDaysOnly(t *testing.T) {
	t.Parallel()

	consolidator := &fakeConsolidator{}
	rows := Compile(context.Background(), testAssignment(t), Options{Consolidator: consolidator})

	if consolidator.calls != 1 {
		t.Fatalf("expected one consolidation call, got %d", consolidator.calls)
	}
	if !strings.HasPrefix(rows[0].Narrative, "Consolidated: ") {
		t.Fatalf("expected consolidated narrative, got %q", rows[0].Narrative)
	}
	// Single-item and continuation-only days are left alone.
	if strings.HasPrefix(rows[1].Narrative, "Consolidated: ") || strings.HasPrefix(rows[2].Narrative, "Consolidated: ") {
		t.Fatalf("unexpected consolidation on single-item day")
	}
}

func TestCompile_ConsolidationFailureFallsBackToConcatenation(t *testing.T) {
	t.Parallel()

	consolidator := &fakeConsolidator{fail: true}
	rows := Compile(context.Background(), testAssignment(t), Options{Consolidator: consolidator})

	if !strings.Contains(rows[0].Narrative, "Fixed the retry loop (PROJ1-42).") {
		t.Fatalf("expected concatenation fallback, got %q", rows[0].Narrative)
	}
}

func TestWriterForPath(t *testing.T) {
	t.Parallel()

	if _, err := WriterForPath("out.csv"); err != nil {
		t.Fatalf("csv writer: %v", err)
	}
	if _, err := WriterForPath("out.XLSX"); err != nil {
		t.Fatalf("xlsx writer: %v", err)
	}
	if _, err := WriterForPath("out.pdf"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestCSVWriter_WritesRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.csv")
	rows := Compile(context.Background(), testAssignment(t), Options{})
	if err := (&CSVWriter{}).Write(path, rows); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}
	if records[0][0] != "Date" || records[1][0] != "2026-03-02" {
		t.Fatalf("unexpected csv contents %v", records[:2])
	}
}

func TestExcelWriter_WritesRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.xlsx")
	rows := Compile(context.Background(), testAssignment(t), Options{})
	if err := (&ExcelWriter{}).Write(path, rows); err != nil {
		t.Fatalf("write excel: %v", err)
	}

	file, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open excel: %v", err)
	}
	defer file.Close()

	cells, err := file.GetRows(file.GetSheetName(0))
	if err != nil {
		t.Fatalf("read excel rows: %v", err)
	}
	if len(cells) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(cells))
	}
	if cells[3][2] != "[GitHub]" {
		t.Fatalf("unexpected sources cell %q", cells[3][2])
	}
}

func TestWriteTable_TitleCasesPerson(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	rows := Compile(context.Background(), testAssignment(t), Options{})
	if err := WriteTable(&out, "john doe", rows); err != nil {
		t.Fatalf("write table: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Timesheet for John Doe") {
		t.Fatalf("expected title-cased person, got %q", text)
	}
	if !strings.Contains(text, "2026-03-03 (Tue)") {
		t.Fatalf("expected weekday in date column, got %q", text)
	}
}
