package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"devsheet/activity"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS activity_items (
	id TEXT PRIMARY KEY,
	person TEXT NOT NULL,
	project TEXT NOT NULL,
	source TEXT NOT NULL CHECK(source IN ('code', 'issue')),
	occurred_at TEXT NOT NULL,
	author_raw TEXT NOT NULL,
	author_resolved TEXT NOT NULL,
	raw_text TEXT NOT NULL,
	enriched_text TEXT NOT NULL DEFAULT '',
	linked_refs TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_activity_items_scope
	ON activity_items (person, project, occurred_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveItems upserts the log's items for one person/project scope. Re-running
// a fetch grows a superset log: an existing id is updated in place, never
// duplicated, and a non-empty enriched text is never cleared by a later run
// that lacks one.
func (s *SQLiteStore) SaveItems(person, project string, items []activity.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	const upsertStmt = `
INSERT INTO activity_items (
	id,
	person,
	project,
	source,
	occurred_at,
	author_raw,
	author_resolved,
	raw_text,
	enriched_text,
	linked_refs
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	author_resolved = excluded.author_resolved,
	linked_refs = excluded.linked_refs,
	enriched_text = CASE
		WHEN excluded.enriched_text != '' THEN excluded.enriched_text
		ELSE activity_items.enriched_text
	END;`

	stmt, err := tx.Prepare(upsertStmt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, item := range items {
		_, err := stmt.Exec(
			item.ID,
			person,
			project,
			string(item.Source),
			item.OccurredAt.Format(time.RFC3339),
			item.AuthorRaw,
			item.AuthorResolved,
			item.RawText,
			item.EnrichedText,
			strings.Join(item.LinkedRefs, ","),
		)
		if err != nil {
			_ = tx.Rollback()
			return written, fmt.Errorf("upsert activity item %s: %w", item.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("commit transaction: %w", err)
	}

	return written, nil
}

// LoadRange returns the scope's items whose timestamps fall within the
// half-open range [from, to), ordered by (occurred_at, id).
func (s *SQLiteStore) LoadRange(person, project string, from, to time.Time) (*activity.Log, error) {
	const query = `
SELECT id, source, occurred_at, author_raw, author_resolved, raw_text, enriched_text, linked_refs
FROM activity_items
WHERE person = ? AND project = ? AND occurred_at >= ? AND occurred_at < ?
ORDER BY occurred_at, id;
`
	rows, err := s.db.Query(
		query,
		person,
		project,
		from.Format(time.RFC3339),
		to.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query activity items: %w", err)
	}
	return scanItems(rows)
}

// LoadAll returns every item for the scope, ordered by (occurred_at, id).
func (s *SQLiteStore) LoadAll(person, project string) (*activity.Log, error) {
	const query = `
SELECT id, source, occurred_at, author_raw, author_resolved, raw_text, enriched_text, linked_refs
FROM activity_items
WHERE person = ? AND project = ?
ORDER BY occurred_at, id;
`
	rows, err := s.db.Query(query, person, project)
	if err != nil {
		return nil, fmt.Errorf("query activity items: %w", err)
	}
	return scanItems(rows)
}

// AvailableRange returns the earliest and latest stored timestamps for the
// scope. ok is false when the scope has no items.
func (s *SQLiteStore) AvailableRange(person, project string) (min, max time.Time, ok bool, err error) {
	const query = `
SELECT MIN(occurred_at), MAX(occurred_at)
FROM activity_items
WHERE person = ? AND project = ?;
`
	var minRaw, maxRaw sql.NullString
	if err := s.db.QueryRow(query, person, project).Scan(&minRaw, &maxRaw); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query available range: %w", err)
	}
	if !minRaw.Valid || !maxRaw.Valid {
		return time.Time{}, time.Time{}, false, nil
	}

	min, err = time.Parse(time.RFC3339, minRaw.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse min timestamp %q: %w", minRaw.String, err)
	}
	max, err = time.Parse(time.RFC3339, maxRaw.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse max timestamp %q: %w", maxRaw.String, err)
	}
	return min, max, true, nil
}

func scanItems(rows *sql.Rows) (*activity.Log, error) {
	defer rows.Close()

	log := activity.NewLog()
	for rows.Next() {
		var (
			item        activity.Item
			source      string
			occurredRaw string
			refsRaw     string
		)
		if err := rows.Scan(
			&item.ID,
			&source,
			&occurredRaw,
			&item.AuthorRaw,
			&item.AuthorResolved,
			&item.RawText,
			&item.EnrichedText,
			&refsRaw,
		); err != nil {
			return nil, fmt.Errorf("scan activity item: %w", err)
		}

		item.Source = activity.Source(source)
		occurredAt, err := time.Parse(time.RFC3339, occurredRaw)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", occurredRaw, err)
		}
		item.OccurredAt = occurredAt
		if refsRaw != "" {
			item.LinkedRefs = strings.Split(refsRaw, ",")
		}

		log.Add(item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity items: %w", err)
	}

	return log, nil
}
