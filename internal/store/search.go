package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/wayfind/intent-engine/internal/ierr"
)

// ScoredTask is one FTS/LIKE hit against the tasks table, with the matched
// column's snippet and a backend rank (lower is better for FTS5 bm25; the
// LIKE fallback reports a uniform 1.0).
type ScoredTask struct {
	TaskID  int64
	Name    string
	Snippet string
	Rank    float64
}

// ScoredEvent is one FTS/LIKE hit against the events table.
type ScoredEvent struct {
	EventID int64
	TaskID  int64
	Snippet string
	Rank    float64
}

// SearchTasksFTS runs the trigram FTS5 query against tasks_fts, returning
// bm25-ranked hits with a snippet built from the matched column.
func (s *Store) SearchTasksFTS(ctx context.Context, tx *sql.Tx, query string, limit int64) ([]ScoredTask, error) {
	rows, err := s.exec(tx).QueryContext(ctx, `
		SELECT t.id, t.name, snippet(tasks_fts, -1, '', '', '…', 12), bm25(tasks_fts)
		FROM tasks_fts
		JOIN tasks t ON t.id = tasks_fts.rowid
		WHERE tasks_fts MATCH ?
		ORDER BY bm25(tasks_fts)
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []ScoredTask
	for rows.Next() {
		var r ScoredTask
		if err := rows.Scan(&r.TaskID, &r.Name, &r.Snippet, &r.Rank); err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// SearchTasksLike is the short-query / non-tokenizable fallback: a plain
// LIKE scan over name and spec, scored uniformly at 1.0 since there is no
// backend rank to report.
func (s *Store) SearchTasksLike(ctx context.Context, tx *sql.Tx, query string, limit int64) ([]ScoredTask, error) {
	pattern := "%" + query + "%"
	rows, err := s.exec(tx).QueryContext(ctx, `
		SELECT id, name, COALESCE(spec, name) FROM tasks
		WHERE name LIKE ? OR spec LIKE ?
		ORDER BY id DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []ScoredTask
	for rows.Next() {
		var r ScoredTask
		var body string
		if err := rows.Scan(&r.TaskID, &r.Name, &body); err != nil {
			return nil, ierr.Database(err)
		}
		r.Rank = 1.0
		r.Snippet = snippetAround(body, query, 60)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// SearchEventsFTS runs the FTS5 query against events_fts.
func (s *Store) SearchEventsFTS(ctx context.Context, tx *sql.Tx, query string, limit int64) ([]ScoredEvent, error) {
	rows, err := s.exec(tx).QueryContext(ctx, `
		SELECT e.id, e.task_id, snippet(events_fts, -1, '', '', '…', 12), bm25(events_fts)
		FROM events_fts
		JOIN events e ON e.id = events_fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY bm25(events_fts)
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []ScoredEvent
	for rows.Next() {
		var r ScoredEvent
		if err := rows.Scan(&r.EventID, &r.TaskID, &r.Snippet, &r.Rank); err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// SearchEventsLike is the events-table LIKE fallback.
func (s *Store) SearchEventsLike(ctx context.Context, tx *sql.Tx, query string, limit int64) ([]ScoredEvent, error) {
	pattern := "%" + query + "%"
	rows, err := s.exec(tx).QueryContext(ctx, `
		SELECT id, task_id, discussion_data FROM events
		WHERE discussion_data LIKE ?
		ORDER BY id DESC
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []ScoredEvent
	for rows.Next() {
		var r ScoredEvent
		var body string
		if err := rows.Scan(&r.EventID, &r.TaskID, &body); err != nil {
			return nil, ierr.Database(err)
		}
		r.Rank = 1.0
		r.Snippet = snippetAround(body, query, 60)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// FindTaskByIDLookup resolves a bare "#<id>" style search term.
func (s *Store) FindTaskByIDLookup(ctx context.Context, tx *sql.Tx, id int64) (ScoredTask, bool, error) {
	row := s.exec(tx).QueryRowContext(ctx, `SELECT id, name, COALESCE(spec, name) FROM tasks WHERE id = ?`, id)
	var r ScoredTask
	if err := row.Scan(&r.TaskID, &r.Name, &r.Snippet); err == sql.ErrNoRows {
		return ScoredTask{}, false, nil
	} else if err != nil {
		return ScoredTask{}, false, ierr.Database(err)
	}
	r.Rank = 0
	return r, true, nil
}

// FindTasksByStatusKeyword resolves one or more status words ("todo",
// "doing", "done") to every task whose status is in that set.
func (s *Store) FindTasksByStatusKeyword(ctx context.Context, tx *sql.Tx, statuses []string, limit int64) ([]ScoredTask, error) {
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = strings.TrimSuffix(placeholders, ",")
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, status)
	}
	args = append(args, limit)

	rows, err := s.exec(tx).QueryContext(ctx,
		`SELECT id, name, COALESCE(spec, name) FROM tasks WHERE status IN (`+placeholders+`) ORDER BY COALESCE(priority, 999) ASC, id ASC LIMIT ?`,
		args...)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []ScoredTask
	for rows.Next() {
		var r ScoredTask
		if err := rows.Scan(&r.TaskID, &r.Name, &r.Snippet); err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// CountAllTasks / CountAllEvents back SearchResponse's total_tasks/total_events.
func (s *Store) CountAllTasks(ctx context.Context, tx *sql.Tx) (int64, error) {
	var n int64
	err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}

func (s *Store) CountAllEvents(ctx context.Context, tx *sql.Tx) (int64, error) {
	var n int64
	err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}

// ftsQuery quotes each term so punctuation in a free-text query term (e.g.
// "session-id") doesn't get parsed as FTS5 query syntax.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// snippetAround extracts up to radius characters on either side of the
// first case-insensitive match of needle within body.
func snippetAround(body, needle string, radius int) string {
	lowerBody := strings.ToLower(body)
	lowerNeedle := strings.ToLower(needle)
	idx := strings.Index(lowerBody, lowerNeedle)
	if idx == -1 {
		if len(body) <= 2*radius {
			return body
		}
		return body[:2*radius] + "…"
	}
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + radius
	if end > len(body) {
		end = len(body)
	}
	snippet := body[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(body) {
		snippet = snippet + "…"
	}
	return snippet
}
