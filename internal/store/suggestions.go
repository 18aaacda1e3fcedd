package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
)

const maxActiveSuggestions = 20

func scanSuggestion(row interface{ Scan(...any) error }) (model.Suggestion, error) {
	var sg model.Suggestion
	var created string
	var dismissed int
	if err := row.Scan(&sg.ID, &sg.Type, &sg.Content, &created, &dismissed); err != nil {
		return model.Suggestion{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sg.CreatedAt = t.UTC()
	}
	sg.Dismissed = dismissed != 0
	return sg, nil
}

// AddSuggestion persists a background-analysis result, evicting the oldest
// active suggestion first if the store already holds maxActiveSuggestions.
func (s *Store) AddSuggestion(ctx context.Context, tx *sql.Tx, typ, content string) (model.Suggestion, error) {
	var active int64
	if err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM suggestions WHERE dismissed = 0`).Scan(&active); err != nil {
		return model.Suggestion{}, ierr.Database(err)
	}
	if active >= maxActiveSuggestions {
		if _, err := s.exec(tx).ExecContext(ctx, `
			UPDATE suggestions SET dismissed = 1 WHERE id = (
				SELECT id FROM suggestions WHERE dismissed = 0 ORDER BY created_at ASC LIMIT 1
			)`); err != nil {
			return model.Suggestion{}, ierr.Database(err)
		}
	}

	now := nowRFC3339()
	res, err := s.exec(tx).ExecContext(ctx,
		`INSERT INTO suggestions (type, content, created_at, dismissed) VALUES (?, ?, ?, 0)`,
		typ, content, now)
	if err != nil {
		return model.Suggestion{}, ierr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Suggestion{}, ierr.Database(err)
	}
	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT id, type, content, created_at, dismissed FROM suggestions WHERE id = ?`, id)
	return scanSuggestion(row)
}

// ListSuggestions returns suggestions newest-first, optionally including
// already-dismissed ones.
func (s *Store) ListSuggestions(ctx context.Context, tx *sql.Tx, includeDismissed bool) ([]model.Suggestion, error) {
	query := `SELECT id, type, content, created_at, dismissed FROM suggestions`
	if !includeDismissed {
		query += ` WHERE dismissed = 0`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.exec(tx).QueryContext(ctx, query)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []model.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// DismissSuggestion marks a suggestion as dismissed (idempotent).
func (s *Store) DismissSuggestion(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := s.exec(tx).ExecContext(ctx, `UPDATE suggestions SET dismissed = 1 WHERE id = ?`, id); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// ClearDismissedSuggestions permanently removes dismissed rows, keeping the
// table from growing without bound.
func (s *Store) ClearDismissedSuggestions(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := s.exec(tx).ExecContext(ctx, `DELETE FROM suggestions WHERE dismissed = 1`)
	if err != nil {
		return 0, ierr.Database(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}
