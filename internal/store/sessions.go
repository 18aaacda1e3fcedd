package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
)

func scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var sess model.Session
	var created, lastActive string
	if err := row.Scan(&sess.SessionID, &sess.CurrentTaskID, &created, &lastActive); err != nil {
		return model.Session{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sess.CreatedAt = t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, lastActive); err == nil {
		sess.LastActiveAt = t.UTC()
	}
	return sess, nil
}

// GetOrCreateSession fetches a session row, creating one (with no focus) if
// absent, and touching last_active_at. On first read it also runs the
// legacy workspace_state backfill described in DESIGN.md.
func (s *Store) GetOrCreateSession(ctx context.Context, tx *sql.Tx, sessionID string) (model.Session, error) {
	if err := s.migrateLegacyWorkspaceState(ctx, tx, sessionID); err != nil {
		return model.Session{}, err
	}

	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT session_id, current_task_id, created_at, last_active_at FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err == nil {
		now := nowRFC3339()
		if _, err := s.exec(tx).ExecContext(ctx, `UPDATE sessions SET last_active_at = ? WHERE session_id = ?`, now, sessionID); err != nil {
			return model.Session{}, ierr.Database(err)
		}
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return model.Session{}, ierr.Database(err)
	}

	now := nowRFC3339()
	if _, err := s.exec(tx).ExecContext(ctx,
		`INSERT INTO sessions (session_id, current_task_id, created_at, last_active_at) VALUES (?, NULL, ?, ?)`,
		sessionID, now, now); err != nil {
		return model.Session{}, ierr.Database(err)
	}
	row = s.exec(tx).QueryRowContext(ctx,
		`SELECT session_id, current_task_id, created_at, last_active_at FROM sessions WHERE session_id = ?`, sessionID)
	sess, err = scanSession(row)
	if err != nil {
		return model.Session{}, ierr.Database(err)
	}
	return sess, nil
}

// migrateLegacyWorkspaceState backfills session "-1" from a pre-session
// single-workspace deployment the first time it's observed: if a legacy
// workspace_state.current_task_id row exists and no sessions row for
// sessionID exists yet, the legacy focus becomes that session's focus.
func (s *Store) migrateLegacyWorkspaceState(ctx context.Context, tx *sql.Tx, sessionID string) error {
	if sessionID != "-1" {
		return nil
	}
	var exists int
	err := s.exec(tx).QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists)
	if err == nil {
		return nil // session already migrated/created
	}
	if err != sql.ErrNoRows {
		return ierr.Database(err)
	}

	var legacyTaskID sql.NullString
	err = s.exec(tx).QueryRowContext(ctx, `SELECT value FROM workspace_state WHERE key = 'current_task_id'`).Scan(&legacyTaskID)
	if err == sql.ErrNoRows || !legacyTaskID.Valid || legacyTaskID.String == "" {
		return nil
	}
	if err != nil {
		return ierr.Database(err)
	}

	now := nowRFC3339()
	if _, err := s.exec(tx).ExecContext(ctx,
		`INSERT INTO sessions (session_id, current_task_id, created_at, last_active_at) VALUES (?, ?, ?, ?)`,
		sessionID, legacyTaskID.String, now, now); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// SetSessionFocus points sessionID's focus at taskID, creating the session
// row if necessary.
func (s *Store) SetSessionFocus(ctx context.Context, tx *sql.Tx, sessionID string, taskID int64) error {
	if _, err := s.GetOrCreateSession(ctx, tx, sessionID); err != nil {
		return err
	}
	now := nowRFC3339()
	if _, err := s.exec(tx).ExecContext(ctx,
		`UPDATE sessions SET current_task_id = ?, last_active_at = ? WHERE session_id = ?`,
		taskID, now, sessionID); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// ClearSessionFocus unsets sessionID's focus pointer.
func (s *Store) ClearSessionFocus(ctx context.Context, tx *sql.Tx, sessionID string) error {
	now := nowRFC3339()
	if _, err := s.exec(tx).ExecContext(ctx,
		`UPDATE sessions SET current_task_id = NULL, last_active_at = ? WHERE session_id = ?`,
		now, sessionID); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// ClearFocusOnTask clears the focus pointer of every session currently
// focused on taskID — used when taskID is deleted or completed.
func (s *Store) ClearFocusOnTask(ctx context.Context, tx *sql.Tx, taskID int64) error {
	if _, err := s.exec(tx).ExecContext(ctx,
		`UPDATE sessions SET current_task_id = NULL WHERE current_task_id = ?`, taskID); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// FindFocusedInSubtree reports whether any session is currently focused on
// rootID or any of its descendants, returning the first such task id. This
// backs the focus-protection check in TaskService.Delete/DeleteCascade.
func (s *Store) FindFocusedInSubtree(ctx context.Context, tx *sql.Tx, rootID int64) (int64, bool, error) {
	descendants, err := s.TaskDescendantIDs(ctx, tx, rootID)
	if err != nil {
		return 0, false, err
	}
	ids := append([]int64{rootID}, descendants...)

	rows, err := s.exec(tx).QueryContext(ctx, `SELECT current_task_id FROM sessions WHERE current_task_id IS NOT NULL`)
	if err != nil {
		return 0, false, ierr.Database(err)
	}
	defer rows.Close()
	focused := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, false, ierr.Database(err)
		}
		focused[id] = true
	}
	if err := rows.Err(); err != nil {
		return 0, false, ierr.Database(err)
	}

	for _, id := range ids {
		if focused[id] {
			return id, true, nil
		}
	}
	return 0, false, nil
}

// IsTaskFocused reports whether any session is currently focused exactly on
// taskID (no subtree walk).
func (s *Store) IsTaskFocused(ctx context.Context, tx *sql.Tx, taskID int64) (bool, error) {
	var n int
	err := s.exec(tx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE current_task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return false, ierr.Database(err)
	}
	return n > 0, nil
}

// CleanupExpiredSessions deletes session rows whose last_active_at is older
// than maxAge, returning the number removed.
func (s *Store) CleanupExpiredSessions(ctx context.Context, tx *sql.Tx, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := s.exec(tx).ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return 0, ierr.Database(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}

// EnforceSessionLimit keeps at most maxSessions rows, evicting the
// least-recently-active ones first, returning the number evicted.
func (s *Store) EnforceSessionLimit(ctx context.Context, tx *sql.Tx, maxSessions int64) (int64, error) {
	var total int64
	if err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return 0, ierr.Database(err)
	}
	if total <= maxSessions {
		return 0, nil
	}
	excess := total - maxSessions
	res, err := s.exec(tx).ExecContext(ctx, `
		DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY last_active_at ASC LIMIT ?
		)`, excess)
	if err != nil {
		return 0, ierr.Database(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}
