package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
)

// AddDependency records "blockingTaskID must be done before blockedTaskID
// may start". Callers are expected to have already validated existence,
// rejected self-dependencies, and run a cycle check (DependencyReachable).
func (s *Store) AddDependency(ctx context.Context, tx *sql.Tx, blockingTaskID, blockedTaskID int64) (model.Dependency, error) {
	now := nowRFC3339()
	res, err := s.exec(tx).ExecContext(ctx, `
		INSERT INTO dependencies (blocking_task_id, blocked_task_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(blocking_task_id, blocked_task_id) DO UPDATE SET created_at = created_at
	`, blockingTaskID, blockedTaskID, now)
	if err != nil {
		return model.Dependency{}, ierr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		row := s.exec(tx).QueryRowContext(ctx,
			`SELECT id, blocking_task_id, blocked_task_id, created_at FROM dependencies WHERE blocking_task_id = ? AND blocked_task_id = ?`,
			blockingTaskID, blockedTaskID)
		return scanDependency(row)
	}
	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT id, blocking_task_id, blocked_task_id, created_at FROM dependencies WHERE id = ?`, id)
	return scanDependency(row)
}

func scanDependency(row interface{ Scan(...any) error }) (model.Dependency, error) {
	var d model.Dependency
	var created string
	if err := row.Scan(&d.ID, &d.BlockingTaskID, &d.BlockedTaskID, &created); err != nil {
		return model.Dependency{}, ierr.Database(err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		d.CreatedAt = t.UTC()
	}
	return d, nil
}

// IncompleteBlockers returns the ids of tasks that block taskID and are not
// yet done — a non-empty result means the task cannot be started.
func (s *Store) IncompleteBlockers(ctx context.Context, tx *sql.Tx, taskID int64) ([]int64, error) {
	rows, err := s.exec(tx).QueryContext(ctx, `
		SELECT d.blocking_task_id FROM dependencies d
		JOIN tasks t ON t.id = d.blocking_task_id
		WHERE d.blocked_task_id = ? AND t.status != ?
	`, taskID, model.StatusDone)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// DependencyReachable reports whether to is reachable from "from" by
// following BLOCKED_BY edges outward (from blocks X, X blocks Y, ...), up to
// a depth cap of 100. Used to reject a new dependency that would create a
// cycle: adding blocking->blocked is invalid if blocked can already reach
// blocking.
func (s *Store) DependencyReachable(ctx context.Context, tx *sql.Tx, from, to int64) (bool, error) {
	visited := map[int64]bool{from: true}
	frontier := []int64{from}
	for depth := 0; depth < 100 && len(frontier) > 0; depth++ {
		rows, err := s.queryBlockedTargets(ctx, tx, frontier)
		if err != nil {
			return false, err
		}
		var next []int64
		for _, id := range rows {
			if id == to {
				return true, nil
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		frontier = next
	}
	return false, nil
}

func (s *Store) queryBlockedTargets(ctx context.Context, tx *sql.Tx, blockingIDs []int64) ([]int64, error) {
	if len(blockingIDs) == 0 {
		return nil, nil
	}
	query := `SELECT blocked_task_id FROM dependencies WHERE blocking_task_id IN (`
	args := make([]any, len(blockingIDs))
	for i, id := range blockingIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"
	rows, err := s.exec(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}
