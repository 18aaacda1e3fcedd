package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
)

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var e model.Event
	var ts string
	if err := row.Scan(&e.ID, &e.TaskID, &ts, &e.LogType, &e.DiscussionData); err != nil {
		return model.Event{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		e.Timestamp = t.UTC()
	}
	return e, nil
}

// AddEvent appends a decision-log entry to taskID.
func (s *Store) AddEvent(ctx context.Context, tx *sql.Tx, taskID int64, logType, body string) (model.Event, error) {
	now := nowRFC3339()
	res, err := s.exec(tx).ExecContext(ctx,
		`INSERT INTO events (task_id, timestamp, log_type, discussion_data) VALUES (?, ?, ?, ?)`,
		taskID, now, logType, body)
	if err != nil {
		return model.Event{}, ierr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Event{}, ierr.Database(err)
	}
	return s.GetEvent(ctx, tx, id)
}

// GetEvent fetches one event by id.
func (s *Store) GetEvent(ctx context.Context, tx *sql.Tx, id int64) (model.Event, error) {
	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT id, task_id, timestamp, log_type, discussion_data FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return model.Event{}, ierr.InvalidInput("event not found")
	}
	if err != nil {
		return model.Event{}, ierr.Database(err)
	}
	return e, nil
}

// ListEventsFilter narrows ListEvents.
type ListEventsFilter struct {
	TaskID  *int64
	LogType *string
	Since   *time.Time
	Limit   int64
}

// ListEvents returns events newest-first matching the filter.
func (s *Store) ListEvents(ctx context.Context, tx *sql.Tx, f ListEventsFilter) ([]model.Event, error) {
	where := []string{}
	args := []any{}
	if f.TaskID != nil {
		where = append(where, "task_id = ?")
		args = append(args, *f.TaskID)
	}
	if f.LogType != nil {
		where = append(where, "log_type = ?")
		args = append(args, *f.LogType)
	}
	if f.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	query := `SELECT id, task_id, timestamp, log_type, discussion_data FROM events`
	if len(where) > 0 {
		query += " WHERE "
		for i, c := range where {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}
	query += " ORDER BY timestamp DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.exec(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}

// EventsSummary fetches a total count plus the most recent n events for a
// task. It runs two queries (a COUNT, then the recent window via
// ListEvents), not one combined query.
func (s *Store) EventsSummary(ctx context.Context, tx *sql.Tx, taskID int64, recentN int64) (model.EventsSummary, error) {
	var total int
	if err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE task_id = ?`, taskID).Scan(&total); err != nil {
		return model.EventsSummary{}, ierr.Database(err)
	}
	recent, err := s.ListEvents(ctx, tx, ListEventsFilter{TaskID: &taskID, Limit: recentN})
	if err != nil {
		return model.EventsSummary{}, err
	}
	return model.EventsSummary{TotalCount: total, Recent: recent}, nil
}

// UpdateEvent applies a sparse update to an existing event's type/body.
func (s *Store) UpdateEvent(ctx context.Context, tx *sql.Tx, id int64, logType, body *string) (model.Event, error) {
	sets := []string{}
	args := []any{}
	if logType != nil {
		sets = append(sets, "log_type = ?")
		args = append(args, *logType)
	}
	if body != nil {
		sets = append(sets, "discussion_data = ?")
		args = append(args, *body)
	}
	if len(sets) == 0 {
		return s.GetEvent(ctx, tx, id)
	}
	query := "UPDATE events SET "
	for i, c := range sets {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = ?"
	args = append(args, id)
	if _, err := s.exec(tx).ExecContext(ctx, query, args...); err != nil {
		return model.Event{}, ierr.Database(err)
	}
	return s.GetEvent(ctx, tx, id)
}

// DeleteEvent removes one event.
func (s *Store) DeleteEvent(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := s.exec(tx).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return ierr.Database(err)
	}
	return nil
}
