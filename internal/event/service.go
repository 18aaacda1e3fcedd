// Package event implements EventService: the append-only decision log
// attached to each task. Grounded on original_source/src/neo4j's event
// handlers and mcp/server.rs's handle_event_log / handle_event_list.
package event

import (
	"context"
	"database/sql"
	"time"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// Add appends a new event, validating the parent task exists.
func (s *Service) Add(ctx context.Context, taskID int64, logType, body string) (model.Event, error) {
	if logType == "" {
		return model.Event{}, ierr.InvalidInput("log_type is required")
	}
	var out model.Event
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetTask(ctx, tx, taskID); err != nil {
			return err
		}
		e, err := s.store.AddEvent(ctx, tx, taskID, logType, body)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// ListFilter narrows List.
type ListFilter struct {
	TaskID  *int64
	LogType *string
	Since   *time.Time
	Limit   int64
}

// List returns events newest-first matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Event, error) {
	return s.store.ListEvents(ctx, nil, store.ListEventsFilter{
		TaskID: f.TaskID, LogType: f.LogType, Since: f.Since, Limit: f.Limit,
	})
}

// Update applies a sparse update to an event's type/body.
func (s *Service) Update(ctx context.Context, id int64, logType, body *string) (model.Event, error) {
	var out model.Event
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetEvent(ctx, tx, id); err != nil {
			return err
		}
		e, err := s.store.UpdateEvent(ctx, tx, id, logType, body)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// Delete removes an event.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetEvent(ctx, tx, id); err != nil {
			return err
		}
		return s.store.DeleteEvent(ctx, tx, id)
	})
}

// Summary returns a total count plus the n most recent events for a task.
func (s *Service) Summary(ctx context.Context, taskID int64, recentN int64) (model.EventsSummary, error) {
	return s.store.EventsSummary(ctx, nil, taskID, recentN)
}
