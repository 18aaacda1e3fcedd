// Package task implements TaskService: the hierarchy of work items, their
// lifecycle (todo/doing/done), focus-aware listing, and the next-step
// suggestions returned from completing a task. Grounded throughout on
// original_source/src/neo4j/task_manager.rs, translated from Cypher
// transactions to *sql.Tx transactions over internal/store.
package task

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

// Service is the task hierarchy's business logic, built on top of Store.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// NewTaskInput carries the fields TaskService.Add accepts.
type NewTaskInput struct {
	ParentID   *int64
	Name       string
	Spec       *string
	Status     string
	Complexity *int
	Priority   *int
	ActiveForm *string
	Owner      string
	Metadata   *string
}

// Add validates and inserts a new task.
func (s *Service) Add(ctx context.Context, in NewTaskInput) (model.Task, error) {
	if in.Name == "" {
		return model.Task{}, ierr.InvalidInput("name is required")
	}
	status := in.Status
	if status == "" {
		status = model.StatusTodo
	}
	if !model.ValidStatus(status) {
		return model.Task{}, ierr.InvalidInput(fmt.Sprintf("invalid status %q", status))
	}
	owner := in.Owner
	if owner == "" {
		owner = "human"
	}

	var out model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if in.ParentID != nil {
			exists, err := s.store.TaskExists(ctx, tx, *in.ParentID)
			if err != nil {
				return err
			}
			if !exists {
				return ierr.TaskNotFound(*in.ParentID)
			}
		}
		t, err := s.store.AddTask(ctx, tx, model.Task{
			ParentID: in.ParentID, Name: in.Name, Spec: in.Spec, Status: status,
			Complexity: in.Complexity, Priority: in.Priority, ActiveForm: in.ActiveForm,
			Owner: owner, Metadata: in.Metadata,
		})
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// Get fetches a task by id.
func (s *Service) Get(ctx context.Context, id int64) (model.Task, error) {
	return s.store.GetTask(ctx, nil, id)
}

// GetWithEvents fetches a task plus its recent-events summary.
func (s *Service) GetWithEvents(ctx context.Context, id int64, recentN int64) (model.TaskWithEvents, error) {
	t, err := s.store.GetTask(ctx, nil, id)
	if err != nil {
		return model.TaskWithEvents{}, err
	}
	summary, err := s.store.EventsSummary(ctx, nil, id, recentN)
	if err != nil {
		return model.TaskWithEvents{}, err
	}
	return model.TaskWithEvents{Task: t, EventsSummary: &summary}, nil
}

// Ancestry returns id's ancestors, nearest-first.
func (s *Service) Ancestry(ctx context.Context, id int64) ([]model.Task, error) {
	return s.store.TaskAncestry(ctx, nil, id)
}

// Children returns id's direct children.
func (s *Service) Children(ctx context.Context, id int64) ([]model.Task, error) {
	return s.store.TaskChildren(ctx, nil, id)
}

// Siblings returns id's siblings (other children of the same parent).
func (s *Service) Siblings(ctx context.Context, id int64) ([]model.Task, error) {
	t, err := s.store.GetTask(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return s.store.TaskSiblings(ctx, nil, id, t.ParentID)
}

// Descendants returns id's full subtree.
func (s *Service) Descendants(ctx context.Context, id int64) ([]model.Task, error) {
	return s.store.TaskDescendants(ctx, nil, id)
}

// Find lists tasks per filter, matching spec's four sort modes.
func (s *Service) Find(ctx context.Context, f store.FindTasksFilter) (model.PaginatedTasks, error) {
	return s.store.FindTasks(ctx, nil, f)
}

// TaskUpdateInput carries the optional fields Update accepts; a nil pointer
// leaves that field untouched.
type TaskUpdateInput = store.TaskUpdate

// Update applies a sparse update, validating status and cycle-checking any
// parent change before writing.
func (s *Service) Update(ctx context.Context, id int64, in TaskUpdateInput) (model.Task, error) {
	if in.Status != nil && !model.ValidStatus(*in.Status) {
		return model.Task{}, ierr.InvalidInput(fmt.Sprintf("invalid status %q", *in.Status))
	}
	var out model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if in.ParentID != nil && *in.ParentID != nil {
			newParent := **in.ParentID
			exists, err := s.store.TaskExists(ctx, tx, newParent)
			if err != nil {
				return err
			}
			if !exists {
				return ierr.TaskNotFound(newParent)
			}
			circular, err := s.store.CheckCircularAncestor(ctx, tx, id, newParent)
			if err != nil {
				return err
			}
			if circular {
				return ierr.CircularDependency(id, newParent)
			}
		}
		t, err := s.store.UpdateTask(ctx, tx, id, in)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// Delete removes a single childless task, refusing if it has children or is
// the focus of any session.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if focusedID, found, err := s.store.FindFocusedInSubtree(ctx, tx, id); err != nil {
			return err
		} else if found && focusedID == id {
			return ierr.ActionNotAllowed("task is the current focus of a session")
		}
		n, err := s.store.CountChildren(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ierr.ActionNotAllowed("task has children; use delete_cascade")
		}
		return s.store.DeleteTask(ctx, tx, id)
	})
}

// DeleteCascade removes a task and its whole subtree, refusing if any
// descendant (or the task itself) is currently focused by a session.
func (s *Service) DeleteCascade(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if _, found, err := s.store.FindFocusedInSubtree(ctx, tx, id); err != nil {
			return err
		} else if found {
			return ierr.ActionNotAllowed("a task in this subtree is the current focus of a session")
		}
		n, err := s.store.DeleteTaskCascade(ctx, tx, id)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// Start transitions id to doing, failing if any dependency blocking it is
// not yet done, and sets sessionID's focus to id.
func (s *Service) Start(ctx context.Context, id int64, sessionID string) (model.Task, error) {
	var out model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := s.store.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		blockers, err := s.store.IncompleteBlockers(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			return ierr.TaskBlocked(id, blockers)
		}
		if t.Status != model.StatusDoing {
			doing := model.StatusDoing
			t, err = s.store.UpdateTask(ctx, tx, id, store.TaskUpdate{Status: &doing})
			if err != nil {
				return err
			}
		}
		if err := s.store.SetSessionFocus(ctx, tx, sessionID, id); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// Switch moves sessionID's focus to id without touching status, whatever
// the task's current status is.
func (s *Service) Switch(ctx context.Context, id int64, sessionID string) (model.Task, error) {
	var out model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := s.store.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.store.SetSessionFocus(ctx, tx, sessionID, id); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// SpawnSubtask creates a child of sessionID's current focus and switches
// focus to it in one transaction.
func (s *Service) SpawnSubtask(ctx context.Context, sessionID string, in NewTaskInput) (model.Task, error) {
	var out model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.store.GetOrCreateSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.CurrentTaskID == nil {
			return ierr.ActionNotAllowed("no current focus to spawn a subtask under")
		}
		if in.Name == "" {
			return ierr.InvalidInput("name is required")
		}
		status := in.Status
		if status == "" {
			status = model.StatusTodo
		}
		owner := in.Owner
		if owner == "" {
			owner = "human"
		}
		t, err := s.store.AddTask(ctx, tx, model.Task{
			ParentID: sess.CurrentTaskID, Name: in.Name, Spec: in.Spec, Status: status,
			Complexity: in.Complexity, Priority: in.Priority, ActiveForm: in.ActiveForm,
			Owner: owner, Metadata: in.Metadata,
		})
		if err != nil {
			return err
		}
		if err := s.store.SetSessionFocus(ctx, tx, sessionID, t.ID); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// CurrentTask resolves sessionID's focused task, if any.
func (s *Service) CurrentTask(ctx context.Context, sessionID string) (*model.Task, error) {
	var out *model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.store.GetOrCreateSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.CurrentTaskID == nil {
			return nil
		}
		t, err := s.store.GetTask(ctx, tx, *sess.CurrentTaskID)
		if err != nil {
			return err
		}
		out = &t
		return nil
	})
	return out, err
}

// Context builds the ancestry + siblings + descendants + recent-events view
// of one task, the task_context tool's response.
func (s *Service) Context(ctx context.Context, id int64, includeEvents bool, recentN int64) (model.StatusResponse, error) {
	var out model.StatusResponse
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := s.store.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		ancestors, err := s.store.TaskAncestry(ctx, tx, id)
		if err != nil {
			return err
		}
		siblings, err := s.store.TaskSiblings(ctx, tx, id, t.ParentID)
		if err != nil {
			return err
		}
		descendants, err := s.store.TaskDescendants(ctx, tx, id)
		if err != nil {
			return err
		}
		out = model.StatusResponse{
			FocusedTask: t,
			Ancestors:   ancestors,
			Siblings:    briefs(siblings),
			Descendants: briefs(descendants),
		}
		if includeEvents {
			events, err := s.store.ListEvents(ctx, tx, store.ListEventsFilter{TaskID: &id, Limit: recentN})
			if err != nil {
				return err
			}
			out.Events = &events
		}
		return nil
	})
	return out, err
}

func briefs(tasks []model.Task) []model.TaskBrief {
	out := make([]model.TaskBrief, len(tasks))
	for i, t := range tasks {
		out[i] = model.BriefOf(t)
	}
	return out
}
