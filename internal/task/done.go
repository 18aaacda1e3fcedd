package task

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

// Done marks sessionID's current focus done, clears that session's focus,
// and builds a next-step suggestion. It mirrors done_task in
// task_manager.rs exactly: incomplete children block completion, and the
// suggestion kind is chosen by what's left in the parent/sibling/top-level
// neighborhood.
func (s *Service) Done(ctx context.Context, sessionID string) (model.DoneTaskResponse, error) {
	var out model.DoneTaskResponse
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.store.GetOrCreateSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.CurrentTaskID == nil {
			return ierr.ActionNotAllowed("no current focus to complete")
		}
		resp, err := s.doneByIDTx(ctx, tx, *sess.CurrentTaskID, sessionID)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

// DoneByID marks a specific task done regardless of session focus,
// clearing focus on any session that had it focused.
func (s *Service) DoneByID(ctx context.Context, id int64, sessionID string) (model.DoneTaskResponse, error) {
	var out model.DoneTaskResponse
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		resp, err := s.doneByIDTx(ctx, tx, id, sessionID)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (s *Service) doneByIDTx(ctx context.Context, tx *sql.Tx, id int64, sessionID string) (model.DoneTaskResponse, error) {
	t, err := s.store.GetTask(ctx, tx, id)
	if err != nil {
		return model.DoneTaskResponse{}, err
	}
	incomplete, err := s.store.CountIncompleteChildren(ctx, tx, id)
	if err != nil {
		return model.DoneTaskResponse{}, err
	}
	if incomplete > 0 {
		return model.DoneTaskResponse{}, ierr.UncompletedChildren()
	}

	if t.Status != model.StatusDone {
		done := model.StatusDone
		t, err = s.store.UpdateTask(ctx, tx, id, store.TaskUpdate{Status: &done})
		if err != nil {
			return model.DoneTaskResponse{}, err
		}
	}
	if err := s.store.ClearFocusOnTask(ctx, tx, id); err != nil {
		return model.DoneTaskResponse{}, err
	}

	suggestion, err := s.buildNextStepSuggestion(ctx, tx, t)
	if err != nil {
		return model.DoneTaskResponse{}, err
	}

	ws := model.WorkspaceStatus{}
	if remaining, err := s.store.GetOrCreateSession(ctx, tx, sessionID); err == nil {
		ws.CurrentTaskID = remaining.CurrentTaskID
	}

	return model.DoneTaskResponse{
		CompletedTask:      t,
		WorkspaceStatus:    ws,
		NextStepSuggestion: suggestion,
	}, nil
}

// buildNextStepSuggestion mirrors build_next_step_suggestion exactly:
//  1. if the completed task has a parent and that parent has no other
//     incomplete children, suggest finishing the parent (ParentIsReady).
//  2. if the parent still has incomplete children, name the remaining count
//     (SiblingTasksRemain).
//  3. if there is no parent (a top-level task), either report workspace
//     clear (no other top-level work left) or point at the next
//     highest-priority top-level task.
func (s *Service) buildNextStepSuggestion(ctx context.Context, tx *sql.Tx, completed model.Task) (model.NextStepSuggestion, error) {
	if completed.ParentID != nil {
		parent, err := s.store.GetTask(ctx, tx, *completed.ParentID)
		if err != nil {
			return model.NextStepSuggestion{}, err
		}
		remaining, err := s.store.CountIncompleteChildren(ctx, tx, parent.ID)
		if err != nil {
			return model.NextStepSuggestion{}, err
		}
		if remaining == 0 {
			return model.NextStepSuggestion{
				Kind:               model.NextParentIsReady,
				Message:            fmt.Sprintf("all subtasks of %q are done; consider completing it next", parent.Name),
				ParentTaskID:       &parent.ID,
				ParentTaskName:     parent.Name,
				CompletedTaskID:    completed.ID,
				CompletedTaskName:  completed.Name,
			}, nil
		}
		return model.NextStepSuggestion{
			Kind:                   model.NextSiblingTasksRemain,
			Message:                fmt.Sprintf("%d sibling task(s) of %q remain", remaining, completed.Name),
			ParentTaskID:           &parent.ID,
			ParentTaskName:         parent.Name,
			RemainingSiblingsCount: remaining,
			CompletedTaskID:        completed.ID,
			CompletedTaskName:      completed.Name,
		}, nil
	}

	next, found, err := s.store.FindTopLevelByStatus(ctx, tx, model.StatusTodo, completed.ID)
	if err != nil {
		return model.NextStepSuggestion{}, err
	}
	if !found {
		next, found, err = s.store.FindTopLevelByStatus(ctx, tx, model.StatusDoing, completed.ID)
		if err != nil {
			return model.NextStepSuggestion{}, err
		}
	}
	if found {
		return model.NextStepSuggestion{
			Kind:               model.NextTopLevelTaskComplete,
			Message:            fmt.Sprintf("%q is done; %q is available next", completed.Name, next.Name),
			ParentTaskID:       &next.ID,
			ParentTaskName:     next.Name,
			CompletedTaskID:    completed.ID,
			CompletedTaskName:  completed.Name,
		}, nil
	}
	return model.NextStepSuggestion{
		Kind:              model.NextWorkspaceIsClear,
		Message:           fmt.Sprintf("%q is done and no other top-level work remains", completed.Name),
		CompletedTaskID:   completed.ID,
		CompletedTaskName: completed.Name,
	}, nil
}

// PickNext recommends the next task to focus on for sessionID, following
// pick_next's exact precedence: a doing child of the current focus, then a
// todo child of the current focus, then a top-level doing task (other than
// the current focus), then a top-level todo task, then one of the three
// terminal sentinels.
func (s *Service) PickNext(ctx context.Context, sessionID string) (model.PickNextResponse, error) {
	var out model.PickNextResponse
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.store.GetOrCreateSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		if sess.CurrentTaskID != nil {
			if t, found, err := s.store.FindChildByStatus(ctx, tx, *sess.CurrentTaskID, model.StatusDoing); err != nil {
				return err
			} else if found {
				out = model.FocusedSubtaskPick(t)
				return nil
			}
			if t, found, err := s.store.FindChildByStatus(ctx, tx, *sess.CurrentTaskID, model.StatusTodo); err != nil {
				return err
			} else if found {
				out = model.FocusedSubtaskPick(t)
				return nil
			}
		}

		excludeID := int64(-1)
		if sess.CurrentTaskID != nil {
			excludeID = *sess.CurrentTaskID
		}
		if t, found, err := s.store.FindTopLevelByStatus(ctx, tx, model.StatusDoing, excludeID); err != nil {
			return err
		} else if found {
			out = model.TopLevelPick(t)
			return nil
		}
		if t, found, err := s.store.FindTopLevelByStatus(ctx, tx, model.StatusTodo, excludeID); err != nil {
			return err
		} else if found {
			out = model.TopLevelPick(t)
			return nil
		}

		total, err := s.store.CountAllTasks(ctx, tx)
		if err != nil {
			return err
		}
		if total == 0 {
			out = model.PickNextResponse{Reason: model.PickNoTasksInProject}
			return nil
		}
		var doneCount int64
		doneStatus := model.StatusDone
		paginated, err := s.store.FindTasks(ctx, tx, store.FindTasksFilter{Status: &doneStatus, Limit: 1})
		if err != nil {
			return err
		}
		doneCount = paginated.TotalCount
		if doneCount == total {
			out = model.PickNextResponse{Reason: model.PickAllTasksCompleted}
			return nil
		}
		out = model.PickNextResponse{Reason: model.PickNoAvailableTodos}
		return nil
	})
	return out, err
}
