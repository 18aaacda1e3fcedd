// Package dependency implements DependencyService: BLOCKED_BY edges between
// tasks, with existence validation, self/duplicate rejection, and bounded
// cycle detection. Grounded on task_manager.rs's check_circular_dependency
// and get_blocking_task_ids.
package dependency

import (
	"context"
	"database/sql"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// Add records that blockingTaskID must be done before blockedTaskID may
// start, rejecting self-dependencies and any edge that would close a cycle.
func (s *Service) Add(ctx context.Context, blockingTaskID, blockedTaskID int64) (model.Dependency, error) {
	if blockingTaskID == blockedTaskID {
		return model.Dependency{}, ierr.InvalidInput("a task cannot depend on itself")
	}
	var out model.Dependency
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if exists, err := s.store.TaskExists(ctx, tx, blockingTaskID); err != nil {
			return err
		} else if !exists {
			return ierr.TaskNotFound(blockingTaskID)
		}
		if exists, err := s.store.TaskExists(ctx, tx, blockedTaskID); err != nil {
			return err
		} else if !exists {
			return ierr.TaskNotFound(blockedTaskID)
		}
		reachable, err := s.store.DependencyReachable(ctx, tx, blockedTaskID, blockingTaskID)
		if err != nil {
			return err
		}
		if reachable {
			return ierr.CircularDependency(blockingTaskID, blockedTaskID)
		}
		d, err := s.store.AddDependency(ctx, tx, blockingTaskID, blockedTaskID)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// IncompleteBlockers returns the ids of tasks still blocking taskID.
func (s *Service) IncompleteBlockers(ctx context.Context, taskID int64) ([]int64, error) {
	return s.store.IncompleteBlockers(ctx, nil, taskID)
}
