// Package plan implements PlanExecutor: the declarative batch apply
// ("plan") operation. A plan is a list of named task upserts/deletes plus
// named dependency edges, applied as one idempotent transaction. Grounded
// on original_source/'s batch-apply design notes. Dependencies are applied
// inside the plan's own transaction, after upserts and before auto-focus.
package plan

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

// Item is one task entry in a plan: either an upsert (Delete == false) or a
// deletion (Delete == true) of an existing task resolved by Name or ID.
type Item struct {
	Name       string // unique key within the plan; also used to resolve ParentName/DependsOn
	ID         *int64 // when set, upserts this existing task instead of matching by Name
	ParentName *string
	ParentID   *int64
	Spec       *string
	Status     *string
	Complexity *int
	Priority   *int
	ActiveForm *string
	Owner      *string
	Metadata   *string
	DependsOn  []string // names of other items in this plan that must complete first
	Delete     bool
	Cascade    bool // when Delete, remove the whole subtree instead of requiring childless
}

// Plan is one declarative batch: named task upserts/deletes, applied
// transactionally with upsert-by-name semantics.
type Plan struct {
	Items     []Item
	SessionID string
}

// Executor runs plans against a Store.
type Executor struct {
	store *store.Store
}

func New(s *store.Store) *Executor { return &Executor{store: s} }

// Apply runs the full pipeline in one transaction: validate names and
// depends_on references, detect cycles, enforce single-doing-per-batch,
// partition into deletes and upserts, apply focus protection on deletes,
// execute deletes then upserts with three-pass parent rewiring, apply
// dependencies, and finally auto-focus if exactly one doing task resulted.
func (e *Executor) Apply(ctx context.Context, p Plan) (model.PlanResult, error) {
	result := model.PlanResult{TaskIDMap: map[string]int64{}}

	if err := validateNames(p.Items); err != nil {
		return model.PlanResult{Success: false, Error: err.Error()}, nil
	}
	if err := validateDependsOn(p.Items); err != nil {
		return model.PlanResult{Success: false, Error: err.Error()}, nil
	}
	if err := detectCycles(p.Items); err != nil {
		return model.PlanResult{Success: false, Error: err.Error()}, nil
	}
	if err := enforceSingleDoing(p.Items); err != nil {
		return model.PlanResult{Success: false, Error: err.Error()}, nil
	}

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		deletes, upserts := partition(p.Items)

		for _, it := range deletes {
			id, err := e.resolveExistingID(ctx, tx, it, result.TaskIDMap)
			if err != nil {
				return err
			}
			if focusedID, found, err := e.store.FindFocusedInSubtree(ctx, tx, id); err != nil {
				return err
			} else if found {
				if it.Cascade || focusedID == id {
					return ierr.ActionNotAllowed(fmt.Sprintf("task %q is the current focus of a session and cannot be deleted", it.Name))
				}
			}
			if it.Cascade {
				n, err := e.store.DeleteTaskCascade(ctx, tx, id)
				if err != nil {
					return err
				}
				result.CascadeDeletedCount += int(n)
			} else {
				if n, err := e.store.CountChildren(ctx, tx, id); err != nil {
					return err
				} else if n > 0 {
					return ierr.ActionNotAllowed(fmt.Sprintf("task %q has children; set cascade to delete its subtree", it.Name))
				}
				if err := e.store.DeleteTask(ctx, tx, id); err != nil {
					return err
				}
				result.DeletedCount++
			}
		}

		// Pass 1: upsert every item with no ParentName (an explicit ParentID,
		// if set, is used as its parent here), so later passes can resolve
		// ParentName against a fully populated id map.
		for _, it := range upserts {
			if it.ParentName == nil {
				if err := e.upsertOne(ctx, tx, it, nil, &result); err != nil {
					return err
				}
			}
		}
		// Pass 2: upsert items whose parent is another item in this plan.
		for _, it := range upserts {
			if it.ParentName != nil {
				parentID, ok := result.TaskIDMap[*it.ParentName]
				if !ok {
					return ierr.InvalidInput(fmt.Sprintf("task %q: parent_name %q does not resolve to any task in this plan", it.Name, *it.ParentName))
				}
				pid := parentID
				if err := e.upsertOne(ctx, tx, it, &pid, &result); err != nil {
					return err
				}
			}
		}
		// Pass 3: apply an explicit ParentID override (takes precedence
		// over parent_name resolution) for items that set it. A plan has no
		// default parent: an item with neither ParentName nor ParentID is
		// created as a top-level task.
		for _, it := range upserts {
			if it.ParentID != nil {
				id, ok := result.TaskIDMap[it.Name]
				if !ok {
					continue
				}
				pidVal := *it.ParentID
				pidPtr := &pidVal
				if _, err := e.store.UpdateTask(ctx, tx, id, store.TaskUpdate{ParentID: &pidPtr}); err != nil {
					return err
				}
			}
		}

		for _, it := range p.Items {
			if it.Delete || len(it.DependsOn) == 0 {
				continue
			}
			blockedID, ok := result.TaskIDMap[it.Name]
			if !ok {
				continue
			}
			for _, depName := range it.DependsOn {
				blockingID, ok := result.TaskIDMap[depName]
				if !ok {
					return ierr.InvalidInput(fmt.Sprintf("task %q: depends_on %q does not resolve to any task in this plan", it.Name, depName))
				}
				reachable, err := e.store.DependencyReachable(ctx, tx, blockedID, blockingID)
				if err != nil {
					return err
				}
				if reachable {
					return ierr.CircularDependency(blockingID, blockedID)
				}
				if _, err := e.store.AddDependency(ctx, tx, blockingID, blockedID); err != nil {
					return err
				}
				result.DependencyCount++
			}
		}

		// Pass 4: now that parents and dependency edges are settled, apply
		// "doing" to every item that asked for it — the same way Start does
		// (spec required, blockers must already be complete).
		for _, it := range upserts {
			if it.Status == nil || *it.Status != model.StatusDoing {
				continue
			}
			id, ok := result.TaskIDMap[it.Name]
			if !ok {
				continue
			}
			if err := e.applyDoing(ctx, tx, it.Name, id); err != nil {
				return err
			}
		}

		doingID, ok, err := singleDoingTaskID(p.Items, result.TaskIDMap)
		if err != nil {
			return err
		}
		if ok {
			if err := e.store.SetSessionFocus(ctx, tx, p.SessionID, doingID); err != nil {
				return err
			}
			t, err := e.store.GetTask(ctx, tx, doingID)
			if err != nil {
				return err
			}
			summary, err := e.store.EventsSummary(ctx, tx, doingID, 5)
			if err != nil {
				return err
			}
			result.FocusedTask = &model.TaskWithEvents{Task: t, EventsSummary: &summary}
		}

		result.Success = true
		return nil
	})
	if err != nil {
		return model.PlanResult{Success: false, Error: err.Error()}, nil
	}
	return result, nil
}

func (e *Executor) upsertOne(ctx context.Context, tx *sql.Tx, it Item, parentOverride *int64, result *model.PlanResult) error {
	parentID := it.ParentID
	if parentOverride != nil {
		parentID = parentOverride
	}

	existingID, resolved, err := e.lookupByNameOrID(ctx, tx, it)
	if err != nil {
		return err
	}

	if resolved {
		// doing is deferred to the post-wiring pass (applyDoing), and done
		// goes through the same incomplete-children check DoneByID uses, so
		// status is left out of this sparse update whenever it is one of those.
		var statusNow *string
		deferDoing := it.Status != nil && *it.Status == model.StatusDoing
		markDone := it.Status != nil && *it.Status == model.StatusDone
		if it.Status != nil && !deferDoing && !markDone {
			statusNow = it.Status
		}

		upd := store.TaskUpdate{
			Spec: it.Spec, Status: statusNow, Complexity: it.Complexity,
			Priority: it.Priority, ActiveForm: it.ActiveForm, Owner: it.Owner, Metadata: it.Metadata,
		}
		if parentID != nil {
			pid := parentID
			upd.ParentID = &pid
		}
		t, err := e.store.UpdateTask(ctx, tx, existingID, upd)
		if err != nil {
			return err
		}
		if markDone {
			incomplete, err := e.store.CountIncompleteChildren(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			if incomplete > 0 {
				return ierr.UncompletedChildren()
			}
			done := model.StatusDone
			t, err = e.store.UpdateTask(ctx, tx, t.ID, store.TaskUpdate{Status: &done})
			if err != nil {
				return err
			}
			if err := e.store.ClearFocusOnTask(ctx, tx, t.ID); err != nil {
				return err
			}
		}
		result.TaskIDMap[it.Name] = t.ID
		result.UpdatedCount++
		return nil
	}

	// A create requesting doing is created todo first; applyDoing raises it
	// to doing in the post-wiring pass, after blockers can be checked.
	status := model.StatusTodo
	if it.Status != nil && *it.Status != model.StatusDoing {
		status = *it.Status
	}
	owner := "human"
	if it.Owner != nil {
		owner = *it.Owner
	}
	t, err := e.store.AddTask(ctx, tx, model.Task{
		ParentID: parentID, Name: it.Name, Spec: it.Spec, Status: status,
		Complexity: it.Complexity, Priority: it.Priority, ActiveForm: it.ActiveForm,
		Owner: owner, Metadata: it.Metadata,
	})
	if err != nil {
		return err
	}
	result.TaskIDMap[it.Name] = t.ID
	result.CreatedCount++
	return nil
}

// applyDoing raises id to doing once parent rewiring and dependency edges
// have settled, mirroring TaskService.Start: a spec is required to start,
// and any incomplete blocker rejects the transition.
func (e *Executor) applyDoing(ctx context.Context, tx *sql.Tx, name string, id int64) error {
	t, err := e.store.GetTask(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.Spec == nil {
		return ierr.InvalidInput(fmt.Sprintf("task %q: spec required to start", name))
	}
	blockers, err := e.store.IncompleteBlockers(ctx, tx, id)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		return ierr.TaskBlocked(id, blockers)
	}
	if t.Status == model.StatusDoing {
		return nil
	}
	doing := model.StatusDoing
	_, err = e.store.UpdateTask(ctx, tx, id, store.TaskUpdate{Status: &doing})
	return err
}

// lookupByNameOrID resolves an item to an existing task id: an explicit ID
// always wins; otherwise an existing task with a matching Name is reused
// (upsert-by-name), and absence means "create new".
func (e *Executor) lookupByNameOrID(ctx context.Context, tx *sql.Tx, it Item) (int64, bool, error) {
	if it.ID != nil {
		exists, err := e.store.TaskExists(ctx, tx, *it.ID)
		if err != nil {
			return 0, false, err
		}
		if !exists {
			return 0, false, ierr.TaskNotFound(*it.ID)
		}
		return *it.ID, true, nil
	}
	t, found, err := e.store.FindTaskByName(ctx, tx, it.Name)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}
	return t.ID, true, nil
}

func (e *Executor) resolveExistingID(ctx context.Context, tx *sql.Tx, it Item, idMap map[string]int64) (int64, error) {
	if it.ID != nil {
		return *it.ID, nil
	}
	if id, ok := idMap[it.Name]; ok {
		return id, nil
	}
	id, resolved, err := e.lookupByNameOrID(ctx, tx, it)
	if err != nil {
		return 0, err
	}
	if !resolved {
		return 0, ierr.InvalidInput(fmt.Sprintf("delete target %q does not match any existing task", it.Name))
	}
	return id, nil
}

func partition(items []Item) (deletes, upserts []Item) {
	for _, it := range items {
		if it.Delete {
			deletes = append(deletes, it)
		} else {
			upserts = append(upserts, it)
		}
	}
	return
}

func validateNames(items []Item) error {
	seen := map[string]bool{}
	for _, it := range items {
		if it.Delete {
			continue
		}
		if it.Name == "" {
			return ierr.InvalidInput("every plan item needs a non-empty name")
		}
		if seen[it.Name] {
			return ierr.InvalidInput(fmt.Sprintf("duplicate task name %q in plan", it.Name))
		}
		seen[it.Name] = true
	}
	return nil
}

func validateDependsOn(items []Item) error {
	names := map[string]bool{}
	for _, it := range items {
		if !it.Delete {
			names[it.Name] = true
		}
	}
	for _, it := range items {
		for _, dep := range it.DependsOn {
			if !names[dep] {
				return ierr.InvalidInput(fmt.Sprintf("task %q: depends_on %q is not a task in this plan", it.Name, dep))
			}
		}
	}
	return nil
}

// detectCycles runs Tarjan's strongly-connected-components algorithm over
// the depends_on graph (by task name) and rejects the plan if any
// component has more than one member, or a self-loop exists.
func detectCycles(items []Item) error {
	graph := map[string][]string{}
	for _, it := range items {
		if it.Delete {
			continue
		}
		graph[it.Name] = append(graph[it.Name], it.DependsOn...)
	}

	var (
		index   = 0
		stack   []string
		onStack = map[string]bool{}
		indices = map[string]int{}
		lowlink = map[string]int{}
	)

	var names []string
	for n := range graph {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic traversal order

	var strongconnect func(v string) error
	strongconnect = func(v string) error {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, ok := indices[w]; !ok {
				if err := strongconnect(w); err != nil {
					return err
				}
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				return ierr.InvalidInput(fmt.Sprintf("circular depends_on among tasks: %v", component))
			}
			if len(component) == 1 && contains(graph[component[0]], component[0]) {
				return ierr.InvalidInput(fmt.Sprintf("task %q depends_on itself", component[0]))
			}
		}
		return nil
	}

	for _, n := range names {
		if _, ok := indices[n]; !ok {
			if err := strongconnect(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func enforceSingleDoing(items []Item) error {
	count := 0
	for _, it := range items {
		if !it.Delete && it.Status != nil && *it.Status == model.StatusDoing {
			count++
		}
	}
	if count > 1 {
		return ierr.InvalidInput("a plan may set at most one task to doing")
	}
	return nil
}

// singleDoingTaskID returns the id of the plan's sole doing task, if there
// is exactly one, for the auto-focus step.
func singleDoingTaskID(items []Item, idMap map[string]int64) (int64, bool, error) {
	var found *string
	for _, it := range items {
		if it.Delete || it.Status == nil || *it.Status != model.StatusDoing {
			continue
		}
		if found != nil {
			return 0, false, ierr.InvalidInput("a plan may set at most one task to doing")
		}
		name := it.Name
		found = &name
	}
	if found == nil {
		return 0, false, nil
	}
	id, ok := idMap[*found]
	return id, ok, nil
}
