package store

import (
	"context"
	"database/sql"

	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
)

const taskColumns = `id, parent_id, name, spec, status, complexity, priority,
	first_todo_at, first_doing_at, first_done_at, active_form, owner, metadata`

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var t model.Task
	var firstTodo, firstDoing, firstDone sql.NullString
	if err := row.Scan(
		&t.ID, &t.ParentID, &t.Name, &t.Spec, &t.Status, &t.Complexity, &t.Priority,
		&firstTodo, &firstDoing, &firstDone, &t.ActiveForm, &t.Owner, &t.Metadata,
	); err != nil {
		return model.Task{}, err
	}
	t.FirstTodoAt = parseNullTime(firstTodo)
	t.FirstDoingAt = parseNullTime(firstDoing)
	t.FirstDoneAt = parseNullTime(firstDone)
	return t, nil
}

// AddTask inserts a new task, stamping first_todo_at (or first_doing_at, if
// created directly in the doing state). AddTask does not limit how many
// tasks are doing; plan.Executor's enforceSingleDoing caps a plan batch at
// one before its inserts run.
func (s *Store) AddTask(ctx context.Context, tx *sql.Tx, in model.Task) (model.Task, error) {
	now := nowRFC3339()
	var firstTodo, firstDoing *string
	switch in.Status {
	case model.StatusDoing:
		firstDoing = &now
	default:
		firstTodo = &now
	}
	res, err := s.exec(tx).ExecContext(ctx, `
		INSERT INTO tasks (parent_id, name, spec, status, complexity, priority,
			first_todo_at, first_doing_at, first_done_at, active_form, owner, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
	`, in.ParentID, in.Name, in.Spec, in.Status, in.Complexity, in.Priority,
		firstTodo, firstDoing, in.ActiveForm, in.Owner, in.Metadata)
	if err != nil {
		return model.Task{}, ierr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Task{}, ierr.Database(err)
	}
	return s.GetTask(ctx, tx, id)
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, tx *sql.Tx, id int64) (model.Task, error) {
	row := s.exec(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return model.Task{}, ierr.TaskNotFound(id)
	}
	if err != nil {
		return model.Task{}, ierr.Database(err)
	}
	return t, nil
}

// TaskExists is a cheap existence probe used by dependency/parent validation.
func (s *Store) TaskExists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var exists int
	err := s.exec(tx).QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ierr.Database(err)
	}
	return true, nil
}

// TaskUpdate carries the optional fields UpdateTask may set; a nil field
// leaves the column untouched.
type TaskUpdate struct {
	ParentID    **int64 // pointer-to-pointer: nil = untouched, *ParentID==nil = clear to NULL
	Name        *string
	Spec        *string
	Status      *string
	Complexity  *int
	Priority    *int
	ActiveForm  *string
	Owner       *string
	Metadata    *string
}

// UpdateTask applies a sparse set of column updates, building the SET clause
// dynamically the way task_manager.rs's update_task does, and stamps
// first_doing_at/first_done_at only the first time status transitions into
// that state (never overwritten on subsequent round-trips).
func (s *Store) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, upd TaskUpdate) (model.Task, error) {
	sets := []string{}
	args := []any{}

	if upd.ParentID != nil {
		sets = append(sets, "parent_id = ?")
		args = append(args, *upd.ParentID)
	}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Spec != nil {
		sets = append(sets, "spec = ?")
		args = append(args, *upd.Spec)
	}
	if upd.Complexity != nil {
		sets = append(sets, "complexity = ?")
		args = append(args, *upd.Complexity)
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.ActiveForm != nil {
		sets = append(sets, "active_form = ?")
		args = append(args, *upd.ActiveForm)
	}
	if upd.Owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *upd.Owner)
	}
	if upd.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, *upd.Metadata)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
		now := nowRFC3339()
		switch *upd.Status {
		case model.StatusDoing:
			sets = append(sets, "first_doing_at = COALESCE(first_doing_at, ?)")
			args = append(args, now)
		case model.StatusDone:
			sets = append(sets, "first_done_at = COALESCE(first_done_at, ?)")
			args = append(args, now)
		}
	}

	if len(sets) == 0 {
		return s.GetTask(ctx, tx, id)
	}

	query := "UPDATE tasks SET "
	for i, c := range sets {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := s.exec(tx).ExecContext(ctx, query, args...); err != nil {
		return model.Task{}, ierr.Database(err)
	}
	return s.GetTask(ctx, tx, id)
}

// DeleteTask removes a single task with no children (callers check
// CountChildren/focus protection first).
func (s *Store) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := s.exec(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return ierr.Database(err)
	}
	return nil
}

// DeleteTaskCascade deletes a task and its full descendant subtree (ON
// DELETE CASCADE handles children/events/dependencies), returning the
// number of tasks removed.
func (s *Store) DeleteTaskCascade(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	descendants, err := s.TaskDescendantIDs(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	count := int64(len(descendants) + 1)
	if _, err := s.exec(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return 0, ierr.Database(err)
	}
	return count, nil
}

// TaskAncestry walks parent_id pointers up to the root, nearest-first.
func (s *Store) TaskAncestry(ctx context.Context, tx *sql.Tx, id int64) ([]model.Task, error) {
	var chain []model.Task
	cur := id
	for depth := 0; depth < 100; depth++ {
		t, err := s.GetTask(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		if t.ParentID == nil {
			break
		}
		parent, err := s.GetTask(ctx, tx, *t.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		cur = parent.ID
	}
	return chain, nil
}

// TaskChildren returns direct children of id ordered by priority then id.
func (s *Store) TaskChildren(ctx context.Context, tx *sql.Tx, id int64) ([]model.Task, error) {
	return s.queryTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY COALESCE(priority, 999) ASC, id ASC`, id)
}

// TaskSiblings returns the other children of parentID (nil => other roots),
// excluding id itself.
func (s *Store) TaskSiblings(ctx context.Context, tx *sql.Tx, id int64, parentID *int64) ([]model.Task, error) {
	if parentID == nil {
		return s.queryTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id IS NULL AND id != ? ORDER BY COALESCE(priority, 999) ASC, id ASC`, id)
	}
	return s.queryTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? AND id != ? ORDER BY COALESCE(priority, 999) ASC, id ASC`, *parentID, id)
}

// TaskDescendants returns the full subtree under id, breadth-first.
func (s *Store) TaskDescendants(ctx context.Context, tx *sql.Tx, id int64) ([]model.Task, error) {
	var out []model.Task
	frontier := []int64{id}
	for len(frontier) > 0 {
		var next []int64
		for _, parent := range frontier {
			children, err := s.TaskChildren(ctx, tx, parent)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				out = append(out, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

// TaskDescendantIDs is TaskDescendants projected to bare ids, used by cascade
// delete and focus-protection scans.
func (s *Store) TaskDescendantIDs(ctx context.Context, tx *sql.Tx, id int64) ([]int64, error) {
	descendants, err := s.TaskDescendants(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(descendants))
	for i, t := range descendants {
		ids[i] = t.ID
	}
	return ids, nil
}

// CountChildren returns the number of direct children of id.
func (s *Store) CountChildren(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	var n int64
	err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE parent_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}

// CountIncompleteChildren returns the number of direct children not in the
// done state, used to guard TaskService.Done.
func (s *Store) CountIncompleteChildren(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	var n int64
	err := s.exec(tx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE parent_id = ? AND status != ?`, id, model.StatusDone).Scan(&n)
	if err != nil {
		return 0, ierr.Database(err)
	}
	return n, nil
}

// FindChildByStatus returns the first child of id with the given status,
// priority-ordered, or (model.Task{}, false, nil) if none match.
func (s *Store) FindChildByStatus(ctx context.Context, tx *sql.Tx, id int64, status string) (model.Task, bool, error) {
	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? AND status = ? ORDER BY COALESCE(priority, 999) ASC, id ASC LIMIT 1`, id, status)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, ierr.Database(err)
	}
	return t, true, nil
}

// FindTopLevelByStatus returns the first root task (parent_id IS NULL) with
// the given status, excluding excludeID, priority-ordered.
func (s *Store) FindTopLevelByStatus(ctx context.Context, tx *sql.Tx, status string, excludeID int64) (model.Task, bool, error) {
	row := s.exec(tx).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id IS NULL AND status = ? AND id != ? ORDER BY COALESCE(priority, 999) ASC, id ASC LIMIT 1`,
		status, excludeID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, ierr.Database(err)
	}
	return t, true, nil
}

// FindTaskByName returns the first task with an exact name match, used by
// the plan executor's upsert-by-name resolution.
func (s *Store) FindTaskByName(ctx context.Context, tx *sql.Tx, name string) (model.Task, bool, error) {
	row := s.exec(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = ? ORDER BY id ASC LIMIT 1`, name)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, ierr.Database(err)
	}
	return t, true, nil
}

// CheckCircularAncestor reports whether newParentID is id itself or a
// descendant of id — making newParentID an invalid parent for id.
func (s *Store) CheckCircularAncestor(ctx context.Context, tx *sql.Tx, id, newParentID int64) (bool, error) {
	if id == newParentID {
		return true, nil
	}
	descendants, err := s.TaskDescendantIDs(ctx, tx, id)
	if err != nil {
		return false, err
	}
	for _, d := range descendants {
		if d == newParentID {
			return true, nil
		}
	}
	return false, nil
}

// FindTasksFilter narrows FindTasks.
type FindTasksFilter struct {
	Status       *string
	ParentIDSet  bool // true if ParentID field should be applied (including nil for roots)
	ParentID     *int64
	SortBy       model.TaskSortBy
	Limit        int64
	Offset       int64
}

// FindTasks lists tasks matching an optional status/parent filter, sorted
// per spec's four modes, with offset/limit pagination and a total count.
func (s *Store) FindTasks(ctx context.Context, tx *sql.Tx, f FindTasksFilter) (model.PaginatedTasks, error) {
	where := []string{}
	args := []any{}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.ParentIDSet {
		if f.ParentID == nil {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id = ?")
			args = append(args, *f.ParentID)
		}
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE "
		for i, c := range where {
			if i > 0 {
				whereClause += " AND "
			}
			whereClause += c
		}
	}

	var total int64
	countArgs := append([]any{}, args...)
	if err := s.exec(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+whereClause, countArgs...).Scan(&total); err != nil {
		return model.PaginatedTasks{}, ierr.Database(err)
	}

	orderBy := "id ASC"
	switch f.SortBy {
	case model.SortByPriority:
		orderBy = "COALESCE(priority, 999) ASC, id ASC"
	case model.SortByTime:
		orderBy = "COALESCE(first_doing_at, first_todo_at) DESC"
	case model.SortByFocusAware:
		orderBy = "CASE status WHEN 'doing' THEN 0 WHEN 'todo' THEN 1 WHEN 'done' THEN 2 ELSE 3 END ASC, COALESCE(priority, 999) ASC, id ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + ` FROM tasks` + whereClause + ` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	tasks, err := s.queryTasks(ctx, tx, query, args...)
	if err != nil {
		return model.PaginatedTasks{}, err
	}

	return model.PaginatedTasks{
		Tasks:      tasks,
		TotalCount: total,
		HasMore:    f.Offset+int64(len(tasks)) < total,
		Limit:      limit,
		Offset:     f.Offset,
	}, nil
}

func (s *Store) queryTasks(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]model.Task, error) {
	rows, err := s.exec(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.Database(err)
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, ierr.Database(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.Database(err)
	}
	return out, nil
}
