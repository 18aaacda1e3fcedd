package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/model"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	s, err := NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addTask(t *testing.T, s *Store, name string, parentID *int64) model.Task {
	t.Helper()
	tk, err := s.AddTask(context.Background(), nil, model.Task{
		ParentID: parentID,
		Name:     name,
		Status:   model.StatusTodo,
		Owner:    "human",
	})
	require.NoError(t, err)
	return tk
}

func TestAddTask_stampsFirstTodoAt(t *testing.T) {
	s := testStore(t)
	tk := addTask(t, s, "write docs", nil)
	require.NotZero(t, tk.ID)
	require.NotNil(t, tk.FirstTodoAt)
	require.Nil(t, tk.FirstDoingAt)
}

func TestAddTask_doingStampsFirstDoingAt(t *testing.T) {
	s := testStore(t)
	tk, err := s.AddTask(context.Background(), nil, model.Task{Name: "x", Status: model.StatusDoing, Owner: "human"})
	require.NoError(t, err)
	require.Nil(t, tk.FirstTodoAt)
	require.NotNil(t, tk.FirstDoingAt)
}

func TestGetTask_notFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetTask(context.Background(), nil, 999)
	require.Error(t, err)
}

func TestUpdateTask_statusTransitionStampsOnce(t *testing.T) {
	s := testStore(t)
	tk := addTask(t, s, "ship release", nil)

	doing := model.StatusDoing
	updated, err := s.UpdateTask(context.Background(), nil, tk.ID, TaskUpdate{Status: &doing})
	require.NoError(t, err)
	require.NotNil(t, updated.FirstDoingAt)
	firstStamp := *updated.FirstDoingAt

	// flipping back to todo and then doing again must not move the stamp
	todo := model.StatusTodo
	_, err = s.UpdateTask(context.Background(), nil, tk.ID, TaskUpdate{Status: &todo})
	require.NoError(t, err)
	again, err := s.UpdateTask(context.Background(), nil, tk.ID, TaskUpdate{Status: &doing})
	require.NoError(t, err)
	require.Equal(t, firstStamp, *again.FirstDoingAt)
}

func TestUpdateTask_clearParentToNull(t *testing.T) {
	s := testStore(t)
	parent := addTask(t, s, "parent", nil)
	child := addTask(t, s, "child", &parent.ID)

	var nilParent *int64
	updated, err := s.UpdateTask(context.Background(), nil, child.ID, TaskUpdate{ParentID: &nilParent})
	require.NoError(t, err)
	require.Nil(t, updated.ParentID)
}

func TestTaskAncestry(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)
	mid := addTask(t, s, "mid", &root.ID)
	leaf := addTask(t, s, "leaf", &mid.ID)

	ancestry, err := s.TaskAncestry(context.Background(), nil, leaf.ID)
	require.NoError(t, err)
	require.Len(t, ancestry, 2)
	require.Equal(t, mid.ID, ancestry[0].ID)
	require.Equal(t, root.ID, ancestry[1].ID)
}

func TestCheckCircularAncestor(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)
	child := addTask(t, s, "child", &root.ID)

	circular, err := s.CheckCircularAncestor(context.Background(), nil, root.ID, child.ID)
	require.NoError(t, err)
	require.True(t, circular, "making root a child of its own descendant must be flagged circular")

	other := addTask(t, s, "unrelated", nil)
	circular, err = s.CheckCircularAncestor(context.Background(), nil, root.ID, other.ID)
	require.NoError(t, err)
	require.False(t, circular)
}

func TestDeleteTaskCascade(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)
	_ = addTask(t, s, "child-a", &root.ID)
	_ = addTask(t, s, "child-b", &root.ID)

	n, err := s.DeleteTaskCascade(context.Background(), nil, root.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = s.GetTask(context.Background(), nil, root.ID)
	require.Error(t, err)
}

func TestFindTasks_filtersByStatusAndParent(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)
	_ = addTask(t, s, "todo child", &root.ID)
	doingChild, err := s.AddTask(context.Background(), nil, model.Task{ParentID: &root.ID, Name: "doing child", Status: model.StatusDoing, Owner: "human"})
	require.NoError(t, err)

	status := model.StatusDoing
	page, err := s.FindTasks(context.Background(), nil, FindTasksFilter{
		Status:      &status,
		ParentIDSet: true,
		ParentID:    &root.ID,
		SortBy:      model.SortByID,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	require.Equal(t, doingChild.ID, page.Tasks[0].ID)
}

func TestFindTasks_sortByPriorityOrdersLowestValueFirst(t *testing.T) {
	s := testStore(t)
	low := 4
	critical := 1
	medium := 2
	_, err := s.AddTask(context.Background(), nil, model.Task{Name: "low", Status: model.StatusTodo, Owner: "human", Priority: &low})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "no priority", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "critical", Status: model.StatusTodo, Owner: "human", Priority: &critical})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "medium", Status: model.StatusTodo, Owner: "human", Priority: &medium})
	require.NoError(t, err)

	page, err := s.FindTasks(context.Background(), nil, FindTasksFilter{SortBy: model.SortByPriority, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 4)
	require.Equal(t, "critical", page.Tasks[0].Name)
	require.Equal(t, "medium", page.Tasks[1].Name)
	require.Equal(t, "low", page.Tasks[2].Name)
	require.Equal(t, "no priority", page.Tasks[3].Name, "NULL priority sorts after every numbered priority")
}

func TestFindTasks_sortByFocusAwareOrdersByStatusBucketThenPriority(t *testing.T) {
	s := testStore(t)
	low := 4
	critical := 1
	_, err := s.AddTask(context.Background(), nil, model.Task{Name: "done task", Status: model.StatusDone, Owner: "human"})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "todo low", Status: model.StatusTodo, Owner: "human", Priority: &low})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "todo critical", Status: model.StatusTodo, Owner: "human", Priority: &critical})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{Name: "doing task", Status: model.StatusDoing, Owner: "human"})
	require.NoError(t, err)

	page, err := s.FindTasks(context.Background(), nil, FindTasksFilter{SortBy: model.SortByFocusAware, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 4)
	require.Equal(t, "doing task", page.Tasks[0].Name, "doing-status tasks come first regardless of priority")
	require.Equal(t, "todo critical", page.Tasks[1].Name)
	require.Equal(t, "todo low", page.Tasks[2].Name)
	require.Equal(t, "done task", page.Tasks[3].Name, "done-status tasks sort last")
}

func TestTaskChildren_sortsByPriorityAscending(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)
	low := 4
	critical := 1
	_, err := s.AddTask(context.Background(), nil, model.Task{ParentID: &root.ID, Name: "low child", Status: model.StatusTodo, Owner: "human", Priority: &low})
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), nil, model.Task{ParentID: &root.ID, Name: "critical child", Status: model.StatusTodo, Owner: "human", Priority: &critical})
	require.NoError(t, err)

	children, err := s.TaskChildren(context.Background(), nil, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "critical child", children[0].Name)
	require.Equal(t, "low child", children[1].Name)
}

func TestFindTaskByName(t *testing.T) {
	s := testStore(t)
	tk := addTask(t, s, "unique name", nil)

	found, ok, err := s.FindTaskByName(context.Background(), nil, "unique name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tk.ID, found.ID)

	_, ok, err = s.FindTaskByName(context.Background(), nil, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddDependency_isIdempotent(t *testing.T) {
	s := testStore(t)
	a := addTask(t, s, "a", nil)
	b := addTask(t, s, "b", nil)

	d1, err := s.AddDependency(context.Background(), nil, a.ID, b.ID)
	require.NoError(t, err)
	d2, err := s.AddDependency(context.Background(), nil, a.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, d1.ID, d2.ID)
}

func TestDependencyReachable(t *testing.T) {
	s := testStore(t)
	a := addTask(t, s, "a", nil)
	b := addTask(t, s, "b", nil)
	c := addTask(t, s, "c", nil)

	_, err := s.AddDependency(context.Background(), nil, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.AddDependency(context.Background(), nil, b.ID, c.ID)
	require.NoError(t, err)

	reachable, err := s.DependencyReachable(context.Background(), nil, a.ID, c.ID)
	require.NoError(t, err)
	require.True(t, reachable, "a -> b -> c means adding c -> a would close a cycle")

	reachable, err = s.DependencyReachable(context.Background(), nil, c.ID, a.ID)
	require.NoError(t, err)
	require.False(t, reachable)
}

func TestGetOrCreateSession(t *testing.T) {
	s := testStore(t)
	sess, err := s.GetOrCreateSession(context.Background(), nil, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", sess.SessionID)
	require.Nil(t, sess.CurrentTaskID)

	again, err := s.GetOrCreateSession(context.Background(), nil, "sess-1")
	require.NoError(t, err)
	require.Equal(t, sess.CreatedAt, again.CreatedAt)
}

func TestWithTx_rollsBackOnError(t *testing.T) {
	s := testStore(t)
	root := addTask(t, s, "root", nil)

	errBoom := sql.ErrTxDone
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		doing := model.StatusDoing
		if _, err := s.UpdateTask(context.Background(), tx, root.ID, TaskUpdate{Status: &doing}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	after, err := s.GetTask(context.Background(), nil, root.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusTodo, after.Status)
}
