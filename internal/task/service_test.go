package task

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"

	_ "modernc.org/sqlite"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func TestAdd_rejectsEmptyName(t *testing.T) {
	svc := testService(t)
	_, err := svc.Add(context.Background(), NewTaskInput{Name: ""})
	require.Error(t, err)
}

func TestAdd_rejectsInvalidStatus(t *testing.T) {
	svc := testService(t)
	_, err := svc.Add(context.Background(), NewTaskInput{Name: "x", Status: "bogus"})
	require.Error(t, err)
}

func TestAdd_rejectsMissingParent(t *testing.T) {
	svc := testService(t)
	missing := int64(999)
	_, err := svc.Add(context.Background(), NewTaskInput{Name: "x", ParentID: &missing})
	require.Error(t, err)
}

func TestAdd_defaultsStatusAndOwner(t *testing.T) {
	svc := testService(t)
	tk, err := svc.Add(context.Background(), NewTaskInput{Name: "write tests"})
	require.NoError(t, err)
	require.Equal(t, model.StatusTodo, tk.Status)
	require.Equal(t, "human", tk.Owner)
}

func TestUpdate_rejectsCircularParent(t *testing.T) {
	svc := testService(t)
	root, err := svc.Add(context.Background(), NewTaskInput{Name: "root"})
	require.NoError(t, err)
	child, err := svc.Add(context.Background(), NewTaskInput{Name: "child", ParentID: &root.ID})
	require.NoError(t, err)

	newParent := &child.ID
	_, err = svc.Update(context.Background(), root.ID, store.TaskUpdate{ParentID: &newParent})
	require.Error(t, err)
}

func TestDelete_refusesWithChildren(t *testing.T) {
	svc := testService(t)
	root, err := svc.Add(context.Background(), NewTaskInput{Name: "root"})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), NewTaskInput{Name: "child", ParentID: &root.ID})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), root.ID)
	require.Error(t, err)
}

func TestDelete_refusesWhenFocused(t *testing.T) {
	svc := testService(t)
	tk, err := svc.Add(context.Background(), NewTaskInput{Name: "focus me"})
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), tk.ID, "sess-1")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), tk.ID)
	require.Error(t, err)
}

func TestStart_blockedByIncompleteDependency(t *testing.T) {
	svc := testService(t)
	blocker, err := svc.Add(context.Background(), NewTaskInput{Name: "blocker"})
	require.NoError(t, err)
	blocked, err := svc.Add(context.Background(), NewTaskInput{Name: "blocked"})
	require.NoError(t, err)

	_, err = svc.store.AddDependency(context.Background(), nil, blocker.ID, blocked.ID)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), blocked.ID, "sess-1")
	require.Error(t, err)
}

func TestStart_setsStatusAndFocus(t *testing.T) {
	svc := testService(t)
	tk, err := svc.Add(context.Background(), NewTaskInput{Name: "go"})
	require.NoError(t, err)

	started, err := svc.Start(context.Background(), tk.ID, "sess-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusDoing, started.Status)

	current, err := svc.CurrentTask(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, tk.ID, current.ID)
}

func TestSwitch_doesNotTouchStatus(t *testing.T) {
	svc := testService(t)
	tk, err := svc.Add(context.Background(), NewTaskInput{Name: "idle"})
	require.NoError(t, err)

	switched, err := svc.Switch(context.Background(), tk.ID, "sess-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusTodo, switched.Status)

	current, err := svc.CurrentTask(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, tk.ID, current.ID)
}

func TestSpawnSubtask_requiresCurrentFocus(t *testing.T) {
	svc := testService(t)
	_, err := svc.SpawnSubtask(context.Background(), "sess-1", NewTaskInput{Name: "child"})
	require.Error(t, err)
}

func TestSpawnSubtask_createsUnderFocusAndSwitches(t *testing.T) {
	svc := testService(t)
	parent, err := svc.Add(context.Background(), NewTaskInput{Name: "parent"})
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), parent.ID, "sess-1")
	require.NoError(t, err)

	child, err := svc.SpawnSubtask(context.Background(), "sess-1", NewTaskInput{Name: "child"})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	require.Equal(t, parent.ID, *child.ParentID)

	current, err := svc.CurrentTask(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, child.ID, current.ID)
}

func TestContext_buildsAncestrySiblingsDescendants(t *testing.T) {
	svc := testService(t)
	root, err := svc.Add(context.Background(), NewTaskInput{Name: "root"})
	require.NoError(t, err)
	a, err := svc.Add(context.Background(), NewTaskInput{Name: "a", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), NewTaskInput{Name: "b", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), NewTaskInput{Name: "grandchild", ParentID: &a.ID})
	require.NoError(t, err)

	ctx, err := svc.Context(context.Background(), a.ID, false, 5)
	require.NoError(t, err)
	require.Len(t, ctx.Ancestors, 1)
	require.Len(t, ctx.Siblings, 1)
	require.Len(t, ctx.Descendants, 1)
}
