package plan

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"

	_ "modernc.org/sqlite"
)

func ptrString(s string) *string { return &s }

func testExecutor(t *testing.T) (*Executor, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func TestApply_createsTasksAndResolvesParentByName(t *testing.T) {
	ex, _ := testExecutor(t)
	result, err := ex.Apply(context.Background(), Plan{
		SessionID: "sess-1",
		Items: []Item{
			{Name: "epic"},
			{Name: "subtask", ParentName: ptrString("epic")},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.CreatedCount)
	require.Contains(t, result.TaskIDMap, "epic")
	require.Contains(t, result.TaskIDMap, "subtask")
}

func TestApply_upsertsByName(t *testing.T) {
	ex, _ := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{{Name: "task-a"}}})
	require.NoError(t, err)

	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "task-a", Spec: ptrString("updated spec")},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.UpdatedCount)
	require.Equal(t, 0, result.CreatedCount)
}

func TestApply_rejectsDuplicateNames(t *testing.T) {
	ex, _ := testExecutor(t)
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "dup"}, {Name: "dup"},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_rejectsUnresolvedDependsOn(t *testing.T) {
	ex, _ := testExecutor(t)
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "a", DependsOn: []string{"ghost"}},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_detectsDependsOnCycle(t *testing.T) {
	ex, _ := testExecutor(t)
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_rejectsMultipleDoing(t *testing.T) {
	ex, _ := testExecutor(t)
	doing := model.StatusDoing
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "a", Status: &doing},
		{Name: "b", Status: &doing},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_autoFocusesSingleDoingTask(t *testing.T) {
	ex, st := testExecutor(t)
	doing := model.StatusDoing
	result, err := ex.Apply(context.Background(), Plan{
		SessionID: "sess-1",
		Items:     []Item{{Name: "work on this", Status: &doing, Spec: ptrString("do the thing")}},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.FocusedTask)

	sess, err := st.GetOrCreateSession(context.Background(), nil, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentTaskID)
	require.Equal(t, result.TaskIDMap["work on this"], *sess.CurrentTaskID)
}

func TestApply_appliesDependsOnEdges(t *testing.T) {
	ex, _ := testExecutor(t)
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "blocker"},
		{Name: "blocked", DependsOn: []string{"blocker"}},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.DependencyCount)
}

func TestApply_deletesChildlessTask(t *testing.T) {
	ex, _ := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{{Name: "throwaway"}}})
	require.NoError(t, err)

	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "throwaway", Delete: true},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.DeletedCount)
}

func TestApply_doingWithoutSpecIsRejected(t *testing.T) {
	ex, _ := testExecutor(t)
	doing := model.StatusDoing
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "no spec yet", Status: &doing},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_doingAllowedWhenExistingRowAlreadyHasSpec(t *testing.T) {
	ex, _ := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "already specced", Spec: ptrString("fix the bug")},
	}})
	require.NoError(t, err)

	doing := model.StatusDoing
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "already specced", Status: &doing},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestApply_doingBlockedByIncompleteDependencyIsRejected(t *testing.T) {
	ex, _ := testExecutor(t)
	doing := model.StatusDoing
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "blocker", Spec: ptrString("do the blocking work")},
		{Name: "blocked", Spec: ptrString("do the blocked work"), Status: &doing, DependsOn: []string{"blocker"}},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_doneWithIncompleteChildrenIsRejected(t *testing.T) {
	ex, _ := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent"},
		{Name: "child", ParentName: ptrString("parent")},
	}})
	require.NoError(t, err)

	done := model.StatusDone
	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent", Status: &done},
	}})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestApply_doneSucceedsWhenChildrenAreDone(t *testing.T) {
	ex, st := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent"},
		{Name: "child", ParentName: ptrString("parent")},
	}})
	require.NoError(t, err)

	done := model.StatusDone
	_, err = ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "child", Status: &done},
	}})
	require.NoError(t, err)

	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent", Status: &done},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)

	parentID := result.TaskIDMap["parent"]
	parent, err := st.GetTask(context.Background(), nil, parentID)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, parent.Status)
}

func TestApply_cascadeDeletesSubtree(t *testing.T) {
	ex, _ := testExecutor(t)
	_, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent"},
		{Name: "child", ParentName: ptrString("parent")},
	}})
	require.NoError(t, err)

	result, err := ex.Apply(context.Background(), Plan{Items: []Item{
		{Name: "parent", Delete: true, Cascade: true},
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.CascadeDeletedCount)
}
