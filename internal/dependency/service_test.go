package dependency

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"

	_ "modernc.org/sqlite"
)

func testServiceWithTasks(t *testing.T, n int) (*Service, []int64) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ids := make([]int64, n)
	for i := range ids {
		tk, err := st.AddTask(context.Background(), nil, model.Task{Name: "t", Status: model.StatusTodo, Owner: "human"})
		require.NoError(t, err)
		ids[i] = tk.ID
	}
	return New(st), ids
}

func TestAdd_rejectsSelfDependency(t *testing.T) {
	svc, ids := testServiceWithTasks(t, 1)
	_, err := svc.Add(context.Background(), ids[0], ids[0])
	require.Error(t, err)
}

func TestAdd_rejectsMissingTask(t *testing.T) {
	svc, ids := testServiceWithTasks(t, 1)
	_, err := svc.Add(context.Background(), ids[0], 999)
	require.Error(t, err)
}

func TestAdd_rejectsCycle(t *testing.T) {
	svc, ids := testServiceWithTasks(t, 3)
	a, b, c := ids[0], ids[1], ids[2]

	_, err := svc.Add(context.Background(), a, b)
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), b, c)
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), c, a)
	require.Error(t, err, "closing a -> b -> c -> a must be rejected")
}

func TestIncompleteBlockers(t *testing.T) {
	svc, ids := testServiceWithTasks(t, 2)
	blocker, blocked := ids[0], ids[1]

	_, err := svc.Add(context.Background(), blocker, blocked)
	require.NoError(t, err)

	blockers, err := svc.IncompleteBlockers(context.Background(), blocked)
	require.NoError(t, err)
	require.Equal(t, []int64{blocker}, blockers)
}
