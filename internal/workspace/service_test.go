package workspace

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"

	_ "modernc.org/sqlite"
)

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func TestResolveSessionID_precedence(t *testing.T) {
	require.Equal(t, "explicit", ResolveSessionID("explicit", "env-value"))
	require.Equal(t, "env-value", ResolveSessionID("", "env-value"))
	require.Equal(t, "-1", ResolveSessionID("", ""))
}

func TestNewAnonymousSessionID_unique(t *testing.T) {
	a := NewAnonymousSessionID()
	b := NewAnonymousSessionID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestGet_createsSessionOnFirstUse(t *testing.T) {
	svc, _ := testService(t)
	sess, task, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", sess.SessionID)
	require.Nil(t, task)
}

func TestSet_rejectsMissingTask(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Set(context.Background(), "sess-1", 999)
	require.Error(t, err)
}

func TestSet_andGet_resolvesFocusedTask(t *testing.T) {
	svc, st := testService(t)
	tk, err := st.AddTask(context.Background(), nil, model.Task{Name: "focus target", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)

	_, err = svc.Set(context.Background(), "sess-1", tk.ID)
	require.NoError(t, err)

	_, task, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, tk.ID, task.ID)
}

func TestClear_unsetsFocus(t *testing.T) {
	svc, st := testService(t)
	tk, err := st.AddTask(context.Background(), nil, model.Task{Name: "x", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)
	_, err = svc.Set(context.Background(), "sess-1", tk.ID)
	require.NoError(t, err)

	_, err = svc.Clear(context.Background(), "sess-1")
	require.NoError(t, err)

	_, task, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestEnforceLimit_evictsLeastRecentlyActive(t *testing.T) {
	svc, _ := testService(t)
	_, _, err := svc.Get(context.Background(), "sess-a")
	require.NoError(t, err)
	_, _, err = svc.Get(context.Background(), "sess-b")
	require.NoError(t, err)
	_, _, err = svc.Get(context.Background(), "sess-c")
	require.NoError(t, err)

	n, err := svc.EnforceLimit(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCleanupExpired_removesStaleSessions(t *testing.T) {
	svc, _ := testService(t)
	_, _, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)

	n, err := svc.CleanupExpired(context.Background(), -1*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
