package report

import (
	"context"
	"database/sql"
	"testing"

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

func TestGenerate_countsByStatus(t *testing.T) {
	svc, st := testService(t)
	_, err := st.AddTask(context.Background(), nil, model.Task{Name: "a", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)
	_, err = st.AddTask(context.Background(), nil, model.Task{Name: "b", Status: model.StatusDoing, Owner: "human"})
	require.NoError(t, err)
	_, err = st.AddTask(context.Background(), nil, model.Task{Name: "c", Status: model.StatusDone, Owner: "human"})
	require.NoError(t, err)

	r, err := svc.Generate(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, r.CountByStat[model.StatusTodo])
	require.Equal(t, 1, r.CountByStat[model.StatusDoing])
	require.Equal(t, 1, r.CountByStat[model.StatusDone])
	require.Equal(t, 3, r.TotalCount)
	require.Len(t, r.Tasks, 3)
}

func TestGenerate_summaryOnlyOmitsTasks(t *testing.T) {
	svc, st := testService(t)
	_, err := st.AddTask(context.Background(), nil, model.Task{Name: "a", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)

	r, err := svc.Generate(context.Background(), Options{SummaryOnly: true})
	require.NoError(t, err)
	require.Nil(t, r.Tasks)
	require.Equal(t, 1, r.TotalCount)
}

func TestGenerate_filtersByName(t *testing.T) {
	svc, st := testService(t)
	_, err := st.AddTask(context.Background(), nil, model.Task{Name: "fix payment bug", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)
	_, err = st.AddTask(context.Background(), nil, model.Task{Name: "write docs", Status: model.StatusTodo, Owner: "human"})
	require.NoError(t, err)

	r, err := svc.Generate(context.Background(), Options{FilterName: "PAYMENT"})
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalCount)
}

func TestDiffReports_rendersChange(t *testing.T) {
	out := DiffReports("hello world", "hello there")
	require.NotEmpty(t, out)
}
