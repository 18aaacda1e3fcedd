package suggestion

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
	return New(st, nil, nil), st
}

func TestAdd_andList(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Add(context.Background(), model.SuggestionEventSynth, "consider splitting this task")
	require.NoError(t, err)

	suggestions, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
}

func TestDismiss_excludesFromDefaultList(t *testing.T) {
	svc, _ := testService(t)
	sg, err := svc.Add(context.Background(), model.SuggestionEventSynth, "note")
	require.NoError(t, err)

	require.NoError(t, svc.Dismiss(context.Background(), sg.ID))

	active, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestClear_removesOnlyDismissed(t *testing.T) {
	svc, _ := testService(t)
	keep, err := svc.Add(context.Background(), model.SuggestionEventSynth, "keep me")
	require.NoError(t, err)
	toss, err := svc.Add(context.Background(), model.SuggestionEventSynth, "toss me")
	require.NoError(t, err)
	require.NoError(t, svc.Dismiss(context.Background(), toss.ID))

	n, err := svc.Clear(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	remaining, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, keep.ID, remaining[0].ID)
}

func TestMaybeAnalyze_noopWhenLLMNotConfigured(t *testing.T) {
	svc, _ := testService(t)
	// llm is nil, so this must return immediately without panicking and
	// without recording any suggestion.
	svc.MaybeAnalyze(context.Background(), "some task", "some event")

	suggestions, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Empty(t, suggestions)
}
