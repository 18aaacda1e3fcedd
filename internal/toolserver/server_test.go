package toolserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind/intent-engine/internal/dependency"
	"github.com/wayfind/intent-engine/internal/event"
	"github.com/wayfind/intent-engine/internal/plan"
	"github.com/wayfind/intent-engine/internal/report"
	"github.com/wayfind/intent-engine/internal/search"
	"github.com/wayfind/intent-engine/internal/store"
	"github.com/wayfind/intent-engine/internal/suggestion"
	"github.com/wayfind/intent-engine/internal/task"
	"github.com/wayfind/intent-engine/internal/workspace"

	_ "modernc.org/sqlite"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New("test-version", Services{
		Tasks:        task.New(st),
		Events:       event.New(st),
		Workspaces:   workspace.New(st),
		Dependencies: dependency.New(st),
		Search:       search.New(st),
		Plan:         plan.New(st),
		Reports:      report.New(st),
		Suggestions:  suggestion.New(st, nil, nil),
		EnvSessionID: "-1",
	})
}

func rpcLine(method string, params any, id int) []byte {
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, _ := json.Marshal(req)
	return append(data, '\n')
}

func runOne(t *testing.T, srv *Server, req []byte) map[string]any {
	t.Helper()
	var out bytes.Buffer
	err := srv.Run(context.Background(), bytes.NewReader(req), &out)
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	return resp
}

func TestToolsList_registersAllTwentyTools(t *testing.T) {
	srv := testServer(t)
	resp := runOne(t, srv, rpcLine("tools/list", nil, 1))

	result := resp["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 20)
}

func TestToolsCall_taskAdd_roundTrip(t *testing.T) {
	srv := testServer(t)
	resp := runOne(t, srv, rpcLine("tools/call", map[string]any{
		"name":      "task_add",
		"arguments": map[string]any{"name": "write the launch plan"},
	}, 1))

	result := resp["result"].(map[string]any)
	require.NotEqual(t, true, result["isError"])
	content := result["content"].([]any)[0].(map[string]any)
	require.Contains(t, content["text"], "write the launch plan")
}

func TestToolsCall_unknownTool(t *testing.T) {
	srv := testServer(t)
	resp := runOne(t, srv, rpcLine("tools/call", map[string]any{
		"name":      "nonexistent_tool",
		"arguments": map[string]any{},
	}, 1))
	require.NotNil(t, resp["error"])
}

func TestToolsCall_taskAdd_missingNameReturnsToolError(t *testing.T) {
	srv := testServer(t)
	resp := runOne(t, srv, rpcLine("tools/call", map[string]any{
		"name":      "task_add",
		"arguments": map[string]any{},
	}, 1))

	result := resp["result"].(map[string]any)
	require.Equal(t, true, result["isError"])
}

func TestInitialize_reportsProtocolVersion(t *testing.T) {
	srv := testServer(t)
	resp := runOne(t, srv, rpcLine("initialize", map[string]any{}, 1))

	result := resp["result"].(map[string]any)
	require.Equal(t, protocolVersion, result["protocolVersion"])
}

func TestNotification_producesNoResponseLine(t *testing.T) {
	srv := testServer(t)
	req := []byte(`{"jsonrpc":"2.0","method":"ping"}` + "\n")

	var out bytes.Buffer
	err := srv.Run(context.Background(), bytes.NewReader(req), &out)
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(out.String()))
}

func TestFullWorkflow_addThenCurrentTaskGetViaToolCalls(t *testing.T) {
	srv := testServer(t)

	var lines [][]byte
	lines = append(lines, rpcLine("tools/call", map[string]any{
		"name":      "task_add",
		"arguments": map[string]any{"name": "ship it"},
	}, 1))
	lines = append(lines, rpcLine("tools/call", map[string]any{
		"name":      "current_task_get",
		"arguments": map[string]any{},
	}, 2))

	var input bytes.Buffer
	for _, l := range lines {
		input.Write(l)
	}

	var out bytes.Buffer
	err := srv.Run(context.Background(), &input, &out)
	require.NoError(t, err)

	responses := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, responses, 2)
}
