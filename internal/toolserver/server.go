package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wayfind/intent-engine/internal/dependency"
	"github.com/wayfind/intent-engine/internal/event"
	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/plan"
	"github.com/wayfind/intent-engine/internal/report"
	"github.com/wayfind/intent-engine/internal/search"
	"github.com/wayfind/intent-engine/internal/suggestion"
	"github.com/wayfind/intent-engine/internal/task"
	"github.com/wayfind/intent-engine/internal/workspace"
)

type toolHandler func(ctx context.Context, args map[string]any) (string, error)

// Server is the JSON-RPC ToolServer: one process's worth of tool
// definitions and handlers wired against the service layer.
type Server struct {
	version string

	tasks        *task.Service
	events       *event.Service
	workspaces   *workspace.Service
	dependencies *dependency.Service
	searcher     *search.Service
	planner      *plan.Executor
	reports      *report.Service
	suggestions  *suggestion.Service

	envSessionID string

	tools    []*mcpsdk.Tool
	handlers map[string]toolHandler
}

// Services bundles the service-layer dependencies New needs.
type Services struct {
	Tasks        *task.Service
	Events       *event.Service
	Workspaces   *workspace.Service
	Dependencies *dependency.Service
	Search       *search.Service
	Plan         *plan.Executor
	Reports      *report.Service
	Suggestions  *suggestion.Service
	EnvSessionID string
}

// New builds a Server with every tool registered.
func New(version string, svc Services) *Server {
	srv := &Server{
		version:      version,
		tasks:        svc.Tasks,
		events:       svc.Events,
		workspaces:   svc.Workspaces,
		dependencies: svc.Dependencies,
		searcher:     svc.Search,
		planner:      svc.Plan,
		reports:      svc.Reports,
		suggestions:  svc.Suggestions,
		envSessionID: svc.EnvSessionID,
	}
	srv.registerTools()
	return srv
}

func (srv *Server) register(name, description string, schema *jsonschema.Schema, handler toolHandler) {
	srv.tools = append(srv.tools, &mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	})
	if srv.handlers == nil {
		srv.handlers = map[string]toolHandler{}
	}
	srv.handlers[name] = handler
}

func (srv *Server) sessionID(args map[string]any) string {
	return workspace.ResolveSessionID(stringArg(args, "session_id"), srv.envSessionID)
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

func requireString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", ierr.InvalidInput(fmt.Sprintf("%q is required", key))
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", ierr.InvalidInput(fmt.Sprintf("%q must be a non-empty string", key))
	}
	return s, nil
}

func requireInt(args map[string]any, key string) (int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, ierr.InvalidInput(fmt.Sprintf("%q is required", key))
	}
	return toInt64(raw)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, ierr.InvalidInput("expected a number")
	}
}

func stringArg(args map[string]any, key string) string {
	if raw, ok := args[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func optionalInt(args map[string]any, key string) *int64 {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	n, err := toInt64(raw)
	if err != nil {
		return nil
	}
	return &n
}

func optionalIntVal(args map[string]any, key string) *int {
	n := optionalInt(args, key)
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

func optionalString(args map[string]any, key string) *string {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func optionalBool(args map[string]any, key string) bool {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false
	}
	b, _ := raw.(bool)
	return b
}
