// Package toolserver implements ToolServer: a JSON-RPC 2.0 server over
// line-delimited stdio exposing Intent-Engine's operations as MCP tools.
// Grounded on original_source/src/mcp/server.rs's run_server/handle_request
// loop, translated from tokio stdin reads to a bufio.Scanner loop.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidVersion = -32600
	codeServerError    = -32000
)

// Run reads JSON-RPC requests line by line from r, dispatches them against
// srv, and writes responses to w. Notifications (requests with no id) are
// processed but never produce a response line. Run returns when r hits EOF.
func (srv *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, isNotification := srv.handleLine(ctx, line)
		if isNotification {
			continue
		}
		data, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "intent-engine: failed to encode response: %v\n", err)
			continue
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (srv *Server) handleLine(ctx context.Context, line []byte) (rpcResponse, bool) {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()}}, false
	}

	isNotification := len(req.ID) == 0
	resp := srv.handleRequest(ctx, req)
	return resp, isNotification
}

func (srv *Server) handleRequest(ctx context.Context, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	if req.JSONRPC != "2.0" {
		resp.Error = &rpcError{Code: codeInvalidVersion, Message: "invalid jsonrpc version"}
		return resp
	}

	result, err := srv.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = &rpcError{Code: codeServerError, Message: err.Error()}
		return resp
	}
	resp.Result = result
	return resp
}

func (srv *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return srv.handleInitialize(), nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return srv.handleToolsList(), nil
	case "tools/call":
		return srv.handleToolsCall(ctx, params)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func (srv *Server) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": mcpsdk.Implementation{
			Name:    "intent-engine",
			Version: srv.version,
		},
	}
}

func (srv *Server) handleToolsList() map[string]any {
	return map[string]any{"tools": srv.tools}
}

func (srv *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (*mcpsdk.CallToolResult, error) {
	var call mcpsdk.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, fmt.Errorf("invalid tools/call params: %w", err)
	}

	handler, ok := srv.handlers[call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	text, err := handler(ctx, call.Arguments)
	if err != nil {
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		}, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}, nil
}
