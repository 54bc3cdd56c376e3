// Package mcp exposes keyword administration as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mikann-OMO/bot/internal/keyword"
)

// Tool names.
const (
	ToolKeywordAdd    = "keyword_add"
	ToolKeywordRemove = "keyword_remove"
	ToolKeywordList   = "keyword_list"
	ToolGroupToggle   = "group_toggle"
)

// Server serves the keyword tools over MCP.
type Server struct {
	keywords *keyword.Service
	mcp      *server.MCPServer
}

// NewServer registers the keyword tools backed by svc.
func NewServer(svc *keyword.Service, version string) *Server {
	s := &Server{
		keywords: svc,
		mcp:      server.NewMCPServer("mikann-bot", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcpgo.NewTool(ToolKeywordAdd,
		mcpgo.WithDescription("Add a keyword reply. Patterns written as /body/flags are regular expressions."),
		mcpgo.WithString("table", mcpgo.Required(), mcpgo.Enum("exact", "contains"),
			mcpgo.Description("exact: whole message must match; contains: message must contain the keyword")),
		mcpgo.WithString("keyword", mcpgo.Required(), mcpgo.Description("literal keyword or /regex/flags")),
		mcpgo.WithString("reply", mcpgo.Required(), mcpgo.Description("reply text, image path/URL, or [a, b] for a random pick")),
	), s.handleAdd)

	s.mcp.AddTool(mcpgo.NewTool(ToolKeywordRemove,
		mcpgo.WithDescription("Remove a keyword from whichever table holds it."),
		mcpgo.WithString("keyword", mcpgo.Required()),
	), s.handleRemove)

	s.mcp.AddTool(mcpgo.NewTool(ToolKeywordList,
		mcpgo.WithDescription("List keyword entries as JSON."),
		mcpgo.WithString("table", mcpgo.Enum("exact", "contains"), mcpgo.Description("omit to list both tables")),
	), s.handleList)

	s.mcp.AddTool(mcpgo.NewTool(ToolGroupToggle,
		mcpgo.WithDescription("Enable or disable keyword replies in a group."),
		mcpgo.WithString("group_id", mcpgo.Required()),
		mcpgo.WithBoolean("enabled", mcpgo.Required()),
	), s.handleGroupToggle)

	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Handler returns a stateless streamable-HTTP handler.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) handleAdd(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	tableName, err := req.RequireString("table")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	table, err := keyword.ParseTable(tableName)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	pattern, err := req.RequireString("keyword")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	reply, err := req.RequireString("reply")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	err = s.keywords.AddKeyword(ctx, table, keyword.Entry{Pattern: pattern, Reply: reply})
	switch {
	case errors.Is(err, keyword.ErrDuplicateKeyword):
		return mcpgo.NewToolResultError(fmt.Sprintf("keyword %q already exists", pattern)), nil
	case errors.Is(err, keyword.ErrEmptyKeyword):
		return mcpgo.NewToolResultError(err.Error()), nil
	case err != nil:
		slog.Error("mcp.keyword_add", "error", err)
		return mcpgo.NewToolResultError("failed to save keyword"), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("added %s keyword %q", table, pattern)), nil
}

func (s *Server) handleRemove(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	pattern, err := req.RequireString("keyword")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	table, err := s.keywords.RemoveKeyword(ctx, pattern)
	switch {
	case errors.Is(err, keyword.ErrKeywordNotFound):
		return mcpgo.NewToolResultError(fmt.Sprintf("keyword %q not found", pattern)), nil
	case err != nil:
		slog.Error("mcp.keyword_remove", "error", err)
		return mcpgo.NewToolResultError("failed to save keyword tables"), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("removed %s keyword %q", table, pattern)), nil
}

type listResult struct {
	Exact    []keyword.Entry `json:"exact,omitempty"`
	Contains []keyword.Entry `json:"contains,omitempty"`
}

func (s *Server) handleList(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	st := s.keywords.State()
	out := listResult{Exact: st.Exact, Contains: st.Contains}

	if name := req.GetString("table", ""); name != "" {
		table, err := keyword.ParseTable(name)
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		if table == keyword.Exact {
			out.Contains = nil
		} else {
			out.Exact = nil
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode keyword list: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (s *Server) handleGroupToggle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	groupID, err := req.RequireString("group_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	enabled, err := req.RequireBool("enabled")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	changed, err := s.keywords.SetGroupEnabled(ctx, groupID, enabled)
	if err != nil {
		slog.Error("mcp.group_toggle", "group", groupID, "error", err)
		return mcpgo.NewToolResultError("failed to save group scope"), nil
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	if !changed {
		return mcpgo.NewToolResultText(fmt.Sprintf("group %s already %s", groupID, state)), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("group %s %s", groupID, state)), nil
}
