// Package mcpserver exposes a tool.Registry over the Model Context Protocol.
//
// Every registered definition becomes an MCP tool. Argument and lookup
// failures are answered as protocol errors; anything that goes wrong inside a
// handler, panics included, is rendered as an error result so the session
// keeps serving.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petal-labs/ailang-mcp/tool"
)

// DefaultName is the implementation name announced during initialization.
const DefaultName = "ailang-tools"

// Config configures a Server.
type Config struct {
	Registry *tool.Registry
	Name     string
	Version  string
	Logger   *slog.Logger
}

// Server bridges MCP sessions to a tool registry.
type Server struct {
	server   *mcp.Server
	registry *tool.Registry
	logger   *slog.Logger
	name     string
	version  string
}

// New builds a server advertising every definition in cfg.Registry.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("mcpserver: registry is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultName
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		server:   mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		registry: cfg.Registry,
		logger:   cfg.Logger,
		name:     cfg.Name,
		version:  cfg.Version,
	}
	for _, def := range cfg.Registry.Definitions() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Input.JSONSchema(),
		}, s.handler(def.Name))
	}
	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Serve runs one session over transport until the peer disconnects or ctx is
// canceled. Cancellation is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("AILANG MCP Server running",
		slog.String("name", s.name),
		slog.String("version", s.version),
		slog.Int("tools", s.registry.Len()),
	)
	err := s.server.Run(ctx, transport)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := decodeArguments(name, raw)
		if err != nil {
			return nil, err
		}

		result, err := s.registry.Dispatch(ctx, tool.Call{Name: name, Arguments: args})
		if err != nil {
			if tool.IsProtocolError(err) {
				return nil, err
			}
			return errorResult(err), nil
		}
		return toCallToolResult(result), nil
	}
}

func decodeArguments(name string, raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &tool.Error{
			Code:    tool.ErrorCodeInvalidArguments,
			Message: fmt.Sprintf("%s: arguments must be a JSON object", name),
			Tool:    name,
			Cause:   err,
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func toCallToolResult(result tool.Result) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{Content: content}
}

func errorResult(err error) *mcp.CallToolResult {
	msg := err.Error()
	var toolErr *tool.Error
	if errors.As(err, &toolErr) && toolErr.Message != "" {
		msg = toolErr.Message
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + msg}},
	}
}
