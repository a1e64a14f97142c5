// Package mcp exposes the tool forge to MCP clients. Callers see three
// tools: create_tool, execute_tool and get_available_tools. Generated tools
// run through execute_tool and are not registered as MCP tools themselves.
package mcp

import (
	"context"

	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCP tool names.
const (
	ToolCreate    = "create_tool"
	ToolExecute   = "execute_tool"
	ToolAvailable = "get_available_tools"
)

// ToolForge is the part of the forge the server needs.
type ToolForge interface {
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) string
	GetAvailableTools(ctx context.Context, contextText string, k int) []tools.Descriptor
	DefaultK() int
}

type createInput struct {
	Name        string `json:"name" jsonschema:"identifier for the new tool, matching [a-zA-Z_][a-zA-Z0-9_]*"`
	Description string `json:"description" jsonschema:"what the new tool does"`
	Parameters  any    `json:"parameters,omitempty" jsonschema:"JSON schema of the tool arguments, as an object or JSON text"`
}

type executeInput struct {
	Name      string         `json:"name" jsonschema:"name of the tool to run"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"arguments keyed by parameter name"`
}

type availableInput struct {
	Context string `json:"context" jsonschema:"the task the caller is working on"`
	K       *int   `json:"k,omitempty" jsonschema:"maximum number of generated tools to return"`
	Format  string `json:"format,omitempty" jsonschema:"json (default), markdown or compact"`
}

// Server serves the forge over MCP.
type Server struct {
	forge    ToolForge
	renderer *ToolRenderer
	server   *mcpsdk.Server
}

// NewServer creates an MCP server backed by forge.
func NewServer(forge ToolForge, version string) *Server {
	s := &Server{
		forge:    forge,
		renderer: NewToolRenderer(),
		server:   mcpsdk.NewServer(&mcpsdk.Implementation{Name: "toolartifact", Version: version}, nil),
	}

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        ToolCreate,
		Description: "Generate a new tool from a description and store it for later use.",
	}, s.handleCreate)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        ToolExecute,
		Description: "Run a stored tool by name. create_new_tool is accepted as the bootstrap tool.",
	}, s.handleExecute)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        ToolAvailable,
		Description: "List the tools most relevant to a context, bootstrap tool first.",
	}, s.handleAvailable)

	return s
}

// Run serves a single session on transport until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	logging.MCP("Serving MCP session")
	return s.server.Run(ctx, transport)
}

// Connect starts a session on transport without blocking.
func (s *Server) Connect(ctx context.Context, transport mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

func (s *Server) handleCreate(ctx context.Context, _ *mcpsdk.CallToolRequest, in createInput) (*mcpsdk.CallToolResult, any, error) {
	timer := logging.StartTimer(logging.CategoryMCP, ToolCreate)
	defer timer.Stop()

	params := in.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := s.forge.ExecuteTool(ctx, tools.ReservedToolName, map[string]interface{}{
		tools.ParamNewToolName:        in.Name,
		tools.ParamNewToolDescription: in.Description,
		tools.ParamNewToolParameters:  params,
	})
	logging.MCPDebug("%s %s: %s", ToolCreate, in.Name, out)
	return textResult(out), nil, nil
}

func (s *Server) handleExecute(ctx context.Context, _ *mcpsdk.CallToolRequest, in executeInput) (*mcpsdk.CallToolResult, any, error) {
	timer := logging.StartTimer(logging.CategoryMCP, ToolExecute)
	defer timer.Stop()

	args := in.Arguments
	if args == nil {
		args = map[string]any{}
	}
	out := s.forge.ExecuteTool(ctx, in.Name, args)
	logging.MCPDebug("%s %s: error=%v", ToolExecute, in.Name, tools.IsError(out))
	return textResult(out), nil, nil
}

func (s *Server) handleAvailable(ctx context.Context, _ *mcpsdk.CallToolRequest, in availableInput) (*mcpsdk.CallToolResult, any, error) {
	k := s.forge.DefaultK()
	if in.K != nil {
		k = *in.K
	}
	if k < 0 {
		return textResult(tools.Errorf("k must be >= 0, got %d", k)), nil, nil
	}

	descs := s.forge.GetAvailableTools(ctx, in.Context, k)
	text, err := s.renderer.Render(descs, in.Format)
	if err != nil {
		return textResult(tools.ErrorOutcome(err)), nil, nil
	}
	logging.MCPDebug("%s k=%d returned %d", ToolAvailable, k, len(descs))
	return textResult(text), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: tools.IsError(text),
	}
}

