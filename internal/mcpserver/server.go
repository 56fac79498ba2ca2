// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes site build tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/typsite/internal/index"
	"github.com/starford/typsite/internal/site"
)

const routingURI = "typsite://routing-rules"

// Builder is the executor surface the tools drive.
type Builder interface {
	FromScratch(ctx context.Context) error
	CompileBatch(ctx context.Context, paths []string) error
	FilesJSON(ctx context.Context) ([]byte, error)
}

// Server wraps the MCP server with site tools.
type Server struct {
	mcp     *server.MCPServer
	cfg     *site.Config
	builder Builder
	ledger  index.OutputIndex
}

// New creates a new MCP server with all tools registered.
func New(cfg *site.Config, builder Builder, ledger index.OutputIndex, version string) *Server {
	s := &Server{cfg: cfg, builder: builder, ledger: ledger}

	s.mcp = server.NewMCPServer(
		"typsite",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("classify_path",
		mcp.WithDescription("Report what a build would do with a source file: "+
			"Noop, Passthrough, RecompileAll or CompileToPath, plus the destination."),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("Source path, absolute or relative to the project root")),
	), s.classifyPath)

	s.mcp.AddTool(mcp.NewTool("build_site",
		mcp.WithDescription("Rebuild the whole output tree from scratch."),
	), s.buildSite)

	s.mcp.AddTool(mcp.NewTool("compile_files",
		mcp.WithDescription("Recompile the given source files. A template in the list rebuilds everything."),
		mcp.WithArray("paths", mcp.Required(),
			mcp.Description("Source paths, absolute or relative to the project root"),
			mcp.WithStringItems()),
	), s.compileFiles)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("Return the files.json manifest: every content file mapped to its queried metadata."),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("outputs_for_source",
		mcp.WithDescription("List the output files last written from a source file."),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("Source path, absolute or relative to the project root")),
	), s.outputsForSource)

	s.mcp.AddResource(
		mcp.NewResource(routingURI, "Routing Rules",
			mcp.WithResourceDescription("How source files map onto the output tree."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRoutingRules,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.cfg.ProjectRoot, filepath.FromSlash(p))
}

type classification struct {
	Path        string `json:"path"`
	Action      string `json:"action"`
	Destination string `json:"destination,omitempty"`
}

func (s *Server) classifyPath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := s.abs(p)
	action, err := site.Classify(path, s.cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(classification{
		Path:        path,
		Action:      action.Kind.String(),
		Destination: action.Destination,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildSite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	if err := s.builder.FromScratch(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ledger.Count()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("built %d outputs in %s", n, time.Since(start).Round(time.Millisecond))), nil
}

func (s *Server) compileFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(raw) == 0 {
		return mcp.NewToolResultError("paths must not be empty"), nil
	}
	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		path := s.abs(p)
		if !s.cfg.Watched(path) {
			return mcp.NewToolResultError(fmt.Sprintf("not under content or template root: %s", p)), nil
		}
		paths = append(paths, path)
	}
	if err := s.builder.CompileBatch(ctx, paths); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("compiled %d files", len(paths))), nil
}

func (s *Server) listFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.builder.FilesJSON(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) outputsForSource(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := s.ledger.BySource(s.abs(p))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no outputs recorded"), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readRoutingRules(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      routingURI,
			MIMEType: "text/markdown",
			Text:     RoutingRules,
		},
	}, nil
}
