// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes monologue tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/journal"
	"github.com/starford/monologue/internal/targets"
)

const contractURI = "monologue://entry-format"

// Server wraps the MCP server with monologue tools.
type Server struct {
	mcp *server.MCPServer
	svc *journal.Service
}

// New creates a new MCP server with all monologue tools registered.
func New(svc *journal.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Monologue",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_entries",
		mcp.WithDescription("Full-text search through archived entries."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchEntries)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List archived entries, newest first, one 'date  subject' per line."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to list (default 50)")),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read an archived entry, headers included."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Entry date, YYYY-MM-DD")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("entry_info",
		mcp.WithDescription("Parse an entry and report its subject, archive state and the remote ids a publish would update."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Entry markdown following the monologue entry format")),
	), s.entryInfo)

	s.mcp.AddTool(mcp.NewTool("check_links",
		mcp.WithDescription("List internal content-service links that would leak into published text."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown to check")),
	), s.checkLinks)

	s.mcp.AddTool(mcp.NewTool("publish_entry",
		mcp.WithDescription("Publish an entry to the configured targets. "+
			"Content MUST follow the entry format contract (get_entry_contract or the "+
			contractURI+" resource). Set dry_run to preview without side effects."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Entry markdown")),
		mcp.WithArray("targets", mcp.WithStringItems(), mcp.Description("Target names; empty means all configured")),
		mcp.WithBoolean("dry_run", mcp.Description("Preview only; nothing is sent or archived")),
		mcp.WithBoolean("canvas", mcp.Description("Post to chat as a canvas instead of a message")),
	), s.publishEntry)

	s.mcp.AddTool(mcp.NewTool("publish_history",
		mcp.WithDescription("Logged publish attempts, newest first."),
		mcp.WithString("date", mcp.Description("Entry date, YYYY-MM-DD; empty for every entry")),
	), s.publishHistory)

	s.mcp.AddTool(mcp.NewTool("get_entry_contract",
		mcp.WithDescription("Returns the monologue entry format contract. "+
			"Call this before drafting entries to ensure correct structure."),
	), s.getEntryContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Entry Format Contract",
			mcp.WithResourceDescription("Markdown entry layouts monologue parses and archives."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, _, err := s.svc.ListEntries(ctx, req.GetInt("limit", 50), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no entries archived"), nil
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.Date + "  " + r.Subject
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.GetEntry(ctx, date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", date)), nil
	}
	return mcp.NewToolResultText(entry.Content), nil
}

func (s *Server) entryInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Info(ctx, []byte(content), "mcp")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) checkLinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	found := s.svc.Check([]byte(content))
	if len(found) == 0 {
		return mcp.NewToolResultText("no internal links found"), nil
	}
	lines := make([]string, len(found))
	for i, f := range found {
		lines[i] = fmt.Sprintf("line %d: %s", f.Line, f.URL)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) publishEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dreq := dispatch.Request{
		Targets: req.GetStringSlice("targets", nil),
		Options: targets.Options{
			DryRun:   req.GetBool("dry_run", false),
			AsCanvas: req.GetBool("canvas", false),
		},
	}
	rep, err := s.svc.Publish(ctx, []byte(content), "mcp", dreq)
	if rep == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := jsonResult(rep)
	if err != nil || !rep.OK() {
		res.IsError = true
	}
	return res, nil
}

func (s *Server) publishHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.History(ctx, req.GetString("date", ""), 50)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows), nil
}

func (s *Server) getEntryContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
