package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/journal"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/targets"
	"github.com/starford/monologue/internal/testutil"
)

const (
	pageURL = "https://notion.so/ws/0123456789abcdef0123456789abcdef"
	entryMD = "# 2025-02-07: Weekly notes\n\n## Intro\n\nA uniqueword lives here.\n"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	_, files, store := testutil.TestArchive(t)
	db := testutil.TestDB(t)
	d := dispatch.New(store, []targets.Target{
		testutil.NewTarget("notion", pageURL),
		testutil.NewTarget("slack", "C1:1700000000.000100"),
	},
		dispatch.WithLogger(testutil.Logger()),
		dispatch.WithObserver(index.NewRecorder(db, files, testutil.Logger())),
	)
	return New(journal.NewService(store, db, d, links.NewRewriter("ws")), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so dispatch to the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_entries":
		result, err = srv.searchEntries(ctx, req)
	case "list_entries":
		result, err = srv.listEntries(ctx, req)
	case "read_entry":
		result, err = srv.readEntry(ctx, req)
	case "entry_info":
		result, err = srv.entryInfo(ctx, req)
	case "check_links":
		result, err = srv.checkLinks(ctx, req)
	case "publish_entry":
		result, err = srv.publishEntry(ctx, req)
	case "publish_history":
		result, err = srv.publishHistory(ctx, req)
	case "get_entry_contract":
		result, err = srv.getEntryContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPublishAndReadEntry(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "publish_entry", map[string]any{"content": entryMD})
	if r.IsError {
		t.Fatalf("publish failed: %s", resultText(r))
	}
	var rep dispatch.Report
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Results) != 2 || rep.ArchiveOutcome != "created" {
		t.Errorf("report = %+v", rep)
	}

	r = callTool(t, srv, "read_entry", map[string]any{"date": "2025-02-07"})
	text := resultText(r)
	if !strings.HasPrefix(text, "Notion-Id: "+pageURL+"\n") {
		t.Errorf("read result = %q", text)
	}
	if !strings.Contains(text, "Slack-Id: C1:1700000000.000100") {
		t.Errorf("slack id missing from %q", text)
	}
}

func TestPublishDryRunSelectedTarget(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "publish_entry", map[string]any{
		"content": entryMD,
		"targets": []any{"slack"},
		"dry_run": true,
	})
	var rep dispatch.Report
	_ = json.Unmarshal([]byte(resultText(r)), &rep)
	if len(rep.Results) != 1 || rep.Results[0].Status != targets.StatusPreviewed {
		t.Errorf("report = %+v", rep)
	}

	r = callTool(t, srv, "read_entry", map[string]any{"date": "2025-02-07"})
	if !r.IsError {
		t.Error("dry run archived the entry")
	}
}

func TestPublishRejectsBadEntry(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "publish_entry", map[string]any{"content": "no heading\n"})
	if !r.IsError {
		t.Error("expected error for unparseable entry")
	}
}

func TestListSearchHistory(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "list_entries", map[string]any{})
	if resultText(r) != "no entries archived" {
		t.Errorf("empty list = %q", resultText(r))
	}

	_ = callTool(t, srv, "publish_entry", map[string]any{"content": entryMD})

	r = callTool(t, srv, "list_entries", map[string]any{"limit": 5})
	if resultText(r) != "2025-02-07  2025-02-07: Weekly notes" {
		t.Errorf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "search_entries", map[string]any{"query": "uniqueword"})
	if !strings.Contains(resultText(r), `"date": "2025-02-07"`) {
		t.Errorf("search = %q", resultText(r))
	}

	r = callTool(t, srv, "publish_history", map[string]any{"date": "2025-02-07"})
	var rows []index.PublishRow
	_ = json.Unmarshal([]byte(resultText(r)), &rows)
	if len(rows) != 2 {
		t.Errorf("history = %+v", rows)
	}
}

func TestEntryInfo(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "entry_info", map[string]any{"content": entryMD})
	if r.IsError {
		t.Fatal(resultText(r))
	}
	var info journal.Info
	_ = json.Unmarshal([]byte(resultText(r)), &info)
	if info.Subject != "2025-02-07: Weekly notes" {
		t.Errorf("subject = %q", info.Subject)
	}
}

func TestCheckLinks(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "check_links", map[string]any{"content": "ok " + pageURL})
	if resultText(r) != "no internal links found" {
		t.Errorf("clean = %q", resultText(r))
	}

	r = callTool(t, srv, "check_links", map[string]any{"content": "x\nnotion://www.notion.so/Page-0123456789abcdef0123456789abcdef"})
	if !strings.HasPrefix(resultText(r), "line 2: notion://") {
		t.Errorf("finding = %q", resultText(r))
	}
}

func TestReadEntryMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_entry", map[string]any{"date": "2024-01-01"})
	if !r.IsError {
		t.Error("expected error for missing entry")
	}
}

func TestContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_entry_contract", nil)
	if !strings.Contains(resultText(r), "Subject: 2025-02-07: Weekly notes") {
		t.Error("contract missing archive example")
	}

	res, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
}
