// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note tree to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/vault"
)

const contractURI = "arbor://note-format"

// Vault is the subset of the vault service exposed as tools.
type Vault interface {
	GetNote(ctx context.Context, fname string) (vault.NoteView, error)
	Children(ctx context.Context, fname string) ([]vault.NoteSummary, error)
	CreateNote(ctx context.Context, fname, body string) (vault.NoteView, error)
	MatchSchema(ctx context.Context, fname string) (vault.SchemaView, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
	WriteOutline(w io.Writer, fname string) error
}

// Server wraps the MCP server with note tree tools.
type Server struct {
	mcp *server.MCPServer
	svc Vault
}

// New creates a new MCP server with all tools registered.
func New(svc Vault, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Arbor",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note bodies, titles and names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read a note by dotted name, with its parent, children and schema."),
		mcp.WithString("fname", mcp.Required(), mcp.Description("Dotted note name (e.g. work.proj.alpha)")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the direct children of a note. Stubs are marked."),
		mcp.WithString("fname", mcp.Description("Dotted note name (empty for the root)")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Render the note hierarchy below a note as an indented outline."),
		mcp.WithString("fname", mcp.Description("Subtree root (empty for the whole vault)")),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("match_schema",
		mcp.WithDescription("Report which schema a dotted name falls under."),
		mcp.WithString("fname", mcp.Required(), mcp.Description("Dotted note name to resolve")),
	), s.matchSchema)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note at a dotted name. Missing ancestors become stubs. "+
			"An empty body takes the schema template when one exists. Read the contract first via "+
			"the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("fname", mcp.Required(), mcp.Description("Dotted name for the new note")),
		mcp.WithString("body", mcp.Description("Markdown body (empty to use the schema template)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note naming and format contract. "+
			"Call this before creating notes to ensure correct placement."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How dotted names, stubs and schemas shape the note tree."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(fname string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", fname))
	}
	return mcp.NewToolResultError(err.Error())
}

// optionalString returns the named argument or "" when absent.
func optionalString(req mcp.CallToolRequest, name string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return ""
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fname, err := req.RequireString("fname")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, fname)
	if err != nil {
		return toolError(fname, err), nil
	}
	return jsonResult(note)
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fname := optionalString(req, "fname")
	kids, err := s.svc.Children(ctx, fname)
	if err != nil {
		return toolError(fname, err), nil
	}
	if len(kids) == 0 {
		return mcp.NewToolResultText("no children"), nil
	}
	lines := make([]string, len(kids))
	for i, k := range kids {
		lines[i] = k.Fname
		if k.Stub {
			lines[i] += " (stub)"
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getTree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fname := optionalString(req, "fname")
	var b strings.Builder
	if err := s.svc.WriteOutline(&b, fname); err != nil {
		return toolError(fname, err), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) matchSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fname, err := req.RequireString("fname")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sch, err := s.svc.MatchSchema(ctx, fname)
	if err != nil {
		return toolError(fname, err), nil
	}
	return jsonResult(sch)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fname, err := req.RequireString("fname")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, fname, optionalString(req, "body"))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", fname)), nil
		}
		return toolError(fname, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", note.Fname, note.ID)), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
