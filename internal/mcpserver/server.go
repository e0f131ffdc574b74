// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Inkwell tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/inkwell/internal/api"
	"github.com/starford/inkwell/internal/apperr"
)

const contractURI = "inkwell://note-format"

// Server wraps the MCP server with Inkwell tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
}

// New creates a new MCP server with all Inkwell tools registered.
func New(svc *api.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Inkwell",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List all notebooks with the names of their notes."),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Replace the content of an existing note and save it."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool("create_notebook",
		mcp.WithDescription("Create an empty notebook."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook name")),
	), s.createNotebook)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note in a notebook. Read the contract first via "+
			"the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("content", mcp.Description("Initial Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("sync_notes",
		mcp.WithDescription("Save pending changes, commit them and synchronise with the remote."),
	), s.syncNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns how notes are named, laid out and formatted."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Contract",
			mcp.WithResourceDescription("How notes are named, laid out and formatted."),
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

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s (%s)", err.Error(), apperr.KindName(err)))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotebooks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListNotebooks()), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebook, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, notebook, name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebook, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.UpdateNote(ctx, notebook, name, content)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", note.Path)), nil
}

func (s *Server) createNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nb, err := s.svc.CreateNotebook(ctx, name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s/", nb.Dir)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebook, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	create := api.CreateNoteRequest{Name: name}
	if content := req.GetString("content", ""); content != "" {
		create.Content = &content
	}
	note, err := s.svc.CreateNote(ctx, notebook, create)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Path)), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) syncNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Sync(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep), nil
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
