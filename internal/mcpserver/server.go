// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the publish pipeline to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pinpress/internal/apperr"
	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/records"
)

// GuideURI identifies the publishing guide resource.
const GuideURI = "pinpress://publishing-guide"

// Server wraps the MCP server with pinpress tools.
type Server struct {
	mcp *server.MCPServer
	svc *publish.Service
}

// New creates a new MCP server with all pinpress tools registered.
func New(svc *publish.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"pinpress",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("publish_markdown",
		mcp.WithDescription("Render Markdown into a standalone HTML page, pin it on the IPFS node "+
			"and record it in the publication history. Returns the record with its CID and gateway URL. "+
			"Read the pinpress://publishing-guide resource for the supported Markdown."),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Markdown source of the page")),
		mcp.WithString("title", mcp.Description("Page title; derived from front matter or the first heading when omitted")),
	), s.publishMarkdown)

	s.mcp.AddTool(mcp.NewTool("republish",
		mcp.WithDescription("Edit a publication and upload the new page. The record keeps its id and "+
			"creation date and points at the new CID. The old CID stays on the network."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("markdown", mcp.Description("New Markdown; omitted keeps the stored content")),
		mcp.WithString("title", mcp.Description("New title; omitted keeps the stored title")),
		mcp.WithString("etag", mcp.Description("ETag from get_publication; rejects the edit if the record changed since")),
	), s.republish)

	s.mcp.AddTool(mcp.NewTool("list_publications",
		mcp.WithDescription("List the publication history, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (0 for all)")),
	), s.listPublications)

	s.mcp.AddTool(mcp.NewTool("get_publication",
		mcp.WithDescription("Read one publication including its Markdown source and ETag."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getPublication)

	s.mcp.AddTool(mcp.NewTool("delete_publication",
		mcp.WithDescription("Remove a publication from the history. Pinned content is not unpinned."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.deletePublication)

	s.mcp.AddTool(mcp.NewTool("render_preview",
		mcp.WithDescription("Render Markdown into the HTML page that publish_markdown would upload, without uploading."),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Markdown source of the page")),
		mcp.WithString("title", mcp.Description("Page title")),
	), s.renderPreview)

	s.mcp.AddTool(mcp.NewTool("node_status",
		mcp.WithDescription("Check whether the IPFS node answers and show the API endpoint and gateway in use."),
	), s.nodeStatus)

	// Resource: publishing guide.
	s.mcp.AddResource(
		mcp.NewResource(GuideURI, "Publishing Guide",
			mcp.WithResourceDescription("Markdown features and conventions supported by the page renderer."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

// publication is the tool view of a record. Timestamps are Unix milliseconds.
type publication struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"`
	CID       string `json:"cid"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	ETag      string `json:"etag"`
}

func toPublication(r *records.Record, withContent bool) publication {
	p := publication{
		ID:        r.ID,
		Title:     r.Title,
		CID:       r.CID,
		URL:       r.URL,
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
		ETag:      r.ETag(),
	}
	if withContent {
		p.Content = r.Content
	}
	return p
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("publication not found")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("publication changed since the etag was read; fetch it again")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

// optionalString returns nil when the argument was not supplied.
func optionalString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func (s *Server) publishMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	markdown, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Publish(ctx, publish.Input{
		Title:    req.GetString("title", ""),
		Markdown: markdown,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(toPublication(rec, false)), nil
}

func (s *Server) republish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	edit := publish.Edit{
		Title:    optionalString(req, "title"),
		Markdown: optionalString(req, "markdown"),
	}
	rec, err := s.svc.Republish(ctx, id, edit, req.GetString("etag", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(toPublication(rec, false)), nil
}

func (s *Server) listPublications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.List(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if limit := req.GetInt("limit", 0); limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]publication, 0, len(list))
	for i := range list {
		out = append(out, toPublication(&list[i], false))
	}
	return jsonResult(out), nil
}

func (s *Server) getPublication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Get(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(toPublication(rec, true)), nil
}

func (s *Server) deletePublication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) renderPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	markdown, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.Preview(req.GetString("title", ""), markdown)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(page), nil
}

func (s *Server) nodeStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.NodeStatus(ctx)), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GuideURI,
			MIMEType: "text/markdown",
			Text:     PublishingGuide,
		},
	}, nil
}
