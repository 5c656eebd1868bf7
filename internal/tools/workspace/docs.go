package workspace

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/docsession"
)

// registerCreateDoc registers the create_doc tool.
func registerCreateDoc(s *server.MCPServer, svc *app.WorkspaceService, docs *docsession.Manager, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("create_doc",
			mcp.WithDescription("Open a live collaborative editing session for a file. Idempotent: an existing session is returned unchanged with created=false. Editors connect over the /collab websocket."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path the session edits")),
			mcp.WithString("initial_content", mcp.Description("Seed text for a new session")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			raw, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			path, err := svc.Policy().NormalizeResourcePath(raw)
			if err != nil {
				return nil, err
			}
			info, created, err := docs.Create(path, optionalString(args, "initial_content"))
			if err != nil {
				return nil, err
			}
			if created {
				logger.Printf("Docs: create_doc %s", path)
			}
			return jsonResult(map[string]any{"ok": true, "created": created, "session": info})
		},
	)
}

// registerListSessions registers the list_sessions tool.
func registerListSessions(s *server.MCPServer, docs *docsession.Manager) {
	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List live document sessions with their editors."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(map[string]any{"ok": true, "sessions": docs.List()})
		},
	)
}

// registerGetDocContent registers the get_doc_content tool.
func registerGetDocContent(s *server.MCPServer, svc *app.WorkspaceService, docs *docsession.Manager) {
	s.AddTool(
		mcp.NewTool("get_doc_content",
			mcp.WithDescription("Return the current plain text of a document session."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Session file path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, err := requireString(req.GetArguments(), "path")
			if err != nil {
				return nil, err
			}
			path, err := svc.Policy().NormalizeResourcePath(raw)
			if err != nil {
				return nil, err
			}
			content, err := docs.Content(path)
			if err != nil {
				return failureResult(err)
			}
			return jsonResult(map[string]any{"ok": true, "path": path, "content": content})
		},
	)
}
