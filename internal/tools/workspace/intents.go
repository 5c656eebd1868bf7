package workspace

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/domain"
)

// registerPostIntent registers the post_intent tool.
func registerPostIntent(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("post_intent",
			mcp.WithDescription("Tell the other agents what you are doing. A handoff intent whose target is a role unblocks that role's gated work."),
			mcp.WithString("action", mcp.Required(), mcp.Description("Kind of update"), mcp.Enum("working", "completed", "blocked", "handoff")),
			mcp.WithString("description", mcp.Required(), mcp.Description("What you are doing or what happened")),
			mcp.WithString("target", mcp.Description("File, work id or (for handoff) role the intent is about")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			actionStr, err := requireString(args, "action")
			if err != nil {
				return nil, err
			}
			action, err := domain.ParseIntentAction(actionStr)
			if err != nil {
				return nil, err
			}
			if action == domain.IntentTargetSet {
				return nil, fmt.Errorf("target_set intents are recorded by set_target")
			}
			desc, err := requireString(args, "description")
			if err != nil {
				return nil, err
			}
			in, err := svc.PostIntent(callerAgent(ctx, args, registry), action, desc, optionalString(args, "target"))
			if err != nil {
				return failureResult(err)
			}
			return jsonResult(map[string]any{"ok": true, "intent": in})
		},
	)
}

// registerReadIntents registers the read_intents tool. With an archive,
// archived=true reads the durable history instead of the capped live log.
func registerReadIntents(s *server.MCPServer, svc *app.WorkspaceService, archive app.IntentArchive) {
	s.AddTool(
		mcp.NewTool("read_intents",
			mcp.WithDescription("Read the most recent intents, oldest first."),
			mcp.WithNumber("limit", mcp.Description("How many to return (default 20)")),
			mcp.WithBoolean("archived", mcp.Description("Read the archived history, including intents trimmed from the live log (requires the journal)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			limit := int(optionalFloat64(args, "limit", 20))
			if !optionalBool(args, "archived") {
				return jsonResult(map[string]any{"ok": true, "intents": svc.ReadIntents(limit)})
			}
			if archive == nil {
				return jsonResult(failureBody{Reason: "no_archive", Message: "intent journal is not enabled"})
			}
			intents, err := archive.RecentIntents(limit)
			if err != nil {
				return nil, fmt.Errorf("read archived intents: %w", err)
			}
			if intents == nil {
				intents = []domain.Intent{}
			}
			return jsonResult(map[string]any{"ok": true, "archived": true, "intents": intents})
		},
	)
}

// registerSubscribeChanges registers the subscribe_changes tool.
func registerSubscribeChanges(s *server.MCPServer, svc *app.WorkspaceService) {
	s.AddTool(
		mcp.NewTool("subscribe_changes",
			mcp.WithDescription("Poll for workspace changes. Returns {changed:false, version} when nothing moved past since_version, otherwise a snapshot of agents, locks, recent intents and the work queue. Connected sessions also receive notifications/workspace_changed pushes."),
			mcp.WithNumber("since_version", mcp.Description("Last version you saw (default 0)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			since := optionalFloat64(req.GetArguments(), "since_version", 0)
			if since < 0 {
				since = 0
			}
			return jsonResult(svc.Changes(uint64(since)))
		},
	)
}

// registerSearchIntents registers the search_intents tool.
func registerSearchIntents(s *server.MCPServer, archive app.IntentArchive) {
	s.AddTool(
		mcp.NewTool("search_intents",
			mcp.WithDescription("Full-text search over the archived intent history, including entries that have aged out of the live log."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search words (stemmed; operators are ignored)")),
			mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			query, err := requireString(args, "query")
			if err != nil {
				return nil, err
			}
			hits, err := archive.SearchIntents(query, int(optionalFloat64(args, "limit", 10)))
			if err != nil {
				return nil, err
			}
			if hits == nil {
				hits = []domain.Intent{}
			}
			return jsonResult(map[string]any{"ok": true, "query": query, "intents": hits})
		},
	)
}
