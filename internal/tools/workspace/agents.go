package workspace

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
)

type joinResponse struct {
	OK bool `json:"ok"`
	app.JoinResult
	Hint string `json:"hint,omitempty"`
}

// registerJoinWorkspace registers the join_workspace tool.
func registerJoinWorkspace(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("join_workspace",
			mcp.WithDescription("Join the shared workspace. Returns your agent id, pending work for your role, current file locks and the agents online. Pass agent_id to re-attach after a reconnect."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Display name (e.g. 'Backend Claude')")),
			mcp.WithString("client", mcp.Description("Client kind (e.g. 'cursor', 'claude-code', 'vscode')")),
			mcp.WithString("role", mcp.Description("Your role"), mcp.Enum("backend", "frontend", "tester", "any")),
			mcp.WithBoolean("autonomous", mcp.Description("If true, poll_work assigns items to you immediately")),
			mcp.WithString("agent_id", mcp.Description("Existing agent id to re-attach to (optional)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			name, err := requireString(args, "name")
			if err != nil {
				return nil, err
			}
			role, err := optionalRole(args, "role")
			if err != nil {
				return nil, err
			}
			res, err := svc.JoinWorkspace(app.JoinRequest{
				AgentID:    optionalString(args, "agent_id"),
				Name:       name,
				Client:     optionalString(args, "client"),
				Role:       role,
				Autonomous: optionalBool(args, "autonomous"),
			})
			if err != nil {
				return failureResult(err)
			}
			if session := server.ClientSessionFromContext(ctx); session != nil && registry != nil {
				if prev := registry.GetSessionForAgent(res.Agent.ID); prev != "" && prev != session.SessionID() {
					logger.Printf("Agent %s moved from session %s", res.Agent.ID, prev)
				}
				registry.SetAgent(session.SessionID(), res.Agent.ID)
				logger.Printf("Session %s bound to agent %s", session.SessionID(), res.Agent.ID)
			}
			out := joinResponse{OK: true, JoinResult: res}
			if len(res.PendingWork) > 0 {
				out.Hint = "Call poll_work or claim_work to pick up pending items."
			}
			return jsonResult(out)
		},
	)
}

// registerLeaveWorkspace registers the leave_workspace tool.
func registerLeaveWorkspace(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("leave_workspace",
			mcp.WithDescription("Leave the workspace. Your locks stay until you release them or they expire."),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			agentID := callerAgent(ctx, req.GetArguments(), registry)
			if agentID == "" {
				return failureResult(app.ErrNoAgent)
			}
			if err := svc.LeaveWorkspace(agentID); err != nil {
				return failureResult(err)
			}
			if registry != nil {
				registry.RemoveAgent(agentID)
			}
			logger.Printf("Agent %s left", agentID)
			return jsonResult(map[string]any{"ok": true, "agent_id": agentID})
		},
	)
}

// registerListAgents registers the list_agents tool.
func registerListAgents(s *server.MCPServer, svc *app.WorkspaceService) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List every agent in the workspace with role, status and current task."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(map[string]any{"ok": true, "agents": svc.ListAgents()})
		},
	)
}
