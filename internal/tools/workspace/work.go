package workspace

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/domain"
)

// registerSetTarget registers the set_target tool.
func registerSetTarget(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("set_target",
			mcp.WithDescription("Set the workspace goal. Queues a backend item and a frontend item that unlocks once backend completes or hands off."),
			mcp.WithString("target", mcp.Required(), mcp.Description("Goal description (e.g. 'Login')")),
			mcp.WithString("backend_task", mcp.Description("Backend item description (default 'Backend: <target>')")),
			mcp.WithString("frontend_task", mcp.Description("Frontend item description (default 'Frontend: <target>')")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			target, err := requireString(args, "target")
			if err != nil {
				return nil, err
			}
			backend, frontend, err := svc.SetTarget(callerAgent(ctx, args, registry), target,
				optionalString(args, "backend_task"), optionalString(args, "frontend_task"))
			if err != nil {
				return failureResult(err)
			}
			logger.Printf("Target set: %s (%s, %s)", target, backend.ID, frontend.ID)
			return jsonResult(map[string]any{
				"ok":               true,
				"target":           target,
				"backend_work_id":  backend.ID,
				"frontend_work_id": frontend.ID,
			})
		},
	)
}

// registerGetTarget registers the get_target tool.
func registerGetTarget(s *server.MCPServer, svc *app.WorkspaceService) {
	s.AddTool(
		mcp.NewTool("get_target",
			mcp.WithDescription("Show the current goal and the state of its work items."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			view, err := svc.GetTarget()
			if err != nil {
				return failureResult(err)
			}
			return jsonResult(map[string]any{"ok": true, "target": view})
		},
	)
}

// registerCreateWork registers the create_work tool.
func registerCreateWork(s *server.MCPServer, svc *app.WorkspaceService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("create_work",
			mcp.WithDescription("Queue a single work item for a role, optionally gated on another role's work."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
			mcp.WithString("for_role", mcp.Description("Role that should do it (default any)"), mcp.Enum("backend", "frontend", "tester", "any")),
			mcp.WithString("depends_on", mcp.Description("Role whose work must complete or hand off first"), mcp.Enum("backend", "frontend", "tester")),
			mcp.WithObject("context", mcp.Description("Free-form context for whoever picks it up")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			desc, err := requireString(args, "description")
			if err != nil {
				return nil, err
			}
			forRole, err := optionalRole(args, "for_role")
			if err != nil {
				return nil, err
			}
			dep, err := optionalRole(args, "depends_on")
			if err != nil {
				return nil, err
			}
			extra, err := optionalObject(args, "context")
			if err != nil {
				return nil, err
			}
			item, err := svc.CreateWork(desc, forRole, domain.DependencyFor(dep), extra)
			if err != nil {
				return failureResult(err)
			}
			logger.Printf("Work %s queued for %s", item.ID, item.ForRole)
			return jsonResult(map[string]any{"ok": true, "work": item})
		},
	)
}

// registerPollWork registers the poll_work tool.
func registerPollWork(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("poll_work",
			mcp.WithDescription("Get the next available work item for a role, or null. Autonomous agents get the item assigned immediately; others call claim_work."),
			mcp.WithString("role", mcp.Description("Role to poll for (defaults to your joined role)"), mcp.Enum("backend", "frontend", "tester", "any")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			role, err := optionalRole(args, "role")
			if err != nil {
				return nil, err
			}
			item, err := svc.PollWork(callerAgent(ctx, args, registry), role)
			if err != nil {
				return failureResult(err)
			}
			return jsonResult(map[string]any{"ok": true, "work": item})
		},
	)
}

// registerClaimWork registers the claim_work tool.
func registerClaimWork(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("claim_work",
			mcp.WithDescription("Claim a specific pending work item. Denied when it is not pending, meant for another role, or still gated."),
			mcp.WithString("work_id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			workID, err := requireString(args, "work_id")
			if err != nil {
				return nil, err
			}
			agentID := callerAgent(ctx, args, registry)
			item, err := svc.ClaimWork(agentID, workID)
			if err != nil {
				return failureResult(err)
			}
			logger.Printf("Work %s claimed by %s", workID, agentID)
			return jsonResult(map[string]any{"ok": true, "work": item})
		},
	)
}

// registerCompleteWork registers the complete_work tool.
func registerCompleteWork(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("complete_work",
			mcp.WithDescription("Mark a work item completed and hand off to the next role (backend -> frontend -> tester). handoff_context is merged into the next role's pending item."),
			mcp.WithString("work_id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("result", mcp.Description("Outcome summary")),
			mcp.WithObject("handoff_context", mcp.Description("Context passed to the next role's item")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			workID, err := requireString(args, "work_id")
			if err != nil {
				return nil, err
			}
			handoff, err := optionalObject(args, "handoff_context")
			if err != nil {
				return nil, err
			}
			res, err := svc.CompleteWork(callerAgent(ctx, args, registry), workID, optionalString(args, "result"), handoff)
			if err != nil {
				return failureResult(err)
			}
			logger.Printf("Work %s completed (next role: %s)", workID, res.NextRole)
			return jsonResult(map[string]any{"ok": true, "completion": res})
		},
	)
}
