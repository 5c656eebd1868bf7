package workspace

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
)

func ttlArg(args map[string]any) time.Duration {
	ms := optionalFloat64(args, "ttl_ms", 0)
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// registerLockFile registers the lock_file tool.
func registerLockFile(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("lock_file",
			mcp.WithDescription("Take an advisory lock on a file before editing it. Denied while another agent holds a live lock; the result then names the holder and the time left. Locks expire after ttl_ms."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path (workspace-relative or absolute inside the workspace)")),
			mcp.WithNumber("ttl_ms", mcp.Description("Lock lifetime in milliseconds (default from config, capped)")),
			mcp.WithString("reason", mcp.Description("What you are about to change")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			agentID := callerAgent(ctx, args, registry)
			res, err := svc.AcquireLock(agentID, path, ttlArg(args), optionalString(args, "reason"))
			if err != nil {
				return failureResult(err)
			}
			if !res.Granted {
				holder := res.HolderName
				if holder == "" {
					holder = res.Holder
				}
				return jsonResult(failureBody{
					Reason:      string(app.ReasonLockHeld),
					Message:     fmt.Sprintf("%s is locked by %s; retry in %s", res.Path, holder, (time.Duration(res.RemainingMs) * time.Millisecond).Round(time.Second)),
					Holder:      res.Holder,
					RemainingMs: res.RemainingMs,
				})
			}
			logger.Printf("Lock: %s granted to %s", res.Path, agentID)
			return jsonResult(map[string]any{"ok": true, "lock": res})
		},
	)
}

// registerUnlockFile registers the unlock_file tool.
func registerUnlockFile(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("unlock_file",
			mcp.WithDescription("Release your lock on a file. Set handoff_to and/or message to post a handoff intent; handoff_to also unblocks work gated on your role for that role."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Locked file path")),
			mcp.WithString("handoff_to", mcp.Description("Role to hand off to"), mcp.Enum("backend", "frontend", "tester", "any")),
			mcp.WithString("message", mcp.Description("Handoff note (e.g. 'API ready')")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
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
			handoffTo, err := optionalRole(args, "handoff_to")
			if err != nil {
				return nil, err
			}
			agentID := callerAgent(ctx, args, registry)
			if err := svc.ReleaseLock(agentID, path, handoffTo, optionalString(args, "message")); err != nil {
				return failureResult(err)
			}
			logger.Printf("Lock: %s released by %s", path, agentID)
			out := map[string]any{"ok": true, "path": path}
			if handoffTo != "" {
				out["handoff_to"] = handoffTo
			}
			return jsonResult(out)
		},
	)
}

// registerCheckLocks registers the check_locks tool.
func registerCheckLocks(s *server.MCPServer, svc *app.WorkspaceService) {
	s.AddTool(
		mcp.NewTool("check_locks",
			mcp.WithDescription("Check whether a file is locked, or list every live lock when path is omitted."),
			mcp.WithString("path", mcp.Description("File path to check (optional)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw := optionalString(req.GetArguments(), "path")
			if raw == "" {
				return jsonResult(map[string]any{"ok": true, "locks": svc.ListLocks()})
			}
			path, err := svc.Policy().NormalizeResourcePath(raw)
			if err != nil {
				return nil, err
			}
			view, locked, err := svc.CheckLock(path)
			if err != nil {
				return nil, err
			}
			if !locked {
				return jsonResult(map[string]any{"ok": true, "path": path, "locked": false})
			}
			return jsonResult(map[string]any{"ok": true, "path": view.Path, "locked": true, "lock": view})
		},
	)
}

// registerRenewLock registers the renew_lock tool.
func registerRenewLock(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("renew_lock",
			mcp.WithDescription("Extend a lock you hold to now + ttl_ms."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Locked file path")),
			mcp.WithNumber("ttl_ms", mcp.Description("New lifetime in milliseconds (default from config, capped)")),
			mcp.WithString("agent_id", mcp.Description("Agent id (defaults to the agent bound to this session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			res, err := svc.RenewLock(callerAgent(ctx, args, registry), path, ttlArg(args))
			if err != nil {
				return failureResult(err)
			}
			return jsonResult(map[string]any{"ok": true, "lock": res})
		},
	)
}
