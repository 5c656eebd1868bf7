package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
)

// lockWarnWindow is how close to expiry a held lock must be to be mentioned.
const lockWarnWindow = time.Minute

// suppressBannerTools lists tools whose output already shows pending work
// or locks.
var suppressBannerTools = map[string]struct{}{
	"join_workspace":    {},
	"poll_work":         {},
	"check_locks":       {},
	"subscribe_changes": {},
}

// PiggybackMiddleware returns a mcp-go ToolHandlerMiddleware that appends a
// banner to tool responses when the calling agent has pending work for its
// role or holds locks close to expiry. It also records session activity.
func PiggybackMiddleware(svc *app.WorkspaceService, registry *app.SessionRegistry) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if session := server.ClientSessionFromContext(ctx); session != nil {
				registry.TouchSession(session.SessionID())
			}

			result, err := next(ctx, req)
			if err != nil || result == nil || result.IsError {
				return result, err
			}
			if _, suppress := suppressBannerTools[req.Params.Name]; suppress {
				return result, nil
			}

			agentID := callerAgent(ctx, req.GetArguments(), registry)
			if banner := buildBanner(svc, agentID); banner != "" {
				appendBannerToResult(result, banner)
			}
			return result, nil
		}
	}
}

// buildBanner returns "" when there is nothing to report for agentID.
func buildBanner(svc *app.WorkspaceService, agentID string) string {
	if agentID == "" {
		return ""
	}
	agent, err := svc.Agent(agentID)
	if err != nil {
		return ""
	}

	var parts []string
	if pending := len(svc.PendingWork(agent.Role)); pending > 0 && agent.CurrentTask == "" {
		parts = append(parts, fmt.Sprintf("%d pending work item(s) for %s (poll_work)", pending, agent.Role))
	}
	expiring := 0
	for _, l := range svc.ListLocks() {
		if l.Holder == agentID && time.Duration(l.RemainingMs)*time.Millisecond <= lockWarnWindow {
			expiring++
		}
	}
	if expiring > 0 {
		parts = append(parts, fmt.Sprintf("%d lock(s) expiring within %s (renew_lock)", expiring, lockWarnWindow))
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n\n---\nYou have " + strings.Join(parts, " and ") + "."
}

// appendBannerToResult appends text to the last text content block, or adds a new one.
func appendBannerToResult(result *mcp.CallToolResult, banner string) {
	for i := len(result.Content) - 1; i >= 0; i-- {
		if tc, ok := result.Content[i].(mcp.TextContent); ok {
			result.Content[i] = mcp.TextContent{
				Annotated: tc.Annotated,
				Type:      "text",
				Text:      tc.Text + banner,
			}
			return
		}
	}
	result.Content = append(result.Content, mcp.TextContent{
		Type: "text",
		Text: banner,
	})
}
