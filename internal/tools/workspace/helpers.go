package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/docsession"
)

// failureBody is the structured result for denied, not-found and
// missing-agent outcomes.
type failureBody struct {
	OK          bool   `json:"ok"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
	Holder      string `json:"holder,omitempty"`
	RemainingMs int64  `json:"remaining_ms,omitempty"`
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// failureResult converts expected failures into {"ok":false,...} results.
// Anything else is returned as a Go error.
func failureResult(err error) (*mcp.CallToolResult, error) {
	var de *app.DeniedError
	switch {
	case errors.As(err, &de):
		return jsonResult(failureBody{
			Reason:      string(de.Reason),
			Message:     de.Message,
			Holder:      de.Holder,
			RemainingMs: de.RemainingMs,
		})
	case errors.Is(err, app.ErrNoAgent):
		return jsonResult(failureBody{
			Reason:  "no_agent",
			Message: "No agent is registered for this caller. Call join_workspace first, or pass agent_id.",
		})
	case errors.Is(err, app.ErrNotFound), errors.Is(err, docsession.ErrNotFound):
		return jsonResult(failureBody{Reason: "not_found", Message: err.Error()})
	}
	return nil, err
}

// callerAgent resolves the acting agent: an explicit agent_id argument wins,
// otherwise the agent bound to the MCP session by join_workspace.
func callerAgent(ctx context.Context, args map[string]any, registry *app.SessionRegistry) string {
	if id := optionalString(args, "agent_id"); id != "" {
		return id
	}
	if registry == nil {
		return ""
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return registry.GetAgent(session.SessionID())
	}
	return ""
}
