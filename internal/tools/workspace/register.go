// Package workspace exposes the coordination engine as MCP tools.
package workspace

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/docsession"
)

// ToolNames lists every tool Register can add.
var ToolNames = []string{
	"join_workspace", "leave_workspace", "list_agents",
	"lock_file", "unlock_file", "check_locks", "renew_lock",
	"set_target", "get_target", "create_work", "poll_work", "claim_work", "complete_work",
	"post_intent", "read_intents", "subscribe_changes", "search_intents",
	"create_doc", "list_sessions", "get_doc_content",
}

// RegisterOption configures optional dependencies for tool registration.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	docs    *docsession.Manager
	archive app.IntentArchive
	enabled func(name string) bool
}

// WithDocs enables the document session tools.
func WithDocs(m *docsession.Manager) RegisterOption {
	return func(o *registerOpts) { o.docs = m }
}

// WithArchive enables the search_intents tool.
func WithArchive(a app.IntentArchive) RegisterOption {
	return func(o *registerOpts) { o.archive = a }
}

// WithToolFilter removes tools for which enabled returns false.
func WithToolFilter(enabled func(name string) bool) RegisterOption {
	return func(o *registerOpts) { o.enabled = enabled }
}

// Register registers the workspace tools with the mcp-go server.
// Install PiggybackMiddleware on the server separately.
func Register(s *server.MCPServer, svc *app.WorkspaceService, registry *app.SessionRegistry, logger *log.Logger, opts ...RegisterOption) {
	var o registerOpts
	for _, opt := range opts {
		opt(&o)
	}

	// Agents (3)
	registerJoinWorkspace(s, svc, registry, logger)
	registerLeaveWorkspace(s, svc, registry, logger)
	registerListAgents(s, svc)

	// Locks (4)
	registerLockFile(s, svc, registry, logger)
	registerUnlockFile(s, svc, registry, logger)
	registerCheckLocks(s, svc)
	registerRenewLock(s, svc, registry)

	// Work queue (6)
	registerSetTarget(s, svc, registry, logger)
	registerGetTarget(s, svc)
	registerCreateWork(s, svc, logger)
	registerPollWork(s, svc, registry)
	registerClaimWork(s, svc, registry, logger)
	registerCompleteWork(s, svc, registry, logger)

	// Intents and change feed (3, plus search when archived)
	registerPostIntent(s, svc, registry)
	registerReadIntents(s, svc, o.archive)
	registerSubscribeChanges(s, svc)
	if o.archive != nil {
		registerSearchIntents(s, o.archive)
	}

	// Document sessions (3, optional)
	if o.docs != nil {
		registerCreateDoc(s, svc, o.docs, logger)
		registerListSessions(s, o.docs)
		registerGetDocContent(s, svc, o.docs)
	}

	if o.enabled != nil {
		var disabled []string
		for _, name := range ToolNames {
			if !o.enabled(name) {
				disabled = append(disabled, name)
			}
		}
		if len(disabled) > 0 {
			s.DeleteTools(disabled...)
			logger.Printf("Tools disabled by config: %v", disabled)
		}
	}
}
