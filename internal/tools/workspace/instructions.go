package workspace

// InstructionsText returns the static instruction string sent to MCP clients
// during initialization.
func InstructionsText() string {
	return `You are an agent in a shared cowork workspace alongside other AI agents and humans.

## Startup

1. join_workspace name='<your name>' role='backend|frontend|tester|any' client='<your client>'
   -- keep the returned agent id; pass it as agent_id if your session reconnects
2. get_target                 -- see the current goal
3. poll_work                  -- get the next item for your role (claim_work to take it)

## While working

- lock_file before editing a file; unlock_file when done. Locks expire (ttl_ms),
  renew_lock if you need longer. A denied lock names the holder and time left.
- post_intent action='working' so others know what you touch; 'blocked' if stuck.
- complete_work when an item is done. Work flows backend -> frontend -> tester;
  handoff_context reaches the next role's item.
- unlock_file handoff_to='frontend' message='API ready' hands off early: gated
  frontend work becomes available without waiting for completion.

## Staying in sync

- subscribe_changes since_version=N returns {changed:false} or a full snapshot.
- Connected sessions also get notifications/workspace_changed pushes.
- read_intents shows recent activity; search_intents searches older history.

## Live documents

- create_doc path='f.ts' initial_content='...' opens a shared editing session.
- Editors connect to the /collab websocket and send {type:"join", path, agentId, name, role}.
- get_doc_content returns the current text; list_sessions shows who is editing.`
}
