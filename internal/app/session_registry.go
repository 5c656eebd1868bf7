package app

import (
	"sort"
	"sync"
	"time"
)

// SessionRegistry binds MCP client sessions to workspace agent ids so tool
// calls can resolve their caller without passing an id every time.
type SessionRegistry struct {
	mu           sync.RWMutex
	sessions     map[string]string    // sessionID → agentID
	agents       map[string]string    // agentID → sessionID (reverse lookup)
	lastActivity map[string]time.Time // sessionID → last activity timestamp
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:     make(map[string]string),
		agents:       make(map[string]string),
		lastActivity: make(map[string]time.Time),
	}
}

// SetAgent associates a session with an agent.
// If the agent was previously bound to a different session, the old mapping is removed.
func (r *SessionRegistry) SetAgent(sessionID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldSID, ok := r.agents[agentID]; ok && oldSID != sessionID {
		delete(r.sessions, oldSID)
		delete(r.lastActivity, oldSID)
	}
	if oldAgent, ok := r.sessions[sessionID]; ok && oldAgent != agentID {
		delete(r.agents, oldAgent)
	}
	r.sessions[sessionID] = agentID
	r.agents[agentID] = sessionID
	r.lastActivity[sessionID] = time.Now()
}

// GetAgent returns the agent id for a session, or "" if unknown.
func (r *SessionRegistry) GetAgent(sessionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// GetSessionForAgent returns the session ID bound to an agent, or "" if none.
func (r *SessionRegistry) GetSessionForAgent(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID]
}

// ConnectedAgents returns the ids of agents with a bound session, sorted.
func (r *SessionRegistry) ConnectedAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]string, 0, len(r.agents))
	for a := range r.agents {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	return agents
}

// TouchSession records activity for a session (call on each tool invocation).
func (r *SessionRegistry) TouchSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		r.lastActivity[sessionID] = time.Now()
	}
}

// LastActivity returns the last tool call time for a session, or zero.
func (r *SessionRegistry) LastActivity(sessionID string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity[sessionID]
}

// RemoveSession unregisters a session and returns the agent it was bound to.
func (r *SessionRegistry) RemoveSession(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	agentID, ok := r.sessions[sessionID]
	if ok && r.agents[agentID] == sessionID {
		delete(r.agents, agentID)
	}
	delete(r.sessions, sessionID)
	delete(r.lastActivity, sessionID)
	return agentID
}

// RemoveAgent drops any session bound to agentID (after leave_workspace).
func (r *SessionRegistry) RemoveAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sid, ok := r.agents[agentID]; ok {
		delete(r.sessions, sid)
		delete(r.lastActivity, sid)
	}
	delete(r.agents, agentID)
}

// AgentCount returns the number of agents with a bound session.
func (r *SessionRegistry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
