// Package domain holds workspace coordination entities and aggregate state.
// It has no dependencies on other packages.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the part of the task an agent plays. The set is closed.
type Role string

const (
	RoleBackend  Role = "backend"
	RoleFrontend Role = "frontend"
	RoleTester   Role = "tester"
	RoleAny      Role = "any" // wildcard: matches every role
)

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBackend, RoleFrontend, RoleTester, RoleAny:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want backend, frontend, tester or any)", s)
}

// NextRole returns the role that receives a handoff after r completes its work.
// ok is false when r is the end of the chain.
func NextRole(r Role) (next Role, ok bool) {
	switch r {
	case RoleBackend:
		return RoleFrontend, true
	case RoleFrontend:
		return RoleTester, true
	}
	return "", false
}

// Matches reports whether an item targeted at r can be served by an agent playing other.
func (r Role) Matches(other Role) bool {
	return r == other || r == RoleAny || other == RoleAny
}

// AgentStatus is an agent's coordination status.
type AgentStatus string

const (
	AgentIdle         AgentStatus = "idle"
	AgentWorking      AgentStatus = "working"
	AgentWaiting      AgentStatus = "waiting"
	AgentDisconnected AgentStatus = "disconnected"
)

// Agent is a connected participant in the workspace.
type Agent struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	ClientKind  string      `json:"client_kind"` // chat, ide, terminal, ...
	Role        Role        `json:"role"`
	Status      AgentStatus `json:"status"`
	CurrentTask string      `json:"current_task,omitempty"`
	JoinedAt    time.Time   `json:"joined_at"`
	LastSeen    time.Time   `json:"last_seen"`
	Autonomous  bool        `json:"autonomous"`
}

// Lock is an advisory lock on a resource path.
type Lock struct {
	Path      string    `json:"path"`
	Holder    string    `json:"holder"` // agent id
	Client    string    `json:"client"`
	Role      Role      `json:"role"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Expired reports whether the lock is logically absent at now.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// WorkStatus is a work item's lifecycle state. Completed is terminal.
type WorkStatus string

const (
	WorkPending   WorkStatus = "pending"
	WorkAssigned  WorkStatus = "assigned"
	WorkCompleted WorkStatus = "completed"
)

// Dependency gates when a pending work item may be handed out.
// Implementations: NoDependency, DependsOnRole.
type Dependency interface {
	isDependency()
}

// NoDependency means the item is available as soon as it is pending.
type NoDependency struct{}

// DependsOnRole means the item waits for work of Role to be completed or handed off.
type DependsOnRole struct {
	Role Role
}

func (NoDependency) isDependency()  {}
func (DependsOnRole) isDependency() {}

// DependencyFor returns DependsOnRole for a non-empty role and NoDependency otherwise.
func DependencyFor(r Role) Dependency {
	if r == "" {
		return NoDependency{}
	}
	return DependsOnRole{Role: r}
}

// WorkItem is a unit of queued work targeted at a role.
type WorkItem struct {
	ID          string
	Description string
	ForRole     Role
	Status      WorkStatus
	AssignedTo  string
	CreatedAt   time.Time
	TargetID    string // set for items created together by set_target
	DependsOn   Dependency
	AssignedAt  time.Time
	CompletedAt time.Time
	Result      string
	Context     map[string]any
}

type workItemJSON struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	ForRole     Role           `json:"for_role"`
	Status      WorkStatus     `json:"status"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	TargetID    string         `json:"target_id,omitempty"`
	Result      string         `json:"result,omitempty"`
	Context     map[string]any `json:"context"`
}

// MarshalJSON renders the dependency and assignment time inside the context bag
// (dependsOn, assignedAt) the way clients expect to read them.
func (w WorkItem) MarshalJSON() ([]byte, error) {
	ctx := make(map[string]any, len(w.Context)+2)
	for k, v := range w.Context {
		ctx[k] = v
	}
	switch d := w.DependsOn.(type) {
	case DependsOnRole:
		ctx["dependsOn"] = string(d.Role)
	case NoDependency, nil:
	}
	if !w.AssignedAt.IsZero() {
		ctx["assignedAt"] = w.AssignedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(workItemJSON{
		ID:          w.ID,
		Description: w.Description,
		ForRole:     w.ForRole,
		Status:      w.Status,
		AssignedTo:  w.AssignedTo,
		CreatedAt:   w.CreatedAt,
		TargetID:    w.TargetID,
		Result:      w.Result,
		Context:     ctx,
	})
}

// IntentAction is the kind of event recorded in the intent log.
type IntentAction string

const (
	IntentWorking   IntentAction = "working"
	IntentCompleted IntentAction = "completed"
	IntentBlocked   IntentAction = "blocked"
	IntentHandoff   IntentAction = "handoff"
	IntentTargetSet IntentAction = "target_set"
)

// ParseIntentAction converts s into an IntentAction, rejecting unknown values.
func ParseIntentAction(s string) (IntentAction, error) {
	switch IntentAction(s) {
	case IntentWorking, IntentCompleted, IntentBlocked, IntentHandoff, IntentTargetSet:
		return IntentAction(s), nil
	}
	return "", fmt.Errorf("unknown intent action %q", s)
}

// Intent is one entry of the append-only status/handoff log.
type Intent struct {
	ID          int          `json:"id"`
	AgentID     string       `json:"agent_id"`
	Action      IntentAction `json:"action"`
	Description string       `json:"description"`
	Target      string       `json:"target,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Target is the most recent goal set for the workspace.
type Target struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	ItemIDs     []string  `json:"item_ids"`
	SetAt       time.Time `json:"set_at"`
}

// WorkspaceState is the aggregate coordination state.
type WorkspaceState struct {
	Agents       map[string]*Agent `json:"agents"`
	Locks        map[string]*Lock  `json:"locks"`
	Work         []*WorkItem       `json:"work"`
	Intents      []Intent          `json:"intents"`
	Handoffs     map[string]Role   `json:"handoffs"` // path -> role from unlock handoffs
	Target       *Target           `json:"target,omitempty"`
	NextIntentID int               `json:"next_intent_id"`
}

// NewWorkspaceState returns an empty WorkspaceState with maps and IDs initialized.
func NewWorkspaceState() *WorkspaceState {
	return &WorkspaceState{
		Agents:       make(map[string]*Agent),
		Locks:        make(map[string]*Lock),
		Work:         []*WorkItem{},
		Intents:      []Intent{},
		Handoffs:     make(map[string]Role),
		NextIntentID: 1,
	}
}

// FindWork returns the work item with id, or nil.
func (s *WorkspaceState) FindWork(id string) *WorkItem {
	for _, w := range s.Work {
		if w.ID == id {
			return w
		}
	}
	return nil
}
