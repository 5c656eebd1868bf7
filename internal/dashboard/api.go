// Package dashboard serves the read-only JSON API for watching the
// workspace: full state, the changes?since=N poll and an SSE push stream.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/docsession"
	"github.com/jaakkos/cowork/internal/domain"
)

const streamKeepAlive = 15 * time.Second

// StateSnapshot is the JSON response from /api/state.
type StateSnapshot struct {
	Timestamp string            `json:"timestamp"`
	Workspace string            `json:"workspace"`
	Version   uint64            `json:"version"`
	Target    *TargetSnapshot   `json:"target,omitempty"`
	Agents    []AgentSnapshot   `json:"agents"`
	Locks     []LockSnapshot    `json:"locks"`
	Work      []WorkSnapshot    `json:"work"`
	Intents   []IntentSnapshot  `json:"intents"`
	Docs      []docsession.Info `json:"docs,omitempty"`
}

// TargetSnapshot is the current goal.
type TargetSnapshot struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	ItemIDs     []string `json:"item_ids"`
	Age         string   `json:"age"`
}

// AgentSnapshot is a per-agent summary.
type AgentSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Client      string `json:"client"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CurrentTask string `json:"current_task,omitempty"`
	Autonomous  bool   `json:"autonomous,omitempty"`
	Connected   bool   `json:"connected"`
	LastSeen    string `json:"last_seen"`
}

// LockSnapshot is a per-lock summary.
type LockSnapshot struct {
	Path     string `json:"path"`
	LockedBy string `json:"locked_by"`
	Reason   string `json:"reason,omitempty"`
	Age      string `json:"age"`
	Expires  string `json:"expires"`
}

// WorkSnapshot is a per-work-item summary.
type WorkSnapshot struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	ForRole     string `json:"for_role"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	DependsOn   string `json:"depends_on,omitempty"`
	Age         string `json:"age"`
	Result      string `json:"result,omitempty"`
}

// IntentSnapshot is a per-intent summary.
type IntentSnapshot struct {
	ID          int    `json:"id"`
	AgentID     string `json:"agent_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
	Age         string `json:"age"`
}

// Streamer delivers a snapshot on every throttled push. *app.Notifier implements it.
type Streamer interface {
	AddListener(fn func(app.ChangeSet)) func()
}

// Handler holds dependencies for dashboard HTTP handlers.
type Handler struct {
	svc      *app.WorkspaceService
	registry *app.SessionRegistry
	docs     *docsession.Manager // optional
	stream   Streamer            // optional; /api/stream is 404 without it
}

// HandlerOption configures optional dependencies for the dashboard handler.
type HandlerOption func(*Handler)

// WithDocs adds document sessions to /api/state and enables /api/sessions.
func WithDocs(m *docsession.Manager) HandlerOption {
	return func(h *Handler) { h.docs = m }
}

// WithStreamer enables the /api/stream SSE endpoint.
func WithStreamer(s Streamer) HandlerOption {
	return func(h *Handler) { h.stream = s }
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *app.WorkspaceService, registry *app.SessionRegistry, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, registry: registry}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes adds dashboard routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.handleAPIState)
	mux.HandleFunc("/api/changes", h.handleAPIChanges)
	mux.HandleFunc("/api/stream", h.handleAPIStream)
	mux.HandleFunc("/api/sessions", h.handleAPISessions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (h *Handler) handleAPIChanges(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a non-negative integer"})
			return
		}
		since = v
	}
	writeJSON(w, http.StatusOK, h.svc.Changes(since))
}

func (h *Handler) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document sessions are not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.docs.List()})
}

func (h *Handler) handleAPIState(w http.ResponseWriter, r *http.Request) {
	now := h.svc.Now()
	cs := h.svc.Changes(0)
	snap := StateSnapshot{
		Timestamp: now.Format(time.RFC3339),
		Workspace: workspaceRoot(h.svc),
		Version:   cs.Version,
		Agents:    []AgentSnapshot{},
		Locks:     []LockSnapshot{},
		Work:      []WorkSnapshot{},
		Intents:   []IntentSnapshot{},
	}

	connected := make(map[string]bool)
	if h.registry != nil {
		for _, id := range h.registry.ConnectedAgents() {
			connected[id] = true
		}
	}
	if cs.Changed {
		snap.Agents = agentSnapshots(cs.Agents, connected, now)
		snap.Locks = lockSnapshots(cs.Locks, now)
		snap.Intents = intentSnapshots(cs.Intents, now)
	}
	snap.Work = workSnapshots(h.svc.ListWork(), now)
	if tv, err := h.svc.GetTarget(); err == nil {
		snap.Target = &TargetSnapshot{
			ID:          tv.ID,
			Description: tv.Description,
			ItemIDs:     tv.ItemIDs,
			Age:         relTime(tv.SetAt, now),
		}
	}
	if h.docs != nil {
		snap.Docs = h.docs.List()
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleAPIStream sends the current snapshot, then one "workspace" event per
// notifier push until the client goes away.
func (h *Handler) handleAPIStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "push stream is not enabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	updates := make(chan app.ChangeSet, 8)
	remove := h.stream.AddListener(func(cs app.ChangeSet) {
		select {
		case updates <- cs:
		default:
			// Slow reader; it will catch up on the next push.
		}
	})
	defer remove()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, h.svc.Changes(0)); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case cs := <-updates:
			if err := writeEvent(w, cs); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, cs app.ChangeSet) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: workspace\ndata: %s\n\n", cs.Version, data)
	return err
}

func workspaceRoot(svc *app.WorkspaceService) string {
	if p, ok := svc.Policy().(interface{ WorkspaceRoot() string }); ok {
		return p.WorkspaceRoot()
	}
	return ""
}

func agentSnapshots(agents []domain.Agent, connected map[string]bool, now time.Time) []AgentSnapshot {
	out := make([]AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentSnapshot{
			ID:          a.ID,
			Name:        a.DisplayName,
			Client:      a.ClientKind,
			Role:        string(a.Role),
			Status:      string(a.Status),
			CurrentTask: a.CurrentTask,
			Autonomous:  a.Autonomous,
			Connected:   connected[a.ID],
			LastSeen:    relTime(a.LastSeen, now),
		})
	}
	return out
}

func lockSnapshots(locks []app.LockView, now time.Time) []LockSnapshot {
	out := make([]LockSnapshot, 0, len(locks))
	for _, l := range locks {
		out = append(out, LockSnapshot{
			Path:     l.Path,
			LockedBy: l.Holder,
			Reason:   truncate(l.Reason, 80),
			Age:      relTime(l.LockedAt, now),
			Expires:  "in " + (time.Duration(l.RemainingMs) * time.Millisecond).Round(time.Second).String(),
		})
	}
	return out
}

func workSnapshots(items []domain.WorkItem, now time.Time) []WorkSnapshot {
	out := make([]WorkSnapshot, 0, len(items))
	for _, w := range items {
		ws := WorkSnapshot{
			ID:          w.ID,
			Description: truncate(w.Description, 120),
			ForRole:     string(w.ForRole),
			Status:      string(w.Status),
			AssignedTo:  w.AssignedTo,
			Age:         relTime(w.CreatedAt, now),
			Result:      truncate(w.Result, 120),
		}
		if d, ok := w.DependsOn.(domain.DependsOnRole); ok {
			ws.DependsOn = string(d.Role)
		}
		out = append(out, ws)
	}
	return out
}

func intentSnapshots(intents []domain.Intent, now time.Time) []IntentSnapshot {
	out := make([]IntentSnapshot, 0, len(intents))
	for i := len(intents) - 1; i >= 0; i-- { // newest first
		in := intents[i]
		out = append(out, IntentSnapshot{
			ID:          in.ID,
			AgentID:     in.AgentID,
			Action:      string(in.Action),
			Description: truncate(in.Description, 200),
			Target:      in.Target,
			Age:         relTime(in.Timestamp, now),
		})
	}
	return out
}

func relTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return t.Format("Jan 2 15:04")
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
