package docsession

import "time"

// Frame types sent to peers.
const (
	FrameSync      = "sync"
	FrameAwareness = "awareness"
	FrameSessions  = "sessions"
	FrameError     = "error"
)

// Cursor is a selection in the document; anchor == head is a caret.
type Cursor struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

// Editor is one participant's presence in a session.
type Editor struct {
	AgentID     string  `json:"agentId"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Environment string  `json:"environment"`
	Color       string  `json:"color"`
	Cursor      *Cursor `json:"cursor,omitempty"`
	IsTyping    bool    `json:"isTyping"`
}

// Info describes a session for listings.
type Info struct {
	Path         string    `json:"path"`
	Editors      []Editor  `json:"editors"`
	Sockets      int       `json:"sockets"`
	UpdateCount  int       `json:"updateCount"`
	Length       int       `json:"length"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// SyncFrame carries the full document state to a joining peer.
type SyncFrame struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Snapshot []byte `json:"snapshot"` // base64 in JSON
}

// AwarenessFrame carries the session roster after a presence change.
type AwarenessFrame struct {
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	UpdatedBy string   `json:"updatedBy"`
	Editors   []Editor `json:"editors"`
}

// SessionsFrame lists every open session.
type SessionsFrame struct {
	Type     string `json:"type"`
	Sessions []Info `json:"sessions"`
}

// ErrorFrame reports a session-level fault to one peer.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: msg}
}

// Peer is one connected socket. Send methods must not block; a peer that
// cannot keep up is expected to drop itself.
type Peer interface {
	ID() string
	SendFrame(frame any)
	SendUpdate(update []byte)
}
