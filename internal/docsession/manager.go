package docsession

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for a path with no session.
	ErrNotFound = errors.New("document session not found")
	// ErrNotJoined is returned when a peer acts on a session it has not joined.
	ErrNotJoined = errors.New("not joined")
	// ErrAlreadyJoined is returned when a peer joins a second time.
	ErrAlreadyJoined = errors.New("already joined")
)

const defaultIdleWindow = 60 * time.Second

// JoinRequest is a peer's join frame.
type JoinRequest struct {
	Path        string
	AgentID     string
	Name        string
	Role        string
	Environment string
}

// AwarenessPatch holds the presence fields a peer wants to change; nil
// fields are left alone.
type AwarenessPatch struct {
	Cursor   *Cursor
	IsTyping *bool
}

type session struct {
	path         string
	doc          Document
	editors      map[string]*Editor // agentID → presence
	peers        map[string]Peer    // peerID → peer
	peerAgent    map[string]string  // peerID → agentID
	updateCount  int
	createdAt    time.Time
	lastActivity time.Time
}

func (s *session) roster() []Editor {
	out := make([]Editor, 0, len(s.editors))
	for _, e := range s.editors {
		c := *e
		if e.Cursor != nil {
			cur := *e.Cursor
			c.Cursor = &cur
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func (s *session) info() Info {
	return Info{
		Path:         s.path,
		Editors:      s.roster(),
		Sockets:      len(s.peers),
		UpdateCount:  s.updateCount,
		Length:       len([]rune(s.doc.String())),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

func (s *session) awarenessFrame(updatedBy string) AwarenessFrame {
	return AwarenessFrame{Type: FrameAwareness, Path: s.path, UpdatedBy: updatedBy, Editors: s.roster()}
}

func (s *session) broadcast(except string, frame any) {
	for id, p := range s.peers {
		if id != except {
			p.SendFrame(frame)
		}
	}
}

// Manager owns every document session. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	conns    map[string]Peer   // every attached peer
	joined   map[string]string // peerID → path

	newDoc   DocumentFactory
	now      func() time.Time
	idle     time.Duration
	logger   *log.Logger
	onChange func(reason string)
	normPath func(string) (string, error)
}

// Option configures the manager.
type Option func(*Manager)

// WithDocumentFactory swaps the document implementation.
func WithDocumentFactory(f DocumentFactory) Option {
	return func(m *Manager) { m.newDoc = f }
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIdleWindow sets how long a session with no sockets survives.
func WithIdleWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithChangeHook is called (under the manager lock) after every session
// mutation: create, join, update, awareness, leave and collection.
func WithChangeHook(fn func(reason string)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// WithPathNormalizer maps client-supplied paths onto session keys, so a peer
// can join with the same string it passed to create_doc.
func WithPathNormalizer(fn func(string) (string, error)) Option {
	return func(m *Manager) { m.normPath = fn }
}

// NewManager creates an empty manager.
func NewManager(logger *log.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		conns:    make(map[string]Peer),
		joined:   make(map[string]string),
		newDoc:   NewTextDocument,
		now:      time.Now,
		idle:     defaultIdleWindow,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) key(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if m.normPath == nil {
		return path, nil
	}
	return m.normPath(path)
}

// Create opens a session for path seeded with initial. If one exists it is
// returned unchanged with created == false.
func (m *Manager) Create(path, initial string) (Info, bool, error) {
	path, err := m.key(path)
	if err != nil {
		return Info{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[path]; ok {
		return s.info(), false, nil
	}
	doc, err := m.newDoc(initial)
	if err != nil {
		return Info{}, false, err
	}
	now := m.now()
	s := &session{
		path:         path,
		doc:          doc,
		editors:      make(map[string]*Editor),
		peers:        make(map[string]Peer),
		peerAgent:    make(map[string]string),
		createdAt:    now,
		lastActivity: now,
	}
	m.sessions[path] = s
	m.logger.Printf("Docs: session %s created", path)
	m.changedLocked("doc_created")
	return s.info(), true, nil
}

// Content returns the plain text of the session at path.
func (m *Manager) Content(path string) (string, error) {
	path, err := m.key(path)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return s.doc.String(), nil
}

// Get returns the descriptor of the session at path.
func (m *Manager) Get(path string) (Info, error) {
	path, err := m.key(path)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[path]
	if !ok {
		return Info{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return s.info(), nil
}

// List returns every session ordered by path.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() []Info {
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Attach registers a newly connected peer and sends it the session list.
func (m *Manager) Attach(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[p.ID()] = p
	p.SendFrame(SessionsFrame{Type: FrameSessions, Sessions: m.listLocked()})
}

// Detach forgets a closed peer, leaving its session first.
func (m *Manager) Detach(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path, ok := m.joined[p.ID()]; ok {
		m.leaveLocked(p.ID(), path)
	}
	delete(m.conns, p.ID())
}

// Join adds p to the session at req.Path, sends it the snapshot and roster
// and tells the other peers about the new roster.
func (m *Manager) Join(p Peer, req JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.joined[p.ID()]; ok {
		return ErrAlreadyJoined
	}
	path, err := m.key(req.Path)
	if err != nil {
		return err
	}
	s, ok := m.sessions[path]
	if !ok {
		return fmt.Errorf("%s: %w", req.Path, ErrNotFound)
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = p.ID()
	}
	name := req.Name
	if name == "" {
		name = agentID
	}
	s.peers[p.ID()] = p
	s.peerAgent[p.ID()] = agentID
	s.editors[agentID] = &Editor{
		AgentID:     agentID,
		Name:        name,
		Role:        req.Role,
		Environment: req.Environment,
		Color:       ColorFor(agentID),
	}
	s.lastActivity = m.now()
	m.joined[p.ID()] = path

	p.SendFrame(SyncFrame{Type: FrameSync, Path: s.path, Snapshot: s.doc.Snapshot()})
	frame := s.awarenessFrame(agentID)
	p.SendFrame(frame)
	s.broadcast(p.ID(), frame)
	m.changedLocked("doc_join")
	return nil
}

// ApplyUpdate merges a binary update from p and forwards it verbatim to
// the other peers of its session.
func (m *Manager) ApplyUpdate(p Peer, update []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sessionOfLocked(p.ID())
	if err != nil {
		return err
	}
	if err := s.doc.Apply(update); err != nil {
		return err
	}
	s.updateCount++
	s.lastActivity = m.now()
	for id, other := range s.peers {
		if id != p.ID() {
			other.SendUpdate(update)
		}
	}
	m.notifyLocked("doc_update")
	return nil
}

// UpdateAwareness merges patch into p's presence and rebroadcasts the roster.
func (m *Manager) UpdateAwareness(p Peer, patch AwarenessPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sessionOfLocked(p.ID())
	if err != nil {
		return err
	}
	agentID := s.peerAgent[p.ID()]
	e := s.editors[agentID]
	if e == nil {
		return ErrNotJoined
	}
	if patch.Cursor != nil {
		c := *patch.Cursor
		e.Cursor = &c
	}
	if patch.IsTyping != nil {
		e.IsTyping = *patch.IsTyping
	}
	s.lastActivity = m.now()
	s.broadcast(p.ID(), s.awarenessFrame(agentID))
	m.notifyLocked("doc_awareness")
	return nil
}

// Leave removes p from its session and broadcasts the new roster.
func (m *Manager) Leave(p Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.joined[p.ID()]
	if !ok {
		return ErrNotJoined
	}
	m.leaveLocked(p.ID(), path)
	return nil
}

func (m *Manager) leaveLocked(peerID, path string) {
	delete(m.joined, peerID)
	s, ok := m.sessions[path]
	if !ok {
		return
	}
	agentID := s.peerAgent[peerID]
	delete(s.peers, peerID)
	delete(s.peerAgent, peerID)
	stillHere := false
	for _, a := range s.peerAgent {
		if a == agentID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		delete(s.editors, agentID)
	}
	s.lastActivity = m.now()
	s.broadcast("", s.awarenessFrame(agentID))
	m.changedLocked("doc_leave")
}

func (m *Manager) sessionOfLocked(peerID string) (*session, error) {
	path, ok := m.joined[peerID]
	if !ok {
		return nil, ErrNotJoined
	}
	s, ok := m.sessions[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return s, nil
}

// CollectIdle deletes sessions with no sockets whose last activity is older
// than the idle window. Returns the collected paths.
func (m *Manager) CollectIdle() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.idle)
	var collected []string
	for path, s := range m.sessions {
		path, s := path, s
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Printf("Docs: GC of %s panicked: %v", path, r)
				}
			}()
			if len(s.peers) == 0 && s.lastActivity.Before(cutoff) {
				delete(m.sessions, path)
				collected = append(collected, path)
			}
		}()
	}
	if len(collected) > 0 {
		sort.Strings(collected)
		m.logger.Printf("Docs: collected %d idle session(s): %s", len(collected), strings.Join(collected, ", "))
		m.changedLocked("doc_collected")
	}
	return collected
}

// notifyLocked bumps the workspace version without resending the session
// list; content and cursor changes are too frequent for that.
func (m *Manager) notifyLocked(reason string) {
	if m.onChange != nil {
		m.onChange(reason)
	}
}

// changedLocked bumps the workspace version and pushes the session list to
// every attached peer.
func (m *Manager) changedLocked(reason string) {
	m.notifyLocked(reason)
	frame := SessionsFrame{Type: FrameSessions, Sessions: m.listLocked()}
	for _, p := range m.conns {
		p.SendFrame(frame)
	}
}
