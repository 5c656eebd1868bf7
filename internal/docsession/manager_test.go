package docsession

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaakkos/cowork/internal/crdt"
)

type fakePeer struct {
	id      string
	mu      sync.Mutex
	frames  []any
	updates [][]byte
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) SendFrame(frame any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
}

func (p *fakePeer) SendUpdate(update []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
}

func (p *fakePeer) lastAwareness(t *testing.T) AwarenessFrame {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.frames) - 1; i >= 0; i-- {
		if f, ok := p.frames[i].(AwarenessFrame); ok {
			return f
		}
	}
	t.Fatalf("peer %s got no awareness frame", p.id)
	return AwarenessFrame{}
}

func (p *fakePeer) sync(t *testing.T) SyncFrame {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if s, ok := f.(SyncFrame); ok {
			return s
		}
	}
	t.Fatalf("peer %s got no sync frame", p.id)
	return SyncFrame{}
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestManager(opts ...Option) (*Manager, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithNow(clock.Now)}, opts...)
	return NewManager(log.New(io.Discard, "", 0), opts...), clock
}

func snapshotText(t *testing.T, snap []byte) string {
	t.Helper()
	doc := crdt.NewText("reader")
	require.NoError(t, doc.Apply(snap))
	return doc.String()
}

func TestCreate_Idempotent(t *testing.T) {
	var reasons []string
	m, _ := newTestManager(WithChangeHook(func(r string) { reasons = append(reasons, r) }))

	info, created, err := m.Create("f.ts", "hello")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 5, info.Length)

	info, created, err = m.Create("f.ts", "something else")
	require.NoError(t, err)
	assert.False(t, created)
	content, err := m.Content("f.ts")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, []string{"doc_created"}, reasons)

	_, _, err = m.Create(" ", "")
	assert.Error(t, err)
}

func TestJoin_SyncAndRoster(t *testing.T) {
	m, _ := newTestManager()
	_, _, err := m.Create("f.ts", "hello")
	require.NoError(t, err)

	c1, c2 := newPeer("c1"), newPeer("c2")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "f.ts", AgentID: "a1", Name: "alice", Role: "backend", Environment: "ide"}))
	assert.Equal(t, "hello", snapshotText(t, c1.sync(t).Snapshot))

	require.NoError(t, m.Join(c2, JoinRequest{Path: "f.ts", AgentID: "a2", Name: "bob", Role: "frontend", Environment: "terminal"}))
	assert.Equal(t, "hello", snapshotText(t, c2.sync(t).Snapshot))

	roster := c2.lastAwareness(t)
	require.Len(t, roster.Editors, 2)
	assert.Equal(t, "a1", roster.Editors[0].AgentID)
	assert.Equal(t, ColorFor("a1"), roster.Editors[0].Color)

	// c1 hears about c2 joining.
	update := c1.lastAwareness(t)
	assert.Equal(t, "a2", update.UpdatedBy)
	assert.Len(t, update.Editors, 2)

	assert.ErrorIs(t, m.Join(c1, JoinRequest{Path: "f.ts"}), ErrAlreadyJoined)
}

func TestJoin_MissingSession(t *testing.T) {
	m, _ := newTestManager()
	err := m.Join(newPeer("c1"), JoinRequest{Path: "nope.ts"})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, m.List())
}

func TestApplyUpdate_ForwardsToOthersOnly(t *testing.T) {
	m, _ := newTestManager()
	_, _, _ = m.Create("f.ts", "hello")
	c1, c2 := newPeer("c1"), newPeer("c2")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "f.ts", AgentID: "a1"}))
	require.NoError(t, m.Join(c2, JoinRequest{Path: "f.ts", AgentID: "a2"}))

	local := crdt.NewText("a1")
	require.NoError(t, local.Apply(c1.sync(t).Snapshot))
	u, err := local.Insert(5, " world")
	require.NoError(t, err)

	require.NoError(t, m.ApplyUpdate(c1, u))
	content, _ := m.Content("f.ts")
	assert.Equal(t, "hello world", content)
	assert.Empty(t, c1.updates)
	require.Len(t, c2.updates, 1)
	assert.Equal(t, u, c2.updates[0])

	info, _ := m.Get("f.ts")
	assert.Equal(t, 1, info.UpdateCount)

	assert.ErrorIs(t, m.ApplyUpdate(newPeer("stranger"), u), ErrNotJoined)
	assert.ErrorIs(t, m.ApplyUpdate(c1, []byte("garbage")), crdt.ErrMalformed)
}

func TestUpdateAwareness_MergesFields(t *testing.T) {
	m, _ := newTestManager()
	_, _, _ = m.Create("f.ts", "")
	c1, c2 := newPeer("c1"), newPeer("c2")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "f.ts", AgentID: "a1"}))
	require.NoError(t, m.Join(c2, JoinRequest{Path: "f.ts", AgentID: "a2"}))

	typing := true
	require.NoError(t, m.UpdateAwareness(c1, AwarenessPatch{Cursor: &Cursor{Anchor: 2, Head: 4}}))
	require.NoError(t, m.UpdateAwareness(c1, AwarenessPatch{IsTyping: &typing}))

	frame := c2.lastAwareness(t)
	assert.Equal(t, "a1", frame.UpdatedBy)
	var a1 Editor
	for _, e := range frame.Editors {
		if e.AgentID == "a1" {
			a1 = e
		}
	}
	require.NotNil(t, a1.Cursor)
	assert.Equal(t, Cursor{Anchor: 2, Head: 4}, *a1.Cursor)
	assert.True(t, a1.IsTyping)
}

func TestLeaveAndCollectIdle(t *testing.T) {
	var reasons []string
	m, clock := newTestManager(WithChangeHook(func(r string) { reasons = append(reasons, r) }))
	_, _, _ = m.Create("busy.ts", "")
	_, _, _ = m.Create("quiet.ts", "")
	c1, c2 := newPeer("c1"), newPeer("c2")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "busy.ts", AgentID: "a1"}))
	require.NoError(t, m.Join(c2, JoinRequest{Path: "busy.ts", AgentID: "a2"}))

	require.NoError(t, m.Leave(c2))
	roster := c1.lastAwareness(t)
	assert.Len(t, roster.Editors, 1)
	assert.ErrorIs(t, m.Leave(c2), ErrNotJoined)

	clock.t = clock.t.Add(30 * time.Second)
	assert.Empty(t, m.CollectIdle())

	clock.t = clock.t.Add(31 * time.Second)
	assert.Equal(t, []string{"quiet.ts"}, m.CollectIdle())

	m.Detach(c1)
	clock.t = clock.t.Add(61 * time.Second)
	assert.Equal(t, []string{"busy.ts"}, m.CollectIdle())
	assert.Empty(t, m.List())
	assert.Equal(t, []string{
		"doc_created", "doc_created", "doc_join", "doc_join", "doc_leave",
		"doc_collected", "doc_leave", "doc_collected",
	}, reasons)

	_, err := m.Content("busy.ts")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeHook_EverySessionMutation(t *testing.T) {
	var reasons []string
	m, _ := newTestManager(WithChangeHook(func(r string) { reasons = append(reasons, r) }))
	_, _, err := m.Create("f.ts", "hello")
	require.NoError(t, err)
	c1, c2 := newPeer("c1"), newPeer("c2")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "f.ts", AgentID: "a1"}))
	require.NoError(t, m.Join(c2, JoinRequest{Path: "f.ts", AgentID: "a2"}))

	local := crdt.NewText("a1")
	require.NoError(t, local.Apply(c1.sync(t).Snapshot))
	u, err := local.Insert(0, ">")
	require.NoError(t, err)
	require.NoError(t, m.ApplyUpdate(c1, u))
	typing := true
	require.NoError(t, m.UpdateAwareness(c2, AwarenessPatch{IsTyping: &typing}))
	require.NoError(t, m.Leave(c2))

	assert.Equal(t, []string{"doc_created", "doc_join", "doc_join", "doc_update", "doc_awareness", "doc_leave"}, reasons)

	// Rejected operations do not move the version.
	_ = m.ApplyUpdate(c1, []byte("garbage"))
	_ = m.Join(c1, JoinRequest{Path: "f.ts"})
	assert.Len(t, reasons, 6)
}

func TestPathNormalizer_JoinMatchesCreate(t *testing.T) {
	clean := func(p string) (string, error) {
		p = strings.TrimPrefix(p, "/ws/")
		return strings.TrimPrefix(p, "./"), nil
	}
	m, _ := newTestManager(WithPathNormalizer(clean))
	info, created, err := m.Create("./src/f.ts", "hi")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "src/f.ts", info.Path)

	_, created, err = m.Create("/ws/src/f.ts", "")
	require.NoError(t, err)
	assert.False(t, created)

	c1 := newPeer("c1")
	require.NoError(t, m.Join(c1, JoinRequest{Path: "./src/f.ts", AgentID: "a1"}))
	assert.Equal(t, "src/f.ts", c1.sync(t).Path)

	content, err := m.Content("/ws/src/f.ts")
	require.NoError(t, err)
	assert.Equal(t, "hi", content)
	_, err = m.Get("./src/f.ts")
	assert.NoError(t, err)
}

func TestAttach_ReceivesSessionLists(t *testing.T) {
	m, _ := newTestManager()
	p := newPeer("watcher")
	m.Attach(p)
	_, _, _ = m.Create("a.ts", "")

	require.Len(t, p.frames, 2)
	first := p.frames[0].(SessionsFrame)
	assert.Empty(t, first.Sessions)
	second := p.frames[1].(SessionsFrame)
	require.Len(t, second.Sessions, 1)
	assert.Equal(t, "a.ts", second.Sessions[0].Path)
}

func TestColorFor_Stable(t *testing.T) {
	assert.Equal(t, ColorFor("agent-1"), ColorFor("agent-1"))
	assert.Contains(t, palette, ColorFor("agent-2"))
}
