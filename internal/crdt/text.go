package crdt

import (
	"fmt"
	"strings"
)

type element struct {
	id      ID
	origin  ID
	value   string
	deleted bool
}

// Text is one replica of a shared text document. It is not safe for
// concurrent use; callers serialize access.
type Text struct {
	site  string
	clock uint64

	elems []*element // document order, tombstones included
	byID  map[ID]*element

	waiting        []Op        // inserts whose origin has not arrived
	pendingDeletes map[ID]bool // deletes whose target has not arrived
}

// NewText returns an empty replica owned by site.
func NewText(site string) *Text {
	return &Text{
		site:           site,
		byID:           make(map[ID]*element),
		pendingDeletes: make(map[ID]bool),
	}
}

// Site returns the replica's site id.
func (t *Text) Site() string { return t.site }

// String returns the visible text.
func (t *Text) String() string {
	var b strings.Builder
	for _, e := range t.elems {
		if !e.deleted {
			b.WriteString(e.value)
		}
	}
	return b.String()
}

// Len returns the number of visible characters.
func (t *Text) Len() int {
	n := 0
	for _, e := range t.elems {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Pending returns the number of buffered operations waiting on a dependency.
func (t *Text) Pending() int {
	return len(t.waiting) + len(t.pendingDeletes)
}

// Insert types s at visible position pos and returns the encoded update.
func (t *Text) Insert(pos int, s string) ([]byte, error) {
	if pos < 0 || pos > t.Len() {
		return nil, fmt.Errorf("crdt: insert position %d out of range [0,%d]", pos, t.Len())
	}
	origin := Root
	if pos > 0 {
		origin = t.visibleAt(pos - 1).id
	}
	ops := make([]Op, 0, len(s))
	for _, r := range s {
		t.clock++
		op := Op{Kind: OpInsert, ID: ID{Site: t.site, Clock: t.clock}, Origin: origin, Value: string(r)}
		t.integrate(op)
		ops = append(ops, op)
		origin = op.ID
	}
	return Encode(ops)
}

// Delete removes n visible characters starting at pos and returns the encoded update.
func (t *Text) Delete(pos, n int) ([]byte, error) {
	if pos < 0 || n < 0 || pos+n > t.Len() {
		return nil, fmt.Errorf("crdt: delete range [%d,%d) out of range [0,%d]", pos, pos+n, t.Len())
	}
	targets := make([]ID, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, t.visibleAt(pos+i).id)
	}
	ops := make([]Op, 0, n)
	for _, id := range targets {
		op := Op{Kind: OpDelete, ID: id}
		t.integrate(op)
		ops = append(ops, op)
	}
	return Encode(ops)
}

// Apply merges a remote update. Operations already seen are ignored;
// operations whose dependency is missing are buffered until it arrives.
func (t *Text) Apply(update []byte) error {
	u, err := Decode(update)
	if err != nil {
		return err
	}
	for _, op := range u.Ops {
		t.integrate(op)
	}
	return nil
}

// Snapshot encodes the whole replica as one update: every element in
// document order, then tombstones and buffered operations. Applying it to an
// empty replica reproduces this one.
func (t *Text) Snapshot() []byte {
	ops := make([]Op, 0, len(t.elems)+t.Pending())
	for _, e := range t.elems {
		ops = append(ops, Op{Kind: OpInsert, ID: e.id, Origin: e.origin, Value: e.value})
	}
	for _, e := range t.elems {
		if e.deleted {
			ops = append(ops, Op{Kind: OpDelete, ID: e.id})
		}
	}
	ops = append(ops, t.waiting...)
	for id := range t.pendingDeletes {
		ops = append(ops, Op{Kind: OpDelete, ID: id})
	}
	data, err := Encode(ops)
	if err != nil {
		// Op holds only strings and integers.
		panic(fmt.Sprintf("crdt: encode snapshot: %v", err))
	}
	return data
}

func (t *Text) visibleAt(pos int) *element {
	i := 0
	for _, e := range t.elems {
		if e.deleted {
			continue
		}
		if i == pos {
			return e
		}
		i++
	}
	return nil
}

func (t *Text) indexOf(id ID) int {
	for i, e := range t.elems {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (t *Text) observe(id ID) {
	if id.Clock > t.clock {
		t.clock = id.Clock
	}
}

func (t *Text) integrate(op Op) {
	t.observe(op.ID)
	switch op.Kind {
	case OpDelete:
		if e := t.byID[op.ID]; e != nil {
			e.deleted = true
		} else {
			t.pendingDeletes[op.ID] = true
		}
	case OpInsert:
		if !t.insert(op) {
			t.waiting = append(t.waiting, op)
			return
		}
		t.drainWaiting()
	}
}

// insert places op after its origin, skipping siblings with a later ID and
// their descendants. Returns false when the origin is unknown.
func (t *Text) insert(op Op) bool {
	if _, seen := t.byID[op.ID]; seen {
		return true
	}
	pos := 0
	if !op.Origin.IsRoot() {
		i := t.indexOf(op.Origin)
		if i < 0 {
			return false
		}
		pos = i + 1
	}
	for pos < len(t.elems) && t.elems[pos].id.after(op.ID) {
		pos++
	}
	e := &element{id: op.ID, origin: op.Origin, value: op.Value}
	if t.pendingDeletes[op.ID] {
		e.deleted = true
		delete(t.pendingDeletes, op.ID)
	}
	t.elems = append(t.elems, nil)
	copy(t.elems[pos+1:], t.elems[pos:])
	t.elems[pos] = e
	t.byID[op.ID] = e
	return true
}

func (t *Text) drainWaiting() {
	for progress := true; progress && len(t.waiting) > 0; {
		progress = false
		rest := t.waiting[:0]
		for _, op := range t.waiting {
			if t.insert(op) {
				progress = true
			} else {
				rest = append(rest, op)
			}
		}
		t.waiting = rest
	}
}
