// Package crdt implements a replicated growable array (RGA) for plain text.
// Replicas exchange CBOR-encoded updates; applying the same set of updates in
// any order, any number of times, yields the same text.
package crdt

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// ID identifies one inserted character: the Lamport clock of the insert and
// the site (replica) that made it. The zero ID is the document start.
type ID struct {
	Site  string `cbor:"s"`
	Clock uint64 `cbor:"c"`
}

// Root is the virtual element every document starts from.
var Root = ID{}

// IsRoot reports whether id is the document start.
func (id ID) IsRoot() bool { return id == Root }

// after reports whether id sorts before other among siblings: later clocks
// first, ties broken by site.
func (id ID) after(other ID) bool {
	if id.Clock != other.Clock {
		return id.Clock > other.Clock
	}
	return id.Site > other.Site
}

func (id ID) String() string {
	if id.IsRoot() {
		return "root"
	}
	return fmt.Sprintf("%s@%d", id.Site, id.Clock)
}

// OpKind distinguishes inserts from deletes.
type OpKind uint8

const (
	OpInsert OpKind = 1
	OpDelete OpKind = 2
)

// Op is one replicated operation. For inserts ID is the new element and
// Origin the element it was typed after; for deletes ID is the target.
type Op struct {
	Kind   OpKind `cbor:"k"`
	ID     ID     `cbor:"i"`
	Origin ID     `cbor:"o,omitempty"`
	Value  string `cbor:"v,omitempty"`
}

// Update is the unit exchanged between replicas.
type Update struct {
	Ops []Op `cbor:"ops"`
}

// ErrMalformed is returned for updates that cannot be decoded or validated.
var ErrMalformed = errors.New("crdt: malformed update")

// Encode serializes ops as an update.
func Encode(ops []Op) ([]byte, error) {
	return cbor.Marshal(Update{Ops: ops})
}

// Decode parses and validates an update.
func Decode(data []byte) (Update, error) {
	var u Update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, op := range u.Ops {
		if err := op.validate(); err != nil {
			return Update{}, fmt.Errorf("%w: op %d: %v", ErrMalformed, i, err)
		}
	}
	return u, nil
}

func (op Op) validate() error {
	if op.ID.IsRoot() || op.ID.Site == "" {
		return errors.New("missing id")
	}
	switch op.Kind {
	case OpInsert:
		if utf8.RuneCountInString(op.Value) != 1 {
			return fmt.Errorf("insert value must be one character, got %q", op.Value)
		}
	case OpDelete:
	default:
		return fmt.Errorf("unknown kind %d", op.Kind)
	}
	return nil
}
