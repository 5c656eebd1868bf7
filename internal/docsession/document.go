// Package docsession manages per-path collaborative text sessions: the
// replicated document, the connected peers and their presence.
package docsession

import (
	"fmt"

	"github.com/jaakkos/cowork/internal/crdt"
)

// Document is a mergeable text replica. Apply must be commutative and
// idempotent; Snapshot must be an update that reproduces the document when
// applied to an empty replica.
type Document interface {
	Apply(update []byte) error
	Snapshot() []byte
	String() string
}

// DocumentFactory creates a document holding initial.
type DocumentFactory func(initial string) (Document, error)

// serverSite is the replica id used for content seeded by the server.
const serverSite = "server"

// NewTextDocument is the default factory backed by the RGA text CRDT.
func NewTextDocument(initial string) (Document, error) {
	t := crdt.NewText(serverSite)
	if initial != "" {
		if _, err := t.Insert(0, initial); err != nil {
			return nil, fmt.Errorf("seed document: %w", err)
		}
	}
	return t, nil
}
