// Package app implements the workspace coordination use cases and defines
// the ports (configuration, intent archive) they depend on.
package app

import (
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

// Policy is the configuration port used by the application.
// Implemented by internal/policy.Policy.
type Policy interface {
	DefaultLockTTL() time.Duration
	MaxLockTTL() time.Duration
	StaleWorkAfter() time.Duration
	IntentMaxEntries() int
	ChangesTail() int
	NormalizeResourcePath(path string) (string, error)
}

// IntentSink receives every intent after it has been appended to the log.
// Implementation: internal/repository/sqlite.Journal.
type IntentSink interface {
	AppendIntent(intent domain.Intent) error
}

// IntentArchive is a durable, searchable intent history that outlives the
// capped in-memory log.
type IntentArchive interface {
	IntentSink
	RecentIntents(limit int) ([]domain.Intent, error)
	SearchIntents(query string, limit int) ([]domain.Intent, error)
	Close() error
}
