package repository

import (
	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/repository/sqlite"
)

// NewIntentArchive returns an IntentArchive backed by SQLite at the given path.
// The path is typically from policy.JournalPath() (default ~/.config/cowork/journal.sqlite).
func NewIntentArchive(path string) (app.IntentArchive, error) {
	j, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return j, nil
}
