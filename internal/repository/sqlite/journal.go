// Package sqlite archives the intent log to SQLite with an FTS5 index so
// history survives the in-memory cap and restarts.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/cowork/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS intents (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	intent_id INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	action TEXT NOT NULL,
	description TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
CREATE VIRTUAL TABLE IF NOT EXISTS intents_fts USING fts5(
	description,
	target,
	tokenize='porter unicode61'
);
`

// Journal is an append-only intent archive.
type Journal struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// New opens (or creates) a journal database at path.
func New(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// AppendIntent archives one intent.
func (j *Journal) AppendIntent(in domain.Intent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO intents (intent_id, agent_id, action, description, target, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.AgentID, string(in.Action), in.Description, in.Target, in.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("intent seq: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO intents_fts (rowid, description, target) VALUES (?, ?, ?)`,
		seq, in.Description, in.Target,
	); err != nil {
		return fmt.Errorf("index intent: %w", err)
	}
	return tx.Commit()
}

// RecentIntents returns up to limit archived intents, oldest first.
func (j *Journal) RecentIntents(limit int) ([]domain.Intent, error) {
	if limit <= 0 {
		limit = 50
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.Query(`
		SELECT intent_id, agent_id, action, description, target, timestamp FROM (
			SELECT * FROM intents ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent intents: %w", err)
	}
	defer rows.Close()
	return scanIntents(rows)
}

// SearchIntents runs a full-text query over descriptions and targets,
// best matches first.
func (j *Journal) SearchIntents(query string, limit int) ([]domain.Intent, error) {
	if limit <= 0 {
		limit = 10
	}
	q := sanitizeFTSQuery(query)
	if q == "" {
		return nil, nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.Query(`
		SELECT i.intent_id, i.agent_id, i.action, i.description, i.target, i.timestamp
		FROM intents_fts f
		JOIN intents i ON i.seq = f.rowid
		WHERE intents_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()
	return scanIntents(rows)
}

func scanIntents(rows *sql.Rows) ([]domain.Intent, error) {
	var out []domain.Intent
	for rows.Next() {
		var (
			in     domain.Intent
			action string
			ts     string
		)
		if err := rows.Scan(&in.ID, &in.AgentID, &action, &in.Description, &in.Target, &ts); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		in.Action = domain.IntentAction(action)
		in.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, in)
	}
	return out, rows.Err()
}

// sanitizeFTSQuery strips FTS5 operators so free text cannot cause syntax errors.
func sanitizeFTSQuery(q string) string {
	replacer := strings.NewReplacer(
		"\"", "",
		"'", "",
		"(", "",
		")", "",
		"*", "",
		":", "",
		"^", "",
		"{", "",
		"}", "",
		"-", " ",
	)
	var tokens []string
	for _, w := range strings.Fields(replacer.Replace(q)) {
		switch w {
		case "AND", "OR", "NOT", "NEAR":
			continue
		}
		tokens = append(tokens, w)
	}
	return strings.Join(tokens, " ")
}
