package supervisor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/telemetry/logging"
)

// Event kinds recorded by the journal.
const (
	EventSpawned   = "spawned"
	EventRunning   = "running"
	EventCrashed   = "crashed"
	EventBackoff   = "backoff"
	EventStopped   = "stopped"
	EventSpawnFail = "spawn_failed"
)

// JournalEntry is one recorded lifecycle transition.
type JournalEntry struct {
	At        time.Time
	ShardID   protocol.ShardID
	SessionID string
	Event     string
	Detail    string
}

// Journal records worker lifecycle transitions to SQLite. All writes are
// best effort: failures are logged once and supervision continues.
type Journal struct {
	db     *sql.DB
	insert *sql.Stmt
	log    *logging.Logger
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS worker_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    at_millis  INTEGER NOT NULL,
    shard_id   INTEGER NOT NULL,
    session_id TEXT    NOT NULL,
    event      TEXT    NOT NULL,
    detail     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_worker_events_shard ON worker_events(shard_id, at_millis);
`

// OpenJournal opens (and if necessary creates) the journal database.
func OpenJournal(path string, log *logging.Logger) (*Journal, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	insert, err := db.Prepare(
		`INSERT INTO worker_events (at_millis, shard_id, session_id, event, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare journal insert: %w", err)
	}
	return &Journal{db: db, insert: insert, log: log}, nil
}

// NewSessionID mints an id tying the events of one worker process run
// together.
func NewSessionID() string {
	return uuid.NewString()
}

// Record writes one entry. Failures are logged and swallowed.
func (j *Journal) Record(shard protocol.ShardID, sessionID, event, detail string) {
	if j == nil {
		return
	}
	_, err := j.insert.Exec(time.Now().UnixMilli(), uint32(shard), sessionID, event, detail)
	if err != nil {
		j.log.Warn("journal write failed", "event", event, "shard_id", shard, "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT at_millis, shard_id, session_id, event, detail
		 FROM worker_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			at      int64
			shard   uint32
			session string
			event   string
			detail  string
		)
		if err := rows.Scan(&at, &shard, &session, &event, &detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, JournalEntry{
			At:        time.UnixMilli(at),
			ShardID:   protocol.ShardID(shard),
			SessionID: session,
			Event:     event,
			Detail:    detail,
		})
	}
	return out, rows.Err()
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.insert.Close()
	return j.db.Close()
}
