// Package history records completed connection sessions in a local
// SQLite database for the `ocguard history` command.
package history

import (
	"database/sql"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ocguard/ocguard/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT NOT NULL,
	server      TEXT NOT NULL,
	ip          TEXT,
	device      TEXT,
	connected_at TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP,
	end_reason  TEXT
);
CREATE INDEX IF NOT EXISTS idx_connections_session ON connections(session);
`

// Entry is one recorded connection session.
type Entry struct {
	ID          int64
	Session     string
	Server      string
	IP          string
	Device      string
	ConnectedAt time.Time
	EndedAt     *time.Time
	EndReason   string
}

// Store persists connection history.
type Store struct {
	db *sql.DB
}

// Open opens the history database at the default data path.
func Open() (*Store, error) {
	dataDir, err := common.GetDataDir()
	if err != nil {
		return nil, err
	}
	return OpenAt(filepath.Join(dataDir, common.HistoryFileName))
}

// OpenAt opens a history database at an explicit path, creating the
// schema if needed.
func OpenAt(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "error opening history database")
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, common.WrapError(err, "error initializing history schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordConnect inserts a new session row.
func (s *Store) RecordConnect(session, server, ip, device string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO connections (session, server, ip, device, connected_at) VALUES (?, ?, ?, ?, ?)`,
		session, server, ip, device, at.UTC(),
	)
	if err != nil {
		return common.WrapError(err, "error recording connection")
	}
	return nil
}

// RecordDisconnect closes the open row for a session. Recording the end
// of an unknown session is a no-op, not an error.
func (s *Store) RecordDisconnect(session, reason string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE connections SET ended_at = ?, end_reason = ? WHERE session = ? AND ended_at IS NULL`,
		at.UTC(), reason, session,
	)
	if err != nil {
		return common.WrapError(err, "error recording disconnection")
	}
	return nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, session, server, ip, device, connected_at, ended_at, end_reason
		 FROM connections ORDER BY connected_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, common.WrapError(err, "error querying history")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ip, device, reason sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Session, &e.Server, &ip, &device, &e.ConnectedAt, &endedAt, &reason); err != nil {
			return nil, common.WrapError(err, "error reading history row")
		}
		e.IP = ip.String
		e.Device = device.String
		e.EndReason = reason.String
		if endedAt.Valid {
			t := endedAt.Time
			e.EndedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
