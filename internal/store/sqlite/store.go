// Package sqlite backs the chat/admin audit log: a supplemental
// feature (SPEC_FULL.md) that records every accepted chat broadcast
// and every admin attempt without the dispatcher ever waiting on disk
// I/O. It implements core.AuditSink.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const writeQueueSize = 256

type chatEvent struct {
	uuid, username, message string
	at                      time.Time
}

type adminEvent struct {
	uuid    string
	success bool
	at      time.Time
}

// Store is an append-only audit log backed by a single SQLite
// connection. All writes happen on one background goroutine so the
// driver's single-writer constraint never serializes callers.
type Store struct {
	db  *sql.DB
	log *zerolog.Logger

	events chan any
	done   chan struct{}
}

// Open creates (if needed) the schema at path and starts the writer
// goroutine. WAL mode is enabled; the pool holds a single connection, so
// reads (the /history endpoint) and the writer's inserts take turns on
// it.
func Open(path string, log *zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	s := &Store{
		db:     db,
		log:    log,
		events: make(chan any, writeQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	username TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS admin_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	success INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// LogChat implements core.AuditSink. It never blocks the dispatcher: a
// full queue drops the event with a warning rather than applying
// backpressure to the in-memory broadcast path.
func (s *Store) LogChat(uuid, username, message string) {
	select {
	case s.events <- chatEvent{uuid: uuid, username: username, message: message, at: time.Now()}:
	default:
		if s.log != nil {
			s.log.Warn().Msg("audit: chat log queue full, dropping event")
		}
	}
}

// LogAdminAttempt implements core.AuditSink.
func (s *Store) LogAdminAttempt(uuid string, success bool) {
	select {
	case s.events <- adminEvent{uuid: uuid, success: success, at: time.Now()}:
	default:
		if s.log != nil {
			s.log.Warn().Msg("audit: admin attempt queue full, dropping event")
		}
	}
}

// run drains events until the channel is both closed and empty, so
// Close never loses buffered-but-unwritten rows regardless of which
// event type they are.
func (s *Store) run() {
	defer close(s.done)

	for ev := range s.events {
		switch e := ev.(type) {
		case chatEvent:
			s.insertChat(e)
		case adminEvent:
			s.insertAdmin(e)
		}
	}
}

func (s *Store) insertChat(ev chatEvent) {
	_, err := s.db.Exec(`INSERT INTO chat_log (uuid, username, message, created_at) VALUES (?, ?, ?, ?)`,
		ev.uuid, ev.username, ev.message, ev.at)
	if err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("audit: failed to insert chat log row")
	}
}

func (s *Store) insertAdmin(ev adminEvent) {
	_, err := s.db.Exec(`INSERT INTO admin_attempts (uuid, success, created_at) VALUES (?, ?, ?)`,
		ev.uuid, ev.success, ev.at)
	if err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("audit: failed to insert admin attempt row")
	}
}

// RecentChat returns the last n chat rows, most recent first, for the
// /history HTTP endpoint.
func (s *Store) RecentChat(n int) ([]ChatRow, error) {
	rows, err := s.db.Query(`SELECT uuid, username, message, created_at FROM chat_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var r ChatRow
		if err := rows.Scan(&r.UUID, &r.Username, &r.Message, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChatRow is one audited chat message.
type ChatRow struct {
	UUID     string
	Username string
	Message  string
	At       time.Time
}

// Close stops the writer goroutine and closes the underlying
// connection. Queued-but-unwritten events up to the channel buffer are
// flushed; anything pushed after Close starts is dropped.
func (s *Store) Close() error {
	close(s.events)
	<-s.done
	return s.db.Close()
}
