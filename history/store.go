// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history records the commands run in every session, fed by
// PostExec hooks, in a SQLite database shared by all sessions of the
// user.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/interterm/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	command     TEXT NOT NULL,
	shell       TEXT NOT NULL DEFAULT '',
	session_id  TEXT NOT NULL DEFAULT '',
	cwd         TEXT NOT NULL DEFAULT '',
	hostname    TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER,
	start_time  INTEGER NOT NULL,
	end_time    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS commands_end_time ON commands (end_time);
CREATE INDEX IF NOT EXISTS commands_cwd ON commands (cwd, end_time);
`

// Entry is one executed command.
type Entry struct {
	ID        int64     `json:"id"`
	Command   string    `json:"command"`
	Shell     string    `json:"shell,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	ExitCode  *int32    `json:"exit_code,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Store is the history database.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: 2,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Insert records entry and returns it with its assigned id. Blank
// commands are not recorded.
func (s *Store) Insert(ctx context.Context, entry Entry) (Entry, error) {
	if entry.Command == "" {
		return Entry{}, fmt.Errorf("history: empty command")
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("history: %w", err)
	}
	defer s.pool.Put(conn)

	var exitCode any
	if entry.ExitCode != nil {
		exitCode = int64(*entry.ExitCode)
	}
	err = sqlitex.Execute(conn, `INSERT INTO commands
		(command, shell, session_id, cwd, hostname, exit_code, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			entry.Command,
			entry.Shell,
			entry.SessionID,
			entry.Cwd,
			entry.Hostname,
			exitCode,
			entry.StartTime.UnixMilli(),
			entry.EndTime.UnixMilli(),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("history: inserting command: %w", err)
	}
	entry.ID = conn.LastInsertRowID()
	return entry, nil
}

// Query filters Recent.
type Query struct {
	// Cwd restricts results to commands run in this directory.
	Cwd string

	// Limit caps the result count. Zero means 100.
	Limit int
}

// Recent returns matching entries, newest first.
func (s *Store) Recent(ctx context.Context, query Query) ([]Entry, error) {
	if query.Limit <= 0 {
		query.Limit = 100
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer s.pool.Put(conn)

	sql := `SELECT id, command, shell, session_id, cwd, hostname, exit_code, start_time, end_time
		FROM commands`
	var args []any
	if query.Cwd != "" {
		sql += ` WHERE cwd = ?`
		args = append(args, query.Cwd)
	}
	sql += ` ORDER BY end_time DESC, id DESC LIMIT ?`
	args = append(args, query.Limit)

	var entries []Entry
	err = sqlitex.Execute(conn, sql, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry := Entry{
				ID:        stmt.ColumnInt64(0),
				Command:   stmt.ColumnText(1),
				Shell:     stmt.ColumnText(2),
				SessionID: stmt.ColumnText(3),
				Cwd:       stmt.ColumnText(4),
				Hostname:  stmt.ColumnText(5),
				StartTime: time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
				EndTime:   time.UnixMilli(stmt.ColumnInt64(8)).UTC(),
			}
			if stmt.ColumnType(6) != sqlite.TypeNull {
				code := int32(stmt.ColumnInt64(6))
				entry.ExitCode = &code
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: querying commands: %w", err)
	}
	return entries, nil
}

// Count is the number of recorded commands.
func (s *Store) Count(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("history: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM commands`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("history: counting commands: %w", err)
	}
	return count, nil
}
