package notesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteOperationTimeout = 5 * time.Second

// SQLiteNoteBackend keeps notes in an embedded SQLite database. The
// connection is opened lazily on first use; WAL mode and a single writer
// connection keep concurrent sync calls from tripping over SQLITE_BUSY.
type SQLiteNoteBackend struct {
	path string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteNoteBackend(path string) (*SQLiteNoteBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteNoteBackend{path: path}, nil
}

func (b *SQLiteNoteBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
			b.initErr = fmt.Errorf("create db dir: %w", err)
			return
		}
		db, err := sql.Open("sqlite", b.path)
		if err != nil {
			b.initErr = err
			return
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("enable WAL mode: %w", err)
			return
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("set busy timeout: %w", err)
			return
		}
		schema := `
			CREATE TABLE IF NOT EXISTS notes (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				kind TEXT NOT NULL,
				payload TEXT,
				transcription TEXT,
				completed INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS notes_owner_idx ON notes (owner);`
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("create schema: %w", err)
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *SQLiteNoteBackend) FindByOwner(ctx context.Context, owner string) ([]Note, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqliteOperationTimeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, owner, kind, payload, transcription, completed, created_at, updated_at
		FROM notes
		WHERE owner = ?`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Note, 0)
	for rows.Next() {
		var (
			n             Note
			payload       sql.NullString
			transcription sql.NullString
			completed     int
			createdAt     string
			updatedAt     string
		)
		if err := rows.Scan(&n.ID, &n.Owner, &n.Kind, &payload, &transcription, &completed, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &n.Payload); err != nil {
				return nil, fmt.Errorf("decode payload for note %s: %w", n.ID, err)
			}
		}
		if transcription.Valid {
			value := transcription.String
			n.Transcription = &value
		}
		n.Completed = completed != 0
		if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at for note %s: %w", n.ID, err)
		}
		if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("decode updated_at for note %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (b *SQLiteNoteBackend) CommitBatch(ctx context.Context, owner string, notes []Note) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sqliteOperationTimeout)
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, n := range notes {
		if n.Owner != owner {
			return fmt.Errorf("%w: note %s carries owner %s", ErrOwnerMismatch, n.ID, n.Owner)
		}
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for note %s: %w", n.ID, err)
		}
		var transcription any
		if n.Transcription != nil {
			transcription = *n.Transcription
		}
		completed := 0
		if n.Completed {
			completed = 1
		}
		// The guarded upsert refuses to move a note between owners: a
		// conflicting id held by another owner updates zero rows, which
		// aborts the whole batch.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, owner, kind, payload, transcription, completed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				payload = excluded.payload,
				transcription = excluded.transcription,
				completed = excluded.completed,
				updated_at = excluded.updated_at
			WHERE notes.owner = excluded.owner`,
			n.ID, n.Owner, n.Kind, string(payload), transcription, completed,
			n.CreatedAt.UTC().Format(time.RFC3339Nano), n.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: note %s belongs to another owner", ErrOwnerMismatch, n.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (b *SQLiteNoteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
