package notesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresNotesTableName   = "syncd_notes"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresNoteBackend is the production backend. The schema is bootstrapped
// lazily on first use so construction stays cheap and fallible work happens
// on the request path where it can be reported.
type PostgresNoteBackend struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresNoteBackend(dsn string) (*PostgresNoteBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresNoteBackend{
		dsn:       dsn,
		tableName: postgresNotesTableName,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresNoteBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				kind TEXT NOT NULL,
				payload TEXT,
				transcription TEXT,
				completed BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`, postgresQuoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		indexQuery := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (owner)",
			postgresQuoteIdentifier(b.tableName+"_owner_idx"),
			postgresQuoteIdentifier(b.tableName),
		)
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *PostgresNoteBackend) FindByOwner(ctx context.Context, owner string) ([]Note, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, owner, kind, payload, transcription, completed, created_at, updated_at
		FROM %s
		WHERE owner = $1`, postgresQuoteIdentifier(b.tableName))
	rows, err := b.db.QueryContext(ctx, query, owner)
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
		)
		if err := rows.Scan(&n.ID, &n.Owner, &n.Kind, &payload, &transcription, &n.Completed, &n.CreatedAt, &n.UpdatedAt); err != nil {
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
		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (b *PostgresNoteBackend) CommitBatch(ctx context.Context, owner string, notes []Note) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner, kind, payload, transcription, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			transcription = EXCLUDED.transcription,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
		WHERE %s.owner = EXCLUDED.owner`,
		postgresQuoteIdentifier(b.tableName), postgresQuoteIdentifier(b.tableName))

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
		res, err := tx.ExecContext(ctx, query,
			n.ID, n.Owner, n.Kind, string(payload), transcription, n.Completed,
			n.CreatedAt.UTC(), n.UpdatedAt.UTC())
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

func (b *PostgresNoteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
