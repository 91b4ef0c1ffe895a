package notesync

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// NoteBackend abstracts note persistence. CommitBatch applies the write set
// in order and atomically: either every note lands or none does. Any note
// whose id already exists under a different owner aborts the whole batch
// with ErrOwnerMismatch.
type NoteBackend interface {
	FindByOwner(ctx context.Context, owner string) ([]Note, error)
	CommitBatch(ctx context.Context, owner string, notes []Note) error
	Close() error
}

type InMemoryNoteBackend struct {
	mu    sync.Mutex
	notes map[string]Note
}

func NewInMemoryNoteBackend() *InMemoryNoteBackend {
	return &InMemoryNoteBackend{notes: map[string]Note{}}
}

func (b *InMemoryNoteBackend) FindByOwner(_ context.Context, owner string) ([]Note, error) {
	if b == nil {
		return nil, ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Note, 0)
	for _, n := range b.notes {
		if n.Owner != owner {
			continue
		}
		clone, err := cloneNote(n)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

func (b *InMemoryNoteBackend) CommitBatch(_ context.Context, owner string, notes []Note) error {
	if b == nil {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range notes {
		if n.Owner != owner {
			return fmt.Errorf("%w: note %s carries owner %s", ErrOwnerMismatch, n.ID, n.Owner)
		}
		if existing, ok := b.notes[n.ID]; ok && existing.Owner != owner {
			return fmt.Errorf("%w: note %s belongs to another owner", ErrOwnerMismatch, n.ID)
		}
	}
	staged := make(map[string]Note, len(notes))
	for _, n := range notes {
		clone, err := cloneNote(n)
		if err != nil {
			return err
		}
		staged[n.ID] = clone
	}
	for id, n := range staged {
		b.notes[id] = n
	}
	return nil
}

func (b *InMemoryNoteBackend) Close() error { return nil }

// BuildNoteBackendFromDSN selects a backend by DSN scheme. An empty DSN means
// in-memory. Registered factories take precedence over the built-in schemes.
func BuildNoteBackendFromDSN(dsn string) (NoteBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryNoteBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupNoteBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileNoteBackend(path)
	case "memory", "mem", "inmem":
		return NewInMemoryNoteBackend(), nil
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteNoteBackend(path)
	case "postgres", "postgresql":
		return NewPostgresNoteBackend(dsn)
	case "mysql":
		return nil, fmt.Errorf("%w: note backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported note backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
