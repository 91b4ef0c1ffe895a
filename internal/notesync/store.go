package notesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrOwnerMismatch  = errors.New("owner mismatch")
	ErrStoreRead      = errors.New("store read failed")
	ErrStoreWrite     = errors.New("store write failed")
	ErrNotImplemented = errors.New("not implemented")
)

type StoreOptions struct {
	// Backend holds the note persistence; nil means in-memory.
	Backend NoteBackend
	// EventBufferSize bounds each subscriber channel; 0 uses the default.
	EventBufferSize int
	// Clock overrides the reconciliation timestamp source, for tests.
	Clock func() time.Time
}

// Store runs the sync pipeline: fetch the owner's notes, reconcile the
// incoming batch, commit the write set atomically, publish change events.
// Concurrent syncs for the same owner are serialized on a per-owner mutex so
// two devices cannot silently lose each other's updates within one process.
type Store struct {
	backend NoteBackend
	events  *Broadcaster
	now     func() time.Time

	ownerMu sync.Mutex
	// owners holds one mutex per owner ever synced and is never evicted.
	// Entries are a few words each and the set is bounded by the user base,
	// so they are kept for the process lifetime rather than reaped.
	owners map[string]*sync.Mutex
}

type SyncRequest struct {
	Owner         string
	Batch         []ClientNote
	CorrelationID string
}

func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	backend := opts.Backend
	if backend == nil {
		backend = NewInMemoryNoteBackend()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		backend: backend,
		events:  NewBroadcaster(opts.EventBufferSize),
		now:     clock,
		owners:  map[string]*sync.Mutex{},
	}
}

// Sync reconciles one client batch against the owner's stored notes and
// returns the merged batch in submission order. An empty batch performs no
// writes. A commit failure surfaces as ErrStoreWrite (or ErrOwnerMismatch)
// with nothing persisted; resubmitting the same batch is always safe because
// upsert by id is idempotent.
func (s *Store) Sync(ctx context.Context, req SyncRequest) ([]Note, error) {
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidInput)
	}

	mu := s.lockForOwner(owner)
	mu.Lock()
	defer mu.Unlock()

	stored, err := s.backend.FindByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}

	merged := Reconcile(owner, req.Batch, stored, s.now())
	if len(merged) == 0 {
		return []Note{}, nil
	}

	if err := s.backend.CommitBatch(ctx, owner, merged); err != nil {
		if errors.Is(err, ErrOwnerMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	for _, n := range merged {
		eventType := "updated"
		if n.CreatedAt.Equal(n.UpdatedAt) {
			eventType = "created"
		}
		s.events.Publish(NoteEvent{
			Type:          eventType,
			NoteID:        n.ID,
			Owner:         n.Owner,
			Kind:          n.Kind,
			Completed:     n.Completed,
			UpdatedAt:     n.UpdatedAt,
			CorrelationID: req.CorrelationID,
		})
	}
	return merged, nil
}

// SubscribeEvents registers for the owner's note change feed. The returned
// cancel func must be called when the subscriber goes away.
func (s *Store) SubscribeEvents(owner string) (<-chan NoteEvent, func()) {
	return s.events.Subscribe(owner)
}

func (s *Store) Close() error {
	s.events.Close()
	return s.backend.Close()
}

func (s *Store) lockForOwner(owner string) *sync.Mutex {
	s.ownerMu.Lock()
	defer s.ownerMu.Unlock()
	mu, ok := s.owners[owner]
	if !ok {
		mu = &sync.Mutex{}
		s.owners[owner] = mu
	}
	return mu
}
