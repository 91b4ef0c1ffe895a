package notesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// JSONFileNoteBackend persists the whole collection in one pretty-printed
// JSON file. A watcher invalidates the in-memory copy whenever the file is
// touched from outside the process, so the next read reloads from disk.
type JSONFileNoteBackend struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	loaded bool
	stale  bool
	notes  map[string]Note
}

type noteFileState struct {
	Notes []Note `json:"notes"`
}

func NewJSONFileNoteBackend(path string) (*JSONFileNoteBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create note db dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start note db watcher: %w", err)
	}
	// Watch the directory, not the file: atomic rename-into-place would
	// otherwise detach the watch.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch note db dir: %w", err)
	}

	b := &JSONFileNoteBackend{
		path:    path,
		watcher: watcher,
		notes:   map[string]Note{},
	}
	go b.watchLoop()
	return b, nil
}

func (b *JSONFileNoteBackend) watchLoop() {
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(b.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			b.mu.Lock()
			b.stale = true
			b.mu.Unlock()
		case _, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (b *JSONFileNoteBackend) FindByOwner(_ context.Context, owner string) ([]Note, error) {
	if b == nil {
		return nil, ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoadedLocked(); err != nil {
		return nil, err
	}
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

func (b *JSONFileNoteBackend) CommitBatch(_ context.Context, owner string, notes []Note) error {
	if b == nil {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoadedLocked(); err != nil {
		return err
	}
	for _, n := range notes {
		if n.Owner != owner {
			return fmt.Errorf("%w: note %s carries owner %s", ErrOwnerMismatch, n.ID, n.Owner)
		}
		if existing, ok := b.notes[n.ID]; ok && existing.Owner != owner {
			return fmt.Errorf("%w: note %s belongs to another owner", ErrOwnerMismatch, n.ID)
		}
	}

	next := make(map[string]Note, len(b.notes)+len(notes))
	for id, n := range b.notes {
		next[id] = n
	}
	for _, n := range notes {
		clone, err := cloneNote(n)
		if err != nil {
			return err
		}
		next[clone.ID] = clone
	}
	if err := b.saveLocked(next); err != nil {
		return err
	}
	b.notes = next
	return nil
}

func (b *JSONFileNoteBackend) Close() error {
	if b == nil || b.watcher == nil {
		return nil
	}
	return b.watcher.Close()
}

func (b *JSONFileNoteBackend) ensureLoadedLocked() error {
	if b.loaded && !b.stale {
		return nil
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.notes = map[string]Note{}
			b.loaded = true
			b.stale = false
			return nil
		}
		return err
	}
	var state noteFileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse note db %s: %w", b.path, err)
	}
	notes := make(map[string]Note, len(state.Notes))
	for _, n := range state.Notes {
		notes[n.ID] = n
	}
	b.notes = notes
	b.loaded = true
	b.stale = false
	return nil
}

func (b *JSONFileNoteBackend) saveLocked(notes map[string]Note) error {
	ids := make([]string, 0, len(notes))
	for id := range notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	state := noteFileState{Notes: make([]Note, 0, len(ids))}
	for _, id := range ids {
		state.Notes = append(state.Notes, notes[id])
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
