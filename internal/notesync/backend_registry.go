package notesync

import (
	"strings"
	"sync"
)

// NoteBackendFactory builds a backend from a full DSN. Deployments can
// register factories for schemes the built-in set does not cover.
type NoteBackendFactory func(dsn string) (NoteBackend, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]NoteBackendFactory
}{
	factories: map[string]NoteBackendFactory{},
}

func RegisterNoteBackendFactory(scheme string, factory NoteBackendFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupNoteBackendFactory(scheme string) (NoteBackendFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
