// Package ingest pulls security events from SIEM sources into storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"seclabel/core"
)

// ErrUnknownSource is returned when a fetch names a source that is not registered.
var ErrUnknownSource = errors.New("unknown event source")

// FetchedEvent is one event returned by a Source, with its raw payloads.
type FetchedEvent struct {
	Event   core.Event
	RawLogs []core.RawLog
}

// Source produces events from a SIEM. Fetch returns at most limit events.
type Source interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]FetchedEvent, error)
}

// Registry holds the configured sources by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry with the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns the named source.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return s, nil
}

// Names lists registered sources in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
