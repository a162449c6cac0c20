package ble

import (
	"fmt"
	"strings"
	"sync"
)

// Registry hands out one shared Session per peripheral address so that
// several Devices pointed at the same fixture use a single link. Sessions
// are reference counted and disconnected when the last user releases them.
type Registry struct {
	adapter Adapter
	opts    SessionOptions

	mu       sync.Mutex
	sessions map[string]*registryEntry
	closed   bool
}

type registryEntry struct {
	session *Session
	refs    int
}

// NewRegistry creates a Registry whose sessions use adapter and opts.
func NewRegistry(adapter Adapter, opts SessionOptions) *Registry {
	if adapter == nil {
		panic("ble: NewRegistry called with nil adapter")
	}
	return &Registry{
		adapter:  adapter,
		opts:     opts,
		sessions: make(map[string]*registryEntry),
	}
}

// NormalizeAddress returns the canonical registry key for a BLE address.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Acquire returns the session for address, creating it on first use, and
// takes a reference on it. It fails with ErrDeviceClosed after Close.
func (r *Registry) Acquire(address string) (*Session, error) {
	key := NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: registry closed, cannot acquire %s", ErrDeviceClosed, key)
	}
	entry, ok := r.sessions[key]
	if !ok {
		entry = &registryEntry{session: NewSession(r.adapter, key, r.opts)}
		r.sessions[key] = entry
	}
	entry.refs++
	return entry.session, nil
}

// Release drops a reference on the session for address. The last release
// disconnects the session and removes it. Releasing an unknown address is
// a no-op.
func (r *Registry) Release(address string) error {
	key := NormalizeAddress(address)

	r.mu.Lock()
	entry, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, key)
	r.mu.Unlock()

	return entry.session.Disconnect()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close disconnects every session regardless of outstanding references and
// shuts the registry down. Sessions still held by Devices refuse further
// commands with ErrDeviceClosed, and Acquire fails, so no second link to an
// address can be opened afterwards. Used on process shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*registryEntry, 0, len(r.sessions))
	for key, entry := range r.sessions {
		entries = append(entries, entry)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		if err := entry.session.shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
