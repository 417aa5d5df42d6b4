// Package store keeps published playlists by name.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by Get for an unknown name.
	ErrNotFound = errors.New("playlist not found")

	// ErrNotLeader is returned by Put on a replica that cannot accept writes.
	ErrNotLeader = errors.New("not the leader")
)

// Playlist is a published playlist document.
type Playlist struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store publishes playlists and serves them back.
type Store interface {
	// Put replaces the playlist stored under name and returns the stored document.
	Put(name, content string) (Playlist, error)
	// Get returns the playlist stored under name or ErrNotFound.
	Get(name string) (Playlist, error)
	// Names lists the stored names in sorted order.
	Names() []string
}

// Memory is a Store held in process memory. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	playlists map[string]Playlist
	now       func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		playlists: make(map[string]Playlist),
		now:       time.Now,
	}
}

// Put implements Store.
func (m *Memory) Put(name, content string) (Playlist, error) {
	return m.PutAt(name, content, m.now()), nil
}

// PutAt stores content under name with an explicit timestamp. Replicated
// stores use it so every replica records the same time.
func (m *Memory) PutAt(name, content string, at time.Time) Playlist {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := Playlist{
		Name:      name,
		Content:   content,
		Version:   m.playlists[name].Version + 1,
		UpdatedAt: at,
	}
	m.playlists[name] = p
	return p
}

// Get implements Store.
func (m *Memory) Get(name string) (Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.playlists[name]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	return p, nil
}

// Names implements Store.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.playlists))
	for name := range m.playlists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns every stored playlist ordered by name.
func (m *Memory) Snapshot() []Playlist {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Playlist, 0, len(m.playlists))
	for _, p := range m.playlists {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore replaces the whole contents with playlists.
func (m *Memory) Restore(playlists []Playlist) {
	next := make(map[string]Playlist, len(playlists))
	for _, p := range playlists {
		next[p.Name] = p
	}

	m.mu.Lock()
	m.playlists = next
	m.mu.Unlock()
}
