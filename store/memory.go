package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
)

// Memory is an in-process Store with no persistence. Handy for tests and for
// hosts that do not want a database file on disk.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		entries: map[string]string{},
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) DeleteMatching(_ context.Context, patterns ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		for _, pattern := range patterns {
			if likeMatch(pattern, key) {
				delete(m.entries, key)
				removed++
				break
			}
		}
	}

	return removed, nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// likeMatch evaluates a SQL LIKE pattern: % matches any run of characters,
// _ matches exactly one.
func likeMatch(pattern, s string) bool {
	for pattern != "" {
		switch pattern[0] {
		case '%':
			rest := strings.TrimLeft(pattern, "%")
			if rest == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(rest, s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if s == "" || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}

type memorySnapshot struct {
	payload   []byte
	updatedAt time.Time
}

// MemorySnapshots is an in-process SnapshotStore.
type MemorySnapshots struct {
	mu        sync.RWMutex
	snapshots map[int64]memorySnapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{
		snapshots: map[int64]memorySnapshot{},
	}
}

func (m *MemorySnapshots) SaveSnapshot(_ context.Context, profileID int64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)

	m.snapshots[profileID] = memorySnapshot{
		payload:   buf,
		updatedAt: time.Now(),
	}
	return nil
}

func (m *MemorySnapshots) LoadSnapshot(_ context.Context, profileID int64) ([]byte, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[profileID]
	if !ok {
		return nil, time.Time{}, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"profile_id": profileID,
			})
	}

	buf := make([]byte, len(snap.payload))
	copy(buf, snap.payload)
	return buf, snap.updatedAt, nil
}
