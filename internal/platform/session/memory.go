package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	fields   map[string]string
	lastSeen time.Time
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer than
// the TTL are dropped by a background cleanup loop.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store with the given idle TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return map[string]string{}, nil
	}
	if s.expired(entry) {
		delete(s.entries, id)
		return map[string]string{}, nil
	}
	entry.lastSeen = s.now()

	out := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || s.expired(entry) {
		entry = &memoryEntry{fields: make(map[string]string)}
		s.entries[id] = entry
	}
	for k, v := range fields {
		entry.fields[k] = v
	}
	entry.lastSeen = s.now()
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, id string, fields map[string]string, drop []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || s.expired(entry) {
		entry = &memoryEntry{fields: make(map[string]string)}
		s.entries[id] = entry
	}
	for _, k := range drop {
		delete(entry.fields, k)
	}
	for k, v := range fields {
		entry.fields[k] = v
	}
	entry.lastSeen = s.now()
	if len(entry.fields) == 0 {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(entry.fields, k)
	}
	if len(entry.fields) == 0 {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.now().Sub(e.lastSeen) > s.ttl
}

// cleanup removes idle entries.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
		}
	}
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}
