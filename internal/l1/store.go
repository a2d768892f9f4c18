// Package l1 implements the tier-1 working store: an in-process,
// capacity-bounded, TTL-expiring map from memory id to entry (spec §4.2).
package l1

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/model"
)

// DefaultCapacity is the default number of live entries the store holds
// before evicting the least-recently-accessed one.
const DefaultCapacity = 1000

// DefaultTTLSeconds is used when a Store call omits an explicit ttl.
const DefaultTTLSeconds = 3600

// Store is the tier-1 working store. All methods are safe for concurrent
// use; mutations are serialized by mu, matching the spec's per-tier write
// serialization with concurrent reads (§5).
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*model.Memory
}

// New constructs a Store with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, entries: make(map[string]*model.Memory)}
}

// Store assigns an id and inserts a new entry, evicting the
// least-recently-accessed entry first if at capacity.
func (s *Store) Store(content string, typ model.Type, meta model.Metadata, ttlSeconds int) (*model.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ferrors.InvalidInput("content must not be empty")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.capacity {
		s.evictLocked()
	}

	now := model.NowMillis()
	mem := &model.Memory{
		ID:             uuid.NewString(),
		Type:           typ,
		Tier:           model.TierWorking,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		TTLSeconds:     ttlSeconds,
	}
	s.entries[mem.ID] = mem
	return mem.Clone(), nil
}

// evictLocked removes the entry with the smallest lastAccessedAt. Callers
// must hold mu.
func (s *Store) evictLocked() {
	var victim string
	var oldest int64 = -1
	for id, m := range s.entries {
		if oldest == -1 || m.LastAccessedAt < oldest {
			oldest = m.LastAccessedAt
			victim = id
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
}

// Get returns the live entry for id, bumping its access bookkeeping, or nil
// if absent or expired. An expired entry found during Get is dropped.
func (s *Store) Get(id string) *model.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.entries[id]
	if !ok {
		return nil
	}
	now := time.Now()
	if mem.Expired(now) {
		delete(s.entries, id)
		return nil
	}
	mem.LastAccessedAt = now.UnixMilli()
	mem.AccessCount++
	return mem.Clone()
}

// GetAll returns all live (non-expired) entries, newest-created first.
func (s *Store) GetAll() []*model.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]*model.Memory, 0, len(s.entries))
	for id, mem := range s.entries {
		if mem.Expired(now) {
			delete(s.entries, id)
			continue
		}
		out = append(out, mem.Clone())
	}
	sortByCreatedAtDesc(out)
	return out
}

// Delete removes id unconditionally. Returns false if it did not exist.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Cleanup sweeps expired entries and returns the number removed. Intended
// to run periodically (spec default ~60s).
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, mem := range s.entries {
		if mem.Expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// SearchSubstring performs a case-insensitive linear scan over live entries.
func (s *Store) SearchSubstring(ctx context.Context, query string) []*model.Memory {
	needle := strings.ToLower(query)
	all := s.GetAll()
	if needle == "" {
		return all
	}
	out := make([]*model.Memory, 0, len(all))
	for _, mem := range all {
		select {
		case <-ctx.Done():
			return out
		default:
		}
		if strings.Contains(strings.ToLower(mem.Content), needle) {
			out = append(out, mem)
		}
	}
	return out
}

// Len reports the number of entries currently held, live or expired.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func sortByCreatedAtDesc(memories []*model.Memory) {
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt > memories[j].CreatedAt
	})
}
