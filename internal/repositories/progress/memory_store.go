package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
)

type memoryEntry struct {
	progress  models.TestProgress
	expiresAt time.Time
}

// MemoryStore is the single-process fallback used when no redis is configured.
// Expired entries are dropped on read and swept on write at most once per ttl.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, browserSession string, sessionID uint) (*models.TestProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(browserSession, sessionID)
	entry, ok := s.entries[key]
	if !ok || (s.ttl > 0 && s.now().After(entry.expiresAt)) {
		delete(s.entries, key)
		return nil, fmt.Errorf("progress of test %d: %w", sessionID, repositories.ErrNotFound)
	}

	return cloneProgress(&entry.progress), nil
}

func (s *MemoryStore) Set(_ context.Context, browserSession string, sessionID uint, progress *models.TestProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	s.entries[Key(browserSession, sessionID)] = memoryEntry{
		progress:  *cloneProgress(progress),
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

// sweep drops abandoned entries; callers hold mu
func (s *MemoryStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Before(s.nextSweep) {
		return
	}
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

func (s *MemoryStore) Delete(_ context.Context, browserSession string, sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, Key(browserSession, sessionID))
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, browserSession string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := browserSession + ":test_"
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// cloneProgress copies the slice and map so callers never share state with the store
func cloneProgress(p *models.TestProgress) *models.TestProgress {
	out := *p
	out.QuestionIDs = append([]uint(nil), p.QuestionIDs...)
	out.Answers = make(map[uint]string, len(p.Answers))
	for k, v := range p.Answers {
		out.Answers[k] = v
	}
	return &out
}
