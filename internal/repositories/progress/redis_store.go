package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
)

// RedisStore keeps test progress under progress:{browser session}:test_{id}
type RedisStore struct {
	helper *cache.CacheHelper
	ttl    time.Duration
}

func NewRedisStore(helper *cache.CacheHelper, ttl time.Duration) repositories.ProgressRepository {
	if ttl <= 0 {
		ttl = cache.ProgressCacheConfig.TTL
	}
	return &RedisStore{helper: helper, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, browserSession string, sessionID uint) (*models.TestProgress, error) {
	var progress models.TestProgress
	err := s.helper.Get(ctx, Key(browserSession, sessionID), &progress)
	if err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, fmt.Errorf("progress of test %d: %w", sessionID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if progress.Answers == nil {
		progress.Answers = make(map[uint]string)
	}
	return &progress, nil
}

func (s *RedisStore) Set(ctx context.Context, browserSession string, sessionID uint, progress *models.TestProgress) error {
	if err := s.helper.Set(ctx, Key(browserSession, sessionID), progress, s.ttl); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, browserSession string, sessionID uint) error {
	if err := s.helper.Delete(ctx, Key(browserSession, sessionID)); err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAll(ctx context.Context, browserSession string) error {
	if err := s.helper.InvalidatePattern(ctx, browserSession+":test_*"); err != nil {
		return fmt.Errorf("failed to delete progress of session: %w", err)
	}
	return nil
}

// Key is the per-browser-session slot name of one test
func Key(browserSession string, sessionID uint) string {
	return fmt.Sprintf("%s:test_%d", browserSession, sessionID)
}
