package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
)

func newStores(t *testing.T) map[string]repositories.ProgressRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]repositories.ProgressRepository{
		"redis":  NewRedisStore(cache.NewCacheManager(client).Progress, time.Hour),
		"memory": NewMemoryStore(time.Hour),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := &models.TestProgress{
				QuestionIDs: []uint{4, 2, 9},
				Current:     1,
				Answers:     map[uint]string{4: "B"},
				TimeLimit:   180,
				StartedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			}

			if err := store.Set(ctx, "abc", 7, in); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, err := store.Get(ctx, "abc", 7)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if len(got.QuestionIDs) != 3 || got.QuestionIDs[2] != 9 {
				t.Errorf("QuestionIDs = %v", got.QuestionIDs)
			}
			if got.Answers[4] != "B" || got.Current != 1 || got.TimeLimit != 180 {
				t.Errorf("Get() = %+v", got)
			}
			if !got.StartedAt.Equal(in.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", got.StartedAt, in.StartedAt)
			}
		})
	}
}

func TestStore_MissingIsNotFound(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "abc", 1)
			if !errors.Is(err, repositories.ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_DeleteAllScopedToBrowserSession(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &models.TestProgress{QuestionIDs: []uint{1}, Answers: map[uint]string{}}

			for _, id := range []uint{1, 2} {
				if err := store.Set(ctx, "mine", id, p); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
			}
			if err := store.Set(ctx, "other", 1, p); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			if err := store.DeleteAll(ctx, "mine"); err != nil {
				t.Fatalf("DeleteAll() error = %v", err)
			}

			for _, id := range []uint{1, 2} {
				if _, err := store.Get(ctx, "mine", id); !errors.Is(err, repositories.ErrNotFound) {
					t.Errorf("Get(mine, %d) error = %v, want ErrNotFound", id, err)
				}
			}
			if _, err := store.Get(ctx, "other", 1); err != nil {
				t.Errorf("Get(other, 1) error = %v, want entry kept", err)
			}
		})
	}
}

func TestMemoryStore_Expires(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Set(ctx, "s", 1, &models.TestProgress{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "s", 1); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Get() after ttl error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_WriteSweepsAbandonedEntries(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	for id := uint(1); id <= 3; id++ {
		if err := store.Set(ctx, "abandoned", id, &models.TestProgress{}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	now = now.Add(2 * time.Minute)
	if err := store.Set(ctx, "active", 9, &models.TestProgress{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.entries) != 1 {
		t.Errorf("%d entries kept, want only the fresh one", len(store.entries))
	}
	if _, ok := store.entries[Key("active", 9)]; !ok {
		t.Error("fresh entry was swept")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	if err := store.Set(ctx, "s", 1, &models.TestProgress{Answers: map[uint]string{1: "A"}}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, _ := store.Get(ctx, "s", 1)
	got.Answers[1] = "C"

	again, _ := store.Get(ctx, "s", 1)
	if again.Answers[1] != "A" {
		t.Errorf("stored answer mutated to %q", again.Answers[1])
	}
}
