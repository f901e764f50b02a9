package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheManager(client), mr
}

func TestCacheHelper_SetGetDelete(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}

	if err := cm.Stats.Set(ctx, "user:1:dashboard", payload{Count: 3}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("stats:user:1:dashboard") {
		t.Fatal("expected prefixed key in redis")
	}

	var got payload
	if err := cm.Stats.Get(ctx, "user:1:dashboard", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Count != 3 {
		t.Errorf("Get() = %+v, want count 3", got)
	}

	if err := cm.Stats.Delete(ctx, "user:1:dashboard"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := cm.Stats.Get(ctx, "user:1:dashboard", &got); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_NilClientDegrades(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	if err := cm.Stats.Set(ctx, "k", 1, time.Minute); err != nil {
		t.Errorf("Set() without redis error = %v, want nil", err)
	}
	var v int
	if err := cm.Stats.Get(ctx, "k", &v); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get() without redis error = %v, want ErrCacheNotAvailable", err)
	}
	if err := cm.HealthCheck(ctx); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("HealthCheck() error = %v, want ErrCacheNotAvailable", err)
	}
}

func TestCacheOrExecute(t *testing.T) {
	cm, _ := newTestManager(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return map[string]int{"total": 42}, nil
	}

	for i := 0; i < 3; i++ {
		var got map[string]int
		if err := cm.Stats.CacheOrExecute(ctx, "admin:dashboard", &got, time.Minute, fetch); err != nil {
			t.Fatalf("CacheOrExecute() error = %v", err)
		}
		if got["total"] != 42 {
			t.Fatalf("CacheOrExecute() = %v, want total 42", got)
		}
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
}

func TestInvalidateUserStats(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	for _, key := range []string{"user:1:dashboard", "user:1:statistics", "user:2:dashboard", "admin:dashboard"} {
		if err := cm.Stats.Set(ctx, key, 1, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	InvalidateUserStats(ctx, cm, 1)

	tests := []struct {
		key  string
		want bool
	}{
		{"stats:user:1:dashboard", false},
		{"stats:user:1:statistics", false},
		{"stats:user:2:dashboard", true},
		{"stats:admin:dashboard", false},
	}
	for _, tt := range tests {
		if got := mr.Exists(tt.key); got != tt.want {
			t.Errorf("Exists(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
