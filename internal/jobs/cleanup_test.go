package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/services"
)

type stubTests struct {
	services.TestService
	gotMaxAge time.Duration
	deleted   int64
	err       error
}

func (s *stubTests) CleanupStale(_ context.Context, maxAge time.Duration) (int64, error) {
	s.gotMaxAge = maxAge
	return s.deleted, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStaleSessionCleaner_Sweep(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubTests
		want    int64
		wantErr bool
	}{
		{"deletes", &stubTests{deleted: 3}, 3, false},
		{"nothing stale", &stubTests{}, 0, false},
		{"repository failure", &stubTests{err: errors.New("db down")}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaner := NewStaleSessionCleaner(tt.stub, 48*time.Hour, discardLogger())
			got, err := cleaner.Sweep(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Sweep() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Sweep() = %d, want %d", got, tt.want)
			}
			if tt.stub.gotMaxAge != 48*time.Hour {
				t.Errorf("maxAge = %v, want 48h", tt.stub.gotMaxAge)
			}
		})
	}
}

func TestStaleSessionCleaner_Schedule(t *testing.T) {
	cleaner := NewStaleSessionCleaner(&stubTests{}, time.Hour, discardLogger())
	if err := cleaner.Start("not a schedule"); err == nil {
		t.Fatal("Start() accepted an invalid schedule")
	}

	cleaner = NewStaleSessionCleaner(&stubTests{}, time.Hour, discardLogger())
	if err := cleaner.Start("@hourly"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cleaner.Stop(ctx)
}
