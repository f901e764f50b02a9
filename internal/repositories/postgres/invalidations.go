package postgres

import (
	"context"
	"sync"
)

// Invalidations holds cache invalidations raised by repositories bound to a
// transaction until it commits. A nil *Invalidations runs them immediately.
type Invalidations struct {
	mu      sync.Mutex
	pending []func(context.Context)
}

// Run executes fn now, or queues it when bound to a transaction
func (i *Invalidations) Run(ctx context.Context, fn func(context.Context)) {
	if i == nil {
		fn(ctx)
		return
	}
	i.mu.Lock()
	i.pending = append(i.pending, fn)
	i.mu.Unlock()
}

// flush runs the queued invalidations once, after commit
func (i *Invalidations) flush(ctx context.Context) {
	i.mu.Lock()
	pending := i.pending
	i.pending = nil
	i.mu.Unlock()

	for _, fn := range pending {
		fn(ctx)
	}
}
