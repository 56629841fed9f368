package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Persister writes snapshots off the simulation goroutine. Only the newest
// pending snapshot is kept; an older one still waiting is superseded.
// A failed write is retried after a backoff unless a newer snapshot arrives.
type Persister struct {
	store   Store
	backoff time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending *Snapshot
	wake    chan struct{}
	saved   int64
	failed  int64
}

// NewPersister creates a Persister for store.
//
// Precondition: store must be non-nil; backoff > 0.
func NewPersister(store Store, backoff time.Duration, logger *zap.Logger) *Persister {
	if store == nil {
		panic("storage.NewPersister: store must not be nil")
	}
	if backoff <= 0 {
		panic("storage.NewPersister: backoff must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, backoff: backoff, logger: logger, wake: make(chan struct{}, 1)}
}

// Submit hands s to the writer. It never blocks.
func (p *Persister) Submit(s *Snapshot) {
	p.mu.Lock()
	p.pending = s
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stats returns the number of successful and failed writes.
func (p *Persister) Stats() (saved, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved, p.failed
}

// Run writes submitted snapshots until ctx is cancelled, then flushes any
// pending snapshot with flushTimeout.
func (p *Persister) Run(ctx context.Context, flushTimeout time.Duration) {
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			p.flush(flushCtx)
			cancel()
			return
		case <-p.wake:
		case <-retry:
		}
		retry = nil
		if !p.flush(ctx) {
			retry = time.After(p.backoff)
		}
	}
}

// flush writes the pending snapshot. It returns false when a write failed
// and the snapshot is still pending.
func (p *Persister) flush(ctx context.Context) bool {
	p.mu.Lock()
	s := p.pending
	p.pending = nil
	p.mu.Unlock()
	if s == nil {
		return true
	}
	err := p.store.Save(ctx, s)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failed++
		if p.pending == nil {
			p.pending = s
		}
		p.logger.Warn("saving snapshot failed", zap.Int64("tick", s.Tick), zap.Error(err))
		return false
	}
	p.saved++
	p.logger.Debug("snapshot saved", zap.Int64("tick", s.Tick), zap.String("id", s.ID.String()))
	return true
}
