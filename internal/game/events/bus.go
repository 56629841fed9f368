package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus fans events out to subscriber channels. A subscriber whose buffer is
// full misses the event; Emit never blocks.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]struct{}
	dropped     atomic.Int64
	logger      *zap.Logger
}

type subscription struct {
	name string
	ch   chan Event
	once sync.Once
}

// NewBus creates a Bus. A nil logger disables drop logging.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subscribers: make(map[*subscription]struct{}), logger: logger}
}

// Subscribe registers a consumer with a buffer of size buffer.
//
// Precondition: buffer > 0.
// Postcondition: Returns the receive channel and an idempotent cancel that
// unregisters the subscriber and closes the channel.
func (b *Bus) Subscribe(name string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	s := &subscription{name: name, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s.ch, func() {
		b.mu.Lock()
		delete(b.subscribers, s)
		b.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
	}
}

// Emit implements Sink.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.ch <- e:
		default:
			n := b.dropped.Add(1)
			b.logger.Debug("event dropped for slow subscriber",
				zap.String("subscriber", s.name),
				zap.String("type", string(e.Type)),
				zap.Int64("dropped_total", n),
			)
		}
	}
}

// Dropped returns the number of deliveries skipped because a buffer was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Recorder is a Sink that keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Multi emits to every sink in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
