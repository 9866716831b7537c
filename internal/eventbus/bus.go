package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published inside dayboard.
const (
	// TasksPromoted carries a Promoted payload after a promotion run inserted rows.
	TasksPromoted = "tasks.promoted"
	// DigestSent carries a DigestSentInfo payload after a Telegram digest went out.
	DigestSent = "digest.sent"
	// ConfigReloaded is published after a new config was applied.
	ConfigReloaded = "config.reloaded"
)

// Promoted is the TasksPromoted payload.
type Promoted struct {
	OwnerID  int64  `json:"owner_id"`
	Day      string `json:"day"`
	Inserted int    `json:"inserted"`
	Trigger  string `json:"trigger"` // "request", "cron" or "manual"
}

// DigestSentInfo is the DigestSent payload.
type DigestSentInfo struct {
	OwnerID int64 `json:"owner_id"`
	Items   int   `json:"items"`
}

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Slow subscribers drop; a concurrent unsubscribe may close ch.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
