package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentyard/agentyard/pkg/types"
)

// Broker fans audit events out to live subscribers (SSE and websocket
// streams). Slow subscribers drop events rather than blocking the
// publisher.
type Broker struct {
	mu      sync.RWMutex
	subs    map[chan types.Event]struct{}
	dropped atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan types.Event]struct{})}
}

func (b *Broker) Subscribe(buf int) chan types.Event {
	if buf <= 0 {
		buf = 100
	}
	ch := make(chan types.Event, buf)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broker) Publish(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			count := b.dropped.Add(1)
			if count == 1 || count%100 == 0 {
				slog.Warn("events: dropped event for slow subscriber", "type", ev.Type, "total_dropped", count)
			}
		}
	}
}

// DroppedCount returns the total number of events dropped due to slow
// subscribers.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}
