package web

import (
	"sync"

	"omega-ahrs/internal/ahrs"
)

// AttitudeBroadcaster fans out filter snapshots to any listeners (websocket
// clients). It keeps the most recent value so new subscribers get an
// immediate sample. Slow subscribers miss samples instead of blocking.
type AttitudeBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan AttitudeSnapshot
	nextID   int
	last     AttitudeSnapshot
	haveLast bool
	closed   bool
}

func NewAttitudeBroadcaster() *AttitudeBroadcaster {
	return &AttitudeBroadcaster{
		subs: make(map[int]chan AttitudeSnapshot),
	}
}

// Subscribe registers a listener. The returned channel is closed by
// Unsubscribe or Close.
func (b *AttitudeBroadcaster) Subscribe(buffer int) (int, <-chan AttitudeSnapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan AttitudeSnapshot, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return -1, ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *AttitudeBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active listeners.
func (b *AttitudeBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PublishSnapshot converts snap and publishes it.
func (b *AttitudeBroadcaster) PublishSnapshot(snap ahrs.Snapshot) {
	b.Publish(AttitudeFromSnapshot(snap))
}

func (b *AttitudeBroadcaster) Publish(att AttitudeSnapshot) {
	if b == nil {
		return
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send.
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- att:
		default:
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.last = att
	b.haveLast = true
	b.mu.Unlock()
}

// Close closes every subscriber channel; later subscribers get a closed channel.
func (b *AttitudeBroadcaster) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
