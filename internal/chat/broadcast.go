package chat

import "sync"

// replayDepth bounds how many early frames a late joiner can replay.
// Token frames past the window are dropped from replay, not from live
// delivery, so a subscriber attaching mid-stream may miss a prefix.
const replayDepth = 64

const subscriberBuffer = 1024

// Broadcast fans one produced frame stream out to every attached
// subscriber and replays the buffered prefix to late joiners.
type Broadcast struct {
	mu     sync.Mutex
	replay []Frame
	subs   map[int]chan Frame
	nextID int
	closed bool

	// onIdle fires once when the last subscriber detaches before the
	// stream closed. The producer uses it to abandon orphaned work.
	onIdle   func()
	hadSub   bool
	idleDone bool
}

func NewBroadcast(onIdle func()) *Broadcast {
	return &Broadcast{
		subs:   map[int]chan Frame{},
		onIdle: onIdle,
	}
}

// Publish delivers f to every subscriber and records it for replay.
// Slow subscribers that cannot keep up are dropped rather than allowed
// to stall the pipeline.
func (b *Broadcast) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.replay) < replayDepth {
		b.replay = append(b.replay, f)
	}
	for id, ch := range b.subs {
		select {
		case ch <- f:
		default:
			close(ch)
			delete(b.subs, id)
		}
	}
}

// Close terminates the stream for all subscribers. Idempotent.
func (b *Broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Closed reports whether the stream has terminated.
func (b *Broadcast) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscribe attaches a new reader. The returned channel first yields the
// replayed prefix, then live frames, and is closed when the stream ends.
// The detach func must be called when the reader goes away.
func (b *Broadcast) Subscribe() (<-chan Frame, func()) {
	b.mu.Lock()
	ch := make(chan Frame, subscriberBuffer)
	for _, f := range b.replay {
		ch <- f
	}
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.hadSub = true
	b.mu.Unlock()

	detach := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		idle := b.hadSub && len(b.subs) == 0 && !b.closed && !b.idleDone
		if idle {
			b.idleDone = true
		}
		onIdle := b.onIdle
		b.mu.Unlock()
		if idle && onIdle != nil {
			onIdle()
		}
	}
	return ch, detach
}
