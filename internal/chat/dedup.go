package chat

import (
	"strings"
	"sync"
	"time"
)

// Inflight coalesces duplicate answer requests: a second identical
// request arriving within the window attaches to the already-running
// stream instead of starting a new pipeline.
type Inflight struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*inflightEntry

	now func() time.Time
}

type inflightEntry struct {
	node    *Broadcast
	started time.Time
}

func NewInflight(window time.Duration) *Inflight {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Inflight{
		window:  window,
		entries: map[string]*inflightEntry{},
		now:     time.Now,
	}
}

// DedupKey identifies a logical request for coalescing.
func DedupKey(userID, conversationID, query string) string {
	return userID + "\x00" + conversationID + "\x00" + strings.ToLower(strings.TrimSpace(query))
}

// Attach returns the broadcast node for key. When a live entry exists
// inside the window the caller shares it (shared=true); otherwise start
// is invoked under the lock to begin a new pipeline.
func (t *Inflight) Attach(key string, start func() *Broadcast) (node *Broadcast, shared bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		if !e.node.Closed() && t.now().Sub(e.started) <= t.window {
			return e.node, true
		}
		delete(t.entries, key)
	}
	n := start()
	t.entries[key] = &inflightEntry{node: n, started: t.now()}
	return n, false
}

// Invalidate drops the entry so a retry starts a fresh pipeline. Called
// when a run is cancelled or fails before completing.
func (t *Inflight) Invalidate(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}
