package chat

import (
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Frame, want int) []Frame {
	t.Helper()
	var out []Frame
	timeout := time.After(2 * time.Second)
	for len(out) < want {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatalf("timed out after %d frames, want %d", len(out), want)
		}
	}
	return out
}

func TestBroadcastReplaysPrefixToLateJoiner(t *testing.T) {
	b := NewBroadcast(nil)
	b.Publish(StepFrame(0, PhaseAnalyzing, "analyzing"))
	b.Publish(TokenFrame("hel"))

	ch, detach := b.Subscribe()
	defer detach()

	b.Publish(TokenFrame("lo"))
	b.Close()

	frames := collect(t, ch, 3)
	if frames[0].Type != FrameStep || frames[1].Text != "hel" || frames[2].Text != "lo" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Close")
	}
}

func TestBroadcastSubscribeAfterCloseGetsReplayOnly(t *testing.T) {
	b := NewBroadcast(nil)
	b.Publish(TokenFrame("x"))
	b.Close()

	ch, detach := b.Subscribe()
	defer detach()

	frames := collect(t, ch, 1)
	if frames[0].Text != "x" {
		t.Fatalf("unexpected replay: %+v", frames)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

func TestBroadcastReplayDepthBound(t *testing.T) {
	b := NewBroadcast(nil)
	for i := 0; i < replayDepth+10; i++ {
		b.Publish(TokenFrame("t"))
	}
	b.Close()

	ch, detach := b.Subscribe()
	defer detach()

	n := 0
	for range ch {
		n++
	}
	if n != replayDepth {
		t.Fatalf("replay length = %d, want %d", n, replayDepth)
	}
}

func TestBroadcastOnIdleFiresWhenLastSubscriberDetaches(t *testing.T) {
	fired := make(chan struct{}, 1)
	b := NewBroadcast(func() { fired <- struct{}{} })

	_, detach1 := b.Subscribe()
	_, detach2 := b.Subscribe()

	detach1()
	select {
	case <-fired:
		t.Fatal("onIdle fired while a subscriber remained")
	default:
	}

	detach2()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onIdle did not fire after last detach")
	}

	// Detaching again never refires.
	detach2()
	select {
	case <-fired:
		t.Fatal("onIdle fired twice")
	default:
	}
}

func TestInflightCoalescesWithinWindow(t *testing.T) {
	tab := NewInflight(2 * time.Second)
	key := DedupKey("u1", "c1", "hello")

	n1, shared1 := tab.Attach(key, func() *Broadcast { return NewBroadcast(nil) })
	if shared1 {
		t.Fatal("first attach must not be shared")
	}
	n2, shared2 := tab.Attach(key, func() *Broadcast { t.Fatal("should reuse"); return nil })
	if !shared2 || n1 != n2 {
		t.Fatal("second attach within window must share the node")
	}

	// Closed streams are never shared.
	n1.Close()
	_, shared3 := tab.Attach(key, func() *Broadcast { return NewBroadcast(nil) })
	if shared3 {
		t.Fatal("closed entry must not be reused")
	}
}

func TestInflightExpiresAfterWindow(t *testing.T) {
	tab := NewInflight(time.Second)
	base := time.Unix(1000, 0)
	tab.now = func() time.Time { return base }

	key := DedupKey("u1", "c1", "hello")
	tab.Attach(key, func() *Broadcast { return NewBroadcast(nil) })

	tab.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	fresh := false
	tab.Attach(key, func() *Broadcast { fresh = true; return NewBroadcast(nil) })
	if !fresh {
		t.Fatal("expired entry must start a new pipeline")
	}
}
