package shell

import (
	"context"
	"testing"
	"time"

	"k8s.io/client-go/tools/remotecommand"
)

func TestSizeQueuePushAndNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := newSizeQueue(ctx)
	q.Push(120, 40)

	got := q.Next()
	if got == nil || got.Width != 120 || got.Height != 40 {
		t.Fatalf("expected {120,40}, got %+v", got)
	}
}

func TestSizeQueueNextReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := newSizeQueue(ctx)
	cancel()

	got := q.Next()
	if got != nil {
		t.Fatalf("expected nil after cancellation, got %+v", got)
	}
}

func TestSizeQueueDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := newSizeQueue(ctx)
	for i := 0; i < 10; i++ {
		q.Push(uint16(i), uint16(i))
	}
	// should not block or panic; the first 4 pushes fill the buffer and the
	// rest are dropped
	drained := 0
	for {
		select {
		case <-q.ch:
			drained++
		case <-time.After(10 * time.Millisecond):
			if drained == 0 {
				t.Fatal("expected at least one queued size")
			}
			return
		}
	}
}

func TestVTScreenWriteAndResize(t *testing.T) {
	screen, writer := NewVTScreen(80, 24)
	if _, err := writer.Write([]byte("hello\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	screen.Resize(100, 30)
	_ = screen.String() // smoke: must not panic after a resize
}

var _ remotecommand.TerminalSizeQueue = (*sizeQueue)(nil)
