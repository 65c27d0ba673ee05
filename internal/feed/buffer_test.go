package feed

import (
	"sync"
	"testing"
	"time"
)

func TestBufferPushPop(t *testing.T) {
	b := NewBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !b.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	if b.Len() != 5 {
		t.Errorf("Len = %d, want 5", b.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := b.Pop()
		if !ok {
			t.Fatalf("Pop %d returned !ok", i)
		}
		if v != i {
			t.Errorf("Pop = %d, want %d (FIFO order)", v, i)
		}
	}
}

func TestBufferTryPopEmpty(t *testing.T) {
	b := NewBuffer[string](4)
	if _, ok := b.TryPop(); ok {
		t.Error("TryPop on empty buffer should return !ok")
	}
}

func TestBufferGrowsAtThreshold(t *testing.T) {
	b := NewBuffer[int](10)

	// 70% of 10 is 7; pushing toward it must trigger a resize rather
	// than ever dropping an item.
	for i := 0; i < 100; i++ {
		if !b.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}

	stats := b.Stats()
	if stats.Resizes == 0 {
		t.Error("expected at least one resize")
	}
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100 (nothing dropped)", stats.Count)
	}

	// FIFO order survives growth.
	for i := 0; i < 100; i++ {
		v, ok := b.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
}

func TestBufferGrowWithWrappedRing(t *testing.T) {
	b := NewBuffer[int](8)

	// Advance head so the ring wraps before growing.
	for i := 0; i < 4; i++ {
		b.Push(i)
	}
	for i := 0; i < 4; i++ {
		b.TryPop()
	}
	for i := 10; i < 30; i++ {
		b.Push(i)
	}

	for i := 10; i < 30; i++ {
		v, ok := b.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
}

func TestBufferDrain(t *testing.T) {
	b := NewBuffer[int](10)
	for i := 0; i < 6; i++ {
		b.Push(i)
	}

	out := b.Drain(4)
	if len(out) != 4 {
		t.Fatalf("Drain(4) returned %d items", len(out))
	}
	for i, v := range out {
		if v != i {
			t.Errorf("Drain[%d] = %d, want %d", i, v, i)
		}
	}

	rest := b.Drain(0) // all remaining
	if len(rest) != 2 {
		t.Fatalf("Drain(0) returned %d items, want 2", len(rest))
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after full drain, want 0", b.Len())
	}
	if b.Drain(0) != nil {
		t.Error("Drain on empty buffer should return nil")
	}
}

func TestBufferClose(t *testing.T) {
	b := NewBuffer[int](4)
	b.Push(1)
	b.Close()

	if b.Push(2) {
		t.Error("Push after Close should return false")
	}

	// Remaining items drain, then the closed signal.
	if v, ok := b.Pop(); !ok || v != 1 {
		t.Errorf("Pop = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := b.Pop(); ok {
		t.Error("Pop on closed empty buffer should return !ok")
	}
}

func TestBufferPopBlocksUntilPush(t *testing.T) {
	b := NewBuffer[int](4)

	got := make(chan int, 1)
	go func() {
		v, ok := b.Pop()
		if ok {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Push(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked")
	}
}

func TestBufferConcurrent(t *testing.T) {
	b := NewBuffer[int](16)

	const producers = 4
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(i)
			}
		}()
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for popped < producers*perProducer {
			if _, ok := b.TryPop(); ok {
				popped++
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer stalled at %d items", popped)
	}

	stats := b.Stats()
	if stats.Pushed != producers*perProducer {
		t.Errorf("Pushed = %d, want %d", stats.Pushed, producers*perProducer)
	}
	if stats.Popped != producers*perProducer {
		t.Errorf("Popped = %d, want %d", stats.Popped, producers*perProducer)
	}
}
