package asyncprim

import (
	"sync"
	"testing"
	"time"
)

func TestSemaphore_CapacityAndAvailability(t *testing.T) {
	s, err := NewSemaphore(2)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	if s.Capacity() != 2 {
		t.Errorf("Capacity() = %d, want 2", s.Capacity())
	}

	h1, err := s.Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := s.AvailableCount(); got != 1 {
		t.Errorf("AvailableCount() = %d, want 1", got)
	}

	h2, err := s.Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := s.AvailableCount(); got != 0 {
		t.Errorf("AvailableCount() = %d, want 0", got)
	}

	h1.Release()
	if got := s.AvailableCount(); got != 1 {
		t.Errorf("AvailableCount() = %d, want 1", got)
	}
	h2.Release()
}

func TestSemaphore_InvalidCapacity(t *testing.T) {
	if _, err := NewSemaphore(0); err != ErrInvalidCapacity {
		t.Errorf("NewSemaphore(0) err = %v, want ErrInvalidCapacity", err)
	}
	if _, err := NewSemaphore(-1); err != ErrInvalidCapacity {
		t.Errorf("NewSemaphore(-1) err = %v, want ErrInvalidCapacity", err)
	}
}

func TestSemaphore_ReleasesGrantAllQueuedWaiters(t *testing.T) {
	s, err := NewSemaphore(3)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}

	// fill capacity, then queue 3 more waiters
	var held []Handle
	for i := 0; i < 3; i++ {
		h, err := s.Acquire(nil)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		held = append(held, h)
	}

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			h, err := s.Acquire(nil)
			if err != nil {
				t.Errorf("queued Acquire: %v", err)
				return
			}
			h.Release()
			done <- struct{}{}
		}()
	}

	for s.PendingCount() != 3 {
		time.Sleep(time.Millisecond)
	}

	// releasing all three held permits at once should grant all three
	// queued waiters without anyone else stealing a slot in between.
	for _, h := range held {
		h.Release()
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for queued acquire to be granted")
		}
	}
}

func TestSemaphore_TryAcquire(t *testing.T) {
	s, err := NewSemaphore(1)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	h, ok := s.TryAcquire()
	if !ok {
		t.Fatal("expected TryAcquire to succeed")
	}
	if _, ok := s.TryAcquire(); ok {
		t.Error("expected second TryAcquire to fail at capacity 1")
	}
	h.Release()
}

func TestSemaphore_ConcurrentAcquireNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	s, err := NewSemaphore(capacity)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}

	var mu sync.Mutex
	current, maxSeen := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Acquire(nil)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > maxSeen {
				maxSeen = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			h.Release()
		}()
	}
	wg.Wait()

	if maxSeen > capacity {
		t.Errorf("observed %d concurrent holders, want <= %d", maxSeen, capacity)
	}
}

func TestSemaphore_StatsGatedByWithMetrics(t *testing.T) {
	s, err := NewSemaphore(2)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	h, err := s.Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release()
	if got := s.Stats(); got != (SemaphoreStats{}) {
		t.Errorf("Stats() without WithMetrics(true) = %+v, want zero value", got)
	}

	s2, err := NewSemaphore(2, WithMetrics(true))
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	h2, err := s2.Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h2.Release()
	if got := s2.Stats(); got.Capacity != 2 || got.Available != 1 {
		t.Errorf("Stats() = %+v, want Capacity=2 Available=1", got)
	}
}
