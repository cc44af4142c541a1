package asyncprim

import (
	"testing"
	"time"
)

func TestCondition_NotifyOneWakesOneWaiter(t *testing.T) {
	c, err := NewCondition()
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}

	done := make(chan struct{})
	go func() {
		h, err := c.Wait(nil)
		if err != nil {
			t.Errorf("Wait: %v", err)
			return
		}
		h.Release()
		close(done)
	}()

	for c.PendingCount() != 1 {
		time.Sleep(time.Millisecond)
	}
	c.NotifyOne()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NotifyOne to wake the waiter")
	}
}

func TestCondition_NotifyOneWithNoWaiterIsLost(t *testing.T) {
	c, err := NewCondition()
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	// no-op, must not panic or block
	c.NotifyOne()

	done := make(chan struct{})
	go func() {
		h, err := c.Wait(nil)
		if err != nil {
			t.Errorf("Wait: %v", err)
			return
		}
		h.Release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned without a later NotifyOne")
	case <-time.After(50 * time.Millisecond):
	}

	c.NotifyOne()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the later NotifyOne")
	}
}

func TestManualCondition_WithInitialRaised(t *testing.T) {
	mc, err := NewManualCondition(WithInitialRaised(true))
	if err != nil {
		t.Fatalf("NewManualCondition: %v", err)
	}
	if !mc.Raised() {
		t.Fatal("expected Raised() true")
	}

	h, err := mc.Wait(nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	h.Release()
	if mc.PendingCount() != 0 {
		t.Error("Wait while raised must not enqueue")
	}
}

func TestManualCondition_RaiseWakesAllQueued(t *testing.T) {
	mc, err := NewManualCondition()
	if err != nil {
		t.Fatalf("NewManualCondition: %v", err)
	}

	const n = 4
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			h, err := mc.Wait(nil)
			if err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			h.Release()
			done <- struct{}{}
		}()
	}
	for mc.PendingCount() != n {
		time.Sleep(time.Millisecond)
	}

	mc.Raise()

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for Raise to wake all queued waiters")
		}
	}
	if !mc.Raised() {
		t.Error("expected Raised() true after Raise")
	}

	// a Wait arriving after Raise must return immediately
	h, err := mc.Wait(nil)
	if err != nil {
		t.Fatalf("Wait after Raise: %v", err)
	}
	h.Release()
}

func TestManualCondition_DropClearsRaised(t *testing.T) {
	mc, err := NewManualCondition(WithInitialRaised(true))
	if err != nil {
		t.Fatalf("NewManualCondition: %v", err)
	}
	mc.Drop()
	if mc.Raised() {
		t.Fatal("expected Raised() false after Drop")
	}

	done := make(chan struct{})
	go func() {
		h, err := mc.Wait(nil)
		if err != nil {
			t.Errorf("Wait: %v", err)
			return
		}
		h.Release()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait returned while not raised and nothing queued to wake it")
	case <-time.After(50 * time.Millisecond):
	}
	mc.Raise()
	<-done
}

func TestManualCondition_NotifyOneWakesOneAndClearsRaised(t *testing.T) {
	mc, err := NewManualCondition()
	if err != nil {
		t.Fatalf("NewManualCondition: %v", err)
	}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			h, err := mc.Wait(nil)
			if err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			h.Release()
			done <- struct{}{}
		}()
	}
	for mc.PendingCount() != 2 {
		time.Sleep(time.Millisecond)
	}

	mc.NotifyOne()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NotifyOne to wake one waiter")
	}
	select {
	case <-done:
		t.Fatal("NotifyOne woke more than one waiter")
	case <-time.After(50 * time.Millisecond):
	}
	if mc.Raised() {
		t.Error("expected Raised() false after NotifyOne")
	}
	if mc.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", mc.PendingCount())
	}
}

func TestCondition_TriggerAndWait_AtomicPath(t *testing.T) {
	c, err := NewCondition()
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	m, err := NewMutex()
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	notified := make(chan struct{})
	go func() {
		h, err := c.Wait(nil)
		if err != nil {
			t.Errorf("Wait: %v", err)
			return
		}
		h.Release()
		close(notified)
	}()
	for c.PendingCount() != 1 {
		time.Sleep(time.Millisecond)
	}

	h, err := c.TriggerAndWait(m, nil)
	if err != nil {
		t.Fatalf("TriggerAndWait: %v", err)
	}
	defer h.Release()

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("TriggerAndWait did not notify the condition")
	}
	if !m.IsLocked() {
		t.Error("expected mutex to be locked after TriggerAndWait")
	}
}

func TestCondition_TriggerAndWait_NonAtomicFallback(t *testing.T) {
	c, err := NewCondition()
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	m, err := NewMutex()
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}
	// hold the mutex so prepare() cannot reserve synchronously, forcing the
	// fallback branch.
	held, err := m.Lock(nil)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		h, err := c.TriggerAndWait(m, nil)
		if err == nil {
			h.Release()
		}
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	held.Release()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("TriggerAndWait fallback: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fallback TriggerAndWait")
	}
}

func TestCondition_TriggerAndWait_AlreadyCancelled(t *testing.T) {
	c, err := NewCondition()
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	m, err := NewMutex()
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	src := NewCancelSource()
	src.Cancel("nope")

	_, err = c.TriggerAndWait(m, src.Token())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if m.IsLocked() {
		t.Error("mutex must not remain reserved after a cancelled TriggerAndWait")
	}
}
