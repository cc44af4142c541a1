package asyncprim

import (
	"errors"
	"testing"
)

func TestDeferred_ResolveFirstWriterWins(t *testing.T) {
	d := NewDeferred[int](nil)
	if !d.Resolve(42) {
		t.Fatal("first Resolve should report true")
	}
	if d.Resolve(7) {
		t.Error("second Resolve should report false (already settled)")
	}
	if d.Reject(errors.New("x")) {
		t.Error("Reject after Resolve should report false")
	}

	v, err := d.Wait()
	if err != nil || v != 42 {
		t.Fatalf("Wait() = %d, %v, want 42, nil", v, err)
	}
}

func TestDeferred_Reject(t *testing.T) {
	d := NewDeferred[string](nil)
	wantErr := errors.New("boom")
	if !d.Reject(wantErr) {
		t.Fatal("Reject should report true")
	}

	_, err := d.Wait()
	if !errors.Is(err, wantErr) {
		t.Fatalf("Wait() err = %v, want %v", err, wantErr)
	}
}

func TestDeferred_Peek(t *testing.T) {
	d := NewDeferred[int](nil)
	if _, _, settled := d.Peek(); settled {
		t.Fatal("expected settled false before settling")
	}
	d.Resolve(5)
	v, err, settled := d.Peek()
	if !settled || err != nil || v != 5 {
		t.Fatalf("Peek() = %d, %v, %v, want 5, nil, true", v, err, settled)
	}
}

func TestDeferred_CancelledByToken(t *testing.T) {
	src := NewCancelSource()
	d := NewDeferred[int](src.Token())

	src.Cancel("abort")

	_, err := d.Wait()
	if !errors.Is(err, ErrDeferredAborted) {
		t.Fatalf("Wait() err = %v, want ErrDeferredAborted", err)
	}
}

func TestDeferred_ResolveDisarmsCancelHook(t *testing.T) {
	src := NewCancelSource()
	d := NewDeferred[int](src.Token())

	d.Resolve(1)
	src.Cancel("too late")

	v, err := d.Wait()
	if err != nil || v != 1 {
		t.Fatalf("Wait() = %d, %v, want 1, nil (cancel after settle must not override)", v, err)
	}
}

func TestDeferred_Done(t *testing.T) {
	d := NewDeferred[int](nil)
	select {
	case <-d.Done():
		t.Fatal("Done channel closed before settling")
	default:
	}
	d.Resolve(1)
	select {
	case <-d.Done():
	default:
		t.Fatal("Done channel should be closed after settling")
	}
}
