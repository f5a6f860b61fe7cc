package redisclient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type recordingLocker struct {
	order []uuid.UUID
	busy  uuid.UUID
}

func (r *recordingLocker) WithEmployeeLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if id == r.busy {
		return ErrLockNotAcquired
	}
	r.order = append(r.order, id)
	return fn(ctx)
}

func TestWithEmployeeLocksOrdersAndDedupes(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	rec := &recordingLocker{}

	called := false
	err := WithEmployeeLocks(context.Background(), rec, []uuid.UUID{b, a, b, uuid.Nil}, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn not called")
	}
	if len(rec.order) != 2 || rec.order[0] != a || rec.order[1] != b {
		t.Errorf("lock order = %v, want [a b]", rec.order)
	}
}

func TestWithEmployeeLocksStopsOnBusy(t *testing.T) {
	a := uuid.New()
	rec := &recordingLocker{busy: a}
	err := WithEmployeeLocks(context.Background(), rec, []uuid.UUID{a}, func(context.Context) error {
		t.Fatal("fn must not run when a lock is held elsewhere")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c1a5e-8a43-4a4e-9e5b-2b7b0c1d2e3f")
	if got := lockKey(id); got != "lock:employee:6f1c1a5e-8a43-4a4e-9e5b-2b7b0c1d2e3f" {
		t.Errorf("lockKey = %s", got)
	}
}
