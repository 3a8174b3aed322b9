package safelock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMutexCancelledContextDoesNotAcquire(t *testing.T) {
	m := NewMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Lock(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !m.TryLock() {
		t.Fatal("a failed Lock must leave the mutex free")
	}
	m.Unlock()
}

func TestMutexWaiterGivesUpOnDeadline(t *testing.T) {
	m := NewMutex()
	if err := m.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer m.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestMutexWaiterAcquiresAfterUnlock(t *testing.T) {
	m := NewMutex()
	if err := m.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.Lock(context.Background())
	}()

	select {
	case err := <-acquired:
		t.Fatalf("waiter acquired a held lock (err=%v)", err)
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	m.Unlock()
}

func TestMutexTryLock(t *testing.T) {
	m := NewMutex()
	if !m.TryLock() {
		t.Fatal("TryLock on a free mutex must succeed")
	}
	if m.TryLock() {
		t.Fatal("TryLock on a held mutex must fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Lock(ctx); err == nil {
		t.Fatal("TryLock must hold the lock against Lock")
	}
	m.Unlock()
}

func TestMutexUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	NewMutex().Unlock()
}

func TestMutexSerializesReadModifyWrite(t *testing.T) {
	m := NewMutex()
	ctx := context.Background()

	// Counter updates split across a yield lose increments without the lock.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := m.Lock(ctx); err != nil {
					t.Errorf("lock: %v", err)
					return
				}
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 16*50 {
		t.Fatalf("counter: got %d, want %d", counter, 16*50)
	}
}
