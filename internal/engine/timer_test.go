package engine

import (
	"sync"
	"testing"
	"time"
)

func TestScheduleAfterReplacesTimerUnderKey(t *testing.T) {
	kt := NewKeyedTimer()
	defer kt.Stop()

	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	kt.ScheduleAfter("k", 100*time.Millisecond, record("old"))
	kt.ScheduleAfter("k", 200*time.Millisecond, record("new"))
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "new" {
		t.Fatalf("fired = %v, want only the replacement", fired)
	}
}

func TestScheduleAfterZeroDelayCancelsPriorTimer(t *testing.T) {
	kt := NewKeyedTimer()
	defer kt.Stop()

	var mu sync.Mutex
	var fired []string
	done := make(chan struct{})

	kt.ScheduleAfter("k", 200*time.Millisecond, func() {
		mu.Lock()
		fired = append(fired, "old")
		mu.Unlock()
	})
	kt.ScheduleAfter("k", 0, func() {
		mu.Lock()
		fired = append(fired, "new")
		mu.Unlock()
		close(done)
	})

	<-done
	// Long enough for the cancelled timer to have fired if it survived.
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "new" {
		t.Fatalf("fired = %v, want only the immediate callback", fired)
	}
	if kt.Active() != 0 {
		t.Errorf("Active() = %d, want 0", kt.Active())
	}
}

func TestRescheduleFromFiringCallbackStaysCancellable(t *testing.T) {
	kt := NewKeyedTimer()
	defer kt.Stop()

	rearmed := make(chan struct{})
	kt.ScheduleAfter("k", 10*time.Millisecond, func() {
		kt.ScheduleAfter("k", time.Hour, func() {
			t.Error("rearmed timer fired")
		})
		close(rearmed)
	})

	<-rearmed
	if kt.Active() != 1 {
		t.Fatalf("Active() = %d after rearm, want 1", kt.Active())
	}
	kt.Cancel("k")
	if kt.Active() != 0 {
		t.Errorf("Active() = %d after cancel, want 0", kt.Active())
	}
}
