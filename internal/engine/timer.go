// Package engine: keyed timers for deferred actions.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// KeyedTimer schedules deferred callbacks keyed by caller-chosen ids.
// Scheduling under an existing key cancels the prior timer first, so a
// restarted monitor or a re-armed buffer check never runs twice.
type KeyedTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
}

// NewKeyedTimer creates a new KeyedTimer.
func NewKeyedTimer() *KeyedTimer {
	slog.Debug("Creating KeyedTimer")
	return &KeyedTimer{timers: make(map[string]*timerEntry)}
}

// ScheduleAfter schedules fn to run after delay under the given key. A
// non-positive delay cancels any prior timer under the key and runs fn on
// its own goroutine immediately.
func (t *KeyedTimer) ScheduleAfter(key string, delay time.Duration, fn func()) {
	if delay <= 0 {
		t.Cancel(key)
		slog.Debug("KeyedTimer.ScheduleAfter: non-positive delay, executing immediately", "key", key)
		go fn()
		return
	}

	now := time.Now()
	entry := &timerEntry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
	}

	t.mu.Lock()
	if prev, exists := t.timers[key]; exists {
		prev.timer.Stop()
	}
	entry.timer = time.AfterFunc(delay, func() {
		slog.Debug("KeyedTimer executing scheduled function", "key", key)
		t.mu.Lock()
		// Only remove our own entry; a reschedule racing with the fire
		// must stay cancellable under the key.
		if t.timers[key] == entry {
			delete(t.timers, key)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[key] = entry
	t.mu.Unlock()
	slog.Debug("KeyedTimer.ScheduleAfter succeeded", "key", key, "delay", delay)
}

// ScheduleAt schedules fn to run at a specific time under the given key.
func (t *KeyedTimer) ScheduleAt(key string, when time.Time, fn func()) {
	t.ScheduleAfter(key, time.Until(when), fn)
}

// Cancel cancels a scheduled function by key. Unknown keys are a no-op.
func (t *KeyedTimer) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, exists := t.timers[key]; exists {
		entry.timer.Stop()
		delete(t.timers, key)
		slog.Debug("KeyedTimer.Cancel succeeded", "key", key)
	}
}

// Stop cancels all scheduled timers.
func (t *KeyedTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	t.timers = make(map[string]*timerEntry)
	slog.Debug("KeyedTimer stopped all timers")
}

// Active returns the number of currently scheduled timers.
func (t *KeyedTimer) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.timers)
}
