package engine

// Background slot monitor. A single loop that sleeps until the next
// interesting timestamp instead of polling on a fixed interval, and that
// re-runs the idempotent checks on every wake so a missed tick costs
// latency, never correctness.

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Monitor sleep bounds.
const (
	// MonitorMinSleep floors the sleep so near-coincident timestamps
	// cannot degenerate into a tight loop.
	MonitorMinSleep = 30 * time.Second
	// MonitorMaxSleep caps the sleep so clock or timezone changes are
	// picked up within a bounded delay.
	MonitorMaxSleep = 30 * time.Minute
)

// StartMonitor launches the background loop. Calling it again cancels the
// previous instance first, so at most one monitor runs at a time.
func (e *Engine) StartMonitor(ctx context.Context) {
	e.monitorMu.Lock()
	if e.monitorCancel != nil {
		e.monitorCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.monitorCancel = cancel
	e.lastSlot = e.deps.Calendar.SlotFor(e.deps.Clock.Now())
	e.monitorMu.Unlock()

	go e.monitorLoop(ctx)
	slog.Info("Engine.StartMonitor: monitor started")
}

// StopMonitor cancels the running monitor, if any.
func (e *Engine) StopMonitor() {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()
	if e.monitorCancel != nil {
		e.monitorCancel()
		e.monitorCancel = nil
	}
}

func (e *Engine) monitorLoop(ctx context.Context) {
	for {
		e.monitorTick(ctx)

		sleep := e.nextWake()
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("Engine.monitorLoop: cancelled")
			return
		case <-timer.C:
		}
	}
}

// monitorTick runs one evaluation pass: slot-boundary detection, then the
// idempotent generation, penalty, and decay checks.
func (e *Engine) monitorTick(ctx context.Context) {
	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)

	e.monitorMu.Lock()
	crossed := slot != e.lastSlot
	e.lastSlot = slot
	e.monitorMu.Unlock()

	if crossed {
		slog.Info("Engine.monitorTick: slot boundary crossed", "slot", slot)
		if err := e.PrepareDailyTriggers(ctx, now); err != nil {
			slog.Warn("Engine.monitorTick: trigger preparation failed", "error", err)
		}
	}

	if err := e.CheckGenerationTrigger(ctx); err != nil {
		slog.Warn("Engine.monitorTick: generation check failed", "error", err)
	}

	e.mu.Lock()
	e.sweepSlotPenalties(now)
	e.mu.Unlock()

	if err := e.ApplyDailyDecay(ctx); err != nil {
		slog.Warn("Engine.monitorTick: decay failed", "error", err)
	}
}

// nextWake computes how long to sleep: the earlier of the next slot
// boundary and the next unfired generation trigger, clamped into
// [MonitorMinSleep, MonitorMaxSleep].
func (e *Engine) nextWake() time.Duration {
	now := e.deps.Clock.Now()
	next := e.deps.Calendar.NextBoundary(now)

	day := e.deps.Calendar.DayKey(now)
	for _, slot := range models.ActiveSlots {
		trigger, ok, err := e.deps.Store.GetSlotTime(models.RecordSlotTriggers, day, slot)
		if err != nil || !ok || !trigger.After(now) {
			continue
		}
		generated, err := e.deps.Store.GetSlotFlag(models.RecordSlotGenerated, day, slot)
		if err != nil || generated {
			continue
		}
		if trigger.Before(next) {
			next = trigger
		}
	}

	sleep := next.Sub(now)
	if sleep < MonitorMinSleep {
		sleep = MonitorMinSleep
	}
	if sleep > MonitorMaxSleep {
		sleep = MonitorMaxSleep
	}
	return sleep
}
