package engine

// Slot generation scheduling. Each active slot of the day gets one trigger
// time, seeded once per (day, slot) through the record map and armed as an
// in-process timer. Firing a trigger generates the slot's tasks exactly
// once; the generated flag makes retries and restarts idempotent.

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// PrepareDailyTriggers computes and records trigger times for all of
// today's active slots, then arms timers for the ones still in the future.
// Trigger times already recorded for (day, slot) are kept as is, so
// re-running after a restart or a weather refresh never moves a trigger
// that was already promised.
func (e *Engine) PrepareDailyTriggers(ctx context.Context, now time.Time) error {
	report := e.fetchWeatherReport(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prepareDailyTriggersLocked(now, report)
}

func (e *Engine) prepareDailyTriggersLocked(now time.Time, report *models.WeatherReport) error {
	day := e.deps.Calendar.DayKey(now)

	for _, slot := range models.ActiveSlots {
		trigger := e.deps.Generator.TriggerTime(slot, now, report)
		if err := e.deps.Store.SetSlotTime(models.RecordSlotTriggers, day, slot, trigger); err != nil {
			return err
		}
		recorded, ok, err := e.deps.Store.GetSlotTime(models.RecordSlotTriggers, day, slot)
		if err != nil || !ok {
			continue
		}
		if recorded.After(now) {
			e.armTrigger(slot, recorded)
		}
	}
	slog.Info("Engine.PrepareDailyTriggers: triggers prepared", "day", day)
	return nil
}

// armTrigger schedules the generation check for a slot's trigger time.
func (e *Engine) armTrigger(slot models.TimeSlot, at time.Time) {
	e.timers.ScheduleAt("trigger:"+string(slot), at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.CheckGenerationTrigger(ctx); err != nil {
			slog.Error("Engine.armTrigger: generation check failed", "error", err, "slot", slot)
		}
	})
	slog.Debug("Engine.armTrigger: trigger armed", "slot", slot, "at", at)
}

// CheckGenerationTrigger generates tasks for the current slot when its
// trigger time has passed and nothing was generated for it yet. Safe to
// call repeatedly; only the first call past the trigger does work. The
// weather fetch runs between the due-check and the generation with the
// lock released, so other mutations proceed while the provider is on the
// wire.
func (e *Engine) CheckGenerationTrigger(ctx context.Context) error {
	e.mu.Lock()
	due, err := e.generationDueLocked()
	e.mu.Unlock()
	if err != nil || !due {
		return err
	}

	report := e.fetchWeatherReport(ctx)

	e.mu.Lock()
	slot, count, err := e.generateCurrentSlotLocked(report)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if count > 0 {
		e.notifySlotUnlocked(ctx, slot, count)
	}
	return nil
}

// generationDueLocked reports whether the current slot has a recorded
// trigger that passed without generation. Caller holds the engine lock.
func (e *Engine) generationDueLocked() (bool, error) {
	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)
	if slot == models.SlotNight {
		return false, nil
	}
	day := e.deps.Calendar.DayKey(now)
	trigger, ok, err := e.deps.Store.GetSlotTime(models.RecordSlotTriggers, day, slot)
	if err != nil {
		return false, err
	}
	if !ok || now.Before(trigger) {
		return false, nil
	}
	generated, err := e.deps.Store.GetSlotFlag(models.RecordSlotGenerated, day, slot)
	if err != nil {
		return false, err
	}
	return !generated, nil
}

// generateCurrentSlotLocked re-validates the trigger and generates the
// slot's tasks. The due-check repeats here because the lock was released
// around the weather fetch and a concurrent caller may have generated
// first. Returns the slot and the task count to announce; zero means no
// notification is owed. Caller holds the engine lock.
func (e *Engine) generateCurrentSlotLocked(report *models.WeatherReport) (models.TimeSlot, int, error) {
	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)
	due, err := e.generationDueLocked()
	if err != nil || !due {
		return slot, 0, err
	}
	day := e.deps.Calendar.DayKey(now)
	trigger, _, err := e.deps.Store.GetSlotTime(models.RecordSlotTriggers, day, slot)
	if err != nil {
		return slot, 0, err
	}

	slotStart, slotEnd := e.deps.Calendar.SlotInterval(slot, now)
	e.purgeStaleTasks(now, slotStart)
	reserved, err := e.purgeSlotWindow(slotStart, slotEnd, "", true)
	if err != nil {
		return slot, 0, err
	}

	tasks := e.deps.Generator.Generate(slot, now, report, e.templates(), reserved)
	for _, t := range tasks {
		if err := e.deps.Store.SaveTask(t); err != nil {
			return slot, 0, err
		}
	}
	if err := e.deps.Store.SetSlotFlag(models.RecordSlotGenerated, day, slot, true); err != nil {
		return slot, 0, err
	}
	slog.Info("Engine.CheckGenerationTrigger: slot generated", "slot", slot, "count", len(tasks), "day", day)

	if len(tasks) > 0 && now.Sub(trigger) <= NotificationGraceWindow {
		for _, t := range tasks {
			e.armReminder(t)
		}
		return slot, len(tasks), nil
	}
	return slot, 0, nil
}

// purgeStaleTasks deletes today's uncompleted tasks scheduled before the
// current slot. They can no longer be acted on and would otherwise pollute
// the day view. Caller holds the engine lock.
func (e *Engine) purgeStaleTasks(now, slotStart time.Time) {
	dayStart, _ := e.dayRange(now)
	old, err := e.deps.Store.ListTasksBetween(dayStart, slotStart)
	if err != nil {
		slog.Warn("Engine.purgeStaleTasks: list failed", "error", err)
		return
	}
	for _, t := range old {
		if t.Status == models.TaskStatusCompleted {
			continue
		}
		e.timers.Cancel("buffer:" + t.ID)
		e.timers.Cancel("remind:" + t.ID)
		if err := e.deps.Store.DeleteTask(t.ID); err != nil {
			slog.Warn("Engine.purgeStaleTasks: delete failed", "error", err, "id", t.ID)
		}
	}
}

// purgeSlotWindow clears old task instances from a slot window ahead of
// regeneration. Tasks matching keepID, and completed tasks when
// keepCompleted is set, survive with their titles reserved so regeneration
// cannot duplicate them; everything else is deleted. Caller holds the
// engine lock.
func (e *Engine) purgeSlotWindow(slotStart, slotEnd time.Time, keepID string, keepCompleted bool) (map[string]bool, error) {
	existing, err := e.deps.Store.ListTasksBetween(slotStart, slotEnd)
	if err != nil {
		return nil, err
	}
	reserved := make(map[string]bool)
	for _, t := range existing {
		keep := t.ID == keepID && keepID != ""
		if keepCompleted && t.Status == models.TaskStatusCompleted {
			keep = true
		}
		if keep {
			reserved[t.Title] = true
			continue
		}
		e.timers.Cancel("buffer:" + t.ID)
		e.timers.Cancel("remind:" + t.ID)
		if err := e.deps.Store.DeleteTask(t.ID); err != nil {
			return nil, err
		}
	}
	return reserved, nil
}

// notifySlotUnlocked sends the slot notification when the user has them
// enabled, logging rather than failing on send errors. Runs without the
// engine lock; the send may block on the network.
func (e *Engine) notifySlotUnlocked(ctx context.Context, slot models.TimeSlot, count int) {
	stats, err := e.deps.Store.GetStats()
	if err != nil || !stats.NotificationsEnabled {
		return
	}
	if err := e.deps.Notifier.SlotUnlocked(ctx, slot, count); err != nil {
		slog.Warn("Engine.notifySlotUnlocked: send failed", "error", err, "slot", slot)
	}
}

// armReminder schedules the per-task reminder at the task's scheduled
// time.
func (e *Engine) armReminder(task models.UserTask) {
	e.timers.ScheduleAt("remind:"+task.ID, task.ScheduledDate, func() {
		e.mu.Lock()
		current, err := e.deps.Store.GetTask(task.ID)
		e.mu.Unlock()
		if err != nil || current == nil || current.Status != models.TaskStatusPending {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		stats, err := e.deps.Store.GetStats()
		if err != nil || !stats.NotificationsEnabled {
			return
		}
		if err := e.deps.Notifier.TaskReminder(ctx, *current); err != nil {
			slog.Warn("Engine.armReminder: send failed", "error", err, "id", task.ID)
		}
	})
}
