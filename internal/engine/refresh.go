package engine

// Refresh-once-per-slot gate. The user may regenerate the current slot's
// tasks a single time per (day, slot), and only after finishing everything
// the slot already handed out.

import (
	"context"
	"log/slog"

	"github.com/pipkin-app/pipkin/internal/models"
)

// CanRefreshCurrentSlot reports whether a refresh is currently allowed:
// the slot has at least one task, all of them are completed, and no
// refresh was recorded for (today, slot) yet.
func (e *Engine) CanRefreshCurrentSlot(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canRefreshLocked()
}

func (e *Engine) canRefreshLocked() (bool, error) {
	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)
	if slot == models.SlotNight {
		return false, nil
	}
	day := e.deps.Calendar.DayKey(now)

	used, err := e.deps.Store.GetSlotFlag(models.RecordRefreshUsed, day, slot)
	if err != nil {
		return false, err
	}
	if used {
		return false, nil
	}

	start, end := e.deps.Calendar.SlotInterval(slot, now)
	tasks, err := e.deps.Store.ListTasksBetween(start, end)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		return false, nil
	}
	for _, t := range tasks {
		if t.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// refreshGateLocked validates the refresh preconditions, distinguishing
// an already-spent refresh from an ineligible slot. Caller holds the
// engine lock.
func (e *Engine) refreshGateLocked() error {
	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)
	day := e.deps.Calendar.DayKey(now)

	used, err := e.deps.Store.GetSlotFlag(models.RecordRefreshUsed, day, slot)
	if err != nil {
		return err
	}
	if used {
		return models.ErrRefreshAlreadyUsed
	}
	ok, err := e.canRefreshLocked()
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrRefreshNotEligible
	}
	return nil
}

// RefreshCurrentSlot regenerates the current slot's tasks. The gate is
// checked before any side effect; ErrRefreshAlreadyUsed or
// ErrRefreshNotEligible come back with nothing changed. retainTaskID may
// name one existing task to carry over — it is reset to pending instead of
// being replaced.
func (e *Engine) RefreshCurrentSlot(ctx context.Context, retainTaskID string) ([]models.UserTask, error) {
	e.mu.Lock()
	err := e.refreshGateLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Provider I/O runs between the gate checks so it never holds up
	// other mutations.
	report := e.fetchWeatherReport(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.refreshGateLocked(); err != nil {
		return nil, err
	}

	now := e.deps.Clock.Now()
	slot := e.deps.Calendar.SlotFor(now)
	day := e.deps.Calendar.DayKey(now)

	// Defensive: settle any elapsed-slot penalty before the slot's task
	// set changes under it.
	e.sweepSlotPenalties(now)

	start, end := e.deps.Calendar.SlotInterval(slot, now)
	var retained *models.UserTask
	if retainTaskID != "" {
		retained, err = e.deps.Store.GetTask(retainTaskID)
		if err != nil {
			return nil, err
		}
		if retained != nil && (retained.ScheduledDate.Before(start) || !retained.ScheduledDate.Before(end)) {
			// Not a current-slot task; ignore the retention request.
			retained = nil
		}
	}
	keepID := ""
	if retained != nil {
		keepID = retained.ID
	}

	reserved, err := e.purgeSlotWindow(start, end, keepID, false)
	if err != nil {
		return nil, err
	}
	if retained != nil {
		if err := e.resetTask(retained); err != nil {
			return nil, err
		}
	}

	tasks := e.deps.Generator.Generate(slot, now, report, e.templates(), reserved)
	for _, t := range tasks {
		if err := e.deps.Store.SaveTask(t); err != nil {
			return nil, err
		}
	}
	if err := e.deps.Store.SetSlotFlag(models.RecordRefreshUsed, day, slot, true); err != nil {
		return nil, err
	}
	if retained != nil {
		tasks = append([]models.UserTask{*retained}, tasks...)
	}
	if err := e.prepareDailyTriggersLocked(now, report); err != nil {
		slog.Warn("Engine.RefreshCurrentSlot: trigger recompute failed", "error", err)
	}

	slog.Info("Engine.RefreshCurrentSlot: slot refreshed", "slot", slot, "count", len(tasks), "retained", keepID != "")
	return tasks, nil
}
