package engine

// Startup recovery. Buffer timers live in process memory, so a restart
// loses them; tasks stuck in started are found here and either promoted
// immediately or re-armed for the remainder of their buffer.

import (
	"context"
	"log/slog"

	"github.com/pipkin-app/pipkin/internal/models"
)

// RecoverTimers scans today's tasks for started ones and restores their
// deferred buffer promotions.
func (e *Engine) RecoverTimers(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.deps.Clock.Now()
	start, end := e.dayRange(now)
	tasks, err := e.deps.Store.ListTasksBetween(start, end)
	if err != nil {
		slog.Error("Engine.RecoverTimers: list failed", "error", err)
		return
	}

	recovered := 0
	for _, t := range tasks {
		if t.Status != models.TaskStatusStarted || t.CanCompleteAfter == nil {
			continue
		}
		deadline := *t.CanCompleteAfter
		if !now.Before(deadline) {
			task := t
			task.Status = models.TaskStatusReady
			task.CanCompleteAfter = nil
			if err := e.deps.Store.SaveTask(task); err != nil {
				slog.Error("Engine.RecoverTimers: save failed", "error", err, "id", task.ID)
				continue
			}
			slog.Info("Engine.RecoverTimers: promoted on recovery", "id", task.ID)
		} else {
			id := t.ID
			e.timers.ScheduleAfter("buffer:"+id, deadline.Sub(now), func() {
				e.promoteWhenBufferElapsed(id, deadline)
			})
			slog.Debug("Engine.RecoverTimers: timer re-armed", "id", id, "remaining", deadline.Sub(now))
		}
		recovered++
	}
	if recovered > 0 {
		slog.Info("Engine.RecoverTimers: recovery complete", "count", recovered)
	}
}
