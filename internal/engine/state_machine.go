package engine

// Task state machine. Statuses flow pending -> started -> ready ->
// completed. Invalid transitions are silent no-ops rather than errors:
// these requests arrive from a UI and may be stale by the time they land.
// A task that passed through started never completes before its buffer
// elapsed.

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// CompleteResult reports the outcome of a successful completion.
type CompleteResult struct {
	Task          models.UserTask
	EnergyGranted int
	AllClear      bool
	LevelsGained  int
	Snack         *models.Snack
}

// StartTask transitions a pending task to started, stamps the buffer
// deadline, and arms the deferred promotion to ready. Any other current
// status makes this a no-op.
func (e *Engine) StartTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.deps.Store.GetTask(id)
	if err != nil {
		return err
	}
	if task == nil {
		slog.Debug("Engine.StartTask: task not found", "id", id)
		return nil
	}
	if task.Status != models.TaskStatusPending {
		slog.Debug("Engine.StartTask: rejected, not pending", "id", id, "status", task.Status)
		return nil
	}

	now := e.deps.Clock.Now()
	buffer := task.Category.BufferDuration()
	after := now.Add(buffer)
	task.Status = models.TaskStatusStarted
	task.StartedAt = &now
	task.CanCompleteAfter = &after
	if err := e.deps.Store.SaveTask(*task); err != nil {
		slog.Error("Engine.StartTask: save failed", "error", err, "id", id)
		return err
	}

	expected := after
	e.timers.ScheduleAfter("buffer:"+id, buffer, func() {
		e.promoteWhenBufferElapsed(id, expected)
	})
	slog.Info("Engine.StartTask: started", "id", id, "title", task.Title, "buffer", buffer)
	return nil
}

// promoteWhenBufferElapsed is the deferred buffer-expiry check. It
// re-fetches the task and promotes it to ready only when it is still
// started with the same deadline; a task advanced or reset during the wait
// is left alone.
func (e *Engine) promoteWhenBufferElapsed(id string, expected time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.deps.Store.GetTask(id)
	if err != nil || task == nil {
		return
	}
	if task.Status != models.TaskStatusStarted {
		slog.Debug("Engine.promoteWhenBufferElapsed: state changed during wait", "id", id, "status", task.Status)
		return
	}
	if task.CanCompleteAfter == nil || !task.CanCompleteAfter.Equal(expected) {
		slog.Debug("Engine.promoteWhenBufferElapsed: deadline changed during wait", "id", id)
		return
	}
	if e.deps.Clock.Now().Before(expected) {
		return
	}

	task.Status = models.TaskStatusReady
	task.CanCompleteAfter = nil
	if err := e.deps.Store.SaveTask(*task); err != nil {
		slog.Error("Engine.promoteWhenBufferElapsed: save failed", "error", err, "id", id)
		return
	}
	slog.Info("Engine.promoteWhenBufferElapsed: task ready", "id", id, "title", task.Title)
}

// CompleteTask completes a task and applies its rewards. Valid only from
// ready, or from pending when the category buffer is zero; a started task
// whose buffer has elapsed but whose timer has not fired yet is promoted
// and completed in one step. Rejected completions return (nil, nil).
func (e *Engine) CompleteTask(ctx context.Context, id string) (*CompleteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.deps.Store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		slog.Debug("Engine.CompleteTask: task not found", "id", id)
		return nil, nil
	}

	now := e.deps.Clock.Now()
	switch task.Status {
	case models.TaskStatusReady:
		// Buffer already proven elapsed by the promotion.
	case models.TaskStatusStarted:
		if task.CanCompleteAfter == nil || now.Before(*task.CanCompleteAfter) {
			slog.Debug("Engine.CompleteTask: rejected, buffer not elapsed", "id", id)
			return nil, nil
		}
		task.Status = models.TaskStatusReady
		task.CanCompleteAfter = nil
	case models.TaskStatusPending:
		if task.Category.BufferDuration() != 0 {
			slog.Debug("Engine.CompleteTask: rejected, pending with nonzero buffer", "id", id)
			return nil, nil
		}
	default:
		slog.Debug("Engine.CompleteTask: rejected", "id", id, "status", task.Status)
		return nil, nil
	}

	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	if task.EnergyReward == 0 {
		task.EnergyReward = task.Category.BaseEnergyReward()
	}
	if err := e.deps.Store.SaveTask(*task); err != nil {
		slog.Error("Engine.CompleteTask: save failed", "error", err, "id", id)
		return nil, err
	}

	result := &CompleteResult{Task: *task}
	result.EnergyGranted, result.LevelsGained = e.applyTaskReward(*task, now)
	result.AllClear = e.evaluateAllClear(now)
	result.Snack = e.maybeDropSnack(now)

	slog.Info("Engine.CompleteTask: completed", "id", id, "title", task.Title, "energy", result.EnergyGranted, "allClear", result.AllClear)
	return result, nil
}

// ResetTask forces a task back to pending from any status, clearing all
// progress stamps. Unknown IDs are a no-op.
func (e *Engine) ResetTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.deps.Store.GetTask(id)
	if err != nil {
		return err
	}
	if task == nil {
		slog.Debug("Engine.ResetTask: task not found", "id", id)
		return nil
	}
	e.timers.Cancel("buffer:" + id)
	return e.resetTask(task)
}

// resetTask forces a task back to pending, clearing all progress stamps.
// Caller holds the engine lock.
func (e *Engine) resetTask(task *models.UserTask) error {
	task.Status = models.TaskStatusPending
	task.StartedAt = nil
	task.CanCompleteAfter = nil
	task.CompletedAt = nil
	if err := e.deps.Store.SaveTask(*task); err != nil {
		slog.Error("Engine.resetTask: save failed", "error", err, "id", task.ID)
		return err
	}
	slog.Debug("Engine.resetTask: reset to pending", "id", task.ID)
	return nil
}
