// Package notify defines notification dispatch for Pipkin.
//
// The engine only decides whether and when to notify; delivery mechanics
// live behind the Notifier interface. Failures are logged and swallowed —
// a missed notification must never break a state transition.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Notifier delivers user-facing notifications.
type Notifier interface {
	// SlotUnlocked announces that a slot's tasks were generated.
	SlotUnlocked(ctx context.Context, slot models.TimeSlot, taskCount int) error
	// TaskReminder reminds the user about a scheduled task.
	TaskReminder(ctx context.Context, task models.UserTask) error
}

// LogNotifier is the default Notifier; it only logs. Used when no delivery
// channel is configured.
type LogNotifier struct{}

// SlotUnlocked logs the unlock event.
func (LogNotifier) SlotUnlocked(ctx context.Context, slot models.TimeSlot, taskCount int) error {
	slog.Info("LogNotifier.SlotUnlocked", "slot", slot, "tasks", taskCount)
	return nil
}

// TaskReminder logs the reminder event.
func (LogNotifier) TaskReminder(ctx context.Context, task models.UserTask) error {
	slog.Info("LogNotifier.TaskReminder", "task", task.Title, "scheduled", task.ScheduledDate)
	return nil
}

// SlotUnlockedBody formats the unlock message shown to the user.
func SlotUnlockedBody(slot models.TimeSlot, taskCount int) string {
	if taskCount == 1 {
		return fmt.Sprintf("Your %s task is ready! Pipkin is waiting for you.", slot)
	}
	return fmt.Sprintf("Your %s tasks are ready! Pipkin has %d things for you.", slot, taskCount)
}

// TaskReminderBody formats the reminder message shown to the user.
func TaskReminderBody(task models.UserTask) string {
	return fmt.Sprintf("Time for: %s", task.Title)
}
