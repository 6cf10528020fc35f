// Package store: shared row scanning helpers for the SQL backends.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// nullableTime returns nil for a nil pointer so the column stores NULL.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// scanTask scans a UserTask from sql.Rows.
func scanTask(rows *sql.Rows) (models.UserTask, error) {
	var t models.UserTask
	var weather, category, status string
	var startedAt, canCompleteAfter, completedAt sql.NullTime
	err := rows.Scan(&t.ID, &t.Title, &weather, &category, &t.EnergyReward,
		&t.ScheduledDate, &status, &startedAt, &canCompleteAfter, &completedAt)
	if err != nil {
		return t, fmt.Errorf("scan task failed: %w", err)
	}
	t.WeatherType = models.WeatherCondition(weather)
	t.Category = models.TaskCategory(category)
	t.Status = models.TaskStatus(status)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if canCompleteAfter.Valid {
		t.CanCompleteAfter = &canCompleteAfter.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// scanTaskRow scans a UserTask from a single sql.Row.
func scanTaskRow(row *sql.Row) (models.UserTask, error) {
	var t models.UserTask
	var weather, category, status string
	var startedAt, canCompleteAfter, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Title, &weather, &category, &t.EnergyReward,
		&t.ScheduledDate, &status, &startedAt, &canCompleteAfter, &completedAt)
	if err != nil {
		return t, err
	}
	t.WeatherType = models.WeatherCondition(weather)
	t.Category = models.TaskCategory(category)
	t.Status = models.TaskStatus(status)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if canCompleteAfter.Valid {
		t.CanCompleteAfter = &canCompleteAfter.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// collectTasks drains rows into a slice.
func collectTasks(rows *sql.Rows) ([]models.UserTask, error) {
	var out []models.UserTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return out, nil
}
