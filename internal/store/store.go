// Package store provides storage backends for Pipkin.
//
// It includes an in-memory store for tests plus SQLite and PostgreSQL
// backends. Besides task/stats/pet records, the store owns the four
// per-day/per-slot record maps that make generation, refresh, and penalty
// operations idempotent. Writing to a record map purges every day except
// the written one and merges into the existing day entry as one logical
// operation — callers never see a partially purged map.
package store

import (
	"strings"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Store is the durable persistence contract consumed by the engine.
type Store interface {
	// ListTasksBetween returns tasks scheduled in [start, end), ordered by
	// scheduled time ascending.
	ListTasksBetween(start, end time.Time) ([]models.UserTask, error)
	// GetTask retrieves a task by ID; nil when absent.
	GetTask(id string) (*models.UserTask, error)
	// SaveTask inserts or updates a task.
	SaveTask(task models.UserTask) error
	// DeleteTask removes a task by ID. Deleting an absent task is a no-op.
	DeleteTask(id string) error

	// GetStats returns the stats singleton, creating defaults when missing.
	GetStats() (*models.UserStats, error)
	// SaveStats persists the stats singleton.
	SaveStats(stats models.UserStats) error
	// GetPet returns the pet singleton, creating defaults when missing.
	GetPet() (*models.Pet, error)
	// SavePet persists the pet singleton.
	SavePet(pet models.Pet) error

	// GetCatalogVersion returns the persisted catalog version, 0 when none.
	GetCatalogVersion() (int, error)
	// ReplaceCatalog atomically replaces all templates and the version.
	ReplaceCatalog(version int, templates []models.TaskTemplate) error
	// ListTemplates returns all persisted templates.
	ListTemplates() ([]models.TaskTemplate, error)

	// GetSlotFlag reads one flag of a named per-day/per-slot record map.
	GetSlotFlag(name, day string, slot models.TimeSlot) (bool, error)
	// SetSlotFlag writes one flag, purging all days except day.
	SetSlotFlag(name, day string, slot models.TimeSlot, v bool) error
	// GetSlotTime reads one timestamp of a named record map.
	GetSlotTime(name, day string, slot models.TimeSlot) (time.Time, bool, error)
	// SetSlotTime writes one timestamp, purging all days except day.
	// An existing (day, slot) entry is preserved, not overwritten.
	SetSlotTime(name, day string, slot models.TimeSlot, t time.Time) error

	// AppendEnergyEvent appends to the energy/bonding audit log.
	AppendEnergyEvent(e models.EnergyEvent) error
	// ListEnergyEvents returns the most recent events, newest first.
	ListEnergyEvents(limit int) ([]models.EnergyEvent, error)

	// Close releases backend resources.
	Close() error
}

// DefaultStats returns the stats singleton created at first access.
func DefaultStats(now time.Time) models.UserStats {
	return models.UserStats{
		TotalEnergy:          0,
		BondedDays:           0,
		CompletedTasksCount:  0,
		LastActiveDate:       now,
		NotificationsEnabled: true,
	}
}

// DefaultPet returns the pet singleton created at first access.
func DefaultPet() models.Pet {
	return models.Pet{
		BondingScore: 50,
		Level:        1,
		XP:           0,
	}
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
