// Package models defines the core data structures for Pipkin.
//
// It includes types for time slots, weather reports, task templates and
// instances, user stats, and the pet, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// TimeSlot partitions the day into four fixed periods.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
	SlotNight     TimeSlot = "night"
)

// ActiveSlots are the slots that receive proactive task generation.
// Night is excluded; nothing is scheduled while the user should be asleep.
var ActiveSlots = []TimeSlot{SlotMorning, SlotAfternoon, SlotEvening}

// IsValidTimeSlot checks if the given slot is one of the four known slots.
func IsValidTimeSlot(s TimeSlot) bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening, SlotNight:
		return true
	default:
		return false
	}
}

// WeatherCondition describes the dominant weather of a window.
type WeatherCondition string

const (
	WeatherSunny  WeatherCondition = "sunny"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherWindy  WeatherCondition = "windy"
	WeatherSnowy  WeatherCondition = "snowy"
	WeatherRainy  WeatherCondition = "rainy"
)

// WeatherPriority ranks conditions for dominant-weather selection.
// Higher rank wins; the order favors outdoor-suitable conditions.
func WeatherPriority(c WeatherCondition) int {
	switch c {
	case WeatherSunny:
		return 5
	case WeatherCloudy:
		return 4
	case WeatherWindy:
		return 3
	case WeatherSnowy:
		return 2
	case WeatherRainy:
		return 1
	default:
		return 0
	}
}

// WeatherWindow is a contiguous period of uniform weather condition.
type WeatherWindow struct {
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Condition WeatherCondition `json:"condition"`
}

// Overlaps reports whether the window intersects [start, end).
func (w WeatherWindow) Overlaps(start, end time.Time) bool {
	return w.Start.Before(end) && w.End.After(start)
}

// SunEvents holds sunrise and sunset for one calendar day.
type SunEvents struct {
	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`
}

// WeatherReport is the provider's view of current and upcoming weather.
// Windows are ordered and non-overlapping; adjacent same-condition windows
// are merged at construction.
type WeatherReport struct {
	Current   WeatherCondition     `json:"current"`
	Windows   []WeatherWindow      `json:"windows"`
	SunEvents map[string]SunEvents `json:"sun_events,omitempty"` // keyed by ISO day
	FetchedAt time.Time            `json:"fetched_at"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
}

// TaskCategory classifies a task template and determines its buffer
// duration and base energy reward.
type TaskCategory string

const (
	CategoryOutdoor        TaskCategory = "outdoor"
	CategoryIndoorDigital  TaskCategory = "indoor_digital"
	CategoryIndoorActivity TaskCategory = "indoor_activity"
	CategorySocial         TaskCategory = "social"
	CategoryPetCare        TaskCategory = "pet_care"
)

// AllCategories lists every task category.
var AllCategories = []TaskCategory{
	CategoryOutdoor,
	CategoryIndoorDigital,
	CategoryIndoorActivity,
	CategorySocial,
	CategoryPetCare,
}

// BufferDuration returns the minimum time a task of this category must
// remain started before it can become ready.
func (c TaskCategory) BufferDuration() time.Duration {
	switch c {
	case CategoryOutdoor:
		return 30 * time.Minute
	case CategorySocial:
		return 20 * time.Minute
	case CategoryIndoorActivity:
		return 15 * time.Minute
	case CategoryIndoorDigital:
		return 10 * time.Minute
	case CategoryPetCare:
		return 5 * time.Minute
	default:
		return 0
	}
}

// BaseEnergyReward returns the energy granted for completing a task of
// this category.
func (c TaskCategory) BaseEnergyReward() int {
	switch c {
	case CategoryOutdoor:
		return 30
	case CategorySocial:
		return 25
	case CategoryIndoorActivity:
		return 20
	case CategoryIndoorDigital:
		return 15
	case CategoryPetCare:
		return 10
	default:
		return 0
	}
}

// IsValidTaskCategory checks if the given category is supported.
func IsValidTaskCategory(c TaskCategory) bool {
	switch c {
	case CategoryOutdoor, CategoryIndoorDigital, CategoryIndoorActivity, CategorySocial, CategoryPetCare:
		return true
	default:
		return false
	}
}

// TaskTemplate is immutable seed data for task generation.
type TaskTemplate struct {
	Title            string       `json:"title"`
	Category         TaskCategory `json:"category"`
	IsOutdoor        bool         `json:"is_outdoor"`
	BaseEnergyReward int          `json:"base_energy_reward"`
}

// TaskStatus represents the lifecycle state of a task instance.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusCompleted TaskStatus = "completed"
)

// IsValidTaskStatus checks if the given status is supported.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusStarted, TaskStatusReady, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// UserTask is a concrete task instance produced by the generator.
// All mutation happens through the engine's state machine.
type UserTask struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	WeatherType      WeatherCondition `json:"weather_type"`
	Category         TaskCategory     `json:"category"`
	EnergyReward     int              `json:"energy_reward"`
	ScheduledDate    time.Time        `json:"scheduled_date"`
	Status           TaskStatus       `json:"status"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CanCompleteAfter *time.Time       `json:"can_complete_after,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// UserStats is the per-user singleton of counters and settings.
type UserStats struct {
	TotalEnergy          int       `json:"total_energy"`
	BondedDays           int       `json:"bonded_days"`
	CompletedTasksCount  int       `json:"completed_tasks_count"`
	Region               string    `json:"region"`
	LastActiveDate       time.Time `json:"last_active_date"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	Onboarded            bool      `json:"onboarded"`
}

// Pet holds the companion's bonding score, level progression, and owned
// decorations.
type Pet struct {
	BondingScore int      `json:"bonding_score"`
	Level        int      `json:"level"`
	XP           int      `json:"xp"`
	Decorations  []string `json:"decorations,omitempty"`
}

// EnergyEvent is one entry of the append-only energy/bonding audit log.
type EnergyEvent struct {
	At     time.Time `json:"at"`
	Delta  int       `json:"delta"`
	Kind   string    `json:"kind"` // task_reward, petting, purchase, penalty, decay
	TaskID string    `json:"task_id,omitempty"`
}

// Snack is a consumable that can drop on task completion.
type Snack struct {
	Name         string `json:"name"`
	BondingBoost int    `json:"bonding_boost"`
}

// Bounds for stats and pet values.
const (
	// MinTotalEnergy and MaxTotalEnergy clamp the user's energy balance.
	MinTotalEnergy = 0
	MaxTotalEnergy = 999
	// MinBondingScore and MaxBondingScore clamp the pet's bonding score.
	MinBondingScore = 0
	MaxBondingScore = 100
)

// Error variables for better error handling and testability
var (
	ErrInvalidTimeSlot     = errors.New("invalid time slot")
	ErrInvalidTaskCategory = errors.New("invalid task category")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrTaskNotFound        = errors.New("task not found")
	ErrRefreshAlreadyUsed  = errors.New("refresh already used for this slot")
	ErrRefreshNotEligible  = errors.New("refresh requires all current tasks completed")
)

// ClampEnergy clamps an energy balance into [MinTotalEnergy, MaxTotalEnergy].
func ClampEnergy(v int) int {
	if v < MinTotalEnergy {
		return MinTotalEnergy
	}
	if v > MaxTotalEnergy {
		return MaxTotalEnergy
	}
	return v
}

// ClampBonding clamps a bonding score into [MinBondingScore, MaxBondingScore].
func ClampBonding(v int) int {
	if v < MinBondingScore {
		return MinBondingScore
	}
	if v > MaxBondingScore {
		return MaxBondingScore
	}
	return v
}
