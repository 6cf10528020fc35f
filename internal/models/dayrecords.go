// Package models: per-day/per-slot record maps.
//
// These maps back the idempotency guarantees of the engine:
// refresh-used, slot-trigger-times, slot-generated, slot-penalty-applied,
// and the all-clear day marker. Shape: ISO day string -> slot name -> value.
// The store purges every day except the written one on each write so the
// maps stay bounded and stale same-slot keys from earlier days can never
// leak into today's checks.
package models

import "time"

// Record map names used as key-value store keys.
const (
	RecordRefreshUsed   = "refresh_used"
	RecordSlotTriggers  = "slot_triggers"
	RecordSlotGenerated = "slot_generated"
	RecordSlotPenalties = "slot_penalties"
	RecordAllClear      = "all_clear"
)

// SlotFlagMap records a boolean per (ISO day, slot).
type SlotFlagMap map[string]map[TimeSlot]bool

// SlotTimeMap records a timestamp per (ISO day, slot).
type SlotTimeMap map[string]map[TimeSlot]time.Time

// Get returns the flag for (day, slot), false when absent.
func (m SlotFlagMap) Get(day string, slot TimeSlot) bool {
	if m == nil {
		return false
	}
	return m[day][slot]
}

// Set sets the flag for (day, slot) and purges every other day.
func (m SlotFlagMap) Set(day string, slot TimeSlot, v bool) SlotFlagMap {
	out := SlotFlagMap{day: {}}
	for s, val := range m[day] {
		out[day][s] = val
	}
	out[day][slot] = v
	return out
}

// Get returns the timestamp for (day, slot); the zero time when absent.
func (m SlotTimeMap) Get(day string, slot TimeSlot) (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	t, ok := m[day][slot]
	return t, ok
}

// Set sets the timestamp for (day, slot) and purges every other day.
// Existing slots of the same day are carried over, so two writers filling
// different slots of the current day merge rather than clobber.
func (m SlotTimeMap) Set(day string, slot TimeSlot, t time.Time) SlotTimeMap {
	out := SlotTimeMap{day: {}}
	for s, val := range m[day] {
		out[day][s] = val
	}
	out[day][slot] = t
	return out
}
