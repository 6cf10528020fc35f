package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWeatherPriorityOrdering(t *testing.T) {
	ordered := []WeatherCondition{WeatherRainy, WeatherSnowy, WeatherWindy, WeatherCloudy, WeatherSunny}
	for i := 1; i < len(ordered); i++ {
		if WeatherPriority(ordered[i]) <= WeatherPriority(ordered[i-1]) {
			t.Errorf("expected priority(%s) > priority(%s)", ordered[i], ordered[i-1])
		}
	}
	if WeatherPriority("fog") != 0 {
		t.Errorf("unknown condition should rank 0")
	}
}

func TestCategoryTable(t *testing.T) {
	for _, c := range AllCategories {
		if !IsValidTaskCategory(c) {
			t.Errorf("category %s should be valid", c)
		}
		if c.BufferDuration() <= 0 {
			t.Errorf("category %s should have a positive buffer", c)
		}
		if c.BaseEnergyReward() <= 0 {
			t.Errorf("category %s should have a positive reward", c)
		}
	}
	if IsValidTaskCategory("gardening") {
		t.Errorf("unknown category should be invalid")
	}
}

func TestClamps(t *testing.T) {
	cases := []struct {
		in, energy, bonding int
	}{
		{-5, 0, 0},
		{0, 0, 0},
		{50, 50, 50},
		{150, 150, 100},
		{2000, 999, 100},
	}
	for _, c := range cases {
		if got := ClampEnergy(c.in); got != c.energy {
			t.Errorf("ClampEnergy(%d) = %d, want %d", c.in, got, c.energy)
		}
		if got := ClampBonding(c.in); got != c.bonding {
			t.Errorf("ClampBonding(%d) = %d, want %d", c.in, got, c.bonding)
		}
	}
}

func TestWindowOverlaps(t *testing.T) {
	base := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	w := WeatherWindow{Start: base, End: base.Add(3 * time.Hour), Condition: WeatherSunny}

	if !w.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour)) {
		t.Errorf("expected overlap with contained interval")
	}
	if w.Overlaps(base.Add(3*time.Hour), base.Add(4*time.Hour)) {
		t.Errorf("window end is exclusive; adjacent interval must not overlap")
	}
	if w.Overlaps(base.Add(-2*time.Hour), base) {
		t.Errorf("window start is inclusive; interval ending at start must not overlap")
	}
}

func TestSlotFlagMapPurgesOtherDays(t *testing.T) {
	m := SlotFlagMap{}
	m = m.Set("2026-08-29", SlotMorning, true)
	m = m.Set("2026-08-30", SlotMorning, true)

	if len(m) != 1 {
		t.Fatalf("expected exactly one day after write, got %d", len(m))
	}
	if !m.Get("2026-08-30", SlotMorning) {
		t.Errorf("expected current day flag to survive")
	}
	if m.Get("2026-08-29", SlotMorning) {
		t.Errorf("expected previous day to be purged")
	}
}

func TestSlotFlagMapMergesSameDay(t *testing.T) {
	m := SlotFlagMap{}
	m = m.Set("2026-08-30", SlotMorning, true)
	m = m.Set("2026-08-30", SlotAfternoon, true)

	if !m.Get("2026-08-30", SlotMorning) || !m.Get("2026-08-30", SlotAfternoon) {
		t.Errorf("writes for different slots of the same day must merge, got %v", m)
	}
}

func TestSlotTimeMapRoundTrip(t *testing.T) {
	trigger := time.Date(2026, 8, 30, 9, 17, 42, 0, time.UTC)
	m := SlotTimeMap{}.Set("2026-08-30", SlotMorning, trigger)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var back SlotTimeMap
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	got, ok := back.Get("2026-08-30", SlotMorning)
	if !ok {
		t.Fatalf("expected trigger to survive round trip")
	}
	if !got.Equal(trigger) {
		t.Errorf("round trip changed timestamp: got %v, want %v", got, trigger)
	}
}
