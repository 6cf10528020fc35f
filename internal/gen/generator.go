// Package gen implements weather-themed task generation for Pipkin.
//
// Given a slot, a date, and a weather report, the generator selects
// templates by weather-weighted category choice and schedules each task at
// a randomized instant inside the overlap of the slot interval and the
// dominant weather window. Dominant-weather selection is deterministic;
// only template and time selection consume randomness.
package gen

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pipkin-app/pipkin/internal/clockwork"
	"github.com/pipkin-app/pipkin/internal/models"
	"github.com/pipkin-app/pipkin/internal/util"
)

// TriggerJitter is the maximum randomization applied to a slot's
// generation trigger timestamp.
const TriggerJitter = 15 * time.Minute

// Generator produces concrete task instances for a slot.
type Generator struct {
	cal *clockwork.Calendar
	rng util.Rand
}

// New creates a Generator. A nil rng falls back to the default source.
func New(cal *clockwork.Calendar, rng util.Rand) *Generator {
	if rng == nil {
		rng = util.DefaultRand()
	}
	return &Generator{cal: cal, rng: rng}
}

// Generate produces task instances for slot on the calendar day of date.
// reservedTitles are excluded from selection, as are titles picked earlier
// within this call. Results are sorted by scheduled time ascending. An
// exhausted template pool shortens the result; it is never an error.
func (g *Generator) Generate(slot models.TimeSlot, date time.Time, report *models.WeatherReport, templates []models.TaskTemplate, reservedTitles map[string]bool) []models.UserTask {
	slotStart, slotEnd := g.cal.SlotInterval(slot, date)

	dominant, window, hasReport := g.dominantWindow(slotStart, slotEnd, report)
	count := g.drawTaskCount(dominant, hasReport)
	slog.Debug("Generator.Generate", "slot", slot, "dominant", dominant, "count", count, "templates", len(templates))

	used := make(map[string]bool, len(reservedTitles))
	for title := range reservedTitles {
		used[title] = true
	}

	// Scheduling interval: slot ∩ dominant window, clipped to the slot end.
	schedStart, schedEnd := slotStart, slotEnd
	if window != nil {
		if window.Start.After(schedStart) {
			schedStart = window.Start
		}
		if window.End.Before(schedEnd) {
			schedEnd = window.End
		}
	}
	if !schedStart.Before(schedEnd) {
		schedStart, schedEnd = slotStart, slotEnd
	}

	var tasks []models.UserTask
	for i := 0; i < count; i++ {
		tpl, ok := g.pickTemplate(dominant, templates, used)
		if !ok {
			slog.Debug("Generator.Generate: template pool exhausted", "slot", slot, "generated", len(tasks))
			break
		}
		used[tpl.Title] = true

		reward := tpl.BaseEnergyReward
		if reward == 0 {
			reward = tpl.Category.BaseEnergyReward()
		}
		tasks = append(tasks, models.UserTask{
			ID:            uuid.NewString(),
			Title:         tpl.Title,
			WeatherType:   dominant,
			Category:      tpl.Category,
			EnergyReward:  reward,
			ScheduledDate: util.TimeBetween(g.rng, schedStart, schedEnd),
			Status:        models.TaskStatusPending,
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ScheduledDate.Before(tasks[j].ScheduledDate)
	})
	return tasks
}

// DominantCondition returns the deterministic dominant weather for slot on
// the day of date: the overlapping window with the highest priority rank.
func (g *Generator) DominantCondition(slot models.TimeSlot, date time.Time, report *models.WeatherReport) models.WeatherCondition {
	slotStart, slotEnd := g.cal.SlotInterval(slot, date)
	dominant, _, _ := g.dominantWindow(slotStart, slotEnd, report)
	return dominant
}

// TriggerTime computes the randomized generation trigger for a slot: the
// weather-window transition nearest the slot start, jittered, clamped into
// the slot interval.
func (g *Generator) TriggerTime(slot models.TimeSlot, date time.Time, report *models.WeatherReport) time.Time {
	slotStart, slotEnd := g.cal.SlotInterval(slot, date)

	anchor := slotStart
	if report != nil {
		best := time.Duration(-1)
		for _, w := range report.Windows {
			d := w.Start.Sub(slotStart)
			if d < 0 {
				d = -d
			}
			if best < 0 || d < best {
				best = d
				anchor = w.Start
			}
		}
	}
	trigger := anchor.Add(util.Jitter(g.rng, TriggerJitter))
	if trigger.Before(slotStart) {
		trigger = slotStart
	}
	if !trigger.Before(slotEnd) {
		trigger = slotEnd.Add(-time.Minute)
	}
	return trigger
}

// dominantWindow finds the overlapping window with the highest priority
// rank. Ties keep the earlier window so the result is stable for a given
// window set. A missing report substitutes sunny with no window.
func (g *Generator) dominantWindow(slotStart, slotEnd time.Time, report *models.WeatherReport) (models.WeatherCondition, *models.WeatherWindow, bool) {
	if report == nil || len(report.Windows) == 0 {
		return models.WeatherSunny, nil, false
	}
	var best *models.WeatherWindow
	for i := range report.Windows {
		w := &report.Windows[i]
		if !w.Overlaps(slotStart, slotEnd) {
			continue
		}
		if best == nil || models.WeatherPriority(w.Condition) > models.WeatherPriority(best.Condition) {
			best = w
		}
	}
	if best == nil {
		// Report present but nothing overlaps the slot; fall back to the
		// current condition over the whole slot.
		cond := report.Current
		if cond == "" {
			cond = models.WeatherSunny
		}
		return cond, nil, true
	}
	return best.Condition, best, true
}

// drawTaskCount draws the number of tasks for a slot from a
// weather-dependent distribution: better weather yields weakly more tasks.
// Without a report the lowest band applies.
func (g *Generator) drawTaskCount(dominant models.WeatherCondition, hasReport bool) int {
	type band struct {
		counts  []int
		weights []int
	}
	lowest := band{counts: []int{1, 2}, weights: []int{1, 1}}

	var b band
	switch {
	case !hasReport:
		b = lowest
	case dominant == models.WeatherSunny:
		b = band{counts: []int{2, 3}, weights: []int{1, 1}}
	case dominant == models.WeatherCloudy || dominant == models.WeatherWindy:
		b = band{counts: []int{1, 2, 3}, weights: []int{2, 5, 3}}
	case dominant == models.WeatherSnowy:
		b = band{counts: []int{1, 2}, weights: []int{2, 3}}
	default:
		b = lowest
	}

	idx := util.WeightedChoice(g.rng, b.weights)
	if idx < 0 {
		return 1
	}
	return b.counts[idx]
}

// categoryWeights returns the category selection weights for a dominant
// condition. Outdoor dominates sunny slots and nearly vanishes on rain.
func categoryWeights(dominant models.WeatherCondition) map[models.TaskCategory]int {
	switch dominant {
	case models.WeatherSunny:
		return map[models.TaskCategory]int{
			models.CategoryOutdoor:        50,
			models.CategorySocial:         20,
			models.CategoryPetCare:        15,
			models.CategoryIndoorActivity: 10,
			models.CategoryIndoorDigital:  5,
		}
	case models.WeatherCloudy:
		return map[models.TaskCategory]int{
			models.CategoryOutdoor:        30,
			models.CategoryIndoorActivity: 25,
			models.CategorySocial:         20,
			models.CategoryPetCare:        15,
			models.CategoryIndoorDigital:  10,
		}
	case models.WeatherWindy:
		return map[models.TaskCategory]int{
			models.CategoryOutdoor:        25,
			models.CategoryIndoorActivity: 25,
			models.CategorySocial:         20,
			models.CategoryPetCare:        15,
			models.CategoryIndoorDigital:  15,
		}
	case models.WeatherSnowy:
		return map[models.TaskCategory]int{
			models.CategoryIndoorActivity: 30,
			models.CategoryIndoorDigital:  25,
			models.CategoryPetCare:        20,
			models.CategoryOutdoor:        15,
			models.CategorySocial:         10,
		}
	default: // rainy and anything unknown
		return map[models.TaskCategory]int{
			models.CategoryIndoorDigital:  35,
			models.CategoryIndoorActivity: 30,
			models.CategoryPetCare:        20,
			models.CategorySocial:         10,
			models.CategoryOutdoor:        5,
		}
	}
}

// pickTemplate chooses a template via weighted category choice, excluding
// used titles. When the chosen category has no unused template the weights
// collapse to whatever categories still have one.
func (g *Generator) pickTemplate(dominant models.WeatherCondition, templates []models.TaskTemplate, used map[string]bool) (models.TaskTemplate, bool) {
	available := make(map[models.TaskCategory][]models.TaskTemplate)
	for _, tpl := range templates {
		if used[tpl.Title] {
			continue
		}
		available[tpl.Category] = append(available[tpl.Category], tpl)
	}
	if len(available) == 0 {
		return models.TaskTemplate{}, false
	}

	weights := categoryWeights(dominant)
	cats := make([]models.TaskCategory, 0, len(available))
	w := make([]int, 0, len(available))
	for _, cat := range models.AllCategories {
		if len(available[cat]) == 0 {
			continue
		}
		cats = append(cats, cat)
		weight := weights[cat]
		if weight <= 0 {
			weight = 1
		}
		w = append(w, weight)
	}

	idx := util.WeightedChoice(g.rng, w)
	if idx < 0 {
		return models.TaskTemplate{}, false
	}
	pool := available[cats[idx]]
	return pool[g.rng.IntN(len(pool))], true
}
