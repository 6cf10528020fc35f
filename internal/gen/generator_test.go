package gen

import (
	"testing"
	"time"

	"github.com/pipkin-app/pipkin/internal/catalog"
	"github.com/pipkin-app/pipkin/internal/clockwork"
	"github.com/pipkin-app/pipkin/internal/models"
)

// seqRand replays a fixed IntN sequence, wrapping at the end.
type seqRand struct {
	seq []int
	pos int
}

func (r *seqRand) IntN(n int) int {
	if len(r.seq) == 0 {
		return 0
	}
	v := r.seq[r.pos%len(r.seq)] % n
	r.pos++
	return v
}

func (r *seqRand) Float64() float64 { return 0 }

func seededTemplates() []models.TaskTemplate {
	out := make([]models.TaskTemplate, len(catalog.Seed))
	copy(out, catalog.Seed)
	for i := range out {
		out[i].BaseEnergyReward = out[i].Category.BaseEnergyReward()
	}
	return out
}

func reportFor(day time.Time, windows ...models.WeatherWindow) *models.WeatherReport {
	return &models.WeatherReport{
		Current:   models.WeatherSunny,
		Windows:   windows,
		FetchedAt: day,
	}
}

func win(day time.Time, startHour, endHour int, c models.WeatherCondition) models.WeatherWindow {
	return models.WeatherWindow{
		Start:     day.Add(time.Duration(startHour) * time.Hour),
		End:       day.Add(time.Duration(endHour) * time.Hour),
		Condition: c,
	}
}

var testDay = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func newTestGenerator(seq ...int) *Generator {
	return New(clockwork.NewCalendar(time.UTC), &seqRand{seq: seq})
}

func TestDominantConditionDeterministic(t *testing.T) {
	report := reportFor(testDay,
		win(testDay, 6, 9, models.WeatherRainy),
		win(testDay, 9, 11, models.WeatherSunny),
		win(testDay, 11, 12, models.WeatherCloudy),
	)
	g := newTestGenerator(0, 1, 2, 3, 4, 5)
	first := g.DominantCondition(models.SlotMorning, testDay, report)
	if first != models.WeatherSunny {
		t.Fatalf("dominant = %s, want sunny", first)
	}
	for i := 0; i < 10; i++ {
		if got := g.DominantCondition(models.SlotMorning, testDay, report); got != first {
			t.Fatalf("dominant changed between calls: %s vs %s", got, first)
		}
	}
}

func TestDominantConditionTieKeepsEarlierWindow(t *testing.T) {
	report := reportFor(testDay,
		win(testDay, 6, 9, models.WeatherCloudy),
		win(testDay, 9, 12, models.WeatherCloudy),
	)
	g := newTestGenerator(0)
	if got := g.DominantCondition(models.SlotMorning, testDay, report); got != models.WeatherCloudy {
		t.Errorf("dominant = %s, want cloudy", got)
	}
}

func TestGenerateTasksSortedAndInsideSlot(t *testing.T) {
	report := reportFor(testDay, win(testDay, 6, 12, models.WeatherSunny))
	g := newTestGenerator(7, 3, 11, 5, 2, 9, 1)
	tasks := g.Generate(models.SlotMorning, testDay, report, seededTemplates(), nil)
	if len(tasks) == 0 {
		t.Fatalf("expected tasks for a sunny morning")
	}
	slotStart := testDay.Add(6 * time.Hour)
	slotEnd := testDay.Add(12 * time.Hour)
	for i, task := range tasks {
		if task.ScheduledDate.Before(slotStart) || !task.ScheduledDate.Before(slotEnd) {
			t.Errorf("task %d scheduled at %v outside slot [%v, %v)", i, task.ScheduledDate, slotStart, slotEnd)
		}
		if i > 0 && task.ScheduledDate.Before(tasks[i-1].ScheduledDate) {
			t.Errorf("tasks not sorted by scheduled time")
		}
		if task.Status != models.TaskStatusPending {
			t.Errorf("new task status = %s, want pending", task.Status)
		}
		if task.ID == "" {
			t.Errorf("task %d missing id", i)
		}
		if task.EnergyReward <= 0 {
			t.Errorf("task %d missing energy reward", i)
		}
	}
}

func TestGenerateNoDuplicateTitles(t *testing.T) {
	report := reportFor(testDay, win(testDay, 6, 12, models.WeatherSunny))
	reserved := map[string]bool{catalog.Seed[0].Title: true}
	g := newTestGenerator(0, 0, 0, 0, 0, 0, 0, 0)
	tasks := g.Generate(models.SlotMorning, testDay, report, seededTemplates(), reserved)
	seen := map[string]bool{}
	for _, task := range tasks {
		if reserved[task.Title] {
			t.Errorf("reserved title %q was generated", task.Title)
		}
		if seen[task.Title] {
			t.Errorf("duplicate title %q within one generation call", task.Title)
		}
		seen[task.Title] = true
	}
}

func TestGenerateEmptyCatalog(t *testing.T) {
	report := reportFor(testDay, win(testDay, 6, 12, models.WeatherSunny))
	g := newTestGenerator(0)
	if tasks := g.Generate(models.SlotMorning, testDay, report, nil, nil); len(tasks) != 0 {
		t.Errorf("empty catalog must yield no tasks, got %d", len(tasks))
	}
}

func TestGenerateMissingReportUsesLowBand(t *testing.T) {
	g := newTestGenerator(0, 1, 2, 3)
	tasks := g.Generate(models.SlotMorning, testDay, nil, seededTemplates(), nil)
	if len(tasks) < 1 || len(tasks) > 2 {
		t.Errorf("missing report should produce 1-2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.WeatherType != models.WeatherSunny {
			t.Errorf("missing report should default dominant to sunny, got %s", task.WeatherType)
		}
	}
}

func TestBetterWeatherWeaklyMoreTasks(t *testing.T) {
	sunnyMin, rainyMax := 99, 0
	for pick := 0; pick < 12; pick++ {
		g := newTestGenerator(pick)
		if n := g.drawTaskCount(models.WeatherSunny, true); n < sunnyMin {
			sunnyMin = n
		}
		if n := g.drawTaskCount(models.WeatherRainy, true); n > rainyMax {
			rainyMax = n
		}
	}
	if sunnyMin < 2 {
		t.Errorf("sunny count fell below 2: %d", sunnyMin)
	}
	if rainyMax > 2 {
		t.Errorf("rainy count rose above 2: %d", rainyMax)
	}
}

func TestCategoryWeightsFavorOutdoorWhenSunny(t *testing.T) {
	sunny := categoryWeights(models.WeatherSunny)
	rainy := categoryWeights(models.WeatherRainy)
	if sunny[models.CategoryOutdoor] <= rainy[models.CategoryOutdoor] {
		t.Errorf("outdoor weight must drop from sunny (%d) to rainy (%d)",
			sunny[models.CategoryOutdoor], rainy[models.CategoryOutdoor])
	}
	for _, cond := range []models.WeatherCondition{models.WeatherSunny, models.WeatherCloudy, models.WeatherWindy, models.WeatherSnowy, models.WeatherRainy} {
		w := categoryWeights(cond)
		for _, cat := range models.AllCategories {
			if w[cat] <= 0 {
				t.Errorf("condition %s has no weight for category %s", cond, cat)
			}
		}
	}
}

func TestTriggerTimeInsideSlot(t *testing.T) {
	report := reportFor(testDay,
		win(testDay, 5, 8, models.WeatherCloudy),
		win(testDay, 8, 14, models.WeatherSunny),
	)
	slotStart := testDay.Add(6 * time.Hour)
	slotEnd := testDay.Add(12 * time.Hour)
	for pick := 0; pick < 20; pick++ {
		g := newTestGenerator(pick * 60)
		got := g.TriggerTime(models.SlotMorning, testDay, report)
		if got.Before(slotStart) || !got.Before(slotEnd) {
			t.Errorf("trigger %v outside slot [%v, %v)", got, slotStart, slotEnd)
		}
	}
}

func TestTriggerTimeWithoutReportAnchorsAtSlotStart(t *testing.T) {
	g := newTestGenerator(0)
	got := g.TriggerTime(models.SlotAfternoon, testDay, nil)
	if !got.Equal(testDay.Add(12 * time.Hour)) {
		t.Errorf("trigger without report should anchor at slot start, got %v", got)
	}
}
