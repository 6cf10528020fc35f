// Package engine implements the task lifecycle core of Pipkin: the task
// state machine, slot generation scheduling, reward and decay application,
// the refresh gate, and the background slot monitor.
//
// The Engine is the single logical owner of all task, stats, and pet
// mutation. Every transition, reward, and record-map read-modify-write runs
// under its mutex; deferred timer callbacks re-enter through the same lock
// and re-validate state before touching anything. Weather-provider fetches
// and notifier sends run outside the lock so network I/O never stalls
// task-state mutations.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pipkin-app/pipkin/internal/catalog"
	"github.com/pipkin-app/pipkin/internal/clockwork"
	"github.com/pipkin-app/pipkin/internal/gen"
	"github.com/pipkin-app/pipkin/internal/models"
	"github.com/pipkin-app/pipkin/internal/notify"
	"github.com/pipkin-app/pipkin/internal/store"
	"github.com/pipkin-app/pipkin/internal/util"
	"github.com/pipkin-app/pipkin/internal/weather"
)

// Engine tuning constants.
const (
	// NotificationGraceWindow is how late a generation may run before the
	// "slot unlocked" notification is suppressed.
	NotificationGraceWindow = 90 * time.Minute
	// SnackDropChance is the probability of a snack drop on completion.
	SnackDropChance = 0.25
	// WeatherFetchTimeout bounds a single provider fetch so callers on an
	// open-ended context cannot hang in provider I/O.
	WeatherFetchTimeout = 15 * time.Second
)

// Snacks is the drop table consulted on task completion.
var Snacks = []models.Snack{
	{Name: "sunflower seed", BondingBoost: 1},
	{Name: "berry biscuit", BondingBoost: 2},
	{Name: "honey drop", BondingBoost: 3},
}

// Deps holds all dependencies injected into the Engine.
type Deps struct {
	Store     store.Store
	Calendar  *clockwork.Calendar
	Clock     clockwork.Clock
	Generator *gen.Generator
	Catalog   *catalog.Catalog
	Weather   weather.Provider
	Notifier  notify.Notifier
	Rand      util.Rand

	// Location passed to the weather provider.
	Latitude  float64
	Longitude float64
	Locality  string
}

// Engine drives the task lifecycle. Create with New.
type Engine struct {
	mu   sync.Mutex
	deps Deps

	timers *KeyedTimer

	reportMu sync.Mutex
	report   *models.WeatherReport

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc
	lastSlot      models.TimeSlot
}

// New creates an Engine. Calendar, Clock, Notifier, and Rand fall back to
// defaults when unset; Store is required.
func New(deps Deps) *Engine {
	if deps.Calendar == nil {
		deps.Calendar = clockwork.NewCalendar(time.UTC)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.SystemClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Rand == nil {
		deps.Rand = util.DefaultRand()
	}
	if deps.Generator == nil {
		deps.Generator = gen.New(deps.Calendar, deps.Rand)
	}
	slog.Debug("Creating Engine")
	return &Engine{deps: deps, timers: NewKeyedTimer()}
}

// Bootstrap prepares the engine at startup: seeds the catalog if stale,
// resolves the user's region into the calendar, creates the singletons,
// precomputes today's triggers, and re-arms buffer timers for tasks that
// were started before the restart.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e.deps.Catalog != nil {
		if err := e.deps.Catalog.Bootstrap(); err != nil {
			return err
		}
	}

	stats, err := e.deps.Store.GetStats()
	if err != nil {
		return err
	}
	if stats.Region != "" {
		// Best effort; an unresolvable region keeps the current timezone.
		_ = e.deps.Calendar.SetRegion(stats.Region)
	}
	if _, err := e.deps.Store.GetPet(); err != nil {
		return err
	}

	now := e.deps.Clock.Now()
	if err := e.PrepareDailyTriggers(ctx, now); err != nil {
		slog.Warn("Engine.Bootstrap: trigger preparation failed", "error", err)
	}
	e.RecoverTimers(ctx)
	slog.Info("Engine.Bootstrap: engine ready", "region", stats.Region)
	return nil
}

// SetRegion updates the user's region and the calendar timezone. Slot math
// from this point on uses the new timezone; nothing cached survives.
func (e *Engine) SetRegion(ctx context.Context, region string) error {
	if err := e.deps.Calendar.SetRegion(region); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stats, err := e.deps.Store.GetStats()
	if err != nil {
		return err
	}
	stats.Region = region
	return e.deps.Store.SaveStats(*stats)
}

// CurrentSlot returns the slot containing now.
func (e *Engine) CurrentSlot() models.TimeSlot {
	return e.deps.Calendar.SlotFor(e.deps.Clock.Now())
}

// TodayTasks returns all tasks scheduled on the current calendar day.
func (e *Engine) TodayTasks() ([]models.UserTask, error) {
	start, end := e.dayRange(e.deps.Clock.Now())
	return e.deps.Store.ListTasksBetween(start, end)
}

// CurrentSlotTasks returns the tasks scheduled inside the current slot.
func (e *Engine) CurrentSlotTasks() ([]models.UserTask, error) {
	now := e.deps.Clock.Now()
	start, end := e.deps.Calendar.SlotInterval(e.deps.Calendar.SlotFor(now), now)
	return e.deps.Store.ListTasksBetween(start, end)
}

// Stats returns the stats singleton.
func (e *Engine) Stats() (*models.UserStats, error) {
	return e.deps.Store.GetStats()
}

// Pet returns the pet singleton.
func (e *Engine) Pet() (*models.Pet, error) {
	return e.deps.Store.GetPet()
}

// EnergyHistory returns the most recent energy/bonding audit entries.
func (e *Engine) EnergyHistory(limit int) ([]models.EnergyEvent, error) {
	return e.deps.Store.ListEnergyEvents(limit)
}

// Close stops all timers and the monitor.
func (e *Engine) Close() {
	e.StopMonitor()
	e.timers.Stop()
}

// dayRange returns [start of today, start of tomorrow) in the active
// timezone.
func (e *Engine) dayRange(now time.Time) (time.Time, time.Time) {
	loc := e.deps.Calendar.Location()
	n := now.In(loc)
	start := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// fetchWeatherReport fetches the current report, degrading to the last
// good report (or nil; callers substitute defaults) when no provider is
// configured or the fetch fails. Provider I/O runs without the engine
// lock so a slow fetch never stalls task-state mutations; do not call
// with e.mu held.
func (e *Engine) fetchWeatherReport(ctx context.Context) *models.WeatherReport {
	if e.deps.Weather == nil {
		return e.lastReport()
	}
	fctx, cancel := context.WithTimeout(ctx, WeatherFetchTimeout)
	defer cancel()
	report, err := e.deps.Weather.Fetch(fctx, e.deps.Latitude, e.deps.Longitude, e.deps.Locality)
	if err != nil {
		slog.Warn("Engine.fetchWeatherReport: fetch failed, using last report", "error", err)
		return e.lastReport()
	}
	e.reportMu.Lock()
	e.report = report
	e.reportMu.Unlock()
	return report
}

func (e *Engine) lastReport() *models.WeatherReport {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()
	return e.report
}

// templates lists the catalog templates; a missing catalog degrades to an
// empty pool, which generation treats as "no tasks", never an error.
func (e *Engine) templates() []models.TaskTemplate {
	if e.deps.Catalog == nil {
		return nil
	}
	tpls, err := e.deps.Catalog.Templates()
	if err != nil {
		slog.Warn("Engine.templates: catalog read failed", "error", err)
		return nil
	}
	return tpls
}
