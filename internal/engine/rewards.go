package engine

// Reward and decay arithmetic. Energy and bonding mutations all land here
// so clamping and the audit log cannot be bypassed.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Bonding deltas.
const (
	BondingPerCompletion = 2
	BondingPerPetting    = 1
	BondingLightPenalty  = 3
	BondingDecayPerDay   = 5
	BondingAllClearBonus = 5
)

// XP grants outside task completion.
const (
	XPPerPetting  = 2
	XPPerPurchase = 10
)

// XPRequirement returns the XP needed to advance from level to level+1.
// Integer ceil of 50*level/3, so the curve grows linearly and stays exact:
// level 3 needs 50, level 6 needs 100.
func XPRequirement(level int) int {
	if level < 1 {
		level = 1
	}
	return (50*level + 2) / 3
}

// grantXP adds xp to the pet and rolls over level-ups, carrying the
// remainder. Returns the number of levels gained.
func grantXP(pet *models.Pet, xp int) int {
	if pet.Level < 1 {
		pet.Level = 1
	}
	pet.XP += xp
	levels := 0
	for pet.XP >= XPRequirement(pet.Level) {
		pet.XP -= XPRequirement(pet.Level)
		pet.Level++
		levels++
	}
	return levels
}

// applyTaskReward credits the energy reward, bonding, and XP for a
// completed task and stamps activity. Returns the energy actually granted
// after clamping and the levels gained. Caller holds the engine lock.
func (e *Engine) applyTaskReward(task models.UserTask, now time.Time) (int, int) {
	stats, err := e.deps.Store.GetStats()
	if err != nil {
		slog.Error("Engine.applyTaskReward: load stats failed", "error", err)
		return 0, 0
	}
	pet, err := e.deps.Store.GetPet()
	if err != nil {
		slog.Error("Engine.applyTaskReward: load pet failed", "error", err)
		return 0, 0
	}

	before := stats.TotalEnergy
	stats.TotalEnergy = models.ClampEnergy(stats.TotalEnergy + task.EnergyReward)
	granted := stats.TotalEnergy - before
	stats.CompletedTasksCount++
	stats.LastActiveDate = now

	pet.BondingScore = models.ClampBonding(pet.BondingScore + BondingPerCompletion)
	levels := grantXP(pet, task.EnergyReward)

	if err := e.deps.Store.SaveStats(*stats); err != nil {
		slog.Error("Engine.applyTaskReward: save stats failed", "error", err)
	}
	if err := e.deps.Store.SavePet(*pet); err != nil {
		slog.Error("Engine.applyTaskReward: save pet failed", "error", err)
	}
	e.audit(models.EnergyEvent{At: now, Delta: granted, Kind: "task_reward", TaskID: task.ID})
	if levels > 0 {
		slog.Info("Engine.applyTaskReward: level up", "level", pet.Level, "gained", levels)
	}
	return granted, levels
}

// evaluateAllClear checks whether every task scheduled today is completed
// and, the first time that holds on a given day, grants the all-clear
// bonding bonus and bumps the bonded-day streak. Caller holds the engine
// lock.
func (e *Engine) evaluateAllClear(now time.Time) bool {
	start, end := e.dayRange(now)
	tasks, err := e.deps.Store.ListTasksBetween(start, end)
	if err != nil || len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != models.TaskStatusCompleted {
			return false
		}
	}

	day := e.deps.Calendar.DayKey(now)
	for _, slot := range models.ActiveSlots {
		marked, err := e.deps.Store.GetSlotFlag(models.RecordAllClear, day, slot)
		if err != nil {
			// Unknown whether the streak was granted; do not report a
			// bonus the user never received.
			slog.Error("Engine.evaluateAllClear: record read failed", "error", err)
			return false
		}
		if marked {
			return true
		}
	}

	slot := e.deps.Calendar.SlotFor(now)
	if err := e.deps.Store.SetSlotFlag(models.RecordAllClear, day, slot, true); err != nil {
		slog.Error("Engine.evaluateAllClear: record write failed", "error", err)
		return false
	}

	stats, err := e.deps.Store.GetStats()
	if err != nil {
		slog.Error("Engine.evaluateAllClear: stats read failed", "error", err)
		return false
	}
	pet, err := e.deps.Store.GetPet()
	if err != nil {
		slog.Error("Engine.evaluateAllClear: pet read failed", "error", err)
		return false
	}
	stats.BondedDays++
	pet.BondingScore = models.ClampBonding(pet.BondingScore + BondingAllClearBonus)
	if err := e.deps.Store.SaveStats(*stats); err != nil {
		slog.Error("Engine.evaluateAllClear: save stats failed", "error", err)
	}
	if err := e.deps.Store.SavePet(*pet); err != nil {
		slog.Error("Engine.evaluateAllClear: save pet failed", "error", err)
	}
	slog.Info("Engine.evaluateAllClear: all clear", "day", day, "bondedDays", stats.BondedDays)
	return true
}

// maybeDropSnack rolls the snack drop and, on a hit, applies the snack's
// bonding boost. Caller holds the engine lock.
func (e *Engine) maybeDropSnack(now time.Time) *models.Snack {
	if len(Snacks) == 0 || e.deps.Rand.Float64() >= SnackDropChance {
		return nil
	}
	snack := Snacks[e.deps.Rand.IntN(len(Snacks))]
	pet, err := e.deps.Store.GetPet()
	if err != nil {
		return nil
	}
	pet.BondingScore = models.ClampBonding(pet.BondingScore + snack.BondingBoost)
	if err := e.deps.Store.SavePet(*pet); err != nil {
		slog.Error("Engine.maybeDropSnack: save pet failed", "error", err)
	}
	slog.Info("Engine.maybeDropSnack: snack dropped", "snack", snack.Name)
	return &snack
}

// ApplyPettingReward grants the small bonding boost for petting the
// companion.
func (e *Engine) ApplyPettingReward(ctx context.Context) (*models.Pet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pet, err := e.deps.Store.GetPet()
	if err != nil {
		return nil, err
	}
	pet.BondingScore = models.ClampBonding(pet.BondingScore + BondingPerPetting)
	grantXP(pet, XPPerPetting)
	if err := e.deps.Store.SavePet(*pet); err != nil {
		return nil, err
	}
	e.audit(models.EnergyEvent{At: e.deps.Clock.Now(), Delta: 0, Kind: "petting"})
	return pet, nil
}

// PurchaseDecoration spends energy on a decoration. Owned decorations and
// insufficient balance are rejected with an error.
func (e *Engine) PurchaseDecoration(ctx context.Context, name string, cost int) error {
	if name == "" || cost < 0 {
		return fmt.Errorf("invalid decoration purchase %q (%d)", name, cost)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pet, err := e.deps.Store.GetPet()
	if err != nil {
		return err
	}
	for _, owned := range pet.Decorations {
		if owned == name {
			return fmt.Errorf("decoration %q already owned", name)
		}
	}
	stats, err := e.deps.Store.GetStats()
	if err != nil {
		return err
	}
	if stats.TotalEnergy < cost {
		return fmt.Errorf("not enough energy for %q: have %d, need %d", name, stats.TotalEnergy, cost)
	}

	stats.TotalEnergy -= cost
	pet.Decorations = append(pet.Decorations, name)
	grantXP(pet, XPPerPurchase)
	if err := e.deps.Store.SaveStats(*stats); err != nil {
		return err
	}
	if err := e.deps.Store.SavePet(*pet); err != nil {
		return err
	}
	e.audit(models.EnergyEvent{At: e.deps.Clock.Now(), Delta: -cost, Kind: "purchase"})
	slog.Info("Engine.PurchaseDecoration: purchased", "decoration", name, "cost", cost)
	return nil
}

// applyLightPenalty docks bonding for a slot that ended with unfinished
// tasks. Guarded by the penalty record map so each (day, slot) is docked at
// most once. Caller holds the engine lock.
func (e *Engine) applyLightPenalty(day string, slot models.TimeSlot, now time.Time) {
	applied, err := e.deps.Store.GetSlotFlag(models.RecordSlotPenalties, day, slot)
	if err != nil {
		slog.Error("Engine.applyLightPenalty: record read failed", "error", err)
		return
	}
	if applied {
		return
	}
	if err := e.deps.Store.SetSlotFlag(models.RecordSlotPenalties, day, slot, true); err != nil {
		slog.Error("Engine.applyLightPenalty: record write failed", "error", err)
		return
	}

	pet, err := e.deps.Store.GetPet()
	if err != nil {
		return
	}
	pet.BondingScore = models.ClampBonding(pet.BondingScore - BondingLightPenalty)
	if err := e.deps.Store.SavePet(*pet); err != nil {
		slog.Error("Engine.applyLightPenalty: save pet failed", "error", err)
	}
	e.audit(models.EnergyEvent{At: now, Delta: 0, Kind: "penalty"})
	slog.Info("Engine.applyLightPenalty: penalty applied", "day", day, "slot", slot)
}

// sweepSlotPenalties walks today's already-ended slots and applies the
// light penalty for each one that generated tasks but left some
// uncompleted. Caller holds the engine lock.
func (e *Engine) sweepSlotPenalties(now time.Time) {
	day := e.deps.Calendar.DayKey(now)
	for _, slot := range models.ActiveSlots {
		start, end := e.deps.Calendar.SlotInterval(slot, now)
		if end.After(now) {
			continue
		}
		generated, err := e.deps.Store.GetSlotFlag(models.RecordSlotGenerated, day, slot)
		if err != nil || !generated {
			continue
		}
		tasks, err := e.deps.Store.ListTasksBetween(start, end)
		if err != nil {
			continue
		}
		unfinished := false
		for _, t := range tasks {
			if t.Status != models.TaskStatusCompleted {
				unfinished = true
				break
			}
		}
		if unfinished {
			e.applyLightPenalty(day, slot, now)
		}
	}
}

// ApplyDailyDecay docks bonding for each full day without activity since
// the last active date. Idempotent within a day: once applied it advances
// LastActiveDate so the same gap is never charged twice.
func (e *Engine) ApplyDailyDecay(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.deps.Clock.Now()
	stats, err := e.deps.Store.GetStats()
	if err != nil {
		return err
	}
	if stats.LastActiveDate.IsZero() {
		stats.LastActiveDate = now
		return e.deps.Store.SaveStats(*stats)
	}
	days := e.deps.Calendar.DaysBetween(stats.LastActiveDate, now)
	if days <= 0 {
		return nil
	}

	pet, err := e.deps.Store.GetPet()
	if err != nil {
		return err
	}
	pet.BondingScore = models.ClampBonding(pet.BondingScore - days*BondingDecayPerDay)
	stats.LastActiveDate = now
	if err := e.deps.Store.SavePet(*pet); err != nil {
		return err
	}
	if err := e.deps.Store.SaveStats(*stats); err != nil {
		return err
	}
	e.audit(models.EnergyEvent{At: now, Delta: 0, Kind: "decay"})
	slog.Info("Engine.ApplyDailyDecay: decay applied", "days", days, "bonding", pet.BondingScore)
	return nil
}

// audit appends to the energy event log, logging rather than failing on
// error; reward flows never abort over the audit trail.
func (e *Engine) audit(ev models.EnergyEvent) {
	if err := e.deps.Store.AppendEnergyEvent(ev); err != nil {
		slog.Warn("Engine.audit: append failed", "error", err, "kind", ev.Kind)
	}
}
