// Package store: in-memory backend.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// InMemoryStore is a Store kept entirely in memory. Used in tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	tasks     map[string]models.UserTask
	stats     *models.UserStats
	pet       *models.Pet
	version   int
	templates []models.TaskTemplate
	flags     map[string]models.SlotFlagMap
	times     map[string]models.SlotTimeMap
	events    []models.EnergyEvent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks: make(map[string]models.UserTask),
		flags: make(map[string]models.SlotFlagMap),
		times: make(map[string]models.SlotTimeMap),
	}
}

func (s *InMemoryStore) ListTasksBetween(start, end time.Time) ([]models.UserTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserTask
	for _, t := range s.tasks {
		if !t.ScheduledDate.Before(start) && t.ScheduledDate.Before(end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (s *InMemoryStore) GetTask(id string) (*models.UserTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) SaveTask(task models.UserTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *InMemoryStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *InMemoryStore) GetStats() (*models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats == nil {
		st := DefaultStats(time.Now())
		s.stats = &st
	}
	st := *s.stats
	return &st, nil
}

func (s *InMemoryStore) SaveStats(stats models.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &stats
	return nil
}

func (s *InMemoryStore) GetPet() (*models.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pet == nil {
		p := DefaultPet()
		s.pet = &p
	}
	p := *s.pet
	return &p, nil
}

func (s *InMemoryStore) SavePet(pet models.Pet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pet = &pet
	return nil
}

func (s *InMemoryStore) GetCatalogVersion() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *InMemoryStore) ReplaceCatalog(version int, templates []models.TaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	s.templates = append([]models.TaskTemplate(nil), templates...)
	return nil
}

func (s *InMemoryStore) ListTemplates() ([]models.TaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TaskTemplate(nil), s.templates...), nil
}

func (s *InMemoryStore) GetSlotFlag(name, day string, slot models.TimeSlot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name].Get(day, slot), nil
}

func (s *InMemoryStore) SetSlotFlag(name, day string, slot models.TimeSlot, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = s.flags[name].Set(day, slot, v)
	return nil
}

func (s *InMemoryStore) GetSlotTime(name, day string, slot models.TimeSlot) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.times[name].Get(day, slot)
	return t, ok, nil
}

func (s *InMemoryStore) SetSlotTime(name, day string, slot models.TimeSlot, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.times[name].Get(day, slot); ok {
		// Fill gaps only; an existing timestamp is never overwritten.
		t = existing
	}
	s.times[name] = s.times[name].Set(day, slot, t)
	return nil
}

func (s *InMemoryStore) AppendEnergyEvent(e models.EnergyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) ListEnergyEvents(limit int) ([]models.EnergyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.EnergyEvent(nil), s.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
