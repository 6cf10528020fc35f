// Package store: PostgreSQL backend.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/pipkin-app/pipkin/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on PostgreSQL. Same record-map locking
// discipline as the SQLite backend.
type PostgresStore struct {
	db    *sql.DB
	mapMu sync.Mutex
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ListTasksBetween(start, end time.Time) ([]models.UserTask, error) {
	rows, err := s.db.Query(`SELECT id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at
		FROM tasks WHERE scheduled_date >= $1 AND scheduled_date < $2 ORDER BY scheduled_date ASC`, start, end)
	if err != nil {
		slog.Error("PostgresStore ListTasksBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *PostgresStore) GetTask(id string) (*models.UserTask, error) {
	row := s.db.QueryRow(`SELECT id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at
		FROM tasks WHERE id = $1`, id)
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) SaveTask(task models.UserTask) error {
	_, err := s.db.Exec(`INSERT INTO tasks (id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title=excluded.title, weather_type=excluded.weather_type, category=excluded.category,
			energy_reward=excluded.energy_reward, scheduled_date=excluded.scheduled_date, status=excluded.status,
			started_at=excluded.started_at, can_complete_after=excluded.can_complete_after, completed_at=excluded.completed_at`,
		task.ID, task.Title, string(task.WeatherType), string(task.Category), task.EnergyReward,
		task.ScheduledDate, string(task.Status), nullableTime(task.StartedAt), nullableTime(task.CanCompleteAfter), nullableTime(task.CompletedAt))
	if err != nil {
		slog.Error("PostgresStore SaveTask failed", "error", err, "id", task.ID)
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(id string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteTask failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) GetStats() (*models.UserStats, error) {
	row := s.db.QueryRow(`SELECT total_energy, bonded_days, completed_tasks_count, region, last_active_date, notifications_enabled, onboarded FROM stats WHERE id = 1`)
	var st models.UserStats
	err := row.Scan(&st.TotalEnergy, &st.BondedDays, &st.CompletedTasksCount, &st.Region, &st.LastActiveDate, &st.NotificationsEnabled, &st.Onboarded)
	if err == sql.ErrNoRows {
		st = DefaultStats(time.Now())
		if saveErr := s.SaveStats(st); saveErr != nil {
			return nil, saveErr
		}
		return &st, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStats failed", "error", err)
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SaveStats(stats models.UserStats) error {
	_, err := s.db.Exec(`INSERT INTO stats (id, total_energy, bonded_days, completed_tasks_count, region, last_active_date, notifications_enabled, onboarded)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			total_energy=excluded.total_energy, bonded_days=excluded.bonded_days,
			completed_tasks_count=excluded.completed_tasks_count, region=excluded.region,
			last_active_date=excluded.last_active_date, notifications_enabled=excluded.notifications_enabled,
			onboarded=excluded.onboarded`,
		stats.TotalEnergy, stats.BondedDays, stats.CompletedTasksCount, stats.Region, stats.LastActiveDate, stats.NotificationsEnabled, stats.Onboarded)
	if err != nil {
		slog.Error("PostgresStore SaveStats failed", "error", err)
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPet() (*models.Pet, error) {
	row := s.db.QueryRow(`SELECT bonding_score, level, xp, decorations FROM pet WHERE id = 1`)
	var p models.Pet
	var decorations string
	err := row.Scan(&p.BondingScore, &p.Level, &p.XP, &decorations)
	if err == sql.ErrNoRows {
		p = DefaultPet()
		if saveErr := s.SavePet(p); saveErr != nil {
			return nil, saveErr
		}
		return &p, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPet failed", "error", err)
		return nil, fmt.Errorf("failed to get pet: %w", err)
	}
	if err := json.Unmarshal([]byte(decorations), &p.Decorations); err != nil {
		slog.Error("PostgresStore GetPet decorations decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode decorations: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SavePet(pet models.Pet) error {
	decorations, err := json.Marshal(pet.Decorations)
	if err != nil {
		return fmt.Errorf("failed to encode decorations: %w", err)
	}
	if pet.Decorations == nil {
		decorations = []byte("[]")
	}
	_, err = s.db.Exec(`INSERT INTO pet (id, bonding_score, level, xp, decorations) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			bonding_score=excluded.bonding_score, level=excluded.level, xp=excluded.xp, decorations=excluded.decorations`,
		pet.BondingScore, pet.Level, pet.XP, string(decorations))
	if err != nil {
		slog.Error("PostgresStore SavePet failed", "error", err)
		return fmt.Errorf("failed to save pet: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCatalogVersion() (int, error) {
	row := s.db.QueryRow(`SELECT version FROM catalog_meta WHERE id = 1`)
	var v int
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get catalog version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ReplaceCatalog(version int, templates []models.TaskTemplate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM templates`); err != nil {
		return fmt.Errorf("failed to clear templates: %w", err)
	}
	for _, t := range templates {
		if _, err := tx.Exec(`INSERT INTO templates (title, category, is_outdoor, base_energy_reward) VALUES ($1, $2, $3, $4)`,
			t.Title, string(t.Category), t.IsOutdoor, t.BaseEnergyReward); err != nil {
			return fmt.Errorf("failed to insert template %q: %w", t.Title, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO catalog_meta (id, version) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET version=excluded.version`, version); err != nil {
		return fmt.Errorf("failed to set catalog version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	slog.Debug("PostgresStore ReplaceCatalog succeeded", "version", version, "templates", len(templates))
	return nil
}

func (s *PostgresStore) ListTemplates() ([]models.TaskTemplate, error) {
	rows, err := s.db.Query(`SELECT title, category, is_outdoor, base_energy_reward FROM templates`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []models.TaskTemplate
	for rows.Next() {
		var t models.TaskTemplate
		var category string
		if err := rows.Scan(&t.Title, &category, &t.IsOutdoor, &t.BaseEnergyReward); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		t.Category = models.TaskCategory(category)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSlotFlag(name, day string, slot models.TimeSlot) (bool, error) {
	var m models.SlotFlagMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return false, err
	}
	return m.Get(day, slot), nil
}

func (s *PostgresStore) SetSlotFlag(name, day string, slot models.TimeSlot, v bool) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	var m models.SlotFlagMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return err
	}
	return s.saveKeyValue(name, m.Set(day, slot, v))
}

func (s *PostgresStore) GetSlotTime(name, day string, slot models.TimeSlot) (time.Time, bool, error) {
	var m models.SlotTimeMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return time.Time{}, false, err
	}
	t, ok := m.Get(day, slot)
	return t, ok, nil
}

func (s *PostgresStore) SetSlotTime(name, day string, slot models.TimeSlot, t time.Time) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	var m models.SlotTimeMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return err
	}
	if existing, ok := m.Get(day, slot); ok {
		t = existing
	}
	return s.saveKeyValue(name, m.Set(day, slot, t))
}

func (s *PostgresStore) loadKeyValue(key string, dest interface{}) error {
	row := s.db.QueryRow(`SELECT value FROM key_value WHERE key = $1`, key)
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		slog.Error("PostgresStore loadKeyValue failed", "error", err, "key", key)
		return fmt.Errorf("failed to load key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		slog.Error("PostgresStore loadKeyValue decode failed", "error", err, "key", key)
		return fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) saveKeyValue(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", key, err)
	}
	if _, err := s.db.Exec(`INSERT INTO key_value (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value`, key, string(raw)); err != nil {
		slog.Error("PostgresStore saveKeyValue failed", "error", err, "key", key)
		return fmt.Errorf("failed to save key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) AppendEnergyEvent(e models.EnergyEvent) error {
	_, err := s.db.Exec(`INSERT INTO energy_events (at, delta, kind, task_id) VALUES ($1, $2, $3, $4)`,
		e.At, e.Delta, e.Kind, e.TaskID)
	if err != nil {
		slog.Error("PostgresStore AppendEnergyEvent failed", "error", err, "kind", e.Kind)
		return fmt.Errorf("failed to append energy event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEnergyEvents(limit int) ([]models.EnergyEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT at, delta, kind, task_id FROM energy_events ORDER BY at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query energy events: %w", err)
	}
	defer rows.Close()

	var out []models.EnergyEvent
	for rows.Next() {
		var e models.EnergyEvent
		if err := rows.Scan(&e.At, &e.Delta, &e.Kind, &e.TaskID); err != nil {
			return nil, fmt.Errorf("failed to scan energy event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
