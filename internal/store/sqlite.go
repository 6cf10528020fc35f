// Package store: SQLite backend.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a SQLite file database.
//
// mapMu serializes the read-purge-merge-write cycle of the record maps;
// without it two writers filling different slots of the same day could
// clobber each other's merge.
type SQLiteStore struct {
	db    *sql.DB
	mapMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListTasksBetween(start, end time.Time) ([]models.UserTask, error) {
	rows, err := s.db.Query(`SELECT id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at
		FROM tasks WHERE scheduled_date >= ? AND scheduled_date < ? ORDER BY scheduled_date ASC`, start, end)
	if err != nil {
		slog.Error("SQLiteStore ListTasksBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *SQLiteStore) GetTask(id string) (*models.UserTask, error) {
	row := s.db.QueryRow(`SELECT id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) SaveTask(task models.UserTask) error {
	_, err := s.db.Exec(`INSERT INTO tasks (id, title, weather_type, category, energy_reward, scheduled_date, status, started_at, can_complete_after, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, weather_type=excluded.weather_type, category=excluded.category,
			energy_reward=excluded.energy_reward, scheduled_date=excluded.scheduled_date, status=excluded.status,
			started_at=excluded.started_at, can_complete_after=excluded.can_complete_after, completed_at=excluded.completed_at`,
		task.ID, task.Title, string(task.WeatherType), string(task.Category), task.EnergyReward,
		task.ScheduledDate, string(task.Status), nullableTime(task.StartedAt), nullableTime(task.CanCompleteAfter), nullableTime(task.CompletedAt))
	if err != nil {
		slog.Error("SQLiteStore SaveTask failed", "error", err, "id", task.ID)
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(id string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteTask failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetStats() (*models.UserStats, error) {
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
		slog.Error("SQLiteStore GetStats failed", "error", err)
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveStats(stats models.UserStats) error {
	_, err := s.db.Exec(`INSERT INTO stats (id, total_energy, bonded_days, completed_tasks_count, region, last_active_date, notifications_enabled, onboarded)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_energy=excluded.total_energy, bonded_days=excluded.bonded_days,
			completed_tasks_count=excluded.completed_tasks_count, region=excluded.region,
			last_active_date=excluded.last_active_date, notifications_enabled=excluded.notifications_enabled,
			onboarded=excluded.onboarded`,
		stats.TotalEnergy, stats.BondedDays, stats.CompletedTasksCount, stats.Region, stats.LastActiveDate, stats.NotificationsEnabled, stats.Onboarded)
	if err != nil {
		slog.Error("SQLiteStore SaveStats failed", "error", err)
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPet() (*models.Pet, error) {
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
		slog.Error("SQLiteStore GetPet failed", "error", err)
		return nil, fmt.Errorf("failed to get pet: %w", err)
	}
	if err := json.Unmarshal([]byte(decorations), &p.Decorations); err != nil {
		slog.Error("SQLiteStore GetPet decorations decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode decorations: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePet(pet models.Pet) error {
	decorations, err := json.Marshal(pet.Decorations)
	if err != nil {
		return fmt.Errorf("failed to encode decorations: %w", err)
	}
	if pet.Decorations == nil {
		decorations = []byte("[]")
	}
	_, err = s.db.Exec(`INSERT INTO pet (id, bonding_score, level, xp, decorations) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bonding_score=excluded.bonding_score, level=excluded.level, xp=excluded.xp, decorations=excluded.decorations`,
		pet.BondingScore, pet.Level, pet.XP, string(decorations))
	if err != nil {
		slog.Error("SQLiteStore SavePet failed", "error", err)
		return fmt.Errorf("failed to save pet: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCatalogVersion() (int, error) {
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

func (s *SQLiteStore) ReplaceCatalog(version int, templates []models.TaskTemplate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM templates`); err != nil {
		return fmt.Errorf("failed to clear templates: %w", err)
	}
	for _, t := range templates {
		if _, err := tx.Exec(`INSERT INTO templates (title, category, is_outdoor, base_energy_reward) VALUES (?, ?, ?, ?)`,
			t.Title, string(t.Category), t.IsOutdoor, t.BaseEnergyReward); err != nil {
			return fmt.Errorf("failed to insert template %q: %w", t.Title, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO catalog_meta (id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version=excluded.version`, version); err != nil {
		return fmt.Errorf("failed to set catalog version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	slog.Debug("SQLiteStore ReplaceCatalog succeeded", "version", version, "templates", len(templates))
	return nil
}

func (s *SQLiteStore) ListTemplates() ([]models.TaskTemplate, error) {
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

func (s *SQLiteStore) GetSlotFlag(name, day string, slot models.TimeSlot) (bool, error) {
	var m models.SlotFlagMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return false, err
	}
	return m.Get(day, slot), nil
}

func (s *SQLiteStore) SetSlotFlag(name, day string, slot models.TimeSlot, v bool) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	var m models.SlotFlagMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return err
	}
	return s.saveKeyValue(name, m.Set(day, slot, v))
}

func (s *SQLiteStore) GetSlotTime(name, day string, slot models.TimeSlot) (time.Time, bool, error) {
	var m models.SlotTimeMap
	if err := s.loadKeyValue(name, &m); err != nil {
		return time.Time{}, false, err
	}
	t, ok := m.Get(day, slot)
	return t, ok, nil
}

func (s *SQLiteStore) SetSlotTime(name, day string, slot models.TimeSlot, t time.Time) error {
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

func (s *SQLiteStore) loadKeyValue(key string, dest interface{}) error {
	row := s.db.QueryRow(`SELECT value FROM key_value WHERE key = ?`, key)
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		slog.Error("SQLiteStore loadKeyValue failed", "error", err, "key", key)
		return fmt.Errorf("failed to load key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		slog.Error("SQLiteStore loadKeyValue decode failed", "error", err, "key", key)
		return fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) saveKeyValue(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", key, err)
	}
	if _, err := s.db.Exec(`INSERT INTO key_value (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, string(raw)); err != nil {
		slog.Error("SQLiteStore saveKeyValue failed", "error", err, "key", key)
		return fmt.Errorf("failed to save key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) AppendEnergyEvent(e models.EnergyEvent) error {
	_, err := s.db.Exec(`INSERT INTO energy_events (at, delta, kind, task_id) VALUES (?, ?, ?, ?)`,
		e.At, e.Delta, e.Kind, e.TaskID)
	if err != nil {
		slog.Error("SQLiteStore AppendEnergyEvent failed", "error", err, "kind", e.Kind)
		return fmt.Errorf("failed to append energy event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEnergyEvents(limit int) ([]models.EnergyEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT at, delta, kind, task_id FROM energy_events ORDER BY at DESC, id DESC LIMIT ?`, limit)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
