// Package catalog owns the seeded task template catalog for Pipkin.
//
// Templates are immutable seed data. At bootstrap the persisted catalog is
// replaced only when its version is behind the bundled SeedVersion;
// otherwise it is left untouched.
package catalog

import (
	"fmt"
	"log/slog"

	"github.com/pipkin-app/pipkin/internal/models"
)

// SeedVersion is the bundled catalog version. Bump it whenever Seed changes
// so existing installs reseed on next startup.
const SeedVersion = 3

// Store is the persistence surface the catalog needs.
type Store interface {
	// GetCatalogVersion returns the persisted catalog version, 0 when none.
	GetCatalogVersion() (int, error)
	// ReplaceCatalog atomically replaces all templates and the version.
	ReplaceCatalog(version int, templates []models.TaskTemplate) error
	// ListTemplates returns all persisted templates.
	ListTemplates() ([]models.TaskTemplate, error)
}

// Seed is the bundled template list. Deduplicated by title at load.
var Seed = []models.TaskTemplate{
	{Title: "Take a walk around the block", Category: models.CategoryOutdoor, IsOutdoor: true},
	{Title: "Sit in the sun for ten minutes", Category: models.CategoryOutdoor, IsOutdoor: true},
	{Title: "Water an outdoor plant", Category: models.CategoryOutdoor, IsOutdoor: true},
	{Title: "Photograph something green", Category: models.CategoryOutdoor, IsOutdoor: true},
	{Title: "Stretch by an open window", Category: models.CategoryOutdoor, IsOutdoor: true},
	{Title: "Read an article you saved", Category: models.CategoryIndoorDigital, IsOutdoor: false},
	{Title: "Organize your photo library", Category: models.CategoryIndoorDigital, IsOutdoor: false},
	{Title: "Learn one new keyboard shortcut", Category: models.CategoryIndoorDigital, IsOutdoor: false},
	{Title: "Write down three good things", Category: models.CategoryIndoorDigital, IsOutdoor: false},
	{Title: "Tidy one shelf", Category: models.CategoryIndoorActivity, IsOutdoor: false},
	{Title: "Do a short stretch routine", Category: models.CategoryIndoorActivity, IsOutdoor: false},
	{Title: "Cook something simple", Category: models.CategoryIndoorActivity, IsOutdoor: false},
	{Title: "Drink a full glass of water", Category: models.CategoryIndoorActivity, IsOutdoor: false},
	{Title: "Message a friend you miss", Category: models.CategorySocial, IsOutdoor: false},
	{Title: "Call a family member", Category: models.CategorySocial, IsOutdoor: false},
	{Title: "Compliment someone today", Category: models.CategorySocial, IsOutdoor: false},
	{Title: "Give your pet a brushing", Category: models.CategoryPetCare, IsOutdoor: false},
	{Title: "Refill the snack bowl", Category: models.CategoryPetCare, IsOutdoor: false},
	{Title: "Teach your pet a trick", Category: models.CategoryPetCare, IsOutdoor: false},
}

// Catalog serves task templates, backed by the store after bootstrap.
type Catalog struct {
	store Store
}

// New creates a Catalog over the given store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Bootstrap reseeds the persisted catalog when it is empty or its version
// is behind SeedVersion. Idempotent: a current catalog is left untouched.
func (c *Catalog) Bootstrap() error {
	version, err := c.store.GetCatalogVersion()
	if err != nil {
		return fmt.Errorf("failed to read catalog version: %w", err)
	}
	if version >= SeedVersion {
		slog.Debug("Catalog.Bootstrap: catalog current", "version", version)
		return nil
	}

	templates := dedupeByTitle(Seed)
	for i := range templates {
		if templates[i].BaseEnergyReward == 0 {
			templates[i].BaseEnergyReward = templates[i].Category.BaseEnergyReward()
		}
	}
	if err := c.store.ReplaceCatalog(SeedVersion, templates); err != nil {
		return fmt.Errorf("failed to reseed catalog: %w", err)
	}
	slog.Info("Catalog.Bootstrap: reseeded catalog", "from_version", version, "to_version", SeedVersion, "templates", len(templates))
	return nil
}

// Templates returns all persisted templates.
func (c *Catalog) Templates() ([]models.TaskTemplate, error) {
	return c.store.ListTemplates()
}

// dedupeByTitle drops later entries whose title was already seen.
func dedupeByTitle(in []models.TaskTemplate) []models.TaskTemplate {
	seen := make(map[string]bool, len(in))
	out := make([]models.TaskTemplate, 0, len(in))
	for _, t := range in {
		if seen[t.Title] {
			slog.Warn("Catalog: duplicate template title dropped", "title", t.Title)
			continue
		}
		seen[t.Title] = true
		out = append(out, t)
	}
	return out
}
