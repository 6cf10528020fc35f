package catalog

import (
	"testing"

	"github.com/pipkin-app/pipkin/internal/models"
)

type fakeStore struct {
	version   int
	templates []models.TaskTemplate
	replaces  int
}

func (f *fakeStore) GetCatalogVersion() (int, error) { return f.version, nil }

func (f *fakeStore) ReplaceCatalog(version int, templates []models.TaskTemplate) error {
	f.version = version
	f.templates = templates
	f.replaces++
	return nil
}

func (f *fakeStore) ListTemplates() ([]models.TaskTemplate, error) { return f.templates, nil }

func TestBootstrapSeedsEmptyStore(t *testing.T) {
	st := &fakeStore{}
	c := New(st)
	if err := c.Bootstrap(); err != nil {
		t.Fatalf("bootstrap error: %v", err)
	}
	if st.version != SeedVersion {
		t.Errorf("version = %d, want %d", st.version, SeedVersion)
	}
	if len(st.templates) == 0 {
		t.Fatalf("expected templates after seeding")
	}
	for _, tpl := range st.templates {
		if tpl.BaseEnergyReward <= 0 {
			t.Errorf("template %q seeded without energy reward", tpl.Title)
		}
		if !models.IsValidTaskCategory(tpl.Category) {
			t.Errorf("template %q has invalid category %q", tpl.Title, tpl.Category)
		}
	}
}

func TestBootstrapSkipsCurrentCatalog(t *testing.T) {
	st := &fakeStore{version: SeedVersion}
	if err := New(st).Bootstrap(); err != nil {
		t.Fatalf("bootstrap error: %v", err)
	}
	if st.replaces != 0 {
		t.Errorf("current catalog must not be reseeded")
	}
}

func TestBootstrapReseedsStaleVersion(t *testing.T) {
	st := &fakeStore{version: SeedVersion - 1, templates: []models.TaskTemplate{{Title: "old"}}}
	if err := New(st).Bootstrap(); err != nil {
		t.Fatalf("bootstrap error: %v", err)
	}
	if st.replaces != 1 {
		t.Errorf("stale catalog must be replaced exactly once, got %d", st.replaces)
	}
	for _, tpl := range st.templates {
		if tpl.Title == "old" {
			t.Errorf("stale template survived reseed")
		}
	}
}

func TestSeedTitlesUnique(t *testing.T) {
	deduped := dedupeByTitle(Seed)
	if len(deduped) != len(Seed) {
		t.Errorf("bundled seed contains duplicate titles: %d vs %d", len(deduped), len(Seed))
	}
}

func TestSeedCoversAllCategories(t *testing.T) {
	got := map[models.TaskCategory]bool{}
	for _, tpl := range Seed {
		got[tpl.Category] = true
	}
	for _, c := range models.AllCategories {
		if !got[c] {
			t.Errorf("seed has no template for category %s", c)
		}
	}
}
