package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

type stubProvider struct {
	report *models.WeatherReport
	err    error
	calls  int
}

func (s *stubProvider) Fetch(ctx context.Context, lat, lon float64, locality string) (*models.WeatherReport, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.report
	return &r, nil
}

func window(startHour, endHour int, c models.WeatherCondition) models.WeatherWindow {
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	return models.WeatherWindow{
		Start:     day.Add(time.Duration(startHour) * time.Hour),
		End:       day.Add(time.Duration(endHour) * time.Hour),
		Condition: c,
	}
}

func TestNormalizeWindowsMergesAdjacentSameCondition(t *testing.T) {
	got := NormalizeWindows([]models.WeatherWindow{
		window(9, 12, models.WeatherSunny),
		window(6, 9, models.WeatherSunny),
		window(12, 15, models.WeatherRainy),
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 windows after merge, got %d: %v", len(got), got)
	}
	if got[0].Condition != models.WeatherSunny || got[0].Start.Hour() != 6 || got[0].End.Hour() != 12 {
		t.Errorf("merged sunny window wrong: %+v", got[0])
	}
	if got[1].Condition != models.WeatherRainy {
		t.Errorf("expected rainy second, got %+v", got[1])
	}
}

func TestNormalizeWindowsClipsOverlap(t *testing.T) {
	got := NormalizeWindows([]models.WeatherWindow{
		window(6, 11, models.WeatherCloudy),
		window(9, 14, models.WeatherRainy),
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if !got[1].Start.Equal(got[0].End) {
		t.Errorf("overlapping differing windows must be clipped: %v then %v", got[0], got[1])
	}
}

func TestDefaultReportIsSunnyAllDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	r := DefaultReport(now)
	if r.Current != models.WeatherSunny {
		t.Errorf("default condition should be sunny, got %s", r.Current)
	}
	if len(r.Windows) != 1 {
		t.Fatalf("expected a single window, got %d", len(r.Windows))
	}
	if !r.Windows[0].Overlaps(now, now.Add(time.Minute)) {
		t.Errorf("default window must cover now")
	}
}

func TestCachingProviderReusesFreshReport(t *testing.T) {
	stub := &stubProvider{report: DefaultReport(time.Now())}
	p := NewCachingProvider(stub, time.Hour, 5)

	if _, err := p.Fetch(context.Background(), 43.6, -79.4, "Toronto"); err != nil {
		t.Fatalf("first fetch error: %v", err)
	}
	if _, err := p.Fetch(context.Background(), 43.6, -79.4, "Toronto"); err != nil {
		t.Fatalf("second fetch error: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", stub.calls)
	}
}

func TestCachingProviderDistanceThreshold(t *testing.T) {
	stub := &stubProvider{report: DefaultReport(time.Now())}
	p := NewCachingProvider(stub, time.Hour, 5)

	if _, err := p.Fetch(context.Background(), 43.6, -79.4, "Toronto"); err != nil {
		t.Fatalf("first fetch error: %v", err)
	}
	// Montreal is ~500km away; must bypass the cache.
	if _, err := p.Fetch(context.Background(), 45.5, -73.6, "Montreal"); err != nil {
		t.Fatalf("moved fetch error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("expected 2 upstream calls after moving, got %d", stub.calls)
	}
}

func TestCachingProviderServesStaleOnFailure(t *testing.T) {
	stub := &stubProvider{report: DefaultReport(time.Now())}
	p := NewCachingProvider(stub, time.Nanosecond, 5)

	if _, err := p.Fetch(context.Background(), 0, 0, ""); err != nil {
		t.Fatalf("first fetch error: %v", err)
	}
	stub.err = errors.New("upstream down")
	r, err := p.Fetch(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("expected stale report instead of error, got %v", err)
	}
	if r == nil {
		t.Fatalf("expected a report")
	}
}

func TestCachingProviderFailsWithEmptyCache(t *testing.T) {
	stub := &stubProvider{err: errors.New("upstream down")}
	p := NewCachingProvider(stub, time.Hour, 5)
	if _, err := p.Fetch(context.Background(), 0, 0, ""); err == nil {
		t.Errorf("expected error when upstream fails with no cached report")
	}
}
