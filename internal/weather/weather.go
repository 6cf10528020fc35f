// Package weather defines the weather report provider boundary for Pipkin.
//
// The core only consumes reports; acquisition lives behind the Provider
// interface. Absence or failure of a provider is never fatal — callers fall
// back to a sunny default report.
package weather

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// Provider supplies the current condition and upcoming weather windows for
// a location.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64, locality string) (*models.WeatherReport, error)
}

// DefaultReport returns the fallback report used when no provider data is
// available: a single sunny window covering the calendar day of now.
func DefaultReport(now time.Time) *models.WeatherReport {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return &models.WeatherReport{
		Current: models.WeatherSunny,
		Windows: []models.WeatherWindow{
			{Start: dayStart, End: dayStart.AddDate(0, 0, 1), Condition: models.WeatherSunny},
		},
		FetchedAt: now,
	}
}

// NormalizeWindows sorts windows by start and merges adjacent windows of
// the same condition so reports are ordered and non-overlapping by
// construction.
func NormalizeWindows(windows []models.WeatherWindow) []models.WeatherWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]models.WeatherWindow, len(windows))
	copy(sorted, windows)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Start.Before(sorted[j-1].Start); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	merged := []models.WeatherWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if w.Condition == last.Condition && !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		// Clip overlap so a later differing window starts where the
		// previous one ends.
		if w.Start.Before(last.End) {
			w.Start = last.End
		}
		if w.End.After(w.Start) {
			merged = append(merged, w)
		}
	}
	return merged
}

// CachingProvider decorates a Provider with a TTL and distance threshold:
// a cached report is reused while it is fresh enough and the requested
// location has not moved beyond the threshold. On upstream failure the last
// good report is served as long as one exists.
type CachingProvider struct {
	upstream   Provider
	ttl        time.Duration
	maxMoveKm  float64
	mu         sync.Mutex
	lastReport *models.WeatherReport
}

// NewCachingProvider creates a CachingProvider. Non-positive ttl disables
// reuse; non-positive maxMoveKm means any movement invalidates the cache.
func NewCachingProvider(upstream Provider, ttl time.Duration, maxMoveKm float64) *CachingProvider {
	slog.Debug("Creating CachingProvider", "ttl", ttl, "maxMoveKm", maxMoveKm)
	return &CachingProvider{upstream: upstream, ttl: ttl, maxMoveKm: maxMoveKm}
}

// Fetch returns a cached report when fresh and close enough, otherwise
// fetches from upstream and caches the result.
func (p *CachingProvider) Fetch(ctx context.Context, lat, lon float64, locality string) (*models.WeatherReport, error) {
	p.mu.Lock()
	cached := p.lastReport
	p.mu.Unlock()

	now := time.Now()
	if cached != nil && p.ttl > 0 && now.Sub(cached.FetchedAt) < p.ttl &&
		distanceKm(cached.Latitude, cached.Longitude, lat, lon) <= p.maxMoveKm {
		slog.Debug("CachingProvider.Fetch: cache hit", "age", now.Sub(cached.FetchedAt), "locality", locality)
		return cached, nil
	}

	report, err := p.upstream.Fetch(ctx, lat, lon, locality)
	if err != nil {
		if cached != nil {
			slog.Warn("CachingProvider.Fetch: upstream failed, serving stale report", "error", err, "age", now.Sub(cached.FetchedAt))
			return cached, nil
		}
		slog.Warn("CachingProvider.Fetch: upstream failed with empty cache", "error", err)
		return nil, err
	}

	report.Windows = NormalizeWindows(report.Windows)
	report.Latitude = lat
	report.Longitude = lon
	if report.FetchedAt.IsZero() {
		report.FetchedAt = now
	}

	p.mu.Lock()
	p.lastReport = report
	p.mu.Unlock()
	slog.Debug("CachingProvider.Fetch: refreshed report", "windows", len(report.Windows), "current", report.Current)
	return report, nil
}

// distanceKm computes the haversine distance between two coordinates.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
