package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}

type usgsProperties struct {
	Mag     float64 `json:"mag"`
	Place   string  `json:"place"`
	Time    int64   `json:"time"` // unix millis
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Felt    int     `json:"felt"`
	Sig     int     `json:"sig"`
	Tsunami int     `json:"tsunami"` // 0 or 1
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth_km]
}

// USGSSource ingests earthquake events from the USGS GeoJSON feed.
type USGSSource struct {
	url string

	mu         sync.Mutex
	epicenters []geo.Point // from the most recent fetch, for swarm detection
}

func NewUSGSSource(url string) *USGSSource {
	return &USGSSource{url: url}
}

func (s *USGSSource) Name() string { return "usgs" }

func (s *USGSSource) FetchAlerts(ctx context.Context) ([]*models.Alert, error) {
	var data usgsResponse
	if err := getJSON(ctx, s.url, &data); err != nil {
		return nil, err
	}

	alerts := make([]*models.Alert, 0, len(data.Features))
	epicenters := make([]geo.Point, 0, len(data.Features))
	for _, f := range data.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		epicenters = append(epicenters, geo.Point{
			Lat: f.Geometry.Coordinates[1],
			Lon: f.Geometry.Coordinates[0],
		})

		a := convertQuake(f)
		if a == nil {
			continue
		}
		alerts = append(alerts, a)
	}

	s.mu.Lock()
	s.epicenters = epicenters
	s.mu.Unlock()

	return alerts, nil
}

// RecentEpicenters returns the epicenters seen in the latest fetch, including
// the sub-threshold quakes that never become alerts. The volcano source uses
// them for swarm detection.
func (s *USGSSource) RecentEpicenters() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geo.Point, len(s.epicenters))
	copy(out, s.epicenters)
	return out
}

// convertQuake maps one USGS feature to a canonical alert. Quakes below
// magnitude 2.5 are noise and return nil.
func convertQuake(f usgsFeature) *models.Alert {
	mag := f.Properties.Mag
	if mag < 2.5 {
		return nil
	}

	lon := f.Geometry.Coordinates[0]
	lat := f.Geometry.Coordinates[1]
	var depth float64
	if len(f.Geometry.Coordinates) > 2 {
		depth = f.Geometry.Coordinates[2]
	}

	effective := time.UnixMilli(f.Properties.Time).UTC()
	expires := effective.Add(quakeActiveFor(mag))

	tsunamiNote := "No tsunami expected."
	if mag >= 7.0 && depth < 100 {
		tsunamiNote = "TSUNAMI POTENTIAL"
	}

	title := f.Properties.Title
	if title == "" {
		title = fmt.Sprintf("M%.1f Earthquake - %s", mag, f.Properties.Place)
	}

	return &models.Alert{
		ExternalID: "usgs_" + f.ID,
		Title:      title,
		Description: fmt.Sprintf(
			"A magnitude %.1f earthquake occurred at a depth of %.1f km. Felt reports: %d. %s",
			mag, depth, f.Properties.Felt, tsunamiNote),
		Severity:        quakeSeverity(mag),
		Category:        models.CategoryEarthquake,
		LocationName:    f.Properties.Place,
		Latitude:        &lat,
		Longitude:       &lon,
		RadiusMiles:     quakeRadiusMiles(mag),
		AffectedRegions: regionsForPoint(lat, lon),
		EffectiveTime:   effective,
		ExpiresTime:     &expires,
		Source:          "USGS Earthquake Hazards Program",
		SourceURL:       f.Properties.URL,
		Metadata: map[string]any{
			"magnitude":    mag,
			"depth_km":     depth,
			"felt_reports": f.Properties.Felt,
			"significance": f.Properties.Sig,
			"tsunami":      f.Properties.Tsunami,
		},
		Active: true,
	}
}

func quakeSeverity(mag float64) models.AlertSeverity {
	switch {
	case mag >= 7.0:
		return models.SeverityExtreme
	case mag >= 6.0:
		return models.SeveritySevere
	case mag >= 5.0:
		return models.SeverityModerate
	default:
		return models.SeverityMinor
	}
}

func quakeRadiusMiles(mag float64) float64 {
	switch {
	case mag >= 7.0:
		return 200
	case mag >= 6.0:
		return 100
	case mag >= 5.0:
		return 50
	case mag >= 4.0:
		return 25
	default:
		return 10
	}
}

// quakeActiveFor returns how long a quake alert stays active. Quakes are
// instant events; bigger ones keep their alert window open longer.
func quakeActiveFor(mag float64) time.Duration {
	switch {
	case mag >= 6.0:
		return 24 * time.Hour
	case mag >= 5.0:
		return 12 * time.Hour
	default:
		return 6 * time.Hour
	}
}
