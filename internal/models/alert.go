package models

import (
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
)

type AlertSeverity string

const (
	SeverityMinor    AlertSeverity = "minor"
	SeverityModerate AlertSeverity = "moderate"
	SeveritySevere   AlertSeverity = "severe"
	SeverityExtreme  AlertSeverity = "extreme"
)

// Rank returns the total order used for threshold comparisons:
// minor < moderate < severe < extreme. Unknown values rank as minor.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityExtreme:
		return 4
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	default:
		return 1
	}
}

type AlertCategory string

const (
	CategoryWeather    AlertCategory = "weather"
	CategoryEarthquake AlertCategory = "earthquake"
	CategoryTsunami    AlertCategory = "tsunami"
	CategoryVolcano    AlertCategory = "volcano"
	CategoryWildfire   AlertCategory = "wildfire"
	CategoryFlood      AlertCategory = "flood"
	CategoryHurricane  AlertCategory = "hurricane"
	CategoryMarine     AlertCategory = "marine"
	CategorySecurity   AlertCategory = "security"
	CategoryCivil      AlertCategory = "civil"
	CategoryHealth     AlertCategory = "health"
	CategoryOther      AlertCategory = "other"
)

// Alert is the canonical hazard event. Location is either a point with an
// affected radius, a polygon, or neither (region-only alerts).
type Alert struct {
	ID         string
	ExternalID string // "<source>_<rawId>", the dedup key across syncs

	Title       string
	Description string
	Severity    AlertSeverity
	Category    AlertCategory

	LocationName    string
	Latitude        *float64
	Longitude       *float64
	RadiusMiles     float64
	Polygon         geo.Polygon
	AffectedRegions []string

	EffectiveTime time.Time
	ExpiresTime   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Source    string
	SourceURL string
	Metadata  map[string]any

	Active bool
}

// Shape returns the alert geometry for geo matching.
func (a *Alert) Shape() geo.Shape {
	s := geo.Shape{RadiusMiles: a.RadiusMiles, Polygon: a.Polygon}
	if a.Latitude != nil && a.Longitude != nil {
		s.Point = &geo.Point{Lat: *a.Latitude, Lon: *a.Longitude}
	}
	return s
}
