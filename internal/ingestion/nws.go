package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

type nwsResponse struct {
	Features []nwsFeature `json:"features"`
}

type nwsFeature struct {
	Properties nwsProperties `json:"properties"`
	Geometry   *nwsGeometry  `json:"geometry"`
}

type nwsProperties struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Headline    string     `json:"headline"`
	Description string     `json:"description"`
	Instruction string     `json:"instruction"`
	Severity    string     `json:"severity"`
	Certainty   string     `json:"certainty"`
	Urgency     string     `json:"urgency"`
	Status      string     `json:"status"`
	AreaDesc    string     `json:"areaDesc"`
	Effective   string     `json:"effective"`
	Expires     string     `json:"expires"`
	Geocode     nwsGeocode `json:"geocode"`
}

type nwsGeocode struct {
	SAME []string `json:"SAME"`
}

type nwsGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Default coordinates when an alert carries no geometry: roughly the center
// of the island chain.
const (
	nwsFallbackLat = 20.7984
	nwsFallbackLon = -156.3319

	nwsDefaultRadiusMiles = 50
)

// sameCodeCounties maps NWS SAME geocodes to county names.
var sameCodeCounties = map[string]string{
	"015001": "Hawaii County",
	"015003": "Honolulu County",
	"015005": "Kalawao County",
	"015007": "Kauai County",
	"015009": "Maui County",
}

// nwsCategories maps NWS event names to canonical categories. Unlisted
// events fall back to "other".
var nwsCategories = map[string]models.AlertCategory{
	"Hurricane Warning":           models.CategoryHurricane,
	"Hurricane Watch":             models.CategoryHurricane,
	"Tropical Storm Warning":      models.CategoryHurricane,
	"Tropical Storm Watch":        models.CategoryHurricane,
	"High Wind Warning":           models.CategoryWeather,
	"Wind Advisory":               models.CategoryWeather,
	"Severe Thunderstorm Warning": models.CategoryWeather,
	"Severe Thunderstorm Watch":   models.CategoryWeather,
	"Heat Advisory":               models.CategoryWeather,
	"Excessive Heat Warning":      models.CategoryWeather,
	"Dense Fog Advisory":          models.CategoryWeather,
	"Flash Flood Warning":         models.CategoryFlood,
	"Flash Flood Watch":           models.CategoryFlood,
	"Flood Warning":               models.CategoryFlood,
	"Flood Advisory":              models.CategoryFlood,
	"Coastal Flood Warning":       models.CategoryFlood,
	"Red Flag Warning":            models.CategoryWildfire,
	"Fire Weather Watch":          models.CategoryWildfire,
	"Tsunami Warning":             models.CategoryTsunami,
	"Tsunami Advisory":            models.CategoryTsunami,
	"Tsunami Watch":               models.CategoryTsunami,
	"High Surf Warning":           models.CategoryMarine,
	"High Surf Advisory":          models.CategoryMarine,
	"Small Craft Advisory":        models.CategoryMarine,
	"Marine Weather Statement":    models.CategoryMarine,
}

// NWSSource ingests active National Weather Service alerts.
type NWSSource struct {
	url string
}

func NewNWSSource(url string) *NWSSource {
	return &NWSSource{url: url}
}

func (s *NWSSource) Name() string { return "nws" }

func (s *NWSSource) FetchAlerts(ctx context.Context) ([]*models.Alert, error) {
	var data nwsResponse
	if err := getJSON(ctx, s.url, &data); err != nil {
		return nil, err
	}

	alerts := make([]*models.Alert, 0, len(data.Features))
	for _, f := range data.Features {
		a, err := convertNWSFeature(f)
		if err != nil {
			slog.Warn("skipping NWS record", "id", f.Properties.ID, "error", err)
			continue
		}
		if a == nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// convertNWSFeature maps one NWS feature to a canonical alert. Non-actual
// records (tests, exercises, drafts) return nil.
func convertNWSFeature(f nwsFeature) (*models.Alert, error) {
	props := f.Properties
	if props.Status != "Actual" {
		return nil, nil
	}

	polygon := parseNWSPolygon(f.Geometry)
	center := nwsCenter(polygon)

	effective, err := parseNWSTime(props.Effective)
	if err != nil {
		return nil, err
	}

	var expires *time.Time
	if props.Expires != "" {
		t, err := parseNWSTime(props.Expires)
		if err != nil {
			return nil, err
		}
		expires = &t
	}

	title := props.Headline
	if title == "" {
		title = props.Event
	}
	if title == "" {
		title = "Weather Alert"
	}

	lat, lon := center.Lat, center.Lon
	return &models.Alert{
		ExternalID:      "nws_" + props.ID,
		Title:           title,
		Description:     props.Description,
		Severity:        nwsSeverity(props.Severity, props.Certainty),
		Category:        nwsCategory(props.Event),
		LocationName:    props.AreaDesc,
		Latitude:        &lat,
		Longitude:       &lon,
		RadiusMiles:     nwsDefaultRadiusMiles,
		Polygon:         polygon,
		AffectedRegions: nwsCounties(props),
		EffectiveTime:   effective,
		ExpiresTime:     expires,
		Source:          "National Weather Service",
		SourceURL:       props.ID,
		Metadata: map[string]any{
			"event":       props.Event,
			"urgency":     props.Urgency,
			"certainty":   props.Certainty,
			"instruction": props.Instruction,
		},
		Active: true,
	}, nil
}

// nwsSeverity maps NWS severity to the canonical enum, downgrading one level
// when certainty is low. Extreme alerts are never downgraded.
func nwsSeverity(severity, certainty string) models.AlertSeverity {
	var mapped models.AlertSeverity
	switch severity {
	case "Extreme":
		mapped = models.SeverityExtreme
	case "Severe":
		mapped = models.SeveritySevere
	case "Moderate":
		mapped = models.SeverityModerate
	default:
		mapped = models.SeverityMinor
	}

	if (certainty == "Unlikely" || certainty == "Possible") && mapped != models.SeverityExtreme {
		switch mapped {
		case models.SeveritySevere:
			mapped = models.SeverityModerate
		case models.SeverityModerate:
			mapped = models.SeverityMinor
		}
	}

	return mapped
}

func nwsCategory(event string) models.AlertCategory {
	if c, ok := nwsCategories[event]; ok {
		return c
	}
	return models.CategoryOther
}

// parseNWSPolygon extracts the outer ring of a Polygon geometry. Any other
// geometry type, or a malformed ring, yields nil.
func parseNWSPolygon(g *nwsGeometry) geo.Polygon {
	if g == nil || g.Type != "Polygon" {
		return nil
	}

	var rings [][][]float64
	if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
		slog.Warn("unparseable NWS polygon geometry", "error", err)
		return nil
	}

	outer := rings[0]
	polygon := make(geo.Polygon, 0, len(outer))
	for _, c := range outer {
		if len(c) < 2 {
			continue
		}
		polygon = append(polygon, geo.Point{Lat: c[1], Lon: c[0]})
	}
	if !polygon.Valid() {
		return nil
	}
	return polygon
}

func nwsCenter(polygon geo.Polygon) geo.Point {
	if polygon.Valid() {
		return polygon.Centroid()
	}
	return geo.Point{Lat: nwsFallbackLat, Lon: nwsFallbackLon}
}

// nwsCounties derives the affected-region list from the area description and
// SAME geocodes.
func nwsCounties(props nwsProperties) []string {
	seen := make(map[string]bool)
	var counties []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			counties = append(counties, name)
		}
	}

	area := strings.ToUpper(props.AreaDesc)
	for _, name := range []string{"Hawaii", "Maui", "Honolulu", "Kauai", "Kalawao"} {
		if strings.Contains(area, strings.ToUpper(name)) {
			add(name + " County")
		}
	}
	for _, code := range props.Geocode.SAME {
		if name, ok := sameCodeCounties[code]; ok {
			add(name)
		}
	}

	if len(counties) == 0 {
		counties = []string{"Hawaii County"}
	}
	return counties
}

func parseNWSTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
