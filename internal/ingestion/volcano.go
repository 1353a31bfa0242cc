package ingestion

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// monitoredVolcano is one of the volcanoes the observatory adapter watches.
type monitoredVolcano struct {
	name     string
	lat, lon float64
	counties []string
}

var monitoredVolcanoes = []monitoredVolcano{
	{"Kilauea", 19.4069, -155.2834, []string{"Hawaii County"}},
	{"Mauna Loa", 19.4721, -155.5922, []string{"Hawaii County"}},
	{"Hualalai", 19.6920, -155.8700, []string{"Hawaii County"}},
	{"Mauna Kea", 19.8207, -155.4680, []string{"Hawaii County"}},
	{"Haleakala", 20.7097, -156.2533, []string{"Maui County"}},
}

// volcanoEntry is one elevated-volcano record from the observatory feed.
type volcanoEntry struct {
	VolcanoName string  `json:"volcano_name_appended"`
	ColorCode   string  `json:"color_code"` // GREEN | YELLOW | ORANGE | RED
	AlertLevel  string  `json:"alert_level"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	NoticeURL   string  `json:"notice_url"`
}

// QuakeProvider supplies recent earthquake epicenters. The volcano source
// uses them to detect swarms near a monitored volcano without refetching the
// seismic feed.
type QuakeProvider interface {
	RecentEpicenters() []geo.Point
}

// VolcanoSource ingests observatory color codes and escalates them when an
// earthquake swarm is detected near a monitored volcano.
type VolcanoSource struct {
	url    string
	quakes QuakeProvider // optional
	clock  func() time.Time
}

func NewVolcanoSource(url string, quakes QuakeProvider) *VolcanoSource {
	return &VolcanoSource{
		url:    url,
		quakes: quakes,
		clock:  time.Now,
	}
}

func (s *VolcanoSource) Name() string { return "volcano" }

func (s *VolcanoSource) FetchAlerts(ctx context.Context) ([]*models.Alert, error) {
	var entries []volcanoEntry
	if err := getJSON(ctx, s.url, &entries); err != nil {
		return nil, err
	}

	now := s.clock().UTC()

	// Index the feed's color codes by monitored volcano.
	codes := make(map[string]volcanoEntry)
	for _, e := range entries {
		for _, v := range monitoredVolcanoes {
			if strings.Contains(strings.ToLower(e.VolcanoName), strings.ToLower(v.name)) {
				codes[v.name] = e
			}
		}
	}

	var swarms map[string]int
	if s.quakes != nil {
		swarms = s.countSwarms()
	}

	var alerts []*models.Alert
	for _, v := range monitoredVolcanoes {
		color := "GREEN"
		var sourceURL string
		if e, ok := codes[v.name]; ok {
			color = strings.ToUpper(e.ColorCode)
			sourceURL = e.NoticeURL
		}

		swarmCount := swarms[v.name]
		color = escalateForSwarm(color, swarmCount)

		// Quiet volcanoes produce no alert.
		if color == "GREEN" || color == "" {
			continue
		}

		alerts = append(alerts, volcanoAlert(v, color, swarmCount, sourceURL, now))
	}

	return alerts, nil
}

// countSwarms tallies recent epicenters within roughly 0.1 degrees of each
// monitored volcano.
func (s *VolcanoSource) countSwarms() map[string]int {
	counts := make(map[string]int)
	for _, p := range s.quakes.RecentEpicenters() {
		for _, v := range monitoredVolcanoes {
			if math.Abs(p.Lat-v.lat) < 0.1 && math.Abs(p.Lon-v.lon) < 0.1 {
				counts[v.name]++
			}
		}
	}
	return counts
}

// escalateForSwarm raises the color code when earthquake activity near the
// volcano suggests unrest: 10+ quakes in the window mean at least YELLOW,
// 20+ at least ORANGE. The observatory code is never lowered.
func escalateForSwarm(color string, quakeCount int) string {
	floor := "GREEN"
	switch {
	case quakeCount >= 20:
		floor = "ORANGE"
	case quakeCount >= 10:
		floor = "YELLOW"
	}
	if volcanoColorRank(floor) > volcanoColorRank(color) {
		return floor
	}
	return color
}

func volcanoColorRank(color string) int {
	switch color {
	case "RED":
		return 4
	case "ORANGE":
		return 3
	case "YELLOW":
		return 2
	default:
		return 1
	}
}

func volcanoSeverity(color string) models.AlertSeverity {
	switch color {
	case "RED":
		return models.SeverityExtreme
	case "ORANGE":
		return models.SeveritySevere
	case "YELLOW":
		return models.SeverityModerate
	default:
		return models.SeverityMinor
	}
}

func volcanoLevelName(color string) string {
	switch color {
	case "RED":
		return "Warning"
	case "ORANGE":
		return "Watch"
	case "YELLOW":
		return "Advisory"
	default:
		return "Normal"
	}
}

func volcanoAlert(v monitoredVolcano, color string, swarmCount int, sourceURL string, now time.Time) *models.Alert {
	radius := 25.0
	if color == "ORANGE" || color == "RED" {
		radius = 50.0
	}

	description := fmt.Sprintf("%s is at %s level.", v.name, volcanoLevelName(color))
	if swarmCount > 0 {
		description += fmt.Sprintf(" %d earthquakes detected near the volcano in the last monitoring window.", swarmCount)
	}
	switch color {
	case "RED":
		description += " Eruption imminent or in progress. Follow evacuation orders immediately."
	case "ORANGE":
		description += " Increased volcanic activity detected. Be prepared to evacuate if conditions worsen."
	case "YELLOW":
		description += " Elevated volcanic unrest. Stay informed and be prepared."
	}

	lat, lon := v.lat, v.lon
	expires := now.Add(24 * time.Hour)

	// Daily id so repeated syncs of a persisting condition update in place.
	externalID := fmt.Sprintf("volcano_%s_%s",
		strings.ReplaceAll(strings.ToLower(v.name), " ", "_"), now.Format("20060102"))

	return &models.Alert{
		ExternalID:      externalID,
		Title:           fmt.Sprintf("Volcano Alert: %s - %s", v.name, volcanoLevelName(color)),
		Description:     description,
		Severity:        volcanoSeverity(color),
		Category:        models.CategoryVolcano,
		LocationName:    v.name + " Volcano",
		Latitude:        &lat,
		Longitude:       &lon,
		RadiusMiles:     radius,
		AffectedRegions: v.counties,
		EffectiveTime:   now,
		ExpiresTime:     &expires,
		Source:          "USGS Hawaiian Volcano Observatory",
		SourceURL:       sourceURL,
		Metadata: map[string]any{
			"volcano_name":     v.name,
			"color_code":       color,
			"earthquake_count": swarmCount,
		},
		Active: true,
	}
}
