package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/geo"
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUSGSSource_FetchAlerts(t *testing.T) {
	// Three quakes: a major one, a sub-threshold microquake, and a moderate
	// one. The microquake produces no alert but still counts as an epicenter.
	body := `{"features": [
		{"id": "big1", "properties": {"mag": 7.2, "place": "10km S of Volcano, Hawaii", "time": 1700000000000, "title": "M 7.2 - 10km S of Volcano, Hawaii", "url": "https://example.org/big1", "felt": 1200, "sig": 900, "tsunami": 1},
		 "geometry": {"coordinates": [-155.28, 19.38, 8.0]}},
		{"id": "tiny1", "properties": {"mag": 2.0, "place": "near Pahala", "time": 1700000100000},
		 "geometry": {"coordinates": [-155.48, 19.20, 31.0]}},
		{"id": "mid1", "properties": {"mag": 5.5, "place": "offshore Maui", "time": 1700000200000, "title": "M 5.5 - offshore Maui"},
		 "geometry": {"coordinates": [-156.40, 20.70, 12.0]}}
	]}`
	srv := jsonServer(t, body)

	src := NewUSGSSource(srv.URL)
	alerts, err := src.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts (microquake filtered), got %d", len(alerts))
	}

	big := alerts[0]
	if big.ExternalID != "usgs_big1" {
		t.Errorf("expected external id usgs_big1, got %s", big.ExternalID)
	}
	if big.Severity != models.SeverityExtreme {
		t.Errorf("M7.2 should be extreme, got %s", big.Severity)
	}
	if big.RadiusMiles != 200 {
		t.Errorf("M7.2 should carry a 200 mile radius, got %.0f", big.RadiusMiles)
	}
	if big.Category != models.CategoryEarthquake {
		t.Errorf("expected earthquake category, got %s", big.Category)
	}
	wantExpiry := time.UnixMilli(1700000000000).UTC().Add(24 * time.Hour)
	if big.ExpiresTime == nil || !big.ExpiresTime.Equal(wantExpiry) {
		t.Errorf("M7.2 should stay active 24h, got %v", big.ExpiresTime)
	}
	// Shallow major quake carries the tsunami note.
	if want := "TSUNAMI POTENTIAL"; !strings.Contains(big.Description, want) {
		t.Errorf("expected %q in description: %s", want, big.Description)
	}
	if len(big.AffectedRegions) == 0 {
		t.Error("expected affected regions for a Big Island epicenter")
	}

	mid := alerts[1]
	if mid.Severity != models.SeverityModerate {
		t.Errorf("M5.5 should be moderate, got %s", mid.Severity)
	}
	if mid.RadiusMiles != 50 {
		t.Errorf("M5.5 should carry a 50 mile radius, got %.0f", mid.RadiusMiles)
	}

	// All three epicenters cached, including the filtered microquake.
	if got := len(src.RecentEpicenters()); got != 3 {
		t.Errorf("expected 3 cached epicenters, got %d", got)
	}
}

func TestQuakeMappings(t *testing.T) {
	cases := []struct {
		mag      float64
		severity models.AlertSeverity
		radius   float64
		active   time.Duration
	}{
		{7.5, models.SeverityExtreme, 200, 24 * time.Hour},
		{6.3, models.SeveritySevere, 100, 24 * time.Hour},
		{5.1, models.SeverityModerate, 50, 12 * time.Hour},
		{4.2, models.SeverityMinor, 25, 6 * time.Hour},
		{3.0, models.SeverityMinor, 10, 6 * time.Hour},
	}
	for _, c := range cases {
		if got := quakeSeverity(c.mag); got != c.severity {
			t.Errorf("quakeSeverity(%.1f) = %s, want %s", c.mag, got, c.severity)
		}
		if got := quakeRadiusMiles(c.mag); got != c.radius {
			t.Errorf("quakeRadiusMiles(%.1f) = %.0f, want %.0f", c.mag, got, c.radius)
		}
		if got := quakeActiveFor(c.mag); got != c.active {
			t.Errorf("quakeActiveFor(%.1f) = %v, want %v", c.mag, got, c.active)
		}
	}
}

func TestNWSSource_FetchAlerts(t *testing.T) {
	body := `{"features": [
		{"properties": {
			"id": "urn:oid:2.49.0.1.840.0.abc",
			"event": "High Surf Warning",
			"headline": "High Surf Warning issued for north facing shores",
			"description": "Surf heights 25 to 35 feet.",
			"severity": "Severe",
			"certainty": "Observed",
			"urgency": "Expected",
			"status": "Actual",
			"areaDesc": "Maui Windward West; Kauai North",
			"effective": "2023-11-14T10:00:00-10:00",
			"expires": "2023-11-15T06:00:00-10:00",
			"geocode": {"SAME": ["015009", "015007"]}
		}, "geometry": {"type": "Polygon", "coordinates": [[[-156.7, 20.5], [-156.2, 20.5], [-156.2, 21.0], [-156.7, 21.0], [-156.7, 20.5]]]}},
		{"properties": {
			"id": "urn:oid:2.49.0.1.840.0.test",
			"event": "Tsunami Warning",
			"severity": "Extreme",
			"certainty": "Observed",
			"status": "Test",
			"effective": "2023-11-14T10:00:00-10:00"
		}}
	]}`
	srv := jsonServer(t, body)

	src := NewNWSSource(srv.URL)
	alerts, err := src.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert (test record skipped), got %d", len(alerts))
	}

	a := alerts[0]
	if a.ExternalID != "nws_urn:oid:2.49.0.1.840.0.abc" {
		t.Errorf("unexpected external id: %s", a.ExternalID)
	}
	if a.Severity != models.SeveritySevere {
		t.Errorf("expected severe, got %s", a.Severity)
	}
	if a.Category != models.CategoryMarine {
		t.Errorf("High Surf Warning should map to marine, got %s", a.Category)
	}
	if len(a.Polygon) != 5 {
		t.Errorf("expected 5 polygon vertices, got %d", len(a.Polygon))
	}
	// Centroid of the ring, not the fallback coordinates.
	if a.Latitude == nil || *a.Latitude < 20.5 || *a.Latitude > 21.0 {
		t.Errorf("center latitude should fall inside the polygon, got %v", a.Latitude)
	}
	if a.RadiusMiles != nwsDefaultRadiusMiles {
		t.Errorf("expected default radius, got %.0f", a.RadiusMiles)
	}

	wantRegions := map[string]bool{"Maui County": true, "Kauai County": true}
	for _, r := range a.AffectedRegions {
		delete(wantRegions, r)
	}
	if len(wantRegions) != 0 {
		t.Errorf("missing regions %v in %v", wantRegions, a.AffectedRegions)
	}
}

func TestNWSSeverity_CertaintyDowngrade(t *testing.T) {
	cases := []struct {
		severity  string
		certainty string
		want      models.AlertSeverity
	}{
		{"Extreme", "Observed", models.SeverityExtreme},
		{"Extreme", "Possible", models.SeverityExtreme}, // never downgraded
		{"Severe", "Likely", models.SeveritySevere},
		{"Severe", "Possible", models.SeverityModerate},
		{"Severe", "Unlikely", models.SeverityModerate},
		{"Moderate", "Possible", models.SeverityMinor},
		{"Minor", "Unlikely", models.SeverityMinor},
		{"", "Observed", models.SeverityMinor},
	}
	for _, c := range cases {
		if got := nwsSeverity(c.severity, c.certainty); got != c.want {
			t.Errorf("nwsSeverity(%q, %q) = %s, want %s", c.severity, c.certainty, got, c.want)
		}
	}
}

func TestNWSFeature_NoGeometryFallback(t *testing.T) {
	f := nwsFeature{Properties: nwsProperties{
		ID:        "xyz",
		Event:     "Heat Advisory",
		Severity:  "Minor",
		Status:    "Actual",
		Effective: "2023-11-14T10:00:00-10:00",
	}}
	a, err := convertNWSFeature(f)
	if err != nil {
		t.Fatalf("convertNWSFeature failed: %v", err)
	}
	if *a.Latitude != nwsFallbackLat || *a.Longitude != nwsFallbackLon {
		t.Errorf("expected fallback coordinates, got %v,%v", *a.Latitude, *a.Longitude)
	}
	if a.AffectedRegions[0] != "Hawaii County" {
		t.Errorf("expected default region, got %v", a.AffectedRegions)
	}
	if a.Category != models.CategoryWeather {
		t.Errorf("Heat Advisory should map to weather, got %s", a.Category)
	}
}

type stubQuakes struct {
	points []geo.Point
}

func (s stubQuakes) RecentEpicenters() []geo.Point { return s.points }

func TestVolcanoSource_FetchAlerts(t *testing.T) {
	body := `[
		{"volcano_name_appended": "Kilauea Volcano", "color_code": "ORANGE", "alert_level": "WATCH", "latitude": 19.4069, "longitude": -155.2834, "notice_url": "https://example.org/kilauea"},
		{"volcano_name_appended": "Mauna Loa", "color_code": "GREEN", "alert_level": "NORMAL", "latitude": 19.4721, "longitude": -155.5922}
	]`
	srv := jsonServer(t, body)

	src := NewVolcanoSource(srv.URL, nil)
	fixed := time.Date(2023, 11, 14, 8, 0, 0, 0, time.UTC)
	src.clock = func() time.Time { return fixed }

	alerts, err := src.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert (green volcanoes quiet), got %d", len(alerts))
	}

	a := alerts[0]
	if a.ExternalID != "volcano_kilauea_20231114" {
		t.Errorf("unexpected external id: %s", a.ExternalID)
	}
	if a.Severity != models.SeveritySevere {
		t.Errorf("ORANGE should be severe, got %s", a.Severity)
	}
	if a.RadiusMiles != 50 {
		t.Errorf("ORANGE should carry a 50 mile radius, got %.0f", a.RadiusMiles)
	}
	if a.ExpiresTime == nil || !a.ExpiresTime.Equal(fixed.Add(24*time.Hour)) {
		t.Errorf("expected 24h expiry, got %v", a.ExpiresTime)
	}
	if a.Category != models.CategoryVolcano {
		t.Errorf("expected volcano category, got %s", a.Category)
	}
}

func TestVolcanoSource_SwarmEscalation(t *testing.T) {
	// Empty feed: every volcano is GREEN until seismicity says otherwise.
	srv := jsonServer(t, `[]`)

	// Twelve quakes clustered at Mauna Loa's summit.
	var cluster []geo.Point
	for i := 0; i < 12; i++ {
		cluster = append(cluster, geo.Point{Lat: 19.47, Lon: -155.59})
	}

	src := NewVolcanoSource(srv.URL, stubQuakes{points: cluster})
	alerts, err := src.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 swarm-escalated alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Severity != models.SeverityModerate {
		t.Errorf("10+ quake swarm should floor at YELLOW (moderate), got %s", a.Severity)
	}
	if a.Metadata["earthquake_count"] != 12 {
		t.Errorf("expected swarm count in metadata, got %v", a.Metadata["earthquake_count"])
	}
}

func TestEscalateForSwarm(t *testing.T) {
	cases := []struct {
		color string
		count int
		want  string
	}{
		{"GREEN", 0, "GREEN"},
		{"GREEN", 10, "YELLOW"},
		{"GREEN", 20, "ORANGE"},
		{"YELLOW", 5, "YELLOW"},
		{"YELLOW", 25, "ORANGE"},
		{"RED", 25, "RED"}, // observatory code is never lowered
		{"ORANGE", 12, "ORANGE"},
	}
	for _, c := range cases {
		if got := escalateForSwarm(c.color, c.count); got != c.want {
			t.Errorf("escalateForSwarm(%s, %d) = %s, want %s", c.color, c.count, got, c.want)
		}
	}
}
