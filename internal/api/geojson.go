package api

import (
	"github.com/kealoha/emergency-alert-hub/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

func toGeoJSON(alerts []models.Alert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))

	for _, a := range alerts {
		f := Feature{
			Type:     "Feature",
			Geometry: toGeometry(&a),
			Properties: map[string]any{
				"id":           a.ID,
				"external_id":  a.ExternalID,
				"title":        a.Title,
				"description":  a.Description,
				"severity":     string(a.Severity),
				"category":     string(a.Category),
				"location":     a.LocationName,
				"radius_miles": a.RadiusMiles,
				"regions":      a.AffectedRegions,
				"source":       a.Source,
				"effective":    a.EffectiveTime,
				"expires":      a.ExpiresTime,
				"active":       a.Active,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// toGeometry emits a Polygon when one is present, otherwise the point
// location. GeoJSON rings are closed, so the first vertex repeats at the end.
func toGeometry(a *models.Alert) Geometry {
	if a.Polygon.Valid() {
		ring := make([][]float64, 0, len(a.Polygon)+1)
		for _, p := range a.Polygon {
			ring = append(ring, []float64{p.Lon, p.Lat})
		}
		ring = append(ring, []float64{a.Polygon[0].Lon, a.Polygon[0].Lat})
		return Geometry{Type: "Polygon", Coordinates: [][][]float64{ring}}
	}

	var lat, lon float64
	if a.Latitude != nil && a.Longitude != nil {
		lat, lon = *a.Latitude, *a.Longitude
	}
	return Geometry{Type: "Point", Coordinates: []float64{lon, lat}}
}
