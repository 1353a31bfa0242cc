package ingestion

// countyBox is a coarse bounding box used to derive affected regions from a
// coordinate when the feed carries none.
type countyBox struct {
	name           string
	minLat, maxLat float64
	minLon, maxLon float64
}

var countyBoxes = []countyBox{
	{"Hawaii County", 18.9, 20.3, -156.1, -154.8},
	{"Honolulu County", 20.5, 21.5, -158.5, -157.5},
	{"Maui County", 20.5, 21.3, -157.0, -156.0},
	{"Kalawao County", 20.7, 21.0, -157.0, -156.0},
	{"Kauai County", 21.8, 22.3, -160.0, -159.0},
}

// regionsForPoint returns the counties whose box contains the coordinate,
// falling back to Hawaii County so no alert ends up region-less.
func regionsForPoint(lat, lon float64) []string {
	var regions []string
	for _, b := range countyBoxes {
		if lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon {
			regions = append(regions, b.name)
		}
	}
	if len(regions) == 0 {
		regions = []string{"Hawaii County"}
	}
	return regions
}
