package visit

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/promise4all/visit-management/internal/db"
)

// Geolocation is a latitude/longitude pair.
type Geolocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseGeolocation accepts a JSON object, a single-quoted dict literal or
// "lat=..,lng=.." and validates the ranges.
func ParseGeolocation(raw string) (Geolocation, error) {
	canonical, ok := db.NormalizeLocation(raw)
	if !ok {
		return Geolocation{}, fmt.Errorf("unrecognised location %q", raw)
	}
	var g Geolocation
	if err := json.Unmarshal([]byte(canonical), &g); err != nil {
		return Geolocation{}, fmt.Errorf("decoding location: %w", err)
	}
	return g, nil
}

// String returns the stored form, {"lat":x,"lng":y}.
func (g Geolocation) String() string {
	b, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	return string(b)
}

// Label returns the human-readable form.
func (g Geolocation) Label() string {
	return fmt.Sprintf("Latitude: %s, Longitude: %s", num(g.Lat), num(g.Lng))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
