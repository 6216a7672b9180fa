package common

import (
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"strconv"
	"strings"
)

// ParseBound parses a bounding box in the format "minLon,minLat,maxLon,maxLat".
func ParseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.Errorf("Bounding box '%s' must have four values: minLon,minLat,maxLon,maxLat", s)
	}

	var coordinates [4]float64
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, errors.Wrapf(err, "Invalid coordinate '%s' in bounding box", part)
		}
		coordinates[i] = value
	}

	bound := orb.Bound{
		Min: orb.Point{coordinates[0], coordinates[1]},
		Max: orb.Point{coordinates[2], coordinates[3]},
	}
	if bound.Min.Lon() > bound.Max.Lon() || bound.Min.Lat() > bound.Max.Lat() {
		return orb.Bound{}, errors.Errorf("Minimum of bounding box '%s' is larger than its maximum", s)
	}
	return bound, nil
}
