package ballot

import (
	"encoding/json"
	"fmt"
)

// Location is the single normalized coordinate shape stored with a ballot.
// Inbound payloads vary (older clients send _lat/_long), so normalization
// happens once, in ParseLocation at the submission boundary; everything past
// that boundary sees only this type.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are within range.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// locationPayload covers both wire shapes clients send.
type locationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"_lat"`
	Long      *float64 `json:"_long"`
}

// ParseLocation normalizes a raw location document into a Location. A nil or
// empty document means no location was reported and returns (nil, nil).
// Mixed or partial shapes are rejected.
func ParseLocation(raw json.RawMessage) (*Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var p locationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid location document: %w", err)
	}

	var loc Location
	switch {
	case p.Latitude != nil && p.Longitude != nil:
		loc = Location{Latitude: *p.Latitude, Longitude: *p.Longitude}
	case p.Lat != nil && p.Long != nil:
		loc = Location{Latitude: *p.Lat, Longitude: *p.Long}
	default:
		return nil, fmt.Errorf("location requires latitude/longitude or _lat/_long pairs")
	}

	if !loc.Valid() {
		return nil, fmt.Errorf("location %f,%f out of range", loc.Latitude, loc.Longitude)
	}

	return &loc, nil
}
