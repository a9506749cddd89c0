package rules

import (
	"strings"
	"time"

	"home-autopilot/internal/live"
)

// Canonical orientations.
const (
	OrientationNorth     = "north"
	OrientationSouth     = "south"
	OrientationEast      = "east"
	OrientationWest      = "west"
	OrientationNorthEast = "north_east"
	OrientationNorthWest = "north_west"
	OrientationSouthEast = "south_east"
	OrientationSouthWest = "south_west"
	OrientationOther     = "other"
)

// Time-of-day windows for the PV plausibility checks.
const (
	WindowMorning   = "morning"
	WindowMidday    = "midday"
	WindowAfternoon = "afternoon"
	WindowNight     = "night"
)

// Grouped is the aggregated PV power per cardinal direction. Diagonal
// orientations contribute half their value to each adjacent cardinal.
type Grouped struct {
	East  float64 `json:"east"`
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
}

var diacriticFolder = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

var separatorStripper = strings.NewReplacer("-", "", "_", "", " ", "", "/", "", ".", "")

// CanonicalOrientation maps free-text compass orientations to a canonical
// token. Matching is case- and diacritic-insensitive and ignores separators,
// so "Süd-Ost", "southeast" and "SO" all map to south_east. Unrecognized
// text (roof, carport, garage, ...) maps to other and stays out of the
// directional logic.
func CanonicalOrientation(orientation string) string {
	if orientation == "" {
		return OrientationOther
	}

	o := separatorStripper.Replace(diacriticFolder.Replace(strings.ToLower(orientation)))

	switch {
	case strings.Contains(o, "nordost"), strings.Contains(o, "northeast"), o == "no":
		return OrientationNorthEast
	case strings.Contains(o, "nordwest"), strings.Contains(o, "northwest"), o == "nw":
		return OrientationNorthWest
	case strings.Contains(o, "suedost"), strings.Contains(o, "southeast"), o == "so":
		return OrientationSouthEast
	case strings.Contains(o, "suedwest"), strings.Contains(o, "southwest"), o == "sw":
		return OrientationSouthWest
	case strings.Contains(o, "nord"), strings.Contains(o, "north"):
		return OrientationNorth
	case strings.Contains(o, "sued"), strings.Contains(o, "south"):
		return OrientationSouth
	case strings.Contains(o, "ost"), strings.Contains(o, "east"):
		return OrientationEast
	case strings.Contains(o, "west"):
		return OrientationWest
	}

	return OrientationOther
}

// GroupByOrientation aggregates PV source power per cardinal direction.
func GroupByOrientation(sources []live.PVDetail) Grouped {
	var grouped Grouped

	for _, src := range sources {
		switch CanonicalOrientation(src.Orientation) {
		case OrientationNorthEast:
			grouped.North += src.Value * 0.5
			grouped.East += src.Value * 0.5
		case OrientationSouthEast:
			grouped.South += src.Value * 0.5
			grouped.East += src.Value * 0.5
		case OrientationSouthWest:
			grouped.South += src.Value * 0.5
			grouped.West += src.Value * 0.5
		case OrientationNorthWest:
			grouped.North += src.Value * 0.5
			grouped.West += src.Value * 0.5
		case OrientationNorth:
			grouped.North += src.Value
		case OrientationSouth:
			grouped.South += src.Value
		case OrientationEast:
			grouped.East += src.Value
		case OrientationWest:
			grouped.West += src.Value
		}
	}

	return grouped
}

// TimeWindow classifies a wall-clock instant into the PV plausibility
// windows: [6,11) morning, [11,15) midday, [15,19) afternoon, else night.
func TimeWindow(now time.Time) string {
	hour := now.Hour()
	switch {
	case hour >= 6 && hour < 11:
		return WindowMorning
	case hour >= 11 && hour < 15:
		return WindowMidday
	case hour >= 15 && hour < 19:
		return WindowAfternoon
	}
	return WindowNight
}
