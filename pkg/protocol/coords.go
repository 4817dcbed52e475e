package protocol

import "math"

// Hemisphere is the N/S/E/W indicator adjacent to a raw coordinate field.
type Hemisphere byte

const (
	HemisphereNorth Hemisphere = 'N'
	HemisphereSouth Hemisphere = 'S'
	HemisphereEast  Hemisphere = 'E'
	HemisphereWest  Hemisphere = 'W'
)

func parseHemisphere(field, value string) (Hemisphere, error) {
	if len(value) != 1 {
		return 0, newDecodeErr(field, value, "must be a single character")
	}
	switch Hemisphere(value[0]) {
	case HemisphereNorth, HemisphereSouth, HemisphereEast, HemisphereWest:
		return Hemisphere(value[0]), nil
	default:
		return 0, newDecodeErr(field, value, "unknown hemisphere")
	}
}

// parseLatitude converts a ddmm.mmmm raw field paired with an N/S
// hemisphere indicator into signed WGS84 decimal degrees.
func parseLatitude(field, value, hemiField, hemiValue string) (float64, error) {
	hemi, err := parseHemisphere(hemiField, hemiValue)
	if err != nil {
		return 0, err
	}
	if hemi != HemisphereNorth && hemi != HemisphereSouth {
		return 0, newDecodeErr(hemiField, hemiValue, "latitude hemisphere must be N or S")
	}
	deg, err := toDecimalDegrees(field, value)
	if err != nil {
		return 0, err
	}
	if hemi == HemisphereSouth {
		deg = -deg
	}
	return deg, nil
}

// parseLongitude converts a dddmm.mmmm raw field paired with an E/W
// hemisphere indicator into signed WGS84 decimal degrees.
func parseLongitude(field, value, hemiField, hemiValue string) (float64, error) {
	hemi, err := parseHemisphere(hemiField, hemiValue)
	if err != nil {
		return 0, err
	}
	if hemi != HemisphereEast && hemi != HemisphereWest {
		return 0, newDecodeErr(hemiField, hemiValue, "longitude hemisphere must be E or W")
	}
	deg, err := toDecimalDegrees(field, value)
	if err != nil {
		return 0, err
	}
	if hemi == HemisphereWest {
		deg = -deg
	}
	return deg, nil
}

// toDecimalDegrees implements deg+min/60 = floor(raw/100) + (raw mod 100)/60,
// rejecting minutes outside [0, 60).
func toDecimalDegrees(field, value string) (float64, error) {
	raw, err := parseFloat(field, value)
	if err != nil {
		return 0, err
	}
	if raw < 0 {
		return 0, newDecodeErr(field, value, "coordinate must not be negative")
	}
	degrees := math.Floor(raw / 100)
	minutes := raw - degrees*100
	if minutes < 0 || minutes >= 60 {
		return 0, newDecodeErr(field, value, "minutes out of range [0,60)")
	}
	return degrees + minutes/60, nil
}
