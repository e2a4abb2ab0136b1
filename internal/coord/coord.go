// Package coord converts NMEA ddmm.mmmm / dddmm.mmmm coordinates to signed
// decimal degrees.
package coord

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	latitudeDegreeDigits  = 2
	longitudeDegreeDigits = 3
)

// DecodeError is returned when a coordinate field can't be converted.
type DecodeError struct {
	Field string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s %q: %v", e.Field, e.Raw, e.Err)
	}
	return fmt.Sprintf("decode %s %q", e.Field, e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeLatitude converts ddmm.mmmm plus N/S to decimal degrees. South is
// negative.
func DecodeLatitude(raw, hemisphere string) (float64, error) {
	return decode("latitude", raw, hemisphere, latitudeDegreeDigits, "N", "S")
}

// DecodeLongitude converts dddmm.mmmm plus E/W to decimal degrees. West is
// negative.
func DecodeLongitude(raw, hemisphere string) (float64, error) {
	return decode("longitude", raw, hemisphere, longitudeDegreeDigits, "E", "W")
}

func decode(field, raw, hemisphere string, width int, positive, negative string) (float64, error) {
	raw = strings.TrimSpace(raw)
	hemisphere = strings.ToUpper(strings.TrimSpace(hemisphere))

	if hemisphere != positive && hemisphere != negative {
		return 0, &DecodeError{Field: field, Raw: raw, Err: fmt.Errorf("hemisphere %q not one of %s/%s", hemisphere, positive, negative)}
	}
	if len(raw) <= width {
		return 0, &DecodeError{Field: field, Raw: raw, Err: fmt.Errorf("need more than %d characters", width)}
	}

	deg, err := strconv.ParseUint(raw[:width], 10, 16)
	if err != nil {
		return 0, &DecodeError{Field: field, Raw: raw, Err: err}
	}
	minutes, err := strconv.ParseFloat(raw[width:], 64)
	if err != nil {
		return 0, &DecodeError{Field: field, Raw: raw, Err: err}
	}
	if minutes < 0 || minutes >= 60 {
		return 0, &DecodeError{Field: field, Raw: raw, Err: fmt.Errorf("minutes %v out of range", minutes)}
	}

	v := float64(deg) + minutes/60
	if hemisphere == negative {
		v = -v
	}
	return v, nil
}
