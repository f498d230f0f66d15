// Package ident implements the work-unit identity used throughout the
// ingestion core: the tuple (site, year, doy, hour) and its textual form.
package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// DailyHour is the hour-letter denoting a whole-day aggregation.
const DailyHour = '0'

// Ident identifies one work unit: an hour (or a whole day) of
// observation data for a single 9-character station.
type Ident struct {
	Site string // 9-character uppercase station identifier
	Year int    // 4-digit year
	Doy  int    // day-of-year, 1..366
	Hour byte   // 'a'..'x' or '0' for daily
}

// New builds an Ident, validating the site length and hour range.
func New(site string, year, doy int, hour byte) (Ident, error) {
	id := Ident{Site: strings.ToUpper(site), Year: year, Doy: doy, Hour: hour}
	return id, id.Validate()
}

// Validate reports whether id satisfies the identity normalization
// invariant: a 9-character site and an hour in {'a'..'x', '0'}.
func (id Ident) Validate() error {
	if len(id.Site) != 9 {
		return fmt.Errorf("ident: site must be 9 chars, got %q", id.Site)
	}
	if id.Doy < 1 || id.Doy > 366 {
		return fmt.Errorf("ident: doy out of range: %d", id.Doy)
	}
	if id.Hour != DailyHour && (id.Hour < 'a' || id.Hour > 'x') {
		return fmt.Errorf("ident: invalid hour letter: %q", id.Hour)
	}
	return nil
}

// IsDaily reports whether id is the day-job (hour '0').
func (id Ident) IsDaily() bool {
	return id.Hour == DailyHour
}

// Day returns the (site, year, doy) identity of the day id belongs to.
func (id Ident) Day() Ident {
	return Ident{Site: id.Site, Year: id.Year, Doy: id.Doy, Hour: DailyHour}
}

// String returns the canonical textual identity "<site>-<year>-<doy>-<hour>".
func (id Ident) String() string {
	return fmt.Sprintf("%s-%d-%03d-%c", id.Site, id.Year, id.Doy, id.Hour)
}

// HourLetter converts a UTC hour in [0,23] to its RINEX hour letter.
// Hour 24, the legacy daily convention, maps to the literal '0'.
func HourLetter(hh int) (byte, error) {
	if hh == 24 {
		return DailyHour, nil
	}
	if hh < 0 || hh > 23 {
		return 0, fmt.Errorf("ident: hour out of range: %d", hh)
	}
	return byte('a' + hh), nil
}

// HourFromLetter converts a RINEX hour letter back to a UTC hour in
// [0,23], or 24 for the daily letter '0'.
func HourFromLetter(c byte) (int, error) {
	if c == DailyHour {
		return 24, nil
	}
	if c < 'a' || c > 'x' {
		return 0, fmt.Errorf("ident: invalid hour letter: %q", c)
	}
	return int(c - 'a'), nil
}

// NormalizeYear converts a 2-digit year to its 4-digit form: values
// >= 80 map to 1900+yy, otherwise 2000+yy.
func NormalizeYear(yy int) int {
	if yy >= 80 {
		return 1900 + yy
	}
	return 2000 + yy
}

// ParseHourDigits parses a 2-digit string as a UTC hour, tolerating the
// single-digit "0" daily marker used by legacy short filenames.
func ParseHourDigits(s string) (int, error) {
	hh, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("ident: bad hour digits %q: %w", s, err)
	}
	return hh, nil
}
