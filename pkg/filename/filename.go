// Package filename recognizes the inbound upload filename dialects and
// turns them into a structured descriptor the Inbound Dispatcher and the
// Unpack Pool can act on.
package filename

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/rinex"
)

// ErrNotRecognized is returned when a basename matches none of the four
// known dialects.
var ErrNotRecognized = errors.New("filename: not recognized")

// Dialect identifies which of the four upload filename conventions a
// Descriptor was parsed from.
type Dialect int

const (
	LongRinex3 Dialect = iota
	LegacyShort
	TrimbleZip
	LeicaZip
)

func (d Dialect) String() string {
	switch d {
	case LongRinex3:
		return "septentrio-rnx3"
	case LegacyShort:
		return "septentrio-raw"
	case TrimbleZip:
		return "trinzic-zip"
	case LeicaZip:
		return "leica-zip"
	default:
		return "unknown"
	}
}

// LegacyTypeMap maps the legacy short-code file-type letter to the long
// RINEX v3 data-type abbreviation used inside a RINEX Set.
var LegacyTypeMap = map[byte]string{
	'o': "MO",
	'n': "GN",
	'g': "RN",
	'l': "EN",
	'f': "CN",
	'q': "JN",
}

// Descriptor is the structured result of parsing an inbound filename.
type Descriptor struct {
	Dialect  Dialect
	Site4    string
	Site9    string // taken from the name for long RINEX v3, otherwise site4 + "00" + the resolved country code
	Year     int
	Doy      int
	Hour     byte
	Minute   int
	FileType string // lowercased: legacy short-code letter, long RINEX v3 data type ("mo", "gn", ...), or "" for zip dialects
	Interval int    // observation interval in seconds, 0 if not encoded in the name
	IsZip    bool
}

var (
	trimbleZipPattern = regexp.MustCompile(`(?i)^([a-z0-9]{4})(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})[a-z0-9]\.zip$`)
	leicaZipPattern   = regexp.MustCompile(`(?i)^([a-z0-9]{4})(\d{3})([a-x0])(\d{2})?\.(\d{2})[a-z]\.zip$`)
)

// CountryResolver resolves a 4-character site name to its 3-character
// ISO country code when a filename dialect does not carry one itself.
// The zero value of Parse's default resolver implements the historical
// ARGI->FRO, else DNK heuristic described in the design notes; callers
// should supply a Site Catalog-backed resolver instead (see pkg/catalog).
type CountryResolver func(site4 string) (string, error)

// DefaultCountryResolver implements the latent ARGI/DNK heuristic. It
// exists only for compatibility with sites not yet known to a Site
// Catalog and should be replaced by a catalog-backed resolver in
// production configuration (see §9 design note on promoting this to an
// authoritative lookup and failing closed on unknown short names).
func DefaultCountryResolver(site4 string) (string, error) {
	if strings.EqualFold(site4, "ARGI") {
		return "FRO", nil
	}
	return "DNK", nil
}

// Parse recognizes basename against the four upload dialects and
// returns a Descriptor. resolve synthesizes a 9-character site from a
// 4-character one when the dialect does not itself carry a country
// code; pass nil to use DefaultCountryResolver.
func Parse(path string, resolve CountryResolver) (Descriptor, error) {
	if resolve == nil {
		resolve = DefaultCountryResolver
	}
	name := filepath.Base(path)

	if d, ok, err := parseLongRinex3(name); ok || err != nil {
		return d, err
	}
	// The zip dialects are tried before the legacy short one, whose
	// unanchored pattern would otherwise also match "abcd152a.19o.zip".
	if d, ok, err := parseTrimbleZip(name, resolve); ok || err != nil {
		return d, err
	}
	if d, ok, err := parseLeicaZip(name, resolve); ok || err != nil {
		return d, err
	}
	if d, ok, err := parseLegacyShort(name, resolve); ok || err != nil {
		return d, err
	}
	return Descriptor{}, ErrNotRecognized
}

func parseLongRinex3(name string) (Descriptor, bool, error) {
	res := rinex.Rnx3FileNamePattern.FindStringSubmatch(name)
	if res == nil {
		return Descriptor{}, false, nil
	}

	site4 := strings.ToUpper(res[3])
	country := strings.ToUpper(res[6])
	source := strings.ToUpper(res[7])
	_ = source
	start, err := time.Parse("20060021504", res[8])
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: bad start time: %w", name, err)
	}
	period := strings.ToUpper(res[13])
	freq := strings.ToUpper(res[14])
	dataType := strings.ToUpper(res[15])

	if start.Minute() != 0 {
		return Descriptor{}, true, fmt.Errorf("filename: %s: minute offset %d unsupported", name, start.Minute())
	}

	var hour byte
	if strings.HasPrefix(period, "01D") {
		hour = ident.DailyHour
	} else {
		hour, err = ident.HourLetter(start.Hour())
		if err != nil {
			return Descriptor{}, true, fmt.Errorf("filename: %s: %w", name, err)
		}
	}

	interval := 0
	if len(freq) >= 2 && strings.HasSuffix(freq, "S") {
		interval, _ = strconv.Atoi(freq[:len(freq)-1])
	}

	d := Descriptor{
		Dialect:  LongRinex3,
		Site4:    site4,
		Site9:    site4 + res[4] + res[5] + country,
		Year:     start.Year(),
		Doy:      start.YearDay(),
		Hour:     hour,
		FileType: strings.ToLower(dataType),
		Interval: interval,
	}
	return d, true, nil
}

func parseLegacyShort(name string, resolve CountryResolver) (Descriptor, bool, error) {
	res := rinex.Rnx2FileNamePattern.FindStringSubmatch(name)
	if res == nil {
		return Descriptor{}, false, nil
	}

	site4 := strings.ToUpper(res[2])
	doy, err := strconv.Atoi(res[3])
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: bad doy: %w", name, err)
	}
	hourChar := strings.ToLower(res[4])
	if hourChar == "" {
		return Descriptor{}, true, fmt.Errorf("filename: %s: missing hour letter", name)
	}
	hour := hourChar[0]

	minute := 0
	if res[5] != "" {
		minute, _ = strconv.Atoi(res[5])
	}
	if minute != 0 {
		return Descriptor{}, true, fmt.Errorf("filename: %s: minute offset %d unsupported", name, minute)
	}

	yy, err := strconv.Atoi(res[6])
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: bad year: %w", name, err)
	}
	year := ident.NormalizeYear(yy)

	ftyp := strings.ToLower(res[7])

	country, err := resolve(site4)
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: unknown site %s: %w", name, site4, err)
	}

	d := Descriptor{
		Dialect:  LegacyShort,
		Site4:    site4,
		Site9:    site4 + "00" + strings.ToUpper(country),
		Year:     year,
		Doy:      doy,
		Hour:     hour,
		FileType: ftyp,
	}
	return d, true, nil
}

func parseTrimbleZip(name string, resolve CountryResolver) (Descriptor, bool, error) {
	res := trimbleZipPattern.FindStringSubmatch(name)
	if res == nil {
		return Descriptor{}, false, nil
	}

	site4 := strings.ToUpper(res[1])
	year, _ := strconv.Atoi(res[2])
	month, _ := strconv.Atoi(res[3])
	day, _ := strconv.Atoi(res[4])
	hh, _ := strconv.Atoi(res[5])
	mi, _ := strconv.Atoi(res[6])
	if mi != 0 {
		return Descriptor{}, true, fmt.Errorf("filename: %s: minute offset %d unsupported", name, mi)
	}

	start := time.Date(year, time.Month(month), day, hh, mi, 0, 0, time.UTC)
	hour, err := ident.HourLetter(start.Hour())
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: %w", name, err)
	}

	country, err := resolve(site4)
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: unknown site %s: %w", name, site4, err)
	}

	d := Descriptor{
		Dialect: TrimbleZip,
		Site4:   site4,
		Site9:   site4 + "00" + strings.ToUpper(country),
		Year:    start.Year(),
		Doy:     start.YearDay(),
		Hour:    hour,
		IsZip:   true,
	}
	return d, true, nil
}

func parseLeicaZip(name string, resolve CountryResolver) (Descriptor, bool, error) {
	res := leicaZipPattern.FindStringSubmatch(name)
	if res == nil {
		return Descriptor{}, false, nil
	}

	site4 := strings.ToUpper(res[1])
	doy, err := strconv.Atoi(res[2])
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: bad doy: %w", name, err)
	}
	hour := strings.ToLower(res[3])[0]

	minute := 0
	if res[4] != "" {
		minute, _ = strconv.Atoi(res[4])
	}
	if minute != 0 {
		return Descriptor{}, true, fmt.Errorf("filename: %s: minute offset %d unsupported", name, minute)
	}

	yy, err := strconv.Atoi(res[5])
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: bad year: %w", name, err)
	}
	year := ident.NormalizeYear(yy)

	country, err := resolve(site4)
	if err != nil {
		return Descriptor{}, true, fmt.Errorf("filename: %s: unknown site %s: %w", name, site4, err)
	}

	d := Descriptor{
		Dialect: LeicaZip,
		Site4:   site4,
		Site9:   site4 + "00" + strings.ToUpper(country),
		Year:    year,
		Doy:     doy,
		Hour:    hour,
		IsZip:   true,
	}
	return d, true, nil
}

// Ident builds the work-unit identity for d, given the canonical
// 9-character site resolved by the Site Catalog (which may override
// d.Site9 when the dialect itself guessed a country code).
func (d Descriptor) Ident(site9 string) (ident.Ident, error) {
	if site9 == "" {
		site9 = d.Site9
	}
	return ident.New(site9, d.Year, d.Doy, d.Hour)
}
