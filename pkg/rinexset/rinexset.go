// Package rinexset implements the RINEX Set: the in-memory and on-disk
// representation of one hour's collected observation and navigation
// files for a station/day.
package rinexset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/de-bkg/gnssd/pkg/ident"
)

// Set describes one hour's files for a work unit.
type Set struct {
	Site     string            `json:"site"`
	Year     int               `json:"year"`
	Doy      int               `json:"doy"`
	Hour     byte              `json:"hour"`
	Interval int               `json:"interval"`
	MO       string            `json:"mo,omitempty"`
	NavFiles map[string]string `json:"nav_files,omitempty"` // GN,RN,EN,CN,JN,IN,SN -> filename
	MN       string            `json:"mn,omitempty"`
	ZipFile  string            `json:"zipfile,omitempty"`
	Origs    []string          `json:"origs,omitempty"`

	TimeCreated int64 `json:"time_created"`
	Timestamp   int64 `json:"timestamp"`
}

// New creates an empty RINEX Set for id, stamped with now (unix seconds).
func New(id ident.Ident, now int64) *Set {
	return &Set{
		Site:        id.Site,
		Year:        id.Year,
		Doy:         id.Doy,
		Hour:        id.Hour,
		NavFiles:    make(map[string]string),
		TimeCreated: now,
		Timestamp:   now,
	}
}

// Ident returns the work-unit identity of the set.
func (s *Set) Ident() ident.Ident {
	return ident.Ident{Site: s.Site, Year: s.Year, Doy: s.Doy, Hour: s.Hour}
}

// AddNav records a per-constellation navigation file under its
// two-letter data-type abbreviation (GN, RN, EN, CN, JN, IN, SN).
func (s *Set) AddNav(dataType, fn string) {
	if s.NavFiles == nil {
		s.NavFiles = make(map[string]string)
	}
	s.NavFiles[dataType] = fn
}

// Submittable reports whether s has at least one MO file and at least
// one navigation file (per-constellation or mixed).
func (s *Set) Submittable() bool {
	return s.MO != "" && (len(s.NavFiles) > 0 || s.MN != "")
}

// Complete reports whether s has its mixed-navigation file, which
// disables further waiting for additional per-constellation files.
func (s *Set) Complete() bool {
	return s.MN != ""
}

// Prefix returns the canonical long-RINEX-v3 filename prefix shared by
// all files belonging to this set, e.g. "ABCD00DNK_R_20191520000_01H".
func (s *Set) Prefix() string {
	period := "01H"
	if s.Hour == '0' {
		period = "01D"
	}
	hh, _ := hourDigits(s.Hour)
	return fmt.Sprintf("%s_R_%04d%03d%02d00_%s", s.Site, s.Year, s.Doy, hh, period)
}

// FileName returns the canonical RINEX v3 filename for dataType
// ("MO", "GN", ...) built from the set's identity and interval.
func (s *Set) FileName(dataType string) string {
	period := "01H"
	freq := ""
	if s.Hour == '0' {
		period = "01D"
	}
	if dataType == "MO" && s.Interval > 0 {
		freq = fmt.Sprintf("_%02dS", s.Interval)
	}
	hh, _ := hourDigits(s.Hour)
	return fmt.Sprintf("%s_R_%04d%03d%02d00_%s%s_%s.rnx", s.Site, s.Year, s.Doy, hh, period, freq, dataType)
}

func hourDigits(hour byte) (int, error) {
	if hour == '0' {
		return 0, nil
	}
	if hour < 'a' || hour > 'x' {
		return 0, fmt.Errorf("rinexset: invalid hour letter %q", hour)
	}
	return int(hour - 'a'), nil
}

// Path returns the path of the set's JSON persistence file
// "rs.<hour>.json" inside workDir.
func Path(workDir string, hour byte) string {
	return filepath.Join(workDir, fmt.Sprintf("rs.%c.json", hour))
}

// Load reads a Set previously written by Save. A missing file is
// reported via os.IsNotExist on the returned error, matching the
// "late arrival" check against an existing rs.<hour>.json.
func Load(workDir string, hour byte) (*Set, error) {
	b, err := os.ReadFile(Path(workDir, hour))
	if err != nil {
		return nil, err
	}
	var s Set
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("rinexset: decode %s: %w", Path(workDir, hour), err)
	}
	return &s, nil
}

// Save persists s as rs.<hour>.json inside workDir.
func (s *Set) Save(workDir string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("rinexset: encode: %w", err)
	}
	tmp := Path(workDir, s.Hour) + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("rinexset: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, Path(workDir, s.Hour))
}
