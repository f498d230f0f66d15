// Package catalog implements the Site Catalog and the daily-summary
// ledger: read-mostly, TOML-snapshot-backed stand-ins for the
// out-of-scope relational database (the "locations" and "gpssums"
// tables), reloaded on SIGHUP or idleness via an atomic pointer swap.
package catalog

import (
	"fmt"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/midbel/toml"
)

var validate = validator.New()

// Entry is one row of the "locations" table: the 4->9 character
// mapping and the station's observation interval.
type Entry struct {
	Site4     string `toml:"site4" validate:"required,len=4"`
	Site9     string `toml:"site9" validate:"required,len=9"`
	ShortName string `toml:"shortname"`
	Interval  int    `toml:"obsint" validate:"required,gt=0"`
}

type snapshot struct {
	Entries []Entry `toml:"location"`
}

// Catalog is a read-only, in-memory snapshot of known stations, keyed
// by their 4-character short name. Readers observe a consistent
// snapshot across reloads via atomic.Pointer.
type Catalog struct {
	file string
	cur  atomic.Pointer[indexed]
}

type indexed struct {
	bySite4 map[string]Entry
}

// ErrUnknownSite is returned by Resolve when a site4 is not present in
// the catalog; callers must fail closed rather than guess a country
// code (see the design note on the ARGI/DNK heuristic).
var ErrUnknownSite = fmt.Errorf("catalog: unknown site")

// New loads the catalog snapshot from file.
func New(file string) (*Catalog, error) {
	c := &Catalog{file: file}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the TOML snapshot file and atomically swaps the
// in-memory index, so concurrent readers never observe a partial load.
func (c *Catalog) Reload() error {
	var snap snapshot
	if err := toml.DecodeFile(c.file, &snap); err != nil {
		return fmt.Errorf("catalog: load %s: %w", c.file, err)
	}

	idx := &indexed{bySite4: make(map[string]Entry, len(snap.Entries))}
	for _, e := range snap.Entries {
		if err := validate.Struct(e); err != nil {
			return fmt.Errorf("catalog: invalid entry %q: %w", e.Site4, err)
		}
		idx.bySite4[e.Site4] = e
	}

	c.cur.Store(idx)
	return nil
}

// Resolve returns the canonical 9-character site and observation
// interval for a 4-character short name, failing closed (ErrUnknownSite)
// when the site is not catalogued.
func (c *Catalog) Resolve(site4 string) (site9 string, interval int, err error) {
	idx := c.cur.Load()
	if idx == nil {
		return "", 0, fmt.Errorf("catalog: not loaded")
	}
	e, ok := idx.bySite4[site4]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrUnknownSite, site4)
	}
	return e.Site9, e.Interval, nil
}

// CountryResolver adapts Resolve to the pkg/filename.CountryResolver
// signature, for dialects that need a 3-character country code rather
// than the full 9-character site.
func (c *Catalog) CountryResolver(site4 string) (string, error) {
	site9, _, err := c.Resolve(site4)
	if err != nil {
		return "", err
	}
	if len(site9) != 9 {
		return "", fmt.Errorf("catalog: malformed site9 for %s: %q", site4, site9)
	}
	return site9[6:], nil
}
