package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/midbel/toml"
)

// Ledger is the read-mostly daily-summary table ("gpssums"): a row
// with hour='0' blocks new work for that day until an operator clears
// it via the forget admin action.
type Ledger struct {
	file string

	mu      sync.Mutex
	entries map[string]bool // ident.String() -> processed
}

type ledgerSnapshot struct {
	Processed []string `toml:"processed"`
}

// NewLedger loads an existing ledger file, or starts an empty one if
// it does not yet exist.
func NewLedger(file string) (*Ledger, error) {
	l := &Ledger{file: file, entries: make(map[string]bool)}
	var snap ledgerSnapshot
	if err := toml.DecodeFile(file, &snap); err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("catalog: load ledger %s: %w", file, err)
	}
	for _, k := range snap.Processed {
		l.entries[k] = true
	}
	return l, nil
}

// Processed reports whether id is already recorded as a completed
// day-job.
func (l *Ledger) Processed(id ident.Ident) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[id.Day().String()]
}

// MarkProcessed records id's day as processed and persists the ledger.
func (l *Ledger) MarkProcessed(id ident.Ident) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id.Day().String()] = true
	return l.save()
}

// Forget clears id's day from the ledger so it may be reprocessed.
func (l *Ledger) Forget(id ident.Ident) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id.Day().String())
	return l.save()
}

// save rewrites the ledger file. The midbel/toml package used
// throughout this codebase is only ever exercised for decoding in the
// pack it is grounded on, so the (trivial, flat) write side is
// hand-formatted TOML rather than an unverified encoder call.
func (l *Ledger) save() error {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("processed = [\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %q,\n", k)
	}
	b.WriteString("]\n")

	tmp := l.file + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("catalog: write ledger %s: %w", l.file, err)
	}
	return os.Rename(tmp, l.file)
}
