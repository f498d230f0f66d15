package jobqueue

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry is one file sitting in the JOBQUEUE spool directory.
type Entry struct {
	Path    string
	Name    string
	ModTime time.Time
	Command bool
}

// Spool lists the contents of a JOBQUEUE directory, the same spool the
// boss drains on each poll and the Dispatcher/Aggregator write into.
type Spool struct {
	Dir string
}

// NewSpool returns a Spool rooted at dir.
func NewSpool(dir string) *Spool {
	return &Spool{Dir: dir}
}

// List returns every regular, non-temporary entry in the spool older
// than minAge, oldest first. Entries still being written carry a
// ".tmp" suffix and are skipped, matching the atomic tmp+rename
// convention used by Write.
func (s *Spool) List(minAge time.Duration, now time.Time) ([]Entry, error) {
	des, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, de := range des {
		if de.IsDir() || filepath.Ext(de.Name()) == ".tmp" {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < minAge {
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(s.Dir, de.Name()),
			Name:    de.Name(),
			ModTime: info.ModTime(),
			Command: IsCommandFile(de.Name()),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) })
	return entries, nil
}

// Remove deletes a drained spool entry.
func (s *Spool) Remove(e Entry) error {
	return os.Remove(e.Path)
}
