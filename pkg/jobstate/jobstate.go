// Package jobstate implements the per-(site,year,doy,hour) persisted
// state machine (none -> queued -> running -> processed) backed by a
// state.<hour> file and protected by an exclusive advisory lock for
// read-modify-write access.
package jobstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/de-bkg/gnssd/pkg/ident"
	"golang.org/x/sys/unix"
)

// State is one of the four persisted states of a work unit.
type State string

const (
	None      State = "none"
	Queued    State = "queued"
	Running   State = "running"
	Processed State = "processed"
)

// ErrIllegalTransition is returned when the current on-disk state does
// not allow the requested transition.
var ErrIllegalTransition = fmt.Errorf("jobstate: illegal state transition")

// Lock represents a held advisory lock on a state file; the caller
// must call Release when done.
type Lock struct {
	f *os.File
}

// Release unlocks and closes the underlying state file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	if err != nil {
		return err
	}
	return cerr
}

// Store manages state files under a root work directory, laid out as
// WORKDIR/<site>/<year>/<doy>/state.<hour>. In addition to the
// cross-process advisory file lock it keeps a per-process in-memory
// mutex table keyed by ident, avoiding self-contention within one
// process as recommended for the per-key exclusion design.
type Store struct {
	root string

	mu      sync.Mutex
	keyLock map[string]*sync.Mutex
}

// NewStore returns a Store rooted at workDir.
func NewStore(workDir string) *Store {
	return &Store{root: workDir, keyLock: make(map[string]*sync.Mutex)}
}

func (s *Store) dir(id ident.Ident) string {
	return filepath.Join(s.root, id.Site, fmt.Sprintf("%d", id.Year), fmt.Sprintf("%03d", id.Doy))
}

// Path returns the path of the state file for id.
func (s *Store) Path(id ident.Ident) string {
	return filepath.Join(s.dir(id), fmt.Sprintf("state.%c", id.Hour))
}

func (s *Store) keyMutex(id ident.Ident) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	m, ok := s.keyLock[key]
	if !ok {
		m = &sync.Mutex{}
		s.keyLock[key] = m
	}
	return m
}

// Acquire takes the in-memory mutex for id then the cross-process
// advisory file lock on its state file, creating the state file (and
// its directory) with state None if it does not yet exist.
func (s *Store) Acquire(id ident.Ident) (*Lock, error) {
	s.keyMutex(id).Lock()

	if err := os.MkdirAll(s.dir(id), 0755); err != nil {
		s.keyMutex(id).Unlock()
		return nil, fmt.Errorf("jobstate: mkdir: %w", err)
	}

	path := s.Path(id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		s.keyMutex(id).Unlock()
		return nil, fmt.Errorf("jobstate: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		s.keyMutex(id).Unlock()
		return nil, fmt.Errorf("jobstate: flock %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err == nil && fi.Size() == 0 {
		_ = writeState(f, None)
	}

	return &Lock{f: f}, nil
}

// Release releases the lock held for id, both the advisory file lock
// (via l.Release) and the in-memory mutex.
func (s *Store) Release(id ident.Ident, l *Lock) error {
	defer s.keyMutex(id).Unlock()
	return l.Release()
}

// Read returns the current state under a held lock.
func (s *Store) Read(l *Lock) (State, error) {
	if _, err := l.f.Seek(0, 0); err != nil {
		return "", err
	}
	b, err := os.ReadFile(l.f.Name())
	if err != nil {
		return "", fmt.Errorf("jobstate: read: %w", err)
	}
	if len(b) == 0 {
		return None, nil
	}
	return State(trimNewline(b)), nil
}

// Write persists newState under a held lock.
func (s *Store) Write(l *Lock, newState State) error {
	return writeState(l.f, newState)
}

// Transition reads the current state, verifies it is one of allowed,
// and writes newState, all under a held lock. It returns
// ErrIllegalTransition if the current state is not allowed.
func (s *Store) Transition(l *Lock, newState State, allowed ...State) error {
	cur, err := s.Read(l)
	if err != nil {
		return err
	}
	ok := false
	for _, a := range allowed {
		if cur == a {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: have %s, want one of %v", ErrIllegalTransition, cur, allowed)
	}
	return s.Write(l, newState)
}

func writeState(f *os.File, st State) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := f.WriteString(string(st) + "\n")
	if err != nil {
		return err
	}
	return f.Sync()
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}
