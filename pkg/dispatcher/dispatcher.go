// Package dispatcher implements the Inbound Dispatcher: an
// fsnotify-driven watch over INCOMING with a periodic rescan fallback,
// following the watcher/event-loop shape in
// github.com/standardbeagle/lci's file watcher.
package dispatcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/de-bkg/gnssd/pkg/catalog"
	"github.com/de-bkg/gnssd/pkg/filename"
	"github.com/de-bkg/gnssd/pkg/unpack"
	"github.com/fsnotify/fsnotify"
)

// Dispatcher watches Incoming for newly arrived uploads, resolves and
// moves each one into SaveDir, and hands decoding off to the Unpack Pool.
type Dispatcher struct {
	Incoming string
	SaveDir  string
	WorkDir  string

	Catalog *catalog.Catalog
	Ledger  *catalog.Ledger
	Pool    *unpack.Pool

	AgeGateEvent  time.Duration
	AgeGateRescan time.Duration
	RescanEvery   time.Duration

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	seen    map[string]time.Time // duplicate-event suppression
	quit    chan struct{}
	done    chan struct{}
	rescanC chan struct{}
}

// New creates a Dispatcher watching incoming; call Run to begin.
func New(incoming, saveDir, workDir string, cat *catalog.Catalog, ledger *catalog.Ledger, pool *unpack.Pool) (*Dispatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: new watcher: %w", err)
	}
	if err := w.Add(incoming); err != nil {
		w.Close()
		return nil, fmt.Errorf("dispatcher: watch %s: %w", incoming, err)
	}

	return &Dispatcher{
		Incoming:      incoming,
		SaveDir:       saveDir,
		WorkDir:       workDir,
		Catalog:       cat,
		Ledger:        ledger,
		Pool:          pool,
		AgeGateEvent:  time.Second,
		AgeGateRescan: 20 * time.Second,
		RescanEvery:   10 * time.Minute,
		watcher:       w,
		seen:          make(map[string]time.Time),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		rescanC:       make(chan struct{}, 1),
	}, nil
}

// Rescan requests an immediate directory rescan, used on SIGHUP.
func (d *Dispatcher) Rescan() {
	select {
	case d.rescanC <- struct{}{}:
	default:
	}
}

// Stop requests shutdown and blocks until the main loop has exited.
func (d *Dispatcher) Stop() {
	close(d.quit)
	<-d.done
}

// Run is the Dispatcher's main loop: fsnotify events, a periodic
// catalog reload and rescan, and a 1-second drain tick over the
// duplicate-suppression map.
func (d *Dispatcher) Run() {
	defer close(d.done)
	defer d.watcher.Close()

	rescanTicker := time.NewTicker(d.RescanEvery)
	defer rescanTicker.Stop()
	drainTicker := time.NewTicker(time.Second)
	defer drainTicker.Stop()

	for {
		select {
		case <-d.quit:
			return

		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.mu.Lock()
			d.seen[ev.Name] = time.Now()
			d.mu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("dispatcher: watch error: %v", err)

		case <-drainTicker.C:
			d.drainSeen()

		case <-rescanTicker.C:
			if err := d.Catalog.Reload(); err != nil {
				log.Printf("dispatcher: reload catalog: %v", err)
			}
			d.rescan()

		case <-d.rescanC:
			d.rescan()
		}
	}
}

// drainSeen dispatches every suppressed path older than AgeGateEvent.
func (d *Dispatcher) drainSeen() {
	now := time.Now()
	var ready []string

	d.mu.Lock()
	for path, seenAt := range d.seen {
		if now.Sub(seenAt) >= d.AgeGateEvent {
			ready = append(ready, path)
			delete(d.seen, path)
		}
	}
	d.mu.Unlock()

	for _, path := range ready {
		d.dispatch(path)
	}
}

// rescan walks Incoming for files old enough to have been missed by
// fsnotify (the 10-minute idle fallback, or an immediate SIGHUP rescan).
func (d *Dispatcher) rescan() {
	des, err := os.ReadDir(d.Incoming)
	if err != nil {
		log.Printf("dispatcher: rescan %s: %v", d.Incoming, err)
		return
	}

	now := time.Now()
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < d.AgeGateRescan {
			continue
		}
		d.dispatch(filepath.Join(d.Incoming, de.Name()))
	}
}

// dispatch implements the per-file dispatch algorithm: parse, resolve,
// move into SaveDir, then enqueue Unpack work.
func (d *Dispatcher) dispatch(path string) {
	if _, err := os.Stat(path); err != nil {
		return // already moved by a previous event
	}

	desc, err := filename.Parse(path, d.Catalog.CountryResolver)
	if err != nil {
		log.Printf("dispatcher: %s: %v, moving to stale", path, err)
		d.moveToStale(path)
		return
	}

	site9 := desc.Site9
	interval := 0
	if site9 == "" {
		var ierr error
		site9, interval, ierr = d.Catalog.Resolve(desc.Site4)
		if ierr != nil {
			log.Printf("dispatcher: %s: %v, moving to stale", path, ierr)
			d.moveToStale(path)
			return
		}
	} else if _, resolvedInterval, ierr := d.Catalog.Resolve(desc.Site4); ierr == nil {
		interval = resolvedInterval
	}

	dayDir := filepath.Join(d.SaveDir, site9, fmt.Sprintf("%d", desc.Year), fmt.Sprintf("%03d", desc.Doy))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		log.Printf("dispatcher: %s: mkdir %s: %v", path, dayDir, err)
		return
	}

	dest := filepath.Join(dayDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("dispatcher: %s: move to %s: %v", path, dest, err)
		return
	}

	id, err := desc.Ident(site9)
	if err != nil {
		log.Printf("dispatcher: %s: %v", dest, err)
		return
	}

	workDayDir := filepath.Join(d.WorkDir, site9, fmt.Sprintf("%d", desc.Year), fmt.Sprintf("%03d", desc.Doy))
	if _, err := os.Stat(workDayDir); os.IsNotExist(err) && d.Ledger.Processed(id) {
		log.Printf("dispatcher: %s: %s already processed; run forget", dest, id)
		return
	}
	if err := os.MkdirAll(workDayDir, 0755); err != nil {
		log.Printf("dispatcher: %s: mkdir %s: %v", dest, workDayDir, err)
		return
	}

	d.Pool.Submit(unpack.Request{AbsPath: dest, Site9: site9, Interval: interval, Desc: desc})
}

func (d *Dispatcher) moveToStale(path string) {
	staleDir := filepath.Join(d.SaveDir, "stale")
	if err := os.MkdirAll(staleDir, 0755); err != nil {
		log.Printf("dispatcher: mkdir %s: %v", staleDir, err)
		return
	}
	dest := filepath.Join(staleDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("dispatcher: move %s to stale: %v", path, err)
	}
}
