// Package pending implements the Pending Aggregator: a single goroutine
// that gathers multi-file uploads into a RINEX Set and, once quiescent
// and submittable, promotes the set into the work directory and
// enqueues a job.
package pending

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobqueue"
	"github.com/de-bkg/gnssd/pkg/jobstate"
	"github.com/de-bkg/gnssd/pkg/rinexset"
)

const (
	tickInterval  = 3 * time.Second
	staleAge      = 7200 // seconds
	quiescenceAge = 20   // seconds
)

var (
	moPattern  = regexp.MustCompile(`_(\d{2})S_MO\.rnx$`)
	navPattern = regexp.MustCompile(`_([A-Z]N)\.rnx$`)
)

// exitSite is the sentinel Ident.Site value enqueued on shutdown.
const exitSite = "EXIT"

// AddMsg reports one newly unpacked file belonging to a work unit.
type AddMsg struct {
	ID  ident.Ident
	FN  string // canonical filename, relative to the unpack directory
	IFN string // originating inbound filename
}

// Aggregator owns the Pending map and evaluates it on a timer and on
// message arrival, as specified for the single-threaded gather-and-wait
// design.
type Aggregator struct {
	workDir  string
	incoming string
	store    *jobstate.Store
	jobDir   string
	now      func() time.Time

	add  chan AddMsg
	done chan struct{}

	pending map[ident.Ident]*rinexset.Set
}

// New returns an Aggregator. unpackDir builds the unpack directory path
// for a work unit's hour from its work directory.
func New(workDir, incoming, jobDir string, store *jobstate.Store) *Aggregator {
	return &Aggregator{
		workDir:  workDir,
		incoming: incoming,
		jobDir:   jobDir,
		store:    store,
		now:      time.Now,
		add:      make(chan AddMsg, 64),
		done:     make(chan struct{}),
		pending:  make(map[ident.Ident]*rinexset.Set),
	}
}

// Add enqueues a pending-add message from the Unpack Pool.
func (a *Aggregator) Add(msg AddMsg) {
	a.add <- msg
}

// Stop enqueues the EXIT sentinel and blocks until Run has returned.
func (a *Aggregator) Stop() {
	a.add <- AddMsg{ID: ident.Ident{Site: exitSite}}
	<-a.done
}

func (a *Aggregator) hourDir(id ident.Ident) string {
	return filepath.Join(a.workDir, id.Site, fmt.Sprintf("%d", id.Year), fmt.Sprintf("%03d", id.Doy))
}

func (a *Aggregator) unpackDir(id ident.Ident) string {
	return filepath.Join(a.hourDir(id), fmt.Sprintf("unpack.%c", id.Hour))
}

// Run is the Aggregator's main loop: a 3-second tick and pending-add
// messages, until the EXIT sentinel arrives.
func (a *Aggregator) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-a.add:
			if msg.ID.Site == exitSite {
				close(a.done)
				return
			}
			a.handleAdd(msg)
		case <-ticker.C:
			a.evaluateAll()
		}
	}
}

func (a *Aggregator) handleAdd(msg AddMsg) {
	now := a.now().Unix()

	set, ok := a.pending[msg.ID]
	if !ok {
		if loaded, err := rinexset.Load(a.hourDir(msg.ID), msg.ID.Hour); err == nil {
			set = loaded
		} else {
			set = rinexset.New(msg.ID, now)
		}
		a.pending[msg.ID] = set
	}

	attach(set, msg.FN)
	set.Origs = append(set.Origs, msg.IFN)
	set.Timestamp = now
}

// attach records fn into set according to its canonical filename
// suffix: "_NNS_MO.rnx" fills the observation file and interval,
// "_XN.rnx" fills a navigation slot (MN is the mixed-navigation file).
func attach(set *rinexset.Set, fn string) {
	if m := moPattern.FindStringSubmatch(fn); m != nil {
		interval, _ := strconv.Atoi(m[1])
		set.MO = fn
		set.Interval = interval
		return
	}
	if m := navPattern.FindStringSubmatch(fn); m != nil {
		if m[1] == "MN" {
			set.MN = fn
		} else {
			set.AddNav(m[1], fn)
		}
	}
}

func (a *Aggregator) evaluateAll() {
	for id, set := range a.pending {
		a.evaluate(id, set)
	}
}

func (a *Aggregator) evaluate(id ident.Ident, set *rinexset.Set) {
	now := a.now().Unix()
	submittable := set.Submittable()
	complete := set.Complete()

	if !submittable && !complete {
		if now-set.TimeCreated > staleAge {
			log.Printf("pending: %s: stale pending job, discarding", id)
			delete(a.pending, id)
		}
		return
	}

	if submittable && !complete && now-set.Timestamp < quiescenceAge {
		return
	}

	if a.filesStillIncoming(set) {
		set.Timestamp = now
		return
	}

	if !id.IsDaily() {
		if state, err := a.dayState(id); err == nil && (state == jobstate.Queued || state == jobstate.Running) {
			log.Printf("pending: %s: day-job %s, dropping hour submission", id, state)
			delete(a.pending, id)
			return
		}
	}

	if err := a.submit(id, set); err != nil {
		log.Printf("pending: %s: submit failed: %v", id, err)
		return
	}
	delete(a.pending, id)
}

func (a *Aggregator) dayState(id ident.Ident) (jobstate.State, error) {
	day := id.Day()
	l, err := a.store.Acquire(day)
	if err != nil {
		return "", err
	}
	defer a.store.Release(day, l)
	return a.store.Read(l)
}

// filesStillIncoming reports whether any file named with this set's
// canonical prefix is still sitting in INCOMING, a sign the upload is
// still arriving.
func (a *Aggregator) filesStillIncoming(set *rinexset.Set) bool {
	matches, err := filepath.Glob(filepath.Join(a.incoming, set.Prefix()+"*"))
	if err != nil {
		return false
	}
	return len(matches) > 0
}

func (a *Aggregator) submit(id ident.Ident, set *rinexset.Set) error {
	lock, err := a.store.Acquire(id)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer a.store.Release(id, lock)

	state, err := a.store.Read(lock)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if state != jobstate.None && state != jobstate.Processed {
		return fmt.Errorf("state %s not submittable", state)
	}

	if err := promote(a.unpackDir(id), a.hourDir(id)); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := set.Save(a.hourDir(id)); err != nil {
		return fmt.Errorf("save set: %w", err)
	}
	if err := a.store.Write(lock, jobstate.Queued); err != nil {
		return fmt.Errorf("write queued: %w", err)
	}

	job := jobqueue.Job{
		Site:     id.Site,
		Year:     id.Year,
		Doy:      id.Doy,
		Hour:     string(id.Hour),
		Interval: set.Interval,
		Kind:     jobqueue.KindFTP,
		RSFile:   rinexset.Path(a.hourDir(id), id.Hour),
	}
	if _, err := jobqueue.Write(a.jobDir, job); err != nil {
		return fmt.Errorf("emit job: %w", err)
	}
	return nil
}

// promote moves every file out of the unpack directory into the work
// directory and removes the now-empty unpack directory.
func promote(unpackDir, workDir string) error {
	des, err := os.ReadDir(unpackDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		src := filepath.Join(unpackDir, de.Name())
		dst := filepath.Join(workDir, de.Name())
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return os.Remove(unpackDir)
}
