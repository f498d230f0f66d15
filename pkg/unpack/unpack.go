// Package unpack implements the Unpack Pool: a bounded set of workers
// that decompress and rename inbound uploads into the canonical RINEX
// layout, grounded on the per-dialect unpack rules.
package unpack

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/de-bkg/gnssd/pkg/decode"
	"github.com/de-bkg/gnssd/pkg/filename"
	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobqueue"
	"github.com/de-bkg/gnssd/pkg/jobstate"
	"github.com/de-bkg/gnssd/pkg/pending"
	"github.com/de-bkg/gnssd/pkg/rinex"
	"github.com/de-bkg/gnssd/pkg/rinexset"
)

// Request is one unpack work item handed off by the Inbound Dispatcher.
type Request struct {
	AbsPath  string
	Site9    string
	Interval int
	Desc     filename.Descriptor
}

// Pool runs N workers draining a shared unpack request channel.
type Pool struct {
	n       int
	workDir string
	jobDir  string
	paths   decode.Paths
	store   *jobstate.Store
	agg     *pending.Aggregator

	work chan Request
	wg   sync.WaitGroup
}

// NewPool returns a Pool of n workers.
func NewPool(n int, workDir, jobDir string, paths decode.Paths, store *jobstate.Store, agg *pending.Aggregator) *Pool {
	return &Pool{
		n:       n,
		workDir: workDir,
		jobDir:  jobDir,
		paths:   paths,
		store:   store,
		agg:     agg,
		work:    make(chan Request, 256),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit enqueues a request on a channel buffered to 256 entries; it
// blocks while 256 requests are already waiting for a worker.
func (p *Pool) Submit(r Request) {
	p.work <- r
}

// Stop closes the work channel and waits for all workers to drain it.
func (p *Pool) Stop() {
	close(p.work)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for r := range p.work {
		p.handle(r)
	}
}

func (p *Pool) handle(r Request) {
	id, err := r.Desc.Ident(r.Site9)
	if err != nil {
		log.Printf("unpack: %s: %v", r.AbsPath, err)
		return
	}

	switch r.Desc.Dialect {
	case filename.LongRinex3:
		p.handleLongRinex3(id, r)
	case filename.LegacyShort:
		p.handleLegacyShort(id, r)
	case filename.TrimbleZip, filename.LeicaZip:
		p.handleZip(id, r)
	default:
		log.Printf("unpack: %s: unhandled dialect %s", r.AbsPath, r.Desc.Dialect)
	}
}

func (p *Pool) hourDir(id ident.Ident) string {
	return filepath.Join(p.workDir, id.Site, fmt.Sprintf("%d", id.Year), fmt.Sprintf("%03d", id.Doy))
}

func (p *Pool) unpackDir(id ident.Ident) string {
	return filepath.Join(p.hourDir(id), fmt.Sprintf("unpack.%c", id.Hour))
}

// handleLongRinex3 decompresses a long-RINEX-v3 member into its unpack
// directory and hands off to the Pending Aggregator without touching state.
func (p *Pool) handleLongRinex3(id ident.Ident, r Request) {
	dest := p.unpackDir(id)
	if err := os.MkdirAll(dest, 0755); err != nil {
		log.Printf("unpack: %s: mkdir %s: %v", id, dest, err)
		return
	}

	fn := filepath.Base(r.AbsPath)
	if strings.HasSuffix(strings.ToLower(fn), ".gz") {
		out, err := decode.Gunzip(dest, r.AbsPath)
		if err != nil {
			log.Printf("unpack: %s: %v", id, err)
			return
		}
		fn = filepath.Base(out)
	} else {
		out := filepath.Join(dest, fn)
		if err := os.Rename(r.AbsPath, out); err != nil {
			log.Printf("unpack: %s: move %s: %v", id, r.AbsPath, err)
			return
		}
	}

	p.agg.Add(pending.AddMsg{ID: id, FN: fn, IFN: filepath.Base(r.AbsPath)})
}

var legacyExtPattern = regexp.MustCompile(`\.\d{2}([a-z])$`)

// handleLegacyShort runs the external SBF->RIN decoder on a single raw
// upload and assembles the resulting RINEX Set.
func (p *Pool) handleLegacyShort(id ident.Ident, r Request) {
	lock, err := p.store.Acquire(id)
	if err != nil {
		log.Printf("unpack: %s: acquire lock: %v", id, err)
		return
	}
	defer p.store.Release(id, lock)

	state, err := p.store.Read(lock)
	if err != nil {
		log.Printf("unpack: %s: read state: %v", id, err)
		return
	}
	if state != jobstate.None && state != jobstate.Processed {
		log.Printf("unpack: %s: state %s not eligible for raw upload", id, state)
		return
	}

	dest := p.unpackDir(id)
	if err := os.MkdirAll(dest, 0755); err != nil {
		log.Printf("unpack: %s: mkdir %s: %v", id, dest, err)
		return
	}

	country := id.Site[len(id.Site)-3:]
	if err := decode.Sbf2Rin(p.paths.Sbf2Rin, r.AbsPath, dest, country); err != nil {
		log.Printf("unpack: %s: sbf2rin: %v", id, err)
		p.store.Write(lock, jobstate.None)
		return
	}

	set, err := scanSet(id, r.Interval, dest)
	if err != nil {
		log.Printf("unpack: %s: %v", id, err)
		p.store.Write(lock, jobstate.None)
		return
	}
	if set.Interval == 0 && set.MO != "" {
		if iv, ok := sniffInterval(filepath.Join(dest, set.MO)); ok {
			set.Interval = iv
		}
	}

	p.finalize(id, lock, set, dest)
}

// sniffInterval opens a decoded observation file and reads its sampling
// interval off the RINEX header, the fallback used when a raw upload's
// filename carries no interval of its own.
func sniffInterval(moPath string) (int, bool) {
	f, err := os.Open(moPath)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	dec, err := rinex.NewObsDecoder(f)
	if err != nil || dec.Header.Interval <= 0 {
		return 0, false
	}
	return int(dec.Header.Interval), true
}

// handleZip unpacks a Trimble or Leica zip archive, normalizing every
// member into its canonical RINEX v3 name.
func (p *Pool) handleZip(id ident.Ident, r Request) {
	lock, err := p.store.Acquire(id)
	if err != nil {
		log.Printf("unpack: %s: acquire lock: %v", id, err)
		return
	}
	defer p.store.Release(id, lock)

	state, err := p.store.Read(lock)
	if err != nil {
		log.Printf("unpack: %s: read state: %v", id, err)
		return
	}
	if state != jobstate.None && state != jobstate.Processed {
		log.Printf("unpack: %s: state %s not eligible for zip upload", id, state)
		return
	}

	dest := p.unpackDir(id)
	if err := os.MkdirAll(dest, 0755); err != nil {
		log.Printf("unpack: %s: mkdir %s: %v", id, dest, err)
		return
	}

	if err := decode.Unzip(dest, r.AbsPath); err != nil {
		log.Printf("unpack: %s: unzip: %v", id, err)
		p.store.Write(lock, jobstate.None)
		return
	}

	members, err := os.ReadDir(dest)
	if err != nil {
		log.Printf("unpack: %s: read unpack dir: %v", id, err)
		p.store.Write(lock, jobstate.None)
		return
	}

	set := rinexset.New(id, time.Now().Unix())
	set.Interval = r.Interval

	for _, m := range members {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		path := filepath.Join(dest, name)

		if strings.HasSuffix(strings.ToLower(name), ".gz") {
			out, err := decode.Gunzip(dest, path)
			if err != nil {
				log.Printf("unpack: %s: gunzip member %s: %v", id, name, err)
				continue
			}
			path = out
			name = filepath.Base(out)
		}

		letter, ok := legacyTypeLetter(name)
		if !ok {
			log.Printf("unpack: %s: unrecognized archive member %s", id, name)
			continue
		}

		if letter == 'd' {
			if err := decode.Crx2Rnx(p.paths.Crx2Rnx, path); err != nil {
				log.Printf("unpack: %s: crx2rnx member %s: %v", id, name, err)
				continue
			}
			letter = 'o'
			path = path[:len(path)-1] + "o"
			name = filepath.Base(path)
		}

		dataType, ok := filename.LegacyTypeMap[letter]
		if !ok {
			log.Printf("unpack: %s: no canonical type for %s", id, name)
			continue
		}

		canonical := filepath.Join(dest, set.FileName(dataType))
		if err := os.Rename(path, canonical); err != nil {
			log.Printf("unpack: %s: rename %s: %v", id, name, err)
			continue
		}

		if dataType == "MO" {
			set.MO = filepath.Base(canonical)
		} else {
			set.AddNav(dataType, filepath.Base(canonical))
		}
		set.Origs = append(set.Origs, name)
	}

	p.finalize(id, lock, set, dest)
}

// legacyTypeLetter extracts the trailing legacy RINEX2 file-type letter
// from a member's basename, e.g. "site0010.21o" -> 'o'.
func legacyTypeLetter(name string) (byte, bool) {
	m := legacyExtPattern.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return 0, false
	}
	return m[1][0], true
}

// scanSet builds a RINEX Set from the canonically-named files an
// external decoder left behind in dir.
func scanSet(id ident.Ident, interval int, dir string) (*rinexset.Set, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	set := rinexset.New(id, time.Now().Unix())
	set.Interval = interval

	for _, de := range des {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		switch {
		case moNamePattern.MatchString(name):
			set.MO = name
		case navNamePattern.MatchString(name):
			m := navNamePattern.FindStringSubmatch(name)
			if m[1] == "MN" {
				set.MN = name
			} else {
				set.AddNav(m[1], name)
			}
		default:
			set.Origs = append(set.Origs, name)
		}
	}

	if !set.Submittable() {
		return nil, fmt.Errorf("%s: decoder output not submittable", id)
	}
	return set, nil
}

var (
	moNamePattern  = regexp.MustCompile(`_\d{2}S_MO\.rnx$`)
	navNamePattern = regexp.MustCompile(`_([A-Z]N)\.rnx$`)
)

// finalize applies the shared single-file-upload completion rule: abandon
// the hour if the day-job is already queued or running, otherwise promote
// the unpack directory, persist the set, and emit a job.
func (p *Pool) finalize(id ident.Ident, lock *jobstate.Lock, set *rinexset.Set, unpackDir string) {
	if !id.IsDaily() {
		day := id.Day()
		dlock, err := p.store.Acquire(day)
		if err == nil {
			state, rerr := p.store.Read(dlock)
			p.store.Release(day, dlock)
			if rerr == nil && (state == jobstate.Queued || state == jobstate.Running) {
				log.Printf("unpack: %s: day-job %s, abandoning hour", id, state)
				return
			}
		}
	}

	hourDir := p.hourDir(id)
	if err := promote(unpackDir, hourDir); err != nil {
		log.Printf("unpack: %s: promote: %v", id, err)
		return
	}
	if err := set.Save(hourDir); err != nil {
		log.Printf("unpack: %s: save set: %v", id, err)
		return
	}
	if err := p.store.Write(lock, jobstate.Queued); err != nil {
		log.Printf("unpack: %s: write queued: %v", id, err)
		return
	}

	job := jobqueue.Job{
		Site:     id.Site,
		Year:     id.Year,
		Doy:      id.Doy,
		Hour:     string(id.Hour),
		Interval: set.Interval,
		Kind:     jobqueue.KindFTP,
		RSFile:   rinexset.Path(hourDir, id.Hour),
	}
	if _, err := jobqueue.Write(p.jobDir, job); err != nil {
		log.Printf("unpack: %s: emit job: %v", id, err)
	}
}

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
