// Package engine implements the Job Engine: a boss loop watching
// JOBQUEUE and a bounded pool of worker OS processes, following the
// fsnotify watch/drain shape used throughout the pack (e.g.
// standardbeagle-lci's FileWatcher) and busoc-assist's process-boundary
// error conventions.
package engine

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobqueue"
	"github.com/de-bkg/gnssd/pkg/rinexset"
	"github.com/fsnotify/fsnotify"
)

// Dirs holds the Engine's spool and work directories.
type Dirs struct {
	WorkDir  string
	JobQueue string
}

// Boss drains JOBQUEUE, dispatches jobs to a bounded worker-process
// pool, and performs the periodic leftover/forced-completion sweeps.
type Boss struct {
	Dirs      Dirs
	WorkerBin string // path to the gnssjobworker binary

	PoolSize     int
	DrainAge     time.Duration
	PollInterval time.Duration
	IdleSweep    time.Duration
	LeftoverAge  time.Duration
	FatalBackoff time.Duration

	UploaderdPIDFile string
	SaveDir          string
	Incoming         string

	mu      sync.Mutex
	running map[string]bool
	procs   []*exec.Cmd

	sem     chan struct{}
	results chan jobResult

	quit chan struct{}
	done chan struct{}
}

type jobResult struct {
	id     ident.Ident
	fatal  bool
	errMsg string
}

// NewBoss constructs a Boss and starts its worker pool.
func NewBoss(dirs Dirs, workerBin string, poolSize int) *Boss {
	b := &Boss{
		Dirs:         dirs,
		WorkerBin:    workerBin,
		PoolSize:     poolSize,
		DrainAge:     2 * time.Second,
		PollInterval: time.Second,
		IdleSweep:    10 * time.Minute,
		LeftoverAge:  15 * time.Minute,
		FatalBackoff: 300 * time.Second,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	b.startPool()
	return b
}

// startPool (re)initializes the bounded worker slot pool and the
// results channel. It is the single constructor used both at boot and
// on fatal-restart, so the two call sites can never drift the way the
// historical start_nw/start_bw naming once risked.
func (b *Boss) startPool() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sem = make(chan struct{}, b.PoolSize)
	b.results = make(chan jobResult, b.PoolSize)
	b.running = make(map[string]bool)
	b.procs = nil
}

// Stop requests shutdown and blocks until the boss loop exits.
func (b *Boss) Stop() {
	close(b.quit)
	<-b.done
}

// Run is the boss's main loop.
func (b *Boss) Run() {
	defer close(b.done)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("engine: watcher: %v", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(b.Dirs.JobQueue); err != nil {
		log.Printf("engine: watch %s: %v", b.Dirs.JobQueue, err)
		return
	}

	drainTicker := time.NewTicker(b.PollInterval)
	defer drainTicker.Stop()
	idleTicker := time.NewTicker(b.IdleSweep)
	defer idleTicker.Stop()

	var needRestart bool

	for {
		select {
		case <-b.quit:
			return

		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			b.drain()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("engine: watch error: %v", err)

		case <-drainTicker.C:
			b.drain()

		case <-idleTicker.C:
			b.leftoverSweep()
			b.forcedCompletionScan()

		case res := <-b.results:
			b.mu.Lock()
			delete(b.running, res.id.String())
			b.mu.Unlock()
			if res.fatal {
				log.Printf("engine: %s: fatal: %s", res.id, res.errMsg)
				needRestart = true
			} else if res.errMsg != "" {
				log.Printf("engine: %s: error: %s", res.id, res.errMsg)
			}
		}

		if needRestart {
			log.Printf("engine: fatal worker failure, restarting pool after %s backoff", b.FatalBackoff)
			watcher.Remove(b.Dirs.JobQueue)
			b.shutdownPool()
			time.Sleep(b.FatalBackoff)
			b.startPool()
			watcher.Add(b.Dirs.JobQueue)
			needRestart = false
		}
	}
}

// shutdownPool force-terminates every in-flight worker process.
func (b *Boss) shutdownPool() {
	b.mu.Lock()
	procs := b.procs
	b.mu.Unlock()
	for _, cmd := range procs {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}
}

// drain reads every spool entry older than DrainAge and dispatches it.
func (b *Boss) drain() {
	spool := jobqueue.NewSpool(b.Dirs.JobQueue)
	entries, err := spool.List(b.DrainAge, time.Now())
	if err != nil {
		log.Printf("engine: list spool: %v", err)
		return
	}
	for _, e := range entries {
		b.handleEntry(spool, e)
	}
}

func (b *Boss) handleEntry(spool *jobqueue.Spool, e jobqueue.Entry) {
	content, err := os.ReadFile(e.Path)
	if err != nil {
		log.Printf("engine: read %s: %v", e.Path, err)
		return
	}
	spool.Remove(e)

	if e.Command {
		b.handleCommand(string(content))
		return
	}
	b.dispatch(content)
}

func (b *Boss) dispatch(content []byte) {
	job, err := jobqueue.Read(content)
	if err != nil {
		log.Printf("engine: invalid job: %v", err)
		return
	}
	id, err := ident.New(job.Site, job.Year, job.Doy, job.Hour[0])
	if err != nil {
		log.Printf("engine: %v", err)
		return
	}

	b.mu.Lock()
	if b.running[id.String()] {
		b.mu.Unlock()
		log.Printf("engine: %s: duplicate job, rejecting", id)
		return
	}
	b.running[id.String()] = true
	b.mu.Unlock()

	select {
	case b.sem <- struct{}{}:
	case <-b.quit:
		return
	}

	go b.runJob(id, content)
}

func (b *Boss) runJob(id ident.Ident, content []byte) {
	defer func() { <-b.sem }()

	tmp, err := os.CreateTemp("", "gnssjob-*.json")
	if err != nil {
		b.results <- jobResult{id: id, errMsg: err.Error()}
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		b.results <- jobResult{id: id, errMsg: err.Error()}
		return
	}
	tmp.Close()

	cmd := exec.Command(b.WorkerBin, tmp.Name())
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout

	b.mu.Lock()
	b.procs = append(b.procs, cmd)
	b.mu.Unlock()

	err = cmd.Run()
	if err == nil {
		b.results <- jobResult{id: id}
		return
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		b.results <- jobResult{id: id, fatal: true, errMsg: err.Error()}
		return
	}

	switch exitErr.ExitCode() {
	case ExitError:
		b.results <- jobResult{id: id, errMsg: "worker reported error"}
	default:
		b.results <- jobResult{id: id, fatal: true, errMsg: fmt.Sprintf("worker exited %d", exitErr.ExitCode())}
	}
}

// handleCommand matches a command file body against the admin grammar
// and runs the matching action.
func (b *Boss) handleCommand(text string) {
	cmd, err := jobqueue.ParseCommand(text)
	if err != nil {
		log.Printf("engine: %v", err)
		return
	}

	switch cmd.Kind {
	case jobqueue.ReloadFTPUploader:
		b.reloadFTPUploader()
	case jobqueue.ForceComplete:
		b.forceComplete(cmd.Site, cmd.Year, cmd.DoyFrom)
	case jobqueue.Reprocess:
		b.reprocess(cmd.Site, cmd.Year, cmd.DoyFrom, cmd.DoyTo)
	}
}

// reprocess implements "reprocess <site> <year> <doy[-doy]>": every
// file under SAVEDIR/<site>/<year>/<d> is moved back to INCOMING for
// each day d in the inclusive range, so the Dispatcher re-ingests it.
func (b *Boss) reprocess(site string, year, doyFrom, doyTo int) {
	for doy := doyFrom; doy <= doyTo; doy++ {
		src := b.saveDirFor(site, year, doy)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			log.Printf("engine: reprocess %s %d/%03d: no saved files, skipping", site, year, doy)
			continue
		}
		if err := b.moveBackToIncoming(src); err != nil {
			log.Printf("engine: reprocess %s %d/%03d: %v", site, year, doy, err)
		}
	}
}

func (b *Boss) saveDirFor(site string, year, doy int) string {
	return filepath.Join(b.SaveDir, site, fmt.Sprintf("%d", year), fmt.Sprintf("%03d", doy))
}

func (b *Boss) moveBackToIncoming(srcDir string) error {
	des, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		src := filepath.Join(srcDir, de.Name())
		dst := filepath.Join(b.Incoming, de.Name())
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// forceComplete implements "force complete <site> <year> <doy>": it
// enqueues a day-job (hour '0') for an incomplete day, provided at
// least one processed hour's RINEX Set can supply the observation
// interval.
func (b *Boss) forceComplete(site string, year, doy int) {
	dayDir := b.hourDirFor(site, year, doy)
	interval, ok := b.anyProcessedInterval(dayDir)
	if !ok {
		log.Printf("engine: force complete %s %d/%03d: no processed hour to supply interval", site, year, doy)
		return
	}

	job := jobqueue.Job{
		Site:          site,
		Year:          year,
		Doy:           doy,
		Hour:          string(ident.DailyHour),
		Interval:      interval,
		Kind:          jobqueue.KindHour2Daily,
		RSFile:        filepath.Join(dayDir, fmt.Sprintf("rs.%c.json", ident.DailyHour)),
		ForceComplete: true,
	}
	if _, err := jobqueue.Write(b.Dirs.JobQueue, job); err != nil {
		log.Printf("engine: force complete %s %d/%03d: %v", site, year, doy, err)
	}
}

func (b *Boss) hourDirFor(site string, year, doy int) string {
	return filepath.Join(b.Dirs.WorkDir, site, fmt.Sprintf("%d", year), fmt.Sprintf("%03d", doy))
}

// anyProcessedInterval scans a day's rs.<hour>.json files for one
// belonging to an hour whose state is "processed", returning its
// observation interval.
func (b *Boss) anyProcessedInterval(dayDir string) (int, bool) {
	des, err := os.ReadDir(dayDir)
	if err != nil {
		return 0, false
	}
	for _, de := range des {
		name := de.Name()
		if len(name) != len("state.a") || !strings.HasPrefix(name, "state.") {
			continue
		}
		hour := name[len(name)-1]
		raw, err := os.ReadFile(filepath.Join(dayDir, name))
		if err != nil || strings.TrimSpace(string(raw)) != "processed" {
			continue
		}
		set, err := rinexset.Load(dayDir, hour)
		if err != nil {
			continue
		}
		return set.Interval, true
	}
	return 0, false
}

// forcedCompletionScan looks for operator-created force-complete marker
// files and applies the same logic as the admin "force complete" command.
func (b *Boss) forcedCompletionScan() {
	filepath.WalkDir(b.Dirs.WorkDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != "force-complete" {
			return nil
		}
		site, year, doy, ok := parseDayDir(filepath.Dir(path), b.Dirs.WorkDir)
		os.Remove(path)
		if ok {
			b.forceComplete(site, year, doy)
		}
		return nil
	})
}

// leftoverSweep re-enqueues any spool file older than LeftoverAge by
// touching its modtime, so the next drain picks it up again.
func (b *Boss) leftoverSweep() {
	spool := jobqueue.NewSpool(b.Dirs.JobQueue)
	entries, err := spool.List(b.LeftoverAge, time.Now())
	if err != nil {
		return
	}
	for _, e := range entries {
		now := time.Now()
		if err := os.Chtimes(e.Path, now, now); err != nil {
			log.Printf("engine: leftover sweep: touch %s: %v", e.Path, err)
		}
	}
}

// parseDayDir recovers (site, year, doy) from a WORKDIR/<site>/<year>/<doy>
// directory path.
func parseDayDir(dir, workDir string) (site string, year, doy int, ok bool) {
	rel, err := filepath.Rel(workDir, dir)
	if err != nil {
		return "", 0, 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	year, err1 := strconv.Atoi(parts[1])
	doy, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return parts[0], year, doy, true
}

// reloadFTPUploader signals the external uploader service to reload,
// the one place this core touches an out-of-scope collaborator
// process by PID rather than by file content.
func (b *Boss) reloadFTPUploader() {
	if b.UploaderdPIDFile == "" {
		log.Printf("engine: reload ftpuploader: no pidfile configured")
		return
	}
	raw, err := os.ReadFile(b.UploaderdPIDFile)
	if err != nil {
		log.Printf("engine: reload ftpuploader: read pidfile: %v", err)
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		log.Printf("engine: reload ftpuploader: bad pid %q: %v", raw, err)
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		log.Printf("engine: reload ftpuploader: %v", err)
		return
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		log.Printf("engine: reload ftpuploader: signal pid %d: %v", pid, err)
	}
}
