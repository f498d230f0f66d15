package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/de-bkg/gnssd/pkg/catalog"
	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobqueue"
	"github.com/de-bkg/gnssd/pkg/jobstate"
)

// Exit codes a worker process reports to the boss, mirroring the
// ok/error/fatal result vocabulary.
const (
	ExitOK    = 0
	ExitError = 1
	ExitFatal = 2
)

// RunWorker executes the per-job worker logic against a job descriptor's
// JSON content and returns the process exit code the boss interprets.
// It is the body of cmd/gnssjobworker's main(), factored out so it can
// run in-process in tests without forking a real subprocess.
func RunWorker(content []byte, rootWorkDir string, store *jobstate.Store, ledger *catalog.Ledger) (code int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("gnssjobworker: fatal: %v\n%s", r, debug.Stack())
			code = ExitFatal
		}
	}()

	job, err := jobqueue.Read(content)
	if err != nil {
		log.Printf("gnssjobworker: invalid job: %v", err)
		return ExitError
	}

	id, err := ident.New(job.Site, job.Year, job.Doy, job.Hour[0])
	if err != nil {
		log.Printf("gnssjobworker: %v", err)
		return ExitError
	}

	jobDir := filepath.Join(rootWorkDir, id.Site, fmt.Sprintf("%d", id.Year), fmt.Sprintf("%03d", id.Doy))
	if err := os.Chdir(jobDir); err != nil {
		log.Printf("gnssjobworker: %s: chdir %s: %v", id, jobDir, err)
		return ExitError
	}

	lock, err := store.Acquire(id)
	if err != nil {
		log.Printf("gnssjobworker: %s: acquire lock: %v", id, err)
		return ExitError
	}
	defer store.Release(id, lock)

	if err := store.Transition(lock, jobstate.Running, jobstate.Queued); err != nil {
		log.Printf("gnssjobworker: %s: %v", id, err)
		return ExitError
	}

	if err := process(job, ledger); err != nil {
		log.Printf("gnssjobworker: %s: process: %v", id, err)
		store.Write(lock, jobstate.None)
		return ExitError
	}

	if err := store.Write(lock, jobstate.Processed); err != nil {
		log.Printf("gnssjobworker: %s: write processed: %v", id, err)
		return ExitError
	}

	if id.IsDaily() {
		if err := ledger.MarkProcessed(id); err != nil {
			log.Printf("gnssjobworker: %s: mark processed: %v", id, err)
		}
	}

	return ExitOK
}

// process is the boundary to the out-of-scope domain code (the FTP/SFTP
// uploader, and any hour-to-daily aggregation). Both are treated as
// external collaborators; this stub marks the hand-off point a real
// deployment would wire an uploader subprocess into.
func process(job jobqueue.Job, ledger *catalog.Ledger) error {
	switch job.Kind {
	case jobqueue.KindFTP:
		log.Printf("gnssjobworker: %s %s %d/%03d/%c: handed off to external ftp uploader", job.Kind, job.Site, job.Year, job.Doy, job.Hour[0])
	case jobqueue.KindHour2Daily:
		log.Printf("gnssjobworker: %s %s %d/%03d: handed off to external day-aggregation step", job.Kind, job.Site, job.Year, job.Doy)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	return nil
}
