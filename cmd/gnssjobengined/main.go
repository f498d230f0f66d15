// Command gnssjobengined runs the Job Engine boss loop: it drains
// JOBQUEUE and dispatches each job to a bounded pool of gnssjobworker
// subprocesses, following the cli.App bootstrap idiom used by the
// pack's own `rnxgo` utility.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/de-bkg/gnssd/pkg/cliutil"
	"github.com/de-bkg/gnssd/pkg/config"
	"github.com/de-bkg/gnssd/pkg/engine"
	"github.com/urfave/cli/v2"
)

const (
	Version = "1.0.0"
	Program = "gnssjobengined"
)

var debug bool

func debugf(format string, args ...interface{}) {
	if !debug {
		return
	}
	log.Printf("debug: "+format, args...)
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetPrefix(fmt.Sprintf("[%s-%s] ", Program, Version))
}

func main() {
	app := &cli.App{
		Name:    Program,
		Version: Version,
		Usage:   "drain JOBQUEUE and dispatch jobs to a bounded gnssjobworker pool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "c", Usage: "configuration file", Required: true},
			&cli.BoolFlag{Name: "d", Usage: "enable debug logging"},
			&cli.IntFlag{Name: "i", Usage: "worker pool instance count, overrides the config file's worker_count"},
			&cli.StringFlag{Name: "l", Usage: "log channel: a file path to log to, or empty for stderr"},
			&cli.StringFlag{Name: "worker", Value: "gnssjobworker", Usage: "path to the gnssjobworker binary"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		cliutil.Exit(err)
	}
}

func run(c *cli.Context) error {
	debug = c.Bool("d")

	if l := c.String("l"); l != "" {
		f, err := os.OpenFile(l, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return cliutil.Wrap(fmt.Errorf("open log channel %s: %w", l, err), 2)
		}
		log.SetOutput(f)
	}

	cfg, err := config.LoadEngine(c.String("c"))
	if err != nil {
		return cliutil.Wrap(err, 2)
	}
	if i := c.Int("i"); i > 0 {
		cfg.WorkerCount = i
	}

	for _, dir := range []string{cfg.Dirs.WorkDir, cfg.Dirs.JobQueue} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return cliutil.Wrap(fmt.Errorf("mkdir %s: %w", dir, err), 3)
		}
	}

	debugf("pool size %d, worker binary %s", cfg.WorkerCount, c.String("worker"))
	b := engine.NewBoss(engine.Dirs{WorkDir: cfg.Dirs.WorkDir, JobQueue: cfg.Dirs.JobQueue}, c.String("worker"), cfg.WorkerCount)
	b.DrainAge = cfg.DrainAge.Duration
	b.PollInterval = cfg.PollInterval.Duration
	b.IdleSweep = cfg.IdleSweep.Duration
	b.LeftoverAge = cfg.LeftoverAge.Duration
	b.FatalBackoff = cfg.FatalBackoff.Duration
	b.UploaderdPIDFile = cfg.UploaderdPath
	b.SaveDir = cfg.Dirs.SaveDir
	b.Incoming = cfg.Dirs.Incoming

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("%s: %s: shutting down", Program, s)
		b.Stop()
	}()

	log.Printf("%s-%s started, pool size %d", Program, Version, cfg.WorkerCount)
	b.Run()
	return nil
}
