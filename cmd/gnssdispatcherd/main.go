// Command gnssdispatcherd watches INCOMING for newly uploaded GNSS
// files and feeds the Unpack Pool, following the cli.App bootstrap
// idiom used by the pack's own `rnxgo` utility.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/de-bkg/gnssd/pkg/catalog"
	"github.com/de-bkg/gnssd/pkg/cliutil"
	"github.com/de-bkg/gnssd/pkg/config"
	"github.com/de-bkg/gnssd/pkg/decode"
	"github.com/de-bkg/gnssd/pkg/dispatcher"
	"github.com/de-bkg/gnssd/pkg/jobstate"
	"github.com/de-bkg/gnssd/pkg/pending"
	"github.com/de-bkg/gnssd/pkg/unpack"
	"github.com/urfave/cli/v2"
)

const (
	Version = "1.0.0"
	Program = "gnssdispatcherd"
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
		Usage:   "watch INCOMING and dispatch inbound GNSS uploads into the unpack/pending pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "c", Usage: "configuration file", Required: true},
			&cli.BoolFlag{Name: "d", Usage: "enable debug logging"},
			&cli.IntFlag{Name: "i", Usage: "unpack thread count, overrides the config file's unpack_workers"},
			&cli.StringFlag{Name: "l", Usage: "log channel: a file path to log to, or empty for stderr"},
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

	cfg, err := config.LoadDispatcher(c.String("c"))
	if err != nil {
		return cliutil.Wrap(err, 2)
	}
	if i := c.Int("i"); i > 0 {
		cfg.UnpackWorkers = i
	}

	cat, err := catalog.New(cfg.CatalogFile)
	if err != nil {
		return cliutil.Wrap(fmt.Errorf("load catalog: %w", err), 3)
	}
	ledger, err := catalog.NewLedger(cfg.LedgerFile)
	if err != nil {
		return cliutil.Wrap(fmt.Errorf("load ledger: %w", err), 3)
	}

	for _, dir := range []string{cfg.Dirs.Incoming, cfg.Dirs.SaveDir, cfg.Dirs.WorkDir, cfg.Dirs.JobQueue} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return cliutil.Wrap(fmt.Errorf("mkdir %s: %w", dir, err), 3)
		}
	}

	store := jobstate.NewStore(cfg.Dirs.WorkDir)
	agg := pending.New(cfg.Dirs.WorkDir, cfg.Dirs.Incoming, cfg.Dirs.JobQueue, store)
	go agg.Run()

	paths := decode.Paths{
		Gunzip:  cfg.Decoders.Gunzip,
		Unzip:   cfg.Decoders.Unzip,
		Crx2Rnx: cfg.Decoders.Crx2Rnx,
		Sbf2Rin: cfg.Decoders.Sbf2Rin,
	}
	debugf("starting %d unpack workers", cfg.UnpackWorkers)
	pool := unpack.NewPool(cfg.UnpackWorkers, cfg.Dirs.WorkDir, cfg.Dirs.JobQueue, paths, store, agg)
	pool.Start()

	d, err := dispatcher.New(cfg.Dirs.Incoming, cfg.Dirs.SaveDir, cfg.Dirs.WorkDir, cat, ledger, pool)
	if err != nil {
		return cliutil.Wrap(err, 3)
	}
	d.AgeGateEvent = cfg.AgeGateEvent.Duration
	d.AgeGateRescan = cfg.AgeGateRescan.Duration
	d.RescanEvery = cfg.RescanInterval.Duration

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGHUP:
				log.Printf("%s: SIGHUP: reloading catalog and rescanning", Program)
				if err := cat.Reload(); err != nil {
					log.Printf("%s: reload catalog: %v", Program, err)
				}
				d.Rescan()
			case syscall.SIGINT, syscall.SIGTERM:
				log.Printf("%s: %s: shutting down", Program, s)
				d.Stop()
				pool.Stop()
				agg.Stop()
				return
			}
		}
	}()

	log.Printf("%s-%s started, watching %s", Program, Version, cfg.Dirs.Incoming)
	d.Run()
	return nil
}
