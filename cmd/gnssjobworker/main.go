// Command gnssjobworker is the per-job worker process spawned by
// gnssjobengined: it is handed a job descriptor file as its sole
// argument and exits with engine.ExitOK/ExitError/ExitFatal.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/de-bkg/gnssd/pkg/catalog"
	"github.com/de-bkg/gnssd/pkg/cliutil"
	"github.com/de-bkg/gnssd/pkg/config"
	"github.com/de-bkg/gnssd/pkg/engine"
	"github.com/de-bkg/gnssd/pkg/jobstate"
)

const (
	Version = "1.0.0"
	Program = "gnssjobworker"
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetPrefix(fmt.Sprintf("[%s-%s] ", Program, Version))
}

func main() {
	configFile := flag.String("c", "", "configuration file")
	flag.Parse()

	if *configFile == "" || flag.NArg() != 1 {
		cliutil.Exit(cliutil.Wrap(fmt.Errorf("usage: %s -c <config> <job-file>", Program), 2))
	}

	cfg, err := config.LoadEngine(*configFile)
	if err != nil {
		cliutil.Exit(cliutil.Wrap(err, 2))
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		cliutil.Exit(cliutil.Wrap(fmt.Errorf("read job file: %w", err), 2))
	}

	store := jobstate.NewStore(cfg.Dirs.WorkDir)
	ledger, err := catalog.NewLedger(cfg.LedgerFile)
	if err != nil {
		cliutil.Exit(cliutil.Wrap(fmt.Errorf("load ledger: %w", err), 2))
	}

	os.Exit(engine.RunWorker(content, cfg.Dirs.WorkDir, store, ledger))
}
