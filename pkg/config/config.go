// Package config loads the TOML configuration shared by the Inbound
// Dispatcher and the Job Engine binaries, following the
// toml.DecodeFile-into-tagged-struct idiom.
package config

import (
	"fmt"

	"github.com/midbel/toml"
)

// Dirs holds the four spool directories, which must reside on the
// same filesystem so that hand-offs between them can use rename(2).
type Dirs struct {
	Incoming string `toml:"incoming"`
	SaveDir  string `toml:"savedir"`
	WorkDir  string `toml:"workdir"`
	JobQueue string `toml:"jobqueue"`
}

// Decoders holds the paths to the external subprocess decoders. Paths
// are configuration, never compiled constants, so a site can point at
// vendor-specific binaries.
type Decoders struct {
	Gunzip  string `toml:"gunzip"`
	Unzip   string `toml:"unzip"`
	Crx2Rnx string `toml:"crx2rnx"`
	Sbf2Rin string `toml:"sbf2rin"`
}

// Dispatcher holds the Inbound Dispatcher's tunables. TickInterval,
// QuiescenceAge and StaleAge are not read by the Pending Aggregator,
// which uses fixed 3s/20s/7200s constants.
type Dispatcher struct {
	Dirs           Dirs     `toml:"dirs"`
	Decoders       Decoders `toml:"decoders"`
	UnpackWorkers  int      `toml:"unpack_workers"`
	RescanInterval Duration `toml:"rescan_interval"`
	AgeGateEvent   Duration `toml:"age_gate_event"`
	AgeGateRescan  Duration `toml:"age_gate_rescan"`
	TickInterval   Duration `toml:"tick_interval"`
	QuiescenceAge  Duration `toml:"quiescence_age"`
	StaleAge       Duration `toml:"stale_age"`
	CatalogFile    string   `toml:"catalog_file"`
	LedgerFile     string   `toml:"ledger_file"`
}

// Engine holds the Job Engine's tunables.
type Engine struct {
	Dirs          Dirs     `toml:"dirs"`
	WorkerCount   int      `toml:"worker_count"`
	DrainAge      Duration `toml:"drain_age"`
	PollInterval  Duration `toml:"poll_interval"`
	IdleSweep     Duration `toml:"idle_sweep"`
	LeftoverAge   Duration `toml:"leftover_age"`
	FatalBackoff  Duration `toml:"fatal_backoff"`
	UploaderdPath string   `toml:"ftpuploader_pidfile"`
	LedgerFile    string   `toml:"ledger_file"`
}

// Default returns the spec-mandated defaults: 1s/20s age gates, 3s
// aggregator tick, 20s quiescence, 7200s staleness, 10min rescan/idle
// sweep, 15min leftover age and the deliberate 300s fatal-restart
// backoff.
func Default() (Dispatcher, Engine) {
	d := Dispatcher{
		UnpackWorkers:  4,
		RescanInterval: Duration{seconds(600)},
		AgeGateEvent:   Duration{seconds(1)},
		AgeGateRescan:  Duration{seconds(20)},
		TickInterval:   Duration{seconds(3)},
		QuiescenceAge:  Duration{seconds(20)},
		StaleAge:       Duration{seconds(7200)},
	}
	e := Engine{
		WorkerCount:  4,
		DrainAge:     Duration{seconds(2)},
		PollInterval: Duration{seconds(1)},
		IdleSweep:    Duration{seconds(600)},
		LeftoverAge:  Duration{seconds(900)},
		FatalBackoff: Duration{seconds(300)},
	}
	return d, e
}

// LoadDispatcher reads a TOML configuration file into a Dispatcher
// config seeded with Default values.
func LoadDispatcher(file string) (Dispatcher, error) {
	d, _ := Default()
	if err := toml.DecodeFile(file, &d); err != nil {
		return d, fmt.Errorf("config: invalid dispatcher configuration: %w", err)
	}
	return d, nil
}

// LoadEngine reads a TOML configuration file into an Engine config
// seeded with Default values.
func LoadEngine(file string) (Engine, error) {
	_, e := Default()
	if err := toml.DecodeFile(file, &e); err != nil {
		return e, fmt.Errorf("config: invalid engine configuration: %w", err)
	}
	return e, nil
}
