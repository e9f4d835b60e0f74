package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/gridmesh/energyledger/foundation/events"
	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/level"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/memory"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/pg"
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/state"
	"github.com/gridmesh/energyledger/foundation/ledger/worker"
	"github.com/gridmesh/energyledger/foundation/logger"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGERD")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Ledger struct {
			GenesisPath string `conf:"default:zblock/genesis.json"`
			Backend     string `conf:"default:memory,help:memory | leveldb | postgres"`
			DBPath      string `conf:"default:zblock/ledger.db,help:path for the leveldb backend"`
			DSN         string `conf:"help:connection string for the postgres backend,mask"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "peer to peer energy market ledger",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "LEDGERD"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Ledger Support

	gen, err := genesis.Load(cfg.Ledger.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	strg, err := openStorage(cfg.Ledger.Backend, cfg.Ledger.DBPath, cfg.Ledger.DSN)
	if err != nil {
		return fmt.Errorf("unable to open storage backend: %w", err)
	}

	// The ledger packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any client
	// subscribed through the events package.
	evts := events.New()
	defer evts.Shutdown()

	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s)
		evts.Send(s)
	}

	// The state value represents the ledger engine and manages the chain,
	// the transaction pool, and the materialized market state.
	st, err := state.New(state.Config{
		Genesis:   gen,
		Storage:   strg,
		EvHandler: ev,
	})
	if err != nil {
		strg.Close()
		return err
	}
	defer st.Shutdown()

	// The worker package implements the block production workflow. The
	// worker will register itself with the state.
	worker.Run(st, ev)

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown

	log.Infow("shutdown", "status", "shutdown started", "signal", sig)
	defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

	return nil
}

// openStorage constructs the storage backend selected by the configuration.
func openStorage(backend string, dbPath string, dsn string) (database.Storage, error) {
	switch backend {
	case "memory":
		return memory.New(), nil

	case "leveldb":
		return level.New(dbPath)

	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres backend requires a connection string")
		}
		return pg.New(context.Background(), dsn)
	}

	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
