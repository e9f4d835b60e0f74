// Package cmd contains the admin commands for the energy ledger.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/level"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/memory"
	"github.com/gridmesh/energyledger/foundation/ledger/database/storage/pg"
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/state"
)

var (
	accountName string
	accountPath string
	genesisPath string
	backend     string
	dbPath      string
	dsn         string
)

const keyExtension = ".ecdsa"

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private.ecdsa", "Path to the private key.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "leveldb", "Storage backend: memory | leveldb | postgres.")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "zblock/ledger.db", "Path for the leveldb backend.")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Connection string for the postgres backend.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tooling for the energy ledger",
}

// Execute runs the command specified on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	if !strings.HasSuffix(accountName, keyExtension) {
		accountName += keyExtension
	}

	return filepath.Join(accountPath, accountName)
}

// openState constructs a read-only view of the ledger from the configured
// storage backend. The caller must call Shutdown.
func openState() (*state.State, error) {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load genesis file: %w", err)
	}

	var strg database.Storage
	switch backend {
	case "memory":
		strg = memory.New()
	case "leveldb":
		strg, err = level.New(dbPath)
	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres backend requires a connection string")
		}
		strg, err = pg.New(context.Background(), dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open storage backend: %w", err)
	}

	st, err := state.New(state.Config{
		Genesis: gen,
		Storage: strg,
	})
	if err != nil {
		strg.Close()
		return nil, err
	}

	return st, nil
}
