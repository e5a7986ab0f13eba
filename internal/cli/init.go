package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new DPP workspace",
	Long: `Initialize a new DPP workspace in the current directory.
This creates a .dpp directory holding the configuration and, unless a
remote server is used, the local registry store.

Examples:
  dpp init --identity 0x5B38Da6a701c568545dCfcB03FcB875f56beddC4
  dpp init --identity 0x5B38... --store leveldb
  dpp init --identity 0x5B38... --counter clock`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var (
	initIdentity string
	initBackend  string
	initDSN      string
	initCounter  string
)

func init() {
	initCmd.Flags().StringVar(&initIdentity, "identity", "", "Address used as caller for local writes (required)")
	initCmd.Flags().StringVar(&initBackend, "store", store.BackendBolt, "Store backend: bbolt, leveldb, sqlite, postgres or memory")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "Postgres connection string (with --store postgres)")
	initCmd.Flags().StringVar(&initCounter, "counter", "sequence", "Call counter: sequence or clock")
	initCmd.MarkFlagRequired("identity")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}
	if _, err := config.FindDPPRoot(cwd); err == nil {
		exitError("dpp workspace already exists")
	}

	if initCounter != "sequence" && initCounter != "clock" {
		exitError("unknown counter %q (want sequence or clock)", initCounter)
	}

	cfg, err := config.Initialize(cwd, initIdentity)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	cfg.Store.Backend = initBackend
	cfg.Store.DSN = initDSN
	cfg.Counter = initCounter
	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	// Open once so a bad backend or DSN fails now rather than on first use
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		os.RemoveAll(cfg.DPPPath())
		exitError("failed to create store: %v", err)
	}
	st.Close()

	fmt.Printf("Initialized empty DPP workspace in %s/\n", config.DPPDir)
	fmt.Printf("Identity: %s\n", cfg.Identity)
	fmt.Printf("Store:    %s\n", cfg.StoreOptions().Backend)
}
