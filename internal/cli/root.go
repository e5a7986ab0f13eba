// Package cli implements the command-line interface for DPP.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/host"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/kilupskalvis/dpp/internal/remote"
	"github.com/kilupskalvis/dpp/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagAs      string
	flagVerbose bool
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  store.Store // nil when talking to a dpp-server
	Client remote.RemoteClient
	Logger *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

func newLogger() *slog.Logger {
	if !flagVerbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// initContext loads the workspace config and connects to the registry,
// either the local store or the configured dpp-server.
func initContext(ctx context.Context) *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	c, err := openContext(ctx, cfg)
	if err != nil {
		exitError("%v", err)
	}
	return c
}

func openContext(ctx context.Context, cfg *config.Config) (*cmdContext, error) {
	logger := newLogger()

	if cfg.IsRemote() {
		if flagAs != "" {
			return nil, fmt.Errorf("--as only applies to local workspaces; the server takes the caller from the token")
		}
		client := remote.NewRetryClient(remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token), nil)
		return &cmdContext{Config: cfg, Client: client, Logger: logger}, nil
	}

	caller, err := callerIdentity(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var counter host.Counter
	switch cfg.Counter {
	case "clock":
		counter = host.NewClock()
	case "sequence", "":
		counter = host.NewSequencer(st)
	default:
		st.Close()
		return nil, fmt.Errorf("unknown counter %q (want sequence or clock)", cfg.Counter)
	}

	reg := passport.New(st, passport.WithLogger(logger))
	if err := reg.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	session := &host.Session{
		Registry: reg,
		Counter:  counter,
		Caller:   caller,
	}
	return &cmdContext{Config: cfg, Store: st, Client: session, Logger: logger}, nil
}

func callerIdentity(cfg *config.Config) (models.Address, error) {
	if flagAs != "" {
		return models.ParseAddress(flagAs)
	}
	return cfg.IdentityAddress()
}

var rootCmd = &cobra.Command{
	Use:   "dpp",
	Short: "Dataset Passport registry",
	Long: `DPP anchors dataset passports: it registers a passport per product,
batch or item, keeps the full version history of the dataset it points to,
and tracks who holds and may transfer each passport.

Commands run against the local workspace store, or against a dpp-server
when a remote is configured.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAs, "as", "", "Act as this address instead of the workspace identity (local only)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log registry activity to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(nextIDCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(approvedCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(operatorCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(transferFromCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(subjectHashCmd)
	rootCmd.AddCommand(remoteCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
