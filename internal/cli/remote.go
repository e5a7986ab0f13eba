package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/remote"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage the dpp-server this workspace talks to",
	Long: `Point the workspace at a dpp-server. While a remote is set, every
command goes through the server and the caller is the subject of the
configured token.

Without a subcommand, shows the configured remote.

Examples:
  dpp remote                           Show the remote
  dpp remote set https://dpp.example   Use a server
  dpp remote set-token                 Set the bearer token (read from stdin)
  dpp remote token 0x5B38...           Ask the server to issue a token
  dpp remote unset                     Go back to the local store`,
	Args: cobra.NoArgs,
	Run:  runRemoteShow,
}

var remoteSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Use a dpp-server",
	Args:  cobra.ExactArgs(1),
	Run:   runRemoteSet,
}

var remoteUnsetCmd = &cobra.Command{
	Use:   "unset",
	Short: "Go back to the local store",
	Args:  cobra.NoArgs,
	Run:   runRemoteUnset,
}

var remoteSetTokenCmd = &cobra.Command{
	Use:   "set-token",
	Short: "Set the bearer token for the remote",
	Long: `Set or update the bearer token for the remote.
The token is read from stdin for security (not passed as an argument).

Examples:
  dpp remote set-token                  # prompts for token
  echo "eyJ..." | dpp remote set-token  # pipe token from stdin`,
	Args: cobra.NoArgs,
	Run:  runRemoteSetToken,
}

var remoteTokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a caller token from the server's admin API",
	Long: `Ask the remote to sign a token for subject. The admin token is read
from the DPP_ADMIN_TOKEN environment variable.`,
	Args: cobra.ExactArgs(1),
	Run:  runRemoteToken,
}

var (
	remoteTokenTTL  time.Duration
	remoteTokenSave bool
)

func init() {
	remoteTokenCmd.Flags().DurationVar(&remoteTokenTTL, "ttl", 0, "Token lifetime (server default when 0)")
	remoteTokenCmd.Flags().BoolVar(&remoteTokenSave, "save", false, "Store the token as this workspace's remote token")

	remoteCmd.AddCommand(remoteSetCmd)
	remoteCmd.AddCommand(remoteUnsetCmd)
	remoteCmd.AddCommand(remoteSetTokenCmd)
	remoteCmd.AddCommand(remoteTokenCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	return cfg
}

func runRemoteShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if !cfg.IsRemote() {
		fmt.Printf("local (%s)\n", cfg.StoreOptions().Backend)
		return
	}
	fmt.Println(cfg.Remote.URL)
	if cfg.Remote.Token == "" {
		color.Yellow("no token set; writes will be rejected")
	}
}

func runRemoteSet(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	url := strings.TrimRight(args[0], "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		exitError("remote URL must start with http:// or https://")
	}
	cfg.Remote.URL = url
	if err := cfg.Save(); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Using remote %s\n", url)
}

func runRemoteUnset(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	cfg.Remote = config.RemoteConfig{}
	if err := cfg.Save(); err != nil {
		exitError("%v", err)
	}
	fmt.Println("Using the local store")
}

func runRemoteSetToken(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	fmt.Fprint(os.Stderr, "Token: ")
	reader := bufio.NewReader(os.Stdin)
	token, err := reader.ReadString('\n')
	if err != nil && token == "" {
		exitError("failed to read token: %v", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		exitError("token cannot be empty")
	}

	cfg.Remote.Token = token
	if err := cfg.Save(); err != nil {
		exitError("%v", err)
	}
	fmt.Println("Token saved")
}

func runRemoteToken(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if !cfg.IsRemote() {
		exitError("no remote configured")
	}
	adminToken := os.Getenv("DPP_ADMIN_TOKEN")
	if adminToken == "" {
		exitError("DPP_ADMIN_TOKEN is not set")
	}

	subject := mustAddress(args[0])
	resp, err := remote.IssueToken(context.Background(), cfg.Remote.URL, adminToken, subject, remoteTokenTTL)
	if err != nil {
		exitError("%v", err)
	}

	if remoteTokenSave {
		cfg.Remote.Token = resp.Token
		if err := cfg.Save(); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Token for %s saved (expires %s)\n", resp.Subject.Hex(), resp.ExpiresAt)
		return
	}
	fmt.Println(resp.Token)
}

