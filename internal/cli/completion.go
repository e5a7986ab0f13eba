package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/remote"
	"github.com/spf13/cobra"
)

// maxCompletedTokens bounds how many token ids are offered for completion.
const maxCompletedTokens = 200

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for dpp.

Token ids are completed from the workspace registry, newest first.

Bash:
  $ source <(dpp completion bash)

Zsh:
  $ dpp completion zsh > "${fpath[1]}/_dpp"

Fish:
  $ dpp completion fish > ~/.config/fish/completions/dpp.fish

PowerShell:
  PS> dpp completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, cmd := range []*cobra.Command{
		showCmd, updateCmd, revokeCmd, historyCmd,
		ownerCmd, approvedCmd, approveCmd, transferCmd, transferFromCmd,
	} {
		cmd.ValidArgsFunction = completeTokenIDs
	}
}

func completeGranularity(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(models.GranularityProductClass) + "\tone passport per product model",
		string(models.GranularityBatch) + "\tone passport per production batch",
		string(models.GranularityItem) + "\tone passport per serialised item",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeTokenIDs offers minted token ids for the first positional argument.
// Failures yield no suggestions rather than an error on the terminal.
func completeTokenIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := context.Background()
	c, err := openContext(ctx, cfg)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer c.Close()

	ids, err := tokenIDCandidates(ctx, c.Client, toComplete)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func tokenIDCandidates(ctx context.Context, client remote.RemoteClient, prefix string) ([]string, error) {
	next, err := client.NextTokenID(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for id := next; id > 0 && len(ids) < maxCompletedTokens; {
		id--
		s := strconv.FormatUint(uint64(id), 10)
		if strings.HasPrefix(s, prefix) {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
