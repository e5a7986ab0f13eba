package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <token-id>",
	Short: "Show the dataset version history of a passport",
	Long: `Show the dataset versions of a passport, oldest first.

Examples:
  dpp history 3                 All versions, oldest first
  dpp history 3 --limit 5       The 5 most recent versions, newest first
  dpp history 3 --version 2     A single version`,
	Args: cobra.ExactArgs(1),
	Run:  runHistory,
}

var (
	historyLimit   uint32
	historyVersion uint32
	historyOneline bool
)

func init() {
	historyCmd.Flags().Uint32VarP(&historyLimit, "limit", "n", 0, "Show only the N most recent versions, newest first")
	historyCmd.Flags().Uint32Var(&historyVersion, "version", 0, "Show only this version")
	historyCmd.Flags().BoolVar(&historyOneline, "oneline", false, "Show each version on a single line")
}

func runHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])

	if cmd.Flags().Changed("version") {
		e, err := c.Client.GetVersion(ctx, id, historyVersion)
		if err != nil {
			failed("history", err)
		}
		if e == nil {
			exitError("passport %d has no version %d", id, historyVersion)
		}
		printVersion(*e)
		return
	}

	var (
		versions []models.VersionEntry
		err      error
	)
	if cmd.Flags().Changed("limit") {
		versions, err = c.Client.GetRecentVersions(ctx, id, historyLimit)
	} else {
		versions, err = c.Client.GetVersionHistory(ctx, id)
	}
	if err != nil {
		failed("history", err)
	}

	if len(versions) == 0 {
		fmt.Printf("passport %d has no versions\n", id)
		return
	}
	for _, e := range versions {
		if historyOneline {
			printVersionOneline(e)
		} else {
			printVersion(e)
		}
	}
}
