package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ownerCmd = &cobra.Command{
	Use:   "owner <token-id>",
	Short: "Print the current holder of a passport",
	Args:  cobra.ExactArgs(1),
	Run:   runOwner,
}

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print how many passports an address holds",
	Args:  cobra.ExactArgs(1),
	Run:   runBalance,
}

var approvedCmd = &cobra.Command{
	Use:   "approved <token-id>",
	Short: "Print the address approved for a single passport",
	Args:  cobra.ExactArgs(1),
	Run:   runApproved,
}

var approveCmd = &cobra.Command{
	Use:   "approve <token-id> <address>",
	Short: "Approve an address to transfer one passport",
	Long: `Approve an address to transfer one passport on the holder's behalf.
The caller must be the holder or one of the holder's operators. The approval
is cleared by the next transfer.`,
	Args: cobra.ExactArgs(2),
	Run:  runApprove,
}

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage blanket transfer approvals",
	Long: `Grant, withdraw or check operator approvals. An operator may transfer
and approve every passport its owner holds.

Examples:
  dpp operator grant 0xOp...
  dpp operator revoke 0xOp...
  dpp operator check 0xOwner... 0xOp...`,
}

var operatorGrantCmd = &cobra.Command{
	Use:   "grant <operator>",
	Short: "Let an operator act for all your passports",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runSetOperator(args[0], true) },
}

var operatorRevokeCmd = &cobra.Command{
	Use:   "revoke <operator>",
	Short: "Withdraw an operator approval",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runSetOperator(args[0], false) },
}

var operatorCheckCmd = &cobra.Command{
	Use:   "check <owner> <operator>",
	Short: "Check whether an operator may act for an owner",
	Args:  cobra.ExactArgs(2),
	Run:   runOperatorCheck,
}

var transferCmd = &cobra.Command{
	Use:   "transfer <token-id> <to>",
	Short: "Transfer a passport you hold",
	Args:  cobra.ExactArgs(2),
	Run:   runTransfer,
}

var transferFromCmd = &cobra.Command{
	Use:   "transfer-from <token-id> <from> <to>",
	Short: "Transfer a passport on its holder's behalf",
	Long: `Transfer a passport from its current holder. The caller must be the
holder, the approved address, or an operator of the holder.`,
	Args: cobra.ExactArgs(3),
	Run:  runTransferFrom,
}

func init() {
	operatorCmd.AddCommand(operatorGrantCmd)
	operatorCmd.AddCommand(operatorRevokeCmd)
	operatorCmd.AddCommand(operatorCheckCmd)
}

func runOwner(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	owner, err := c.Client.OwnerOf(ctx, id)
	if err != nil {
		failed("owner", err)
	}
	if owner == nil {
		exitError("passport %d not found", id)
	}
	fmt.Println(owner.Hex())
}

func runBalance(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	n, err := c.Client.BalanceOf(ctx, mustAddress(args[0]))
	if err != nil {
		failed("balance", err)
	}
	fmt.Println(n)
}

func runApproved(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	approved, err := c.Client.GetApproved(ctx, mustTokenID(args[0]))
	if err != nil {
		failed("approved", err)
	}
	if approved == nil {
		fmt.Println("none")
		return
	}
	fmt.Println(approved.Hex())
}

func runApprove(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	to := mustAddress(args[1])
	if err := c.Client.Approve(ctx, to, id); err != nil {
		failed("approve", err)
	}
	color.Green("Approved %s for passport %d", to.Hex(), id)
}

func runSetOperator(arg string, approved bool) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	operator := mustAddress(arg)
	if err := c.Client.SetApprovalForAll(ctx, operator, approved); err != nil {
		failed("operator", err)
	}
	if approved {
		color.Green("Granted operator %s", operator.Hex())
	} else {
		color.Yellow("Revoked operator %s", operator.Hex())
	}
}

func runOperatorCheck(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	ok, err := c.Client.IsApprovedForAll(ctx, mustAddress(args[0]), mustAddress(args[1]))
	if err != nil {
		failed("operator", err)
	}
	fmt.Println(ok)
}

func runTransfer(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	to := mustAddress(args[1])
	if err := c.Client.Transfer(ctx, to, id); err != nil {
		failed("transfer", err)
	}
	color.Green("Transferred passport %d to %s", id, to.Hex())
}

func runTransferFrom(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	from := mustAddress(args[1])
	to := mustAddress(args[2])
	if err := c.Client.TransferFrom(ctx, from, to, id); err != nil {
		failed("transfer-from", err)
	}
	color.Green("Transferred passport %d from %s to %s", id, from.Hex(), to.Hex())
}
