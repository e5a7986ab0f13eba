package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/dataset"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/spf13/cobra"
)

// datasetFlags are shared by register and update.
type datasetFlags struct {
	uri       string
	hash      string
	file      string
	publish   bool
	dtype     string
	subject   string
	product   string
	qualifier string
}

func (f *datasetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uri, "uri", "", "Dataset URI")
	cmd.Flags().StringVar(&f.hash, "hash", "", "Payload hash (hex); computed from --file when omitted")
	cmd.Flags().StringVar(&f.file, "file", "", "Dataset file to hash (and publish with --publish)")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "Upload --file to the configured publish target and use its URI")
	cmd.Flags().StringVar(&f.dtype, "type", "application/vc+json", "Dataset media type")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Subject id hash (hex)")
	cmd.Flags().StringVar(&f.product, "product", "", "Product id to derive the subject hash from")
	cmd.Flags().StringVar(&f.qualifier, "qualifier", "", "Batch number or serial for --product")
}

// dataset resolves the flags into a dataset descriptor, publishing the file
// first if asked to.
func (f *datasetFlags) dataset(ctx context.Context, cfg config.PublishConfig, logger *slog.Logger) (models.Dataset, error) {
	d := models.Dataset{URI: f.uri, Type: f.dtype}

	if f.hash != "" {
		h, err := models.ParseHash(f.hash)
		if err != nil {
			return d, err
		}
		d.PayloadHash = h
	}

	if f.file == "" {
		if f.publish {
			return d, fmt.Errorf("--publish needs --file")
		}
		return d, nil
	}

	data, err := os.ReadFile(f.file)
	if err != nil {
		return d, fmt.Errorf("read dataset: %w", err)
	}
	computed := dataset.PayloadHash(data)
	if f.hash != "" && computed != d.PayloadHash {
		return d, fmt.Errorf("--hash does not match %s (%s)", f.file, computed.Hex())
	}
	d.PayloadHash = computed

	if f.publish {
		pub, err := dataset.NewPublisher(cfg, logger)
		if err != nil {
			return d, err
		}
		p, err := pub.Publish(ctx, filepath.Base(f.file), data)
		if err != nil {
			return d, fmt.Errorf("publish to %s: %w", pub.Name(), err)
		}
		if f.uri != "" && f.uri != p.URI {
			return d, fmt.Errorf("--uri conflicts with published URI %s", p.URI)
		}
		d.URI = p.URI
		fmt.Printf("Published %d bytes to %s\n", p.Size, p.URI)
	}
	return d, nil
}

// subjectHash resolves --subject or --product into a hash, nil if neither is set.
func (f *datasetFlags) subjectHash(g models.Granularity) (*models.Hash, error) {
	switch {
	case f.subject != "" && f.product != "":
		return nil, fmt.Errorf("--subject and --product are mutually exclusive")
	case f.subject != "":
		h, err := models.ParseHash(f.subject)
		if err != nil {
			return nil, err
		}
		return &h, nil
	case f.product != "":
		h, err := dataset.SubjectHash(g, f.product, f.qualifier)
		if err != nil {
			return nil, err
		}
		return &h, nil
	}
	return nil, nil
}

var registerFlags datasetFlags
var registerGranularity string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new passport",
	Long: `Register a new passport issued and owned by the caller.

Examples:
  dpp register --uri ipfs://bafy... --hash 0x12.. --granularity item --product 4006381333931 --qualifier SN-1
  dpp register --file passport.json --publish --granularity batch --product 4006381333931 --qualifier LOT-7`,
	Args: cobra.NoArgs,
	Run:  runRegister,
}

var updateFlags datasetFlags

var updateCmd = &cobra.Command{
	Use:   "update <token-id>",
	Short: "Point a passport at a new dataset version",
	Long: `Record a new dataset version for a passport. Only the original issuer
may update, and revoked passports cannot change.

The subject hash is replaced by --subject/--product, or cleared when neither
is given. Index entries for previous subject hashes are kept.`,
	Args: cobra.ExactArgs(1),
	Run:  runUpdate,
}

var revokeReason string

var revokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke a passport",
	Long:  `Permanently revoke a passport. Only the original issuer may revoke.`,
	Args:  cobra.ExactArgs(1),
	Run:   runRevoke,
}

var showCmd = &cobra.Command{
	Use:   "show <token-id>",
	Short: "Show passport details",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

var nextIDCmd = &cobra.Command{
	Use:   "next-id",
	Short: "Print the id the next registration will receive",
	Args:  cobra.NoArgs,
	Run:   runNextID,
}

func init() {
	registerFlags.bind(registerCmd)
	registerCmd.Flags().StringVar(&registerGranularity, "granularity", "item", "product_class, batch or item")
	registerCmd.RegisterFlagCompletionFunc("granularity", completeGranularity)

	updateFlags.bind(updateCmd)

	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "Reason recorded in the revocation event")
}

func runRegister(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	g, err := models.ParseGranularity(registerGranularity)
	if err != nil {
		exitError("%v", err)
	}
	d, err := registerFlags.dataset(ctx, c.Config.Publish, c.Logger)
	if err != nil {
		exitError("%v", err)
	}
	subject, err := registerFlags.subjectHash(g)
	if err != nil {
		exitError("%v", err)
	}

	id, err := c.Client.RegisterPassport(ctx, passport.Registration{Dataset: d, Granularity: g, SubjectIDHash: subject})
	if err != nil {
		failed("register", err)
	}

	color.Green("Registered passport %d", id)
	if subject != nil {
		fmt.Printf("Subject: %s\n", subject.Hex())
	}
}

func runUpdate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])

	var subject *models.Hash
	if updateFlags.product != "" {
		// Deriving from a product id needs the passport's granularity
		rec, err := c.Client.GetPassport(ctx, id)
		if err != nil {
			failed("update", err)
		}
		if rec == nil {
			failed("update", passport.ErrTokenNotFound)
		}
		subject, err = updateFlags.subjectHash(rec.Granularity)
		if err != nil {
			exitError("%v", err)
		}
	} else {
		var err error
		subject, err = updateFlags.subjectHash("")
		if err != nil {
			exitError("%v", err)
		}
	}

	d, err := updateFlags.dataset(ctx, c.Config.Publish, c.Logger)
	if err != nil {
		exitError("%v", err)
	}

	if err := c.Client.UpdateDataset(ctx, id, passport.DatasetUpdate{Dataset: d, SubjectIDHash: subject}); err != nil {
		failed("update", err)
	}

	rec, err := c.Client.GetPassport(ctx, id)
	if err != nil || rec == nil {
		color.Green("Updated passport %d", id)
		return
	}
	color.Green("Updated passport %d to version %d", id, rec.Version)
}

func runRevoke(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	var reason *string
	if revokeReason != "" {
		reason = &revokeReason
	}
	if err := c.Client.RevokePassport(ctx, id, reason); err != nil {
		failed("revoke", err)
	}
	color.Red("Revoked passport %d", id)
}

func runShow(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id := mustTokenID(args[0])
	rec, err := c.Client.GetPassport(ctx, id)
	if err != nil {
		failed("show", err)
	}
	if rec == nil {
		exitError("passport %d not found", id)
	}
	printPassport(rec)

	owner, err := c.Client.OwnerOf(ctx, id)
	if err == nil && owner != nil {
		fmt.Printf("Owner:       %s\n", owner.Hex())
	}
	approved, err := c.Client.GetApproved(ctx, id)
	if err == nil && approved != nil {
		fmt.Printf("Approved:    %s\n", approved.Hex())
	}
}

func runNextID(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	next, err := c.Client.NextTokenID(ctx)
	if err != nil {
		failed("next-id", err)
	}
	fmt.Println(next)
}
