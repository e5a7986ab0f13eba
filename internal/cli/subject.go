package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/dpp/internal/dataset"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find [subject-hash]",
	Short: "Find the passport last associated with a subject",
	Long: `Look up a passport by subject id hash, or derive the hash from a
product id.

The index keeps the last token written for each hash, so a hash a passport
no longer carries may still resolve to it.

Examples:
  dpp find 0x9f86d0...
  dpp find --granularity item --product 4006381333931 --qualifier SN-1`,
	Args: cobra.MaximumNArgs(1),
	Run:  runFind,
}

var subjectHashCmd = &cobra.Command{
	Use:   "subject-hash",
	Short: "Compute the subject id hash for a product",
	Args:  cobra.NoArgs,
	Run:   runSubjectHash,
}

var (
	subjectGranularity string
	subjectProduct     string
	subjectQualifier   string
)

func init() {
	for _, cmd := range []*cobra.Command{findCmd, subjectHashCmd} {
		cmd.Flags().StringVar(&subjectGranularity, "granularity", "item", "product_class, batch or item")
		cmd.RegisterFlagCompletionFunc("granularity", completeGranularity)
		cmd.Flags().StringVar(&subjectProduct, "product", "", "Product id (GTIN or similar)")
		cmd.Flags().StringVar(&subjectQualifier, "qualifier", "", "Batch number or serial")
	}
}

func deriveSubject() (models.Hash, error) {
	g, err := models.ParseGranularity(subjectGranularity)
	if err != nil {
		return models.Hash{}, err
	}
	return dataset.SubjectHash(g, subjectProduct, subjectQualifier)
}

func runFind(cmd *cobra.Command, args []string) {
	var (
		subject models.Hash
		err     error
	)
	switch {
	case len(args) == 1 && subjectProduct != "":
		exitError("pass either a subject hash or --product, not both")
	case len(args) == 1:
		subject, err = models.ParseHash(args[0])
	default:
		subject, err = deriveSubject()
	}
	if err != nil {
		exitError("%v", err)
	}

	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	id, ok, err := c.Client.FindTokenBySubjectID(ctx, subject)
	if err != nil {
		failed("find", err)
	}
	if !ok {
		exitError("no passport for subject %s", subject.Hex())
	}
	fmt.Println(id)
}

func runSubjectHash(cmd *cobra.Command, args []string) {
	h, err := deriveSubject()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println(h.Hex())
}
