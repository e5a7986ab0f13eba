package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
)

var (
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

func parseTokenID(s string) (models.TokenID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", s)
	}
	return models.TokenID(n), nil
}

func mustTokenID(s string) models.TokenID {
	id, err := parseTokenID(s)
	if err != nil {
		exitError("%v", err)
	}
	return id
}

func mustAddress(s string) models.Address {
	a, err := models.ParseAddress(s)
	if err != nil {
		exitError("%v", err)
	}
	return a
}

// failed reports a registry error, prefixed with its machine code when it
// has one.
func failed(op string, err error) {
	if code := passport.Code(err); code != "" {
		exitError("%s: [%s] %v", op, code, err)
	}
	exitError("%s: %v", op, err)
}

// formatCounter renders a counter value. Values that look like Unix seconds
// are shown as dates too.
func formatCounter(n uint64) string {
	const year2001 = 978307200
	if n >= year2001 && n < 1<<33 {
		return fmt.Sprintf("%d (%s)", n, time.Unix(int64(n), 0).UTC().Format(time.RFC3339))
	}
	return strconv.FormatUint(n, 10)
}

func statusColor(s models.Status) *color.Color {
	switch s {
	case models.StatusActive:
		return green
	case models.StatusRevoked:
		return red
	}
	return yellow
}

func printPassport(rec *models.PassportRecord) {
	yellow.Printf("passport %d", rec.TokenID)
	fmt.Print(" ")
	statusColor(rec.Status).Printf("[%s]\n", rec.Status)
	fmt.Printf("Issuer:      %s\n", rec.Issuer.Hex())
	fmt.Printf("Granularity: %s\n", rec.Granularity)
	if rec.SubjectIDHash != nil {
		fmt.Printf("Subject:     %s\n", rec.SubjectIDHash.Hex())
	}
	fmt.Printf("Version:     %d\n", rec.Version)
	fmt.Printf("Dataset:     %s\n", rec.DatasetURI)
	fmt.Printf("Type:        %s\n", rec.DatasetType)
	fmt.Printf("Payload:     %s\n", rec.PayloadHash.Hex())
	fmt.Printf("Created:     %s\n", formatCounter(rec.CreatedAt))
	fmt.Printf("Updated:     %s\n", formatCounter(rec.UpdatedAt))
}

func printVersion(e models.VersionEntry) {
	yellow.Printf("version %d\n", e.Version)
	fmt.Printf("By:      %s\n", e.UpdatedBy.Hex())
	fmt.Printf("At:      %s\n", formatCounter(e.UpdatedAt))
	fmt.Printf("\n    %s\n", e.DatasetURI)
	fmt.Printf("    %s  %s\n\n", e.DatasetType, e.PayloadHash.Hex())
}

func printVersionOneline(e models.VersionEntry) {
	yellow.Printf("v%d ", e.Version)
	fmt.Printf("%s ", e.DatasetURI)
	cyan.Printf("(%s)\n", e.UpdatedBy.Hex())
}
