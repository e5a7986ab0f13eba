// Package dataset prepares off-registry datasets for anchoring: it computes
// payload and subject hashes and publishes dataset bytes to IPFS, S3 or a
// local directory. The registry itself only stores the resulting URI and hash.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kilupskalvis/dpp/internal/config"
	"github.com/kilupskalvis/dpp/internal/models"
)

// Published describes an uploaded dataset.
type Published struct {
	URI         string
	PayloadHash models.Hash
	Size        int
}

// Publisher uploads dataset bytes and returns where they can be resolved.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) (Published, error)
	Name() string
}

// PayloadHash returns the SHA-256 digest of data.
func PayloadHash(data []byte) models.Hash {
	return models.Hash(sha256.Sum256(data))
}

// SubjectHash hashes the canonical subject identifier of a passport. The
// identifier is the product id for product classes, and "product#qualifier"
// with the batch number or serial for batches and items.
func SubjectHash(g models.Granularity, productID, qualifier string) (models.Hash, error) {
	if productID == "" {
		return models.Hash{}, fmt.Errorf("product id is required")
	}
	canonical := productID
	switch g {
	case models.GranularityProductClass:
		if qualifier != "" {
			return models.Hash{}, fmt.Errorf("product class subjects take no qualifier")
		}
	case models.GranularityBatch, models.GranularityItem:
		if qualifier == "" {
			return models.Hash{}, fmt.Errorf("%s subjects need a qualifier", g)
		}
		canonical = productID + "#" + qualifier
	default:
		return models.Hash{}, fmt.Errorf("unknown granularity %q", g)
	}
	return PayloadHash([]byte(canonical)), nil
}

// objectName is the content-addressed name used by every publisher.
func objectName(hash models.Hash, name string) string {
	return hex.EncodeToString(hash[:]) + filepath.Ext(name)
}

// NewPublisher builds the publisher selected in cfg.
func NewPublisher(cfg config.PublishConfig, log *slog.Logger) (Publisher, error) {
	switch cfg.Target {
	case "ipfs":
		api := cfg.IPFSAPI
		if api == "" {
			api = "localhost:5001"
		}
		return NewIPFSPublisher(api, log), nil
	case "s3":
		return NewS3Publisher(cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint, log)
	case "dir":
		return NewDirPublisher(cfg.Dir)
	case "":
		return nil, fmt.Errorf("no publish target configured")
	default:
		return nil, fmt.Errorf("unknown publish target %q", cfg.Target)
	}
}
