package dataset

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Publisher uploads datasets to an S3 (or compatible) bucket under their
// content hash. Credentials come from the default AWS chain.
type S3Publisher struct {
	client s3iface.S3API
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Publisher creates a publisher for bucket.
func NewS3Publisher(bucket, prefix, region, endpoint string, log *slog.Logger) (*S3Publisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Publisher{client: s3.New(sess), bucket: bucket, prefix: strings.Trim(prefix, "/"), log: log}, nil
}

func (p *S3Publisher) key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func (p *S3Publisher) Publish(ctx context.Context, name string, data []byte) (Published, error) {
	hash := PayloadHash(data)
	key := p.key(objectName(hash, name))

	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return Published{}, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	p.log.Debug("Stored dataset in S3",
		slog.String("bucket", p.bucket),
		slog.String("key", key),
		slog.String("payload_hash", hash.Hex()))

	return Published{URI: fmt.Sprintf("s3://%s/%s", p.bucket, key), PayloadHash: hash, Size: len(data)}, nil
}

func (p *S3Publisher) Name() string {
	return "s3-" + p.bucket
}
