package lode

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates a journal in S3 or an S3-compatible store (R2, MinIO).
// Credentials come from the AWS default chain.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string // empty uses the default chain
	Endpoint     string // empty uses AWS
	UsePathStyle bool
}

// ParseS3Path splits "bucket/prefix" or "s3://bucket/prefix". Leading and
// trailing slashes on the prefix are dropped.
func ParseS3Path(p string) (bucket, prefix string) {
	p = strings.TrimPrefix(p, "s3://")
	bucket, prefix, _ = strings.Cut(p, "/")
	return bucket, strings.Trim(prefix, "/")
}

// Validate checks the bucket name against the S3 naming rules.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if n := len(c.Bucket); n < 3 || n > 63 {
		return fmt.Errorf("S3 bucket %q must be 3 to 63 characters", c.Bucket)
	}
	for _, r := range c.Bucket {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.') {
			return fmt.Errorf("S3 bucket %q may only contain lowercase letters, digits, '-' and '.'", c.Bucket)
		}
	}
	return nil
}

// URI returns the s3:// location of the journal root.
func (c *S3Config) URI() string {
	return "s3://" + path.Join(c.Bucket, c.Prefix)
}

// NewS3Factory builds a Lode store factory over a single S3 client.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("load AWS config: %w", err), s3cfg.URI())
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}
