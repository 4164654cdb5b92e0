// Package storage persists audit reports to a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore defines the interface for abstract storage backends.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open returns the store behind location: an S3Store for s3://bucket/prefix URLs and a
// LocalStore rooted at location otherwise. S3 credentials and region come from the
// default AWS chain.
func Open(ctx context.Context, location string, opts ...S3Option) (BlobStore, error) {
	if !strings.HasPrefix(location, "s3://") {
		if location == "" {
			return nil, fmt.Errorf("empty storage location")
		}
		return NewLocalStore(location), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid storage url %q: %w", location, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("storage url %q has no bucket", location)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	opts = append([]S3Option{WithPrefix(strings.Trim(u.Path, "/"))}, opts...)
	return NewS3Store(cfg, u.Host, opts...), nil
}
