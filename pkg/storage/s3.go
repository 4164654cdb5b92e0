package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store implements BlobStore for AWS S3 and S3-compatible endpoints.
type S3Store struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

type s3Options struct {
	prefix    string
	endpoint  string
	pathStyle bool
}

// S3Option tunes NewS3Store.
type S3Option func(*s3Options)

// WithPrefix stores every key under prefix.
func WithPrefix(prefix string) S3Option {
	return func(o *s3Options) { o.prefix = prefix }
}

// WithEndpoint points the client at an S3-compatible endpoint such as MinIO or LocalStack.
func WithEndpoint(endpoint string) S3Option {
	return func(o *s3Options) { o.endpoint = endpoint }
}

// WithPathStyle addresses buckets as endpoint/bucket instead of bucket.endpoint.
func WithPathStyle() S3Option {
	return func(o *s3Options) { o.pathStyle = true }
}

func NewS3Store(cfg aws.Config, bucket string, opts ...S3Option) *S3Store {
	var o s3Options
	for _, opt := range opts {
		opt(&o)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
		}
		so.UsePathStyle = o.pathStyle
	})

	return &S3Store{
		Client: client,
		Bucket: bucket,
		Prefix: strings.Trim(o.prefix, "/"),
	}
}

func (s *S3Store) objectKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return path.Join(s.Prefix, key)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download from s3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// List returns keys relative to the store prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := s.objectKey(prefix)
	if s.Prefix != "" && prefix == "" {
		listPrefix = s.Prefix + "/"
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(listPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if s.Prefix != "" {
				key = strings.TrimPrefix(key, s.Prefix+"/")
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
