package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/duffmetro/metroscope/internal/model"
)

// S3Store persists the preprocessed table as CSV in an S3 bucket so a
// cleaned dataset can be shared without re-running ingestion.
type S3Store struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Store builds a store from configuration. Returns an error when the
// bucket or key is not configured; callers treat that as "persistence off".
func NewS3Store(ctx context.Context, cfg model.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("s3 persistence not configured (bucket and key required)")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		key:    cfg.Key,
	}, nil
}

// Exists checks whether a preprocessed table is already stored.
func (s *S3Store) Exists(ctx context.Context) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head s3 object: %w", err)
	}
	return true, nil
}

// Save uploads the table as CSV, replacing any existing object.
func (s *S3Store) Save(ctx context.Context, table *Table) error {
	csvBytes, err := table.MarshalCSV()
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(csvBytes),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("put s3 object: %w", err)
	}
	return nil
}

// Load downloads the stored table. The version hash is recomputed from the
// downloaded CSV bytes, so repeated S3 loads agree with each other; a table
// first ingested from another format (e.g. .xlsx) gets a different version
// than its S3 copy, which costs at most a profile cache miss.
func (s *S3Store) Load(ctx context.Context) (*Table, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	csvBytes, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}

	return Load(csvBytes, ".csv", "")
}
