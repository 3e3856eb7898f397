// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func init() {
	Register("s3", func(ctx context.Context, cfg Config) (notify.Publisher, error) {
		return NewS3Publisher(ctx, cfg.S3)
	})
}

// objectPutter is the subset of the S3 client used for archiving.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher archives each notification as one JSON object.
type S3Publisher struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Publisher creates an S3 client for the archive bucket.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for s3 publisher")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	logger.Info().
		Str("bucket", cfg.Bucket).
		Str("prefix", cfg.Prefix).
		Str("endpoint", cfg.Endpoint).
		Msg("s3 archive publisher configured")

	return &S3Publisher{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Name returns the publisher identifier.
func (p *S3Publisher) Name() string {
	return "s3"
}

// ObjectKey returns the archive key for n:
// [prefix]YYYY/MM/DD/HH/<message_id>.json, bucketed by notification time.
func (p *S3Publisher) ObjectKey(n *notify.Notification) string {
	return fmt.Sprintf("%s%s/%s.json",
		p.prefix,
		n.Timestamp.UTC().Format("2006/01/02/15"),
		n.MessageID,
	)
}

// Publish uploads n.
func (p *S3Publisher) Publish(ctx context.Context, n *notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := p.ObjectKey(n)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	logger.Debug().
		Str("bucket", p.bucket).
		Str("key", key).
		Int("size", len(data)).
		Msg("archived notification to s3")
	return nil
}

// Close is a no-op.
func (p *S3Publisher) Close() error {
	return nil
}
