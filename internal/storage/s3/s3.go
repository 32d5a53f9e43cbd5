// Package s3 stores gzipped session transcripts in S3 for evidence
// retention and offline analysis.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3 connection and behavior configuration.
type Config struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// Endpoint is an optional custom endpoint for S3-compatible storage
	// such as MinIO.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Static credentials. IAM is used when not set.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`

	StorageClass         string `yaml:"storage_class"`
	ServerSideEncryption string `yaml:"server_side_encryption,omitempty"`
	UsePathStyle         bool   `yaml:"use_path_style"`

	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Region:           "us-east-1",
		Bucket:           "honeytrap-transcripts",
		Prefix:           "transcripts/",
		StorageClass:     "INTELLIGENT_TIERING",
		RetryMaxAttempts: 3,
		Timeout:          time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	return nil
}

func (c *Config) storageClass() types.StorageClass {
	for _, sc := range types.StorageClassStandard.Values() {
		if string(sc) == c.StorageClass {
			return sc
		}
	}
	return types.StorageClassStandard
}

// Client is a thin S3 client for transcript objects.
type Client struct {
	client *s3.Client
	config *Config
	logger *slog.Logger

	bytesUploaded   atomic.Int64
	objectsUploaded atomic.Int64
	errors          atomic.Int64
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	if cfg.RetryMaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	c := &Client{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		logger: logger.With("component", "s3"),
	}

	c.logger.Info("s3 client initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"storage_class", cfg.StorageClass,
	)
	return c, nil
}

// Put uploads an object under the configured prefix.
func (c *Client) Put(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) (string, error) {
	fullKey := c.config.Prefix + key

	input := &s3.PutObjectInput{
		Bucket:       aws.String(c.config.Bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(body),
		StorageClass: c.config.storageClass(),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	switch c.config.ServerSideEncryption {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		c.errors.Add(1)
		return "", fmt.Errorf("s3: upload %s: %w", fullKey, err)
	}

	c.bytesUploaded.Add(int64(len(body)))
	c.objectsUploaded.Add(1)
	c.logger.Debug("uploaded object", "key", fullKey, "size", len(body))

	return fmt.Sprintf("s3://%s/%s", c.config.Bucket, fullKey), nil
}

// Get downloads an object from under the configured prefix.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := c.config.Prefix + key

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("s3: download %s: %w", fullKey, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", fullKey, err)
	}
	return data, nil
}

// List returns object keys under the configured prefix plus the given
// subprefix, with the configured prefix stripped.
func (c *Client) List(ctx context.Context, subPrefix string) ([]string, error) {
	fullPrefix := c.config.Prefix + subPrefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.errors.Add(1)
			return nil, fmt.Errorf("s3: list %s: %w", fullPrefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if len(key) > len(c.config.Prefix) {
				keys = append(keys, key[len(c.config.Prefix):])
			}
		}
	}
	return keys, nil
}

// Stats returns upload counters.
func (c *Client) Stats() (bytesUploaded, objectsUploaded, errors int64) {
	return c.bytesUploaded.Load(), c.objectsUploaded.Load(), c.errors.Load()
}
