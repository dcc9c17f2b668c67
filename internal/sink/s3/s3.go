package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/loykin/apifetch/internal/sink/spool"
)

// Config holds S3 connection settings. Empty credentials fall back to the default AWS chain.
type Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	ContentType     string `mapstructure:"content_type" yaml:"content_type"`
}

// PutObjectAPI is the part of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sink uploads whole objects to S3, overwriting existing keys.
type Sink struct {
	client      PutObjectAPI
	contentType string
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible stores often reject streaming checksum trailers
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return NewWithClient(client, cfg.ContentType), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client PutObjectAPI, contentType string) *Sink {
	return &Sink{client: client, contentType: contentType}
}

func buildAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	// attempts are retried by the action itself
	optFns = append(optFns, awsconfig.WithRetryMaxAttempts(1))
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// ParseLocation splits s3://bucket/key.
func ParseLocation(dest string) (bucket, key string, err error) {
	u, err := url.Parse(dest)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 location: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 location: %s", dest)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location needs bucket and key: %s", dest)
	}
	return bucket, key, nil
}

// Create returns a writer that uploads the object on Commit.
func (s *Sink) Create(ctx context.Context, dest string) (*spool.Writer, error) {
	bucket, key, err := ParseLocation(dest)
	if err != nil {
		return nil, err
	}
	return spool.New(ctx, func(ctx context.Context, body io.ReadSeeker, size int64) error {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
		}
		if s.contentType != "" {
			input.ContentType = aws.String(s.contentType)
		}
		if _, err := s.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("failed to put object s3://%s/%s: %w", bucket, key, err)
		}
		return nil
	})
}
