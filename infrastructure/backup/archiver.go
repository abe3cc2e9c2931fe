package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores a finished archive and returns where it went.
type Archiver interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// DirArchiver writes archives into a local directory.
type DirArchiver struct {
	dir string
}

func NewDirArchiver(dir string) *DirArchiver {
	return &DirArchiver{dir: dir}
}

func (a *DirArchiver) Store(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	target := filepath.Join(a.dir, name)
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return target, nil
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// S3Archiver uploads archives to a bucket under prefix.
type S3Archiver struct {
	bucket string
	prefix string
	api    putObjectAPI
}

type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Archiver uses static keys when given and the default AWS chain otherwise.
// A custom endpoint (MinIO, R2) switches to path-style addressing.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is not configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = !strings.Contains(cfg.Endpoint, "amazonaws.com")
		}
	})
	return &S3Archiver{bucket: cfg.Bucket, prefix: cfg.Prefix, api: client}, nil
}

func (a *S3Archiver) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(a.prefix, name)
	contentType := "application/zip"
	_, err := a.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload backup to s3: %w", err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}
