package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ObjectInfo is the subset of object metadata the pipeline reads. Metadata
// keys are lower-cased regardless of backend.
type ObjectInfo struct {
	Key         string
	ContentType string
	Size        int64
	Metadata    map[string]string
}

type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64, metadata map[string]string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

func normalizeMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, "x-amz-meta-")
		out[k] = v
	}
	return out
}

// Open connects the configured backend. MinIO buckets are created on first
// use; S3 buckets are provisioned out of band.
func Open(ctx context.Context, cfg *Config, awsCfg aws.Config) (Storage, error) {
	switch cfg.Backend {
	case "minio":
		s, err := NewMinIOStorage(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "s3", "":
		return NewS3Storage(awsCfg, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
