package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Kinds of output artifacts a runner may produce. Each maps to a fixed
// object key under the job's prefix; absent objects are simply omitted
// from status responses.
var artifactKinds = []struct {
	Name string
	Key  string
}{
	{"screenshot", "screenshot.png"},
	{"capture", "capture.html"},
	{"execution_log", "execution.log"},
	{"error", "error.json"},
	{"heartbeat", "heartbeat.json"},
}

type Option func(c *storeConfig)

type storeConfig struct {
	endpoint      string
	bucket        string
	accessKey     string
	secretKey     string
	useSSL        bool
	presignExpiry time.Duration
}

func newConfig(opts ...Option) *storeConfig {
	cfg := &storeConfig{
		useSSL:        false,
		presignExpiry: time.Hour,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Store resolves and uploads job output artifacts in blob storage.
type Store struct {
	cfg    *storeConfig
	client *minio.Client
}

func NewStore(opts ...Option) (*Store, error) {
	cfg := newConfig(opts...)

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &Store{cfg: cfg, client: minioClient}, nil
}

func objectKey(jobID, name string) string {
	return fmt.Sprintf("tasks/%s/%s", jobID, name)
}

// ResolveURLs returns a presigned, time-limited URL per artifact kind that
// exists for the job. A missing artifact is skipped, never an error: a
// failed job may have uploaded only some of its outputs.
func (s *Store) ResolveURLs(ctx context.Context, jobID string) map[string]string {
	urls := make(map[string]string)
	for _, kind := range artifactKinds {
		key := objectKey(jobID, kind.Key)
		if _, err := s.client.StatObject(ctx, s.cfg.bucket, key, minio.StatObjectOptions{}); err != nil {
			continue
		}

		u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, s.cfg.presignExpiry, url.Values{})
		if err != nil {
			zap.S().Named("artifacts").Warnw("failed to presign artifact",
				"job", jobID, "artifact", kind.Name, "error", err)
			continue
		}
		urls[kind.Name] = u.String()
	}
	return urls
}

// Upload writes one artifact object for a job. Used by the runner.
func (s *Store) Upload(ctx context.Context, jobID, name string, data []byte, contentType string) error {
	key := objectKey(jobID, name)
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func WithEndpoint(endpoint string) Option {
	return func(c *storeConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) Option {
	return func(c *storeConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) Option {
	return func(c *storeConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) Option {
	return func(c *storeConfig) {
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) Option {
	return func(c *storeConfig) {
		c.useSSL = useSSL
	}
}

func WithPresignExpiry(d time.Duration) Option {
	return func(c *storeConfig) {
		c.presignExpiry = d
	}
}
