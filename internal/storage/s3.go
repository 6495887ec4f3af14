package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ErrS3NotConfigured means none of the S3_* variables are set; exports are
// then simply unavailable.
var ErrS3NotConfigured = errors.New("S3 export storage not configured")

func LoadS3ConfigFromEnv() (S3Config, error) {
	cfg := S3Config{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
	}
	if cfg.Endpoint == "" && cfg.Bucket == "" && cfg.AccessKey == "" && cfg.SecretKey == "" {
		return S3Config{}, ErrS3NotConfigured
	}
	if useSSL := strings.TrimSpace(os.Getenv("S3_USE_SSL")); useSSL != "" {
		b, err := strconv.ParseBool(useSSL)
		if err != nil {
			return S3Config{}, fmt.Errorf("invalid S3_USE_SSL: %w", err)
		}
		cfg.UseSSL = b
	}

	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return S3Config{}, errors.New("missing required S3 env: S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY")
	}
	// Region can be empty for MinIO.
	return cfg, nil
}

type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3Storage{client: cl, bucket: cfg.Bucket}, nil
}

type ObjectStat struct {
	ETag         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

func (s *S3Storage) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectStat, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ObjectStat{}, err
	}
	// minio-go returns ETag without quotes typically.
	return ObjectStat{ETag: info.ETag, Size: info.Size, ContentType: contentType, LastModified: time.Now().UTC()}, nil
}

func (s *S3Storage) StatObject(ctx context.Context, key string) (ObjectStat, error) {
	st, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectStat{}, err
	}
	return ObjectStat{ETag: st.ETag, Size: st.Size, ContentType: st.ContentType, LastModified: st.LastModified}, nil
}

// EnsureBucket creates the export bucket when it is missing.
func (s *S3Storage) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

func (s *S3Storage) Bucket() string { return s.bucket }
