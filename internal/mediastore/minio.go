package mediastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/phrazzld/scry-deckgen/internal/config"
)

// MinioStore keeps artifacts in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore connects to the endpoint and creates the bucket if it does not exist.
func NewMinioStore(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (*MinioStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("minio endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket cannot be empty")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created media bucket", "bucket", cfg.Bucket)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.With("component", "media_store", "bucket", cfg.Bucket),
	}, nil
}

// Name implements Store
func (s *MinioStore) Name() string {
	return "minio " + s.bucket
}

// objectName maps an artifact name to its key in the bucket
func objectName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Exists implements Store
func (s *MinioStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, objectName(s.prefix, name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", name, err)
}

// Put implements Store. The local file is removed after a successful upload.
func (s *MinioStore) Put(ctx context.Context, name, localPath string) error {
	if err := validateName(name); err != nil {
		return err
	}

	info, err := s.client.FPutObject(ctx, s.bucket, objectName(s.prefix, name), localPath,
		minio.PutObjectOptions{ContentType: contentType(name)})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	_ = os.Remove(localPath)

	s.logger.DebugContext(ctx, "stored artifact", "name", name, "size", info.Size)
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
