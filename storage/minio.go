package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"DropFM/config"
	"DropFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror copies merged library files to object storage. The local library
// stays authoritative; mirror failures never fail an attempt.
type Mirror interface {
	MirrorFiles(ctx context.Context, userID int64, libraryDir string, rels []string) MirrorResult
}

// MirrorResult 镜像结果
type MirrorResult struct {
	Uploaded int
	Failed   int
}

// Nop is used when mirroring is disabled.
type Nop struct{}

func (Nop) MirrorFiles(context.Context, int64, string, []string) MirrorResult { return MirrorResult{} }

// MinioStore 封装了 MinIO 客户端
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 初始化 MinIO 客户端并确保存储桶存在
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO connected",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

func (s *MinioStore) Bucket() string { return s.bucket }

// UserPrefix is the key prefix holding one user's mirrored library.
func UserPrefix(userID int64) string {
	return strconv.FormatInt(userID, 10) + "/"
}

// ObjectKey maps a library-relative path to <user_id>/<rel> with forward slashes.
func ObjectKey(userID int64, rel string) string {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	return UserPrefix(userID) + strings.TrimPrefix(clean, "/")
}

func (s *MinioStore) MirrorFiles(ctx context.Context, userID int64, libraryDir string, rels []string) MirrorResult {
	var res MirrorResult
	for _, rel := range rels {
		if ctx.Err() != nil {
			res.Failed += len(rels) - res.Uploaded - res.Failed
			break
		}
		key := ObjectKey(userID, rel)
		if err := s.upload(ctx, key, filepath.Join(libraryDir, rel)); err != nil {
			logger.Warn("Failed to mirror file",
				logger.String("bucket", s.bucket),
				logger.String("key", key),
				logger.ErrorField(err))
			res.Failed++
			continue
		}
		res.Uploaded++
	}
	if len(rels) > 0 {
		logger.Info("Library mirrored",
			logger.Int64("userId", userID),
			logger.Int("uploaded", res.Uploaded),
			logger.Int("failed", res.Failed))
	}
	return res
}

func (s *MinioStore) upload(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: inferContentType(file),
	})
	return err
}

var _ Mirror = (*MinioStore)(nil)
