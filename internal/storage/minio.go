package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/configuration"
	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
)

// MinioStore keeps derivatives in an object-store bucket using the same
// owner/record key layout as the local backend.
type MinioStore struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

func NewMinioStore(ctx context.Context, cfg configuration.MinIOConfig, log *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Info("created bucket", zap.String("bucket", cfg.BucketName))
	}

	return &MinioStore{client: client, bucket: cfg.BucketName, log: log}, nil
}

func (s *MinioStore) Write(ctx context.Context, ownerID, weightID string, stamp int64, label models.SizeLabel, data []byte) (string, error) {
	relPath := BuildPath(ownerID, weightID, stamp, label, "jpg")
	if err := ValidatePath(relPath); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, s.bucket, relPath, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("upload derivative: %w", err)
	}
	return relPath, nil
}

func (s *MinioStore) Read(ctx context.Context, relPath string) ([]byte, error) {
	if err := ValidatePath(relPath); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, relPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get derivative: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("read derivative: %w", err)
	}
	return data, nil
}

func (s *MinioStore) DeleteAll(ctx context.Context, ownerID, weightID string) {
	if !segmentOK(ownerID) || !segmentOK(weightID) {
		s.log.Warn("refusing purge with unsafe path segment",
			zap.String("owner_id", ownerID), zap.String("weight_id", weightID))
		return
	}
	s.deletePrefix(ctx, ownerID+"/"+weightID+"/")
}

func (s *MinioStore) DeleteOwner(ctx context.Context, ownerID string) {
	if !segmentOK(ownerID) {
		s.log.Warn("refusing owner purge with unsafe segment", zap.String("owner_id", ownerID))
		return
	}
	s.deletePrefix(ctx, ownerID+"/")
}

func (s *MinioStore) deletePrefix(ctx context.Context, prefix string) {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			s.log.Warn("purge: list failed", zap.String("prefix", prefix), zap.Error(obj.Err))
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.log.Warn("purge: remove failed", zap.String("key", obj.Key), zap.Error(err))
		}
	}
}
