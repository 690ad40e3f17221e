package attachment

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/sanitize"
)

// MinioUploader stores attachments in a MinIO (S3-compatible) bucket
type MinioUploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// MinioConfig holds MinIO connection configuration
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base URL for stored objects
	PublicURL string
}

// NewMinioUploader creates a new MinioUploader and ensures the bucket exists
func NewMinioUploader(ctx context.Context, config *MinioConfig) (*MinioUploader, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created attachment bucket", zap.String("bucket", config.Bucket))
	}

	return &MinioUploader{
		client:    client,
		bucket:    config.Bucket,
		publicURL: config.PublicURL,
	}, nil
}

// Upload stores the file and returns its attachment descriptor
func (u *MinioUploader) Upload(ctx context.Context, input UploadInput) (*domain.Attachment, error) {
	filename := sanitize.Filename(input.Filename)

	// Object names are date-partitioned so buckets stay listable
	objectName := fmt.Sprintf("%s/%s%s",
		time.Now().UTC().Format("2006/01/02"),
		uuid.New().String(),
		path.Ext(filename),
	)

	opts := minio.PutObjectOptions{
		ContentType: input.ContentType,
		UserMetadata: map[string]string{
			"original-filename": filename,
			"uploader-id":       input.UploaderID,
		},
	}

	info, err := u.client.PutObject(ctx, u.bucket, objectName, input.Reader, input.Size, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	logger.Debug("attachment uploaded",
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
	)

	return &domain.Attachment{
		Filename: filename,
		URL:      fmt.Sprintf("%s/%s/%s", u.publicURL, u.bucket, objectName),
		Size:     info.Size,
		MimeType: input.ContentType,
	}, nil
}

// Delete removes a stored object
func (u *MinioUploader) Delete(ctx context.Context, objectName string) error {
	err := u.client.RemoveObject(ctx, u.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
