// Package archive uploads audit log exports to S3-compatible object
// storage (R2, MinIO, S3 proper) for long-term retention.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Content types for the supported export formats.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

// ErrUnsupportedFormat is returned for extensions other than csv/json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// contentTypes maps export file extensions to MIME types.
var contentTypes = map[string]string{
	"csv":  ContentTypeCSV,
	"json": ContentTypeJSON,
}

// StoredExport describes an uploaded export object.
type StoredExport struct {
	Key      string    `json:"key"`
	Bucket   string    `json:"bucket"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Service handles archiving exports to object storage.
type Service struct {
	s3Client   *s3.Client
	bucketName string
	timeNow    func() time.Time // For testability
}

// ServiceConfig holds configuration for the archive service.
type ServiceConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// NewService creates a new archive service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	// R2-compatible client configuration
	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		s3Client:   s3Client,
		bucketName: cfg.BucketName,
		timeNow:    time.Now,
	}, nil
}

// ObjectKey creates a date-partitioned key for an export.
// Pattern: exports/{yyyy}/{mm}/{dd}/{uuid}.{ext}
func (s *Service) ObjectKey(ext string) (string, error) {
	if _, ok := contentTypes[ext]; !ok {
		return "", ErrUnsupportedFormat
	}
	now := s.timeNow().UTC()
	return fmt.Sprintf("exports/%04d/%02d/%02d/%s.%s",
		now.Year(), now.Month(), now.Day(), uuid.New().String(), ext), nil
}

// StoreExport uploads an export payload and returns its object metadata.
func (s *Service) StoreExport(ctx context.Context, ext string, data []byte) (*StoredExport, error) {
	key, err := s.ObjectKey(ext)
	if err != nil {
		return nil, err
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentTypes[ext]),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	return &StoredExport{
		Key:      key,
		Bucket:   s.bucketName,
		Size:     int64(len(data)),
		StoredAt: s.timeNow().UTC(),
	}, nil
}
