// Package s3 stores receipt images in an S3-compatible bucket (Cloudflare R2
// or any other S3 endpoint).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// ReceiptStorage stores receipt images in an S3-compatible bucket. The URLs
// it returns are opaque handles to callers; Delete accepts either a URL
// previously returned by Save or a bare key.
type ReceiptStorage struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	endpoint   string
	bucketName string
}

// NewReceiptStorage creates a receipt storage instance against an
// S3-compatible endpoint.
func NewReceiptStorage(endpoint, region, bucketName, accessKeyID, secretAccessKey string) (*ReceiptStorage, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: &endpoint,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	})

	return &ReceiptStorage{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		endpoint:   endpoint,
		bucketName: bucketName,
	}, nil
}

// validateKey rejects storage keys containing path traversal segments.
func validateKey(key string) error {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}

// Save uploads a receipt image and returns its URL. The content type is
// sniffed from the data.
func (s *ReceiptStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	contentType := mimetype.Detect(data).String()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucketName,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucketName, key), nil
}

// Delete removes a receipt image. Deleting is idempotent at the S3 level, so
// releasing an already-gone receipt is not an error.
func (s *ReceiptStorage) Delete(ctx context.Context, url string) error {
	key := s.keyFromURL(url)
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucketName,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("delete object failed: %w", err)
	}
	return nil
}

// GetURL returns a presigned download URL with a 5-minute TTL.
func (s *ReceiptStorage) GetURL(ctx context.Context, key string) (string, error) {
	key = s.keyFromURL(key)
	if err := validateKey(key); err != nil {
		return "", err
	}
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucketName,
		Key:    &key,
	}, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}
	return result.URL, nil
}

// keyFromURL maps a URL previously returned by Save back to its object key.
// Bare keys pass through unchanged.
func (s *ReceiptStorage) keyFromURL(url string) string {
	prefix := s.endpoint + "/" + s.bucketName + "/"
	if strings.HasPrefix(url, prefix) {
		return strings.TrimPrefix(url, prefix)
	}
	return url
}
