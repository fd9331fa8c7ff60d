package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewClient(cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return client, nil
}

// PayloadArchive keeps raw verified webhook bodies around for dispute
// investigation. It is write-only from the billing core's perspective.
type PayloadArchive struct {
	client *minio.Client
	bucket string
}

func NewPayloadArchive(client *minio.Client, bucket string) *PayloadArchive {
	return &PayloadArchive{
		client: client,
		bucket: bucket,
	}
}

func (a *PayloadArchive) Store(ctx context.Context, key string, payload []byte) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("s3 client is not configured")
	}
	if key == "" || len(payload) == 0 {
		return fmt.Errorf("invalid archive payload")
	}

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("archive webhook payload: %w", err)
	}

	return nil
}
