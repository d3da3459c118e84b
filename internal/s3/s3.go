// Package s3 archives scan reports in S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	mc *minio.Client
}

func New(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc}, nil
}

// PutJSON stores v as a JSON object at bucket/key, replacing any previous
// version.
func (c *Client) PutJSON(ctx context.Context, bucket, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = c.mc.PutObject(ctx, bucket, key, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// GetJSON decodes the object at bucket/key into v.
func (c *Client) GetJSON(ctx context.Context, bucket, key string, v any) error {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	return json.NewDecoder(obj).Decode(v)
}

// ReportKey is where the archived report of a scan lives.
func ReportKey(scanID string) string {
	return fmt.Sprintf("reports/%s.json", scanID)
}
