package objstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// bucketClient implements BlobLike for any S3 compatible API.
type bucketClient struct {
	s3svc  *s3.Client
	bucket string
}

func (c *bucketClient) bucketOr(bucket string) *string {
	if bucket == "" {
		bucket = c.bucket
	}
	return aws.String(bucket)
}

func (c *bucketClient) GetObject(ctx context.Context, in GetObjectInput) (io.ReadCloser, error) {
	obj, err := c.s3svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: c.bucketOr(in.Bucket),
		Key:    aws.String(in.Key),
	})
	if err != nil {
		return nil, err
	}
	return obj.Body, nil
}

func (c *bucketClient) PutObject(ctx context.Context, in PutObjectInput) error {
	uploader := manager.NewUploader(c.s3svc, func(u *manager.Uploader) {
		// PartSize (upload buffer size) is minimum 5MB
		u.Concurrency = 5
		u.LeavePartsOnError = false
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: c.bucketOr(in.Bucket),
		Key:    aws.String(in.Key),
		Body:   in.Data,
	})
	return err
}

func (c *bucketClient) GetSignedURL(ctx context.Context, in SignedURLInput) (string, error) {
	presignClient := s3.NewPresignClient(c.s3svc)

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: c.bucketOr(in.Bucket),
		Key:    aws.String(in.Key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return req.URL, nil
}
