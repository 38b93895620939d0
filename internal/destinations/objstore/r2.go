package objstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2 is Cloudflare R2 through its S3 compatible endpoint.
type R2 struct {
	bucketClient
}

type R2Config struct {
	Account         string `json:"account"`
	Jurisdiction    string `json:"jurisdiction"`
	Bucket          string `json:"bucket,omitempty"`
	AccessKeyID     string `json:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey"`
	Type            string `json:"type"`
}

func NewR2(cfg R2Config) (*R2, error) {
	r2Cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, err
	}

	r2AccessURL := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.Account)
	if cfg.Jurisdiction != "" {
		r2AccessURL = fmt.Sprintf("https://%s.%s.r2.cloudflarestorage.com", cfg.Account, cfg.Jurisdiction)
	}

	client := s3.NewFromConfig(r2Cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(r2AccessURL)
	})

	return &R2{bucketClient{s3svc: client, bucket: cfg.Bucket}}, nil
}
