package objstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type S3 struct {
	bucketClient
}

type S3Config struct {
	Region          string `json:"region"`
	Type            string `json:"type"`
	Bucket          string `json:"bucket,omitempty"`
	AccessKeyID     string `json:"accessKeyID,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	CustomEndpoint  string `json:"customEndpoint,omitempty"`

	// RoleARN, when set, is assumed through STS on top of the base
	// credentials.
	RoleARN     string `json:"roleArn,omitempty"`
	ExternalID  string `json:"externalID,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
}

func NewS3(cfg S3Config) (*S3, error) {
	var configOpts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		configOpts = append(configOpts, config.WithCredentialsProvider(staticCreds))
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsConfig), cfg.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				if cfg.ExternalID != "" {
					o.ExternalID = aws.String(cfg.ExternalID)
				}
				if cfg.SessionName != "" {
					o.RoleSessionName = cfg.SessionName
				}
			})
		awsConfig.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.CustomEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CustomEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{bucketClient{s3svc: client, bucket: cfg.Bucket}}, nil
}
