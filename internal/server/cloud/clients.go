package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Settings is the connection part of the server config.
type Settings struct {
	Region          string
	IAMBaseEndpoint string
	S3BaseEndpoint  string
}

// Clients bundles the master-credential clients used for provisioning.
type Clients struct {
	IAM     IAMAPI
	Buckets BucketAPI
}

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newIAMClientFromConfig = func(cfg aws.Config, optFns ...func(*iam.Options)) *iam.Client {
		return iam.NewFromConfig(cfg, optFns...)
	}

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

func loadConfig(ctx context.Context, s Settings, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	return loadDefaultAWSConfig(ctx, opts...)
}

func s3Options(s Settings) func(*s3.Options) {
	return func(o *s3.Options) {
		if s.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	}
}

// NewClients builds IAM and S3 clients from the service's master credentials.
// Empty credentials fall back to the SDK default chain (env, profile, IMDS).
func NewClients(ctx context.Context, s Settings, accessKeyID, secretAccessKey string) (*Clients, error) {
	cfg, err := loadConfig(ctx, s, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	iamClient := newIAMClientFromConfig(cfg, func(o *iam.Options) {
		if s.IAMBaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.IAMBaseEndpoint)
		}
	})
	s3Client := newS3ClientFromConfig(cfg, s3Options(s))

	return &Clients{IAM: iamClient, Buckets: s3Client}, nil
}

// PresignerFactory opens a presign session authenticated as a specific
// access key pair.
type PresignerFactory func(ctx context.Context, accessKeyID, secretAccessKey string) (PresignPostAPI, error)

// ScopedPresigners returns a PresignerFactory whose sessions carry only the
// given identity's credentials, never the master ones, so every authorization
// it mints is limited by that identity's own policy.
func ScopedPresigners(s Settings) PresignerFactory {
	return func(ctx context.Context, accessKeyID, secretAccessKey string) (PresignPostAPI, error) {
		cfg, err := loadConfig(ctx, s, accessKeyID, secretAccessKey)
		if err != nil {
			return nil, err
		}
		return newS3PresignClient(newS3ClientFromConfig(cfg, s3Options(s))), nil
	}
}
