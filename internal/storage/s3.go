package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/open-policy-agent/jar-relocator/internal/config"
)

type AmazonS3 struct {
	client *s3.Client
	bucket string
	key    string
}

// NewAmazonS3 uses the configured secret when one is referenced, and the
// default credentials chain otherwise: environment variables, the shared
// credentials file, then ECS or EC2 instance roles.
func NewAmazonS3(ctx context.Context, cfg *config.AmazonS3) (*AmazonS3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Credentials != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(secretCredentials{cfg.Credentials})))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})

	return &AmazonS3{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

func (s *AmazonS3) Upload(ctx context.Context, name string, body io.ReadSeeker, revision string) error {
	md, err := metadata(body, revision)
	if err != nil {
		return err
	}

	_, err = manager.NewUploader(s.client).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(config.ObjectName(s.key, name)),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    md,
	})
	return err
}

func (s *AmazonS3) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(config.ObjectName(s.key, name)),
	})
	if err != nil {
		return nil, err
	}
	return output.Body, nil
}

func (s *AmazonS3) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// secretCredentials resolves an aws_auth secret on every retrieval so that
// environment references in the secret are read late.
type secretCredentials struct {
	ref *config.SecretRef
}

func (p secretCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	value, err := p.ref.Resolve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}

	secret, ok := value.(config.SecretAWS)
	if !ok {
		return aws.Credentials{}, fmt.Errorf("secret %q is not of type aws_auth", p.ref.Name)
	}

	return aws.Credentials{
		AccessKeyID:     secret.AccessKeyID,
		SecretAccessKey: secret.SecretAccessKey,
		SessionToken:    secret.SessionToken,
		Source:          "relocator",
	}, nil
}
