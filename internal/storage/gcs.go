package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/open-policy-agent/jar-relocator/internal/config"
)

type GCPCloudStorage struct {
	client *gcs.Client
	bucket string
	object string
}

// NewGCPCloudStorage authenticates with the referenced gcp_auth secret, or
// with application default credentials when none is configured.
func NewGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var opts []option.ClientOption
	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		secret, ok := value.(config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("secret %q is not of type gcp_auth", cfg.Credentials.Name)
		}

		switch {
		case secret.Credentials != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(secret.Credentials)))
		case secret.APIKey != "":
			opts = append(opts, option.WithAPIKey(secret.APIKey))
		}
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP storage client: %w", err)
	}

	return &GCPCloudStorage{client: client, bucket: cfg.Bucket, object: cfg.Object}, nil
}

func (s *GCPCloudStorage) Upload(ctx context.Context, name string, body io.ReadSeeker, revision string) error {
	md, err := metadata(body, revision)
	if err != nil {
		return err
	}

	w := s.client.Bucket(s.bucket).Object(config.ObjectName(s.object, name)).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = md

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *GCPCloudStorage) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.client.Bucket(s.bucket).Object(config.ObjectName(s.object, name)).NewReader(ctx)
}

func (s *GCPCloudStorage) String() string {
	return "gs://" + s.bucket + "/" + s.object
}
