package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/open-policy-agent/jar-relocator/internal/config"
)

type AzureBlobStorage struct {
	client     *azblob.Client
	accountURL string
	container  string
	path       string
}

// NewAzureBlobStorage authenticates with the shared key from the referenced
// azure_auth secret, or with the default Azure credential chain when none is
// configured.
func NewAzureBlobStorage(ctx context.Context, cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var (
		client *azblob.Client
		err    error
	)

	if cfg.Credentials != nil {
		value, rerr := cfg.Credentials.Resolve(ctx)
		if rerr != nil {
			return nil, rerr
		}

		secret, ok := value.(config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("secret %q is not of type azure_auth", cfg.Credentials.Name)
		}

		cred, cerr := azblob.NewSharedKeyCredential(secret.AccountName, secret.AccountKey)
		if cerr != nil {
			return nil, fmt.Errorf("failed to create Azure shared key credential: %w", cerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
	} else {
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", cerr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return &AzureBlobStorage{client: client, accountURL: cfg.AccountURL, container: cfg.Container, path: cfg.Path}, nil
}

func (s *AzureBlobStorage) Upload(ctx context.Context, name string, body io.ReadSeeker, revision string) error {
	md, err := metadata(body, revision)
	if err != nil {
		return err
	}

	blobMetadata := make(map[string]*string, len(md))
	for k, v := range md {
		blobMetadata[k] = &v
	}

	_, err = s.client.UploadStream(ctx, s.container, config.ObjectName(s.path, name), body, &azblob.UploadStreamOptions{
		Metadata: blobMetadata,
	})
	return err
}

func (s *AzureBlobStorage) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, config.ObjectName(s.path, name), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *AzureBlobStorage) String() string {
	return s.accountURL + "/" + s.container + "/" + s.path
}
