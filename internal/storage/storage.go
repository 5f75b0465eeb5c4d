// Package storage publishes relocated jars to object storage. Every backend
// records the SHA-256 of the uploaded jar and, when given, the source revision
// as object metadata.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/open-policy-agent/jar-relocator/internal/config"
	"github.com/open-policy-agent/jar-relocator/internal/metrics"
)

const (
	metadataSHA256   = "sha256"
	metadataRevision = "revision"

	contentType = "application/java-archive"
)

// ObjectStorage is a publishing target. Names are jar file names; each backend
// resolves them against its configured key, object or path.
type ObjectStorage interface {
	Upload(ctx context.Context, name string, body io.ReadSeeker, revision string) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

func New(ctx context.Context, cfg config.ObjectStorage) (ObjectStorage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return NewAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		return NewGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		return NewAzureBlobStorage(ctx, cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		return NewFileSystemStorage(cfg.FileSystemStorage), nil
	}
	return nil, errors.New("no object storage configured")
}

// Publish uploads the jar at path.
func Publish(ctx context.Context, s ObjectStorage, path string, revision string) (err error) {
	start := time.Now()
	defer func() {
		metrics.PublishDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PublishFailed.WithLabelValues(s.String()).Inc()
		} else {
			metrics.LastPublish.WithLabelValues(s.String()).SetToCurrentTime()
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.Upload(ctx, filepath.Base(path), f, revision); err != nil {
		return fmt.Errorf("publish %s to %s: %w", filepath.Base(path), s, err)
	}
	return nil
}

// metadata hashes body and rewinds it.
func metadata(body io.ReadSeeker, revision string) (map[string]string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return nil, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	md := map[string]string{metadataSHA256: hex.EncodeToString(h.Sum(nil))}
	if revision != "" {
		md[metadataRevision] = revision
	}
	return md, nil
}
