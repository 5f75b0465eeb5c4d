package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/open-policy-agent/jar-relocator/internal/config"
)

// FileSystemStorage copies jars into a local directory. Metadata is written
// next to the jar as <name>.sha256 and <name>.revision.
type FileSystemStorage struct {
	path string
}

func NewFileSystemStorage(cfg *config.FileSystemStorage) *FileSystemStorage {
	return &FileSystemStorage{path: cfg.Path}
}

func (s *FileSystemStorage) Upload(_ context.Context, name string, body io.ReadSeeker, revision string) error {
	md, err := metadata(body, revision)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return err
	}

	target := filepath.Join(s.path, name)
	if err := writeFile(target, body); err != nil {
		return err
	}

	for _, key := range []string{metadataSHA256, metadataRevision} {
		sidecar := target + "." + key
		value, ok := md[key]
		if !ok {
			if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := os.WriteFile(sidecar, []byte(value+"\n"), 0o644); err != nil {
			return err
		}
	}

	return nil
}

func (s *FileSystemStorage) Download(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.path, name))
}

func (s *FileSystemStorage) String() string {
	return "file://" + s.path
}

// writeFile replaces path with the contents of r through a temporary file in
// the same directory.
func writeFile(path string, r io.Reader) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}
