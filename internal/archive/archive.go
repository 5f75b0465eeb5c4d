// Package archive reads and writes jar files.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ErrDuplicateEntry is returned when an entry name is written twice to the
// same archive.
var ErrDuplicateEntry = errors.New("duplicate entry")

// Reader is an open jar file.
type Reader struct {
	*zip.ReadCloser
}

func Open(path string) (*Reader, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return &Reader{ReadCloser: r}, nil
}

// ReadEntry returns the uncompressed content of f.
func ReadEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	bs, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	return bs, nil
}

// Header describes an entry to write. A zero Method is zip.Store; use
// zip.Deflate to compress.
type Header struct {
	Name     string
	Modified time.Time
	Method   uint16
	Comment  string
}

// HeaderOf returns the header of f renamed to name.
func HeaderOf(f *zip.File, name string) Header {
	return Header{Name: name, Modified: f.Modified, Method: f.Method, Comment: f.Comment}
}

// Writer writes a jar and rejects a second entry of the same name with
// ErrDuplicateEntry.
type Writer struct {
	zw      *zip.Writer
	written map[string]struct{}
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w), written: make(map[string]struct{})}
}

// Directory writes a directory entry. A trailing '/' is added to name if
// missing.
func (w *Writer) Directory(name string, modified time.Time) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	_, err := w.create(Header{Name: name, Modified: modified})
	return err
}

// File writes a file entry with the given content.
func (w *Writer) File(h Header, data []byte) error {
	fw, err := w.create(h)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", h.Name, err)
	}
	return nil
}

// Has reports whether an entry named name was written.
func (w *Writer) Has(name string) bool {
	_, ok := w.written[name]
	return ok
}

func (w *Writer) SetComment(comment string) error {
	return w.zw.SetComment(comment)
}

// Close finishes the archive. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}

func (w *Writer) create(h Header) (io.Writer, error) {
	if w.Has(h.Name) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, h.Name)
	}

	fh := &zip.FileHeader{
		Name:     h.Name,
		Method:   h.Method,
		Modified: h.Modified,
		Comment:  h.Comment,
	}
	if strings.HasSuffix(h.Name, "/") {
		fh.Method = zip.Store
	}
	fw, err := w.zw.CreateHeader(fh)
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", h.Name, err)
	}
	w.written[h.Name] = struct{}{}
	return fw, nil
}
