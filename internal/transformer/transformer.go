// Package transformer runs relocation passes over jar files. A pass streams
// the entries of a jar into a temporary archive next to it, relocating entry
// names, class files and (optionally) service provider files, and replaces the
// original with the result only once every entry has been written.
package transformer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/open-policy-agent/jar-relocator/internal/archive"
	"github.com/open-policy-agent/jar-relocator/internal/logging"
	"github.com/open-policy-agent/jar-relocator/internal/metrics"
	"github.com/open-policy-agent/jar-relocator/internal/progress"
	"github.com/open-policy-agent/jar-relocator/internal/relocate"
)

// ClassRewriteError reports a class file that could not be relocated. It
// aborts the pass.
type ClassRewriteError struct {
	Entry string
	Err   error
}

func (e *ClassRewriteError) Error() string {
	return fmt.Sprintf("error in class processing %s: %v", e.Entry, e.Err)
}

func (e *ClassRewriteError) Unwrap() error {
	return e.Err
}

// Result summarises a pass.
type Result struct {
	Path        string
	Entries     int   // file entries read
	Classes     int   // class files whose content changed
	Relocated   int   // entries written under a new name
	Services    int   // service provider files rewritten
	Directories int   // directory entries synthesised
	Skipped     int   // resources skipped because their output path was taken
	Dropped     int   // entries dropped as duplicates by the archive writer
	Size        int64 // size of the written archive
	Duration    time.Duration
}

type Transformer struct {
	matcher      *relocate.Matcher
	log          *logging.Logger
	progress     io.Writer
	serviceFiles bool
	tempDir      string
}

func New() *Transformer {
	return &Transformer{
		matcher: relocate.NewMatcher(nil),
		log:     logging.NewNop(),
	}
}

// WithRules sets the ordered relocation rules. The first applicable rule wins.
func (t *Transformer) WithRules(rules []*relocate.Rule) *Transformer {
	t.matcher = relocate.NewMatcher(rules)
	return t
}

func (t *Transformer) WithLogger(log *logging.Logger) *Transformer {
	t.log = log
	return t
}

// WithProgress renders entry progress to w when it is a terminal.
func (t *Transformer) WithProgress(w io.Writer) *Transformer {
	t.progress = w
	return t
}

// WithServiceFiles enables relocation of META-INF/services provider files:
// their names and every provider class they list.
func (t *Transformer) WithServiceFiles(enabled bool) *Transformer {
	t.serviceFiles = enabled
	return t
}

// WithTempDir sets where the temporary archive is created. It must be on the
// same file system as the jars being transformed. By default the temporary
// archive is created next to the jar.
func (t *Transformer) WithTempDir(dir string) *Transformer {
	t.tempDir = dir
	return t
}

// Transform relocates the jar at path in place. On error the jar is left
// untouched. The temporary archive is removed in every case.
func (t *Transformer) Transform(ctx context.Context, path string) (result *Result, err error) {
	start := time.Now()
	name := filepath.Base(path)
	log := t.log.With("jar", name)

	metrics.PassCount.Inc()
	defer func() {
		metrics.PassDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PassFailed.WithLabelValues(errorType(err)).Inc()
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	src, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dir := t.tempDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temporary archive: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("failed to remove temporary archive %s: %v", tmp.Name(), err)
		}
	}()

	bar := progress.New(t.progress, len(src.File), name)
	p := t.newPass(archive.NewWriter(tmp), log)
	for _, f := range src.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.entry(f); err != nil {
			return nil, err
		}
		bar.Add(1)
	}
	bar.Finish()

	if err := p.w.SetComment(src.Comment); err != nil {
		return nil, err
	}
	if err := p.w.Close(); err != nil {
		return nil, fmt.Errorf("write temporary archive: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write temporary archive: %w", err)
	}
	if err := src.Close(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}

	result = p.result
	result.Path = path
	if fi, err := os.Stat(path); err == nil {
		result.Size = fi.Size()
	}
	result.Duration = time.Since(start)

	log.Debugf("relocated %d of %d entries, rewrote %d classes, synthesised %d directories", result.Relocated, result.Entries, result.Classes, result.Directories)
	return result, nil
}

// Plan runs a pass over the jar at path without writing anything and returns
// the entries the pass would write, in order.
func (t *Transformer) Plan(path string) ([]Mapping, error) {
	src, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	p := t.newPass(archive.NewWriter(io.Discard), t.log.With("jar", filepath.Base(path)))
	p.plan = []Mapping{}
	for _, f := range src.File {
		if err := p.entry(f); err != nil {
			return nil, err
		}
	}
	return p.plan, nil
}

func errorType(err error) string {
	var cre *ClassRewriteError
	switch {
	case errors.As(err, &cre):
		return "class_rewrite"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "io"
	}
}
