package relocator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/open-policy-agent/jar-relocator/internal/logging"
	"github.com/open-policy-agent/jar-relocator/internal/relocate"
	"github.com/open-policy-agent/jar-relocator/internal/transformer"
)

// Relocation maps the classes and resources below Pattern to ShadedPattern.
type Relocation struct {
	// Pattern is the package prefix to relocate, e.g. "com.foo". It is a
	// plain prefix: "com.foo" also matches "com.foobar", and an empty Pattern
	// matches every class and resource.
	Pattern string

	// ShadedPattern replaces Pattern. Nil means "hidden." + Pattern.
	ShadedPattern *string

	// Includes restricts the relocation to entry paths such as "com/foo/Thing"
	// matching one of the Ant style globs. Dots are read as '/', so
	// "com.foo.*" is "com/foo/*". Empty means everything below Pattern.
	Includes []string

	// Excludes keeps entry paths matching one of the globs in place.
	Excludes []string
}

type (
	Result            = transformer.Result
	Mapping           = transformer.Mapping
	Kind              = transformer.Kind
	ClassRewriteError = transformer.ClassRewriteError
)

const (
	KindDirectory = transformer.KindDirectory
	KindClass     = transformer.KindClass
	KindResource  = transformer.KindResource
	KindService   = transformer.KindService
	KindSkipped   = transformer.KindSkipped
	KindDropped   = transformer.KindDropped
)

type Relocator struct {
	relocations  []Relocation
	serviceFiles bool
	tempDir      string
	progress     io.Writer
	logOutput    io.Writer
}

func New() *Relocator {
	return &Relocator{}
}

func (r *Relocator) WithRelocations(relocations []Relocation) *Relocator {
	r.relocations = relocations
	return r
}

// WithServiceFiles enables relocation of META-INF/services provider files:
// both the file name and each provider class named in it.
func (r *Relocator) WithServiceFiles(enabled bool) *Relocator {
	r.serviceFiles = enabled
	return r
}

// WithTempDir sets where relocated copies are written before they replace
// the jar. It must be on the same file system as the jar.
func (r *Relocator) WithTempDir(dir string) *Relocator {
	r.tempDir = dir
	return r
}

// WithProgress renders a progress bar to w when w is a terminal.
func (r *Relocator) WithProgress(w io.Writer) *Relocator {
	r.progress = w
	return r
}

// WithLogOutput writes warnings, such as dropped duplicate entries, to w.
func (r *Relocator) WithLogOutput(w io.Writer) *Relocator {
	r.logOutput = w
	return r
}

// Relocate rewrites the jar at path in place.
func (r *Relocator) Relocate(ctx context.Context, path string) (*Result, error) {
	t, err := r.transformer()
	if err != nil {
		return nil, err
	}
	return t.Transform(ctx, path)
}

// Plan returns the entries Relocate would write for the jar at path, in
// order, without modifying it.
func (r *Relocator) Plan(path string) ([]Mapping, error) {
	t, err := r.transformer()
	if err != nil {
		return nil, err
	}
	return t.Plan(path)
}

func (r *Relocator) transformer() (*transformer.Transformer, error) {
	var errs []error
	rules := make([]*relocate.Rule, 0, len(r.relocations))
	for i, rel := range r.relocations {
		rule, err := relocate.NewRule(rel.Pattern, rel.ShadedPattern, rel.Includes, rel.Excludes)
		if err != nil {
			errs = append(errs, fmt.Errorf("relocation %d: %w", i, err))
			continue
		}
		rules = append(rules, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	log := logging.NewNop()
	if r.logOutput != nil {
		log = logging.NewLogger(logging.Config{Level: logging.Warn, Format: logging.FormatJSON, Output: r.logOutput})
	}

	return transformer.New().
		WithRules(rules).
		WithLogger(log).
		WithProgress(r.progress).
		WithServiceFiles(r.serviceFiles).
		WithTempDir(r.tempDir), nil
}
