// Package relocate implements the name mapping of a relocation pass: the
// individual relocation rules, the ordered matcher over them, and the class
// file rewriter that applies the matcher to every class reference.
package relocate

import (
	"regexp"
	"strings"
)

const hiddenPrefix = "hidden"

// Rule relocates one package prefix. Both the dotted and the slash form of the
// source and target patterns are derived once by NewRule. A Rule is immutable
// and safe for concurrent use.
type Rule struct {
	pattern           string
	pathPattern       string
	shadedPattern     string
	shadedPathPattern string
	includes          globs
	excludes          globs
	source            *regexp.Regexp
}

// NewRule returns a rule relocating pattern to shaded. An empty pattern
// relocates everything. A nil shaded pattern nests the source pattern under
// "hidden". Includes and excludes are glob patterns over slash separated
// paths; dotted patterns are converted.
func NewRule(pattern string, shaded *string, includes, excludes []string) (*Rule, error) {
	r := &Rule{
		pattern:     strings.ReplaceAll(pattern, "/", "."),
		pathPattern: strings.ReplaceAll(pattern, ".", "/"),
	}

	if shaded != nil {
		r.shadedPattern = strings.ReplaceAll(*shaded, "/", ".")
		r.shadedPathPattern = strings.ReplaceAll(*shaded, ".", "/")
	} else {
		r.shadedPattern = hiddenPrefix + "." + r.pattern
		r.shadedPathPattern = hiddenPrefix + "/" + r.pathPattern
	}

	var err error
	if r.includes, err = compileGlobs(normalizePatterns(includes)); err != nil {
		return nil, err
	}
	if r.excludes, err = compileGlobs(normalizePatterns(excludes)); err != nil {
		return nil, err
	}

	if r.pattern != "" {
		r.source = regexp.MustCompile(`\b` + regexp.QuoteMeta(r.pattern))
	}
	return r, nil
}

// Pattern returns the dotted source pattern.
func (r *Rule) Pattern() string { return r.pattern }

// ShadedPattern returns the dotted target pattern.
func (r *Rule) ShadedPattern() string { return r.shadedPattern }

func (r *Rule) String() string {
	return r.pattern + " -> " + r.shadedPattern
}

// IsIncluded reports whether path matches an include pattern, or whether there
// are no include patterns at all.
func (r *Rule) IsIncluded(path string) bool {
	return len(r.includes) == 0 || r.includes.match(path)
}

// IsExcluded reports whether path matches an exclude pattern.
func (r *Rule) IsExcluded(path string) bool {
	return r.excludes.match(path)
}

// CanRelocatePath reports whether the rule applies to a slash separated path.
// A ".class" suffix is ignored and one leading '/' is tolerated, as produced by
// absolute resource lookups.
func (r *Rule) CanRelocatePath(path string) bool {
	path = strings.TrimSuffix(path, ".class")

	if !r.IsIncluded(path) || r.IsExcluded(path) {
		return false
	}

	return strings.HasPrefix(path, r.pathPattern) || strings.HasPrefix(path, "/"+r.pathPattern)
}

// CanRelocateClass reports whether the rule applies to a dotted class name.
// Names containing '/' are never class names.
func (r *Rule) CanRelocateClass(name string) bool {
	return !strings.Contains(name, "/") && r.CanRelocatePath(strings.ReplaceAll(name, ".", "/"))
}

// RelocatePath replaces the first occurrence of the source path pattern.
func (r *Rule) RelocatePath(path string) string {
	return strings.Replace(path, r.pathPattern, r.shadedPathPattern, 1)
}

// RelocateClass replaces the first occurrence of the dotted source pattern.
func (r *Rule) RelocateClass(name string) string {
	return strings.Replace(name, r.pattern, r.shadedPattern, 1)
}

// ApplyToSourceContent replaces every occurrence of the dotted source pattern
// that starts at a word boundary. Content is returned unchanged for a rule
// with an empty source pattern.
func (r *Rule) ApplyToSourceContent(content string) string {
	if r.source == nil {
		return content
	}
	return r.source.ReplaceAllLiteralString(content, r.shadedPattern)
}
