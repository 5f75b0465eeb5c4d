package relocate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// globs is a compiled set of include or exclude patterns. A nil set matches
// nothing.
type globs []glob.Glob

func (gs globs) match(path string) bool {
	return slices.ContainsFunc(gs, func(g glob.Glob) bool { return g.Match(path) })
}

// normalizePatterns converts dotted patterns to slash form. A pattern ending in
// a wildcard segment also contributes its parent, so "com.foo.*" matches the
// package path "com/foo" itself.
func normalizePatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		p = strings.ReplaceAll(p, ".", "/")
		out = appendUnique(out, p)
		if strings.HasSuffix(p, "/*") || strings.HasSuffix(p, "/**") {
			out = appendUnique(out, p[:strings.LastIndexByte(p, '/')])
		}
	}
	return out
}

func appendUnique(ss []string, s string) []string {
	if slices.Contains(ss, s) {
		return ss
	}
	return append(ss, s)
}

// literal escapes the characters gobwas/glob treats as syntax but Ant path
// patterns treat as ordinary characters.
var literal = strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`, "{", `\{`, "}", `\}`, "!", `\!`)

// compileGlobs compiles path patterns with '/' as the separator: '*' and '?'
// stop at a separator, "**" crosses it. As in Ant path matching a "**" segment
// also matches zero directories and a trailing '/' is short for "/**". Any
// other character, brackets and braces included, matches itself.
func compileGlobs(patterns []string) (globs, error) {
	var gs globs
	for _, p := range patterns {
		if strings.HasSuffix(p, "/") {
			p += "**"
		}
		for _, v := range expandDoubleStar(p) {
			g, err := glob.Compile(literal.Replace(v), '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			gs = append(gs, g)
		}
	}
	return gs, nil
}

// expandDoubleStar returns every variant of p with non-final "**" segments
// either kept or removed.
func expandDoubleStar(p string) []string {
	segs := strings.Split(p, "/")
	variants := [][]string{nil}
	for i, s := range segs {
		var next [][]string
		for _, v := range variants {
			next = append(next, append(slices.Clone(v), s))
			if s == "**" && i < len(segs)-1 {
				next = append(next, v)
			}
		}
		variants = next
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		out = appendUnique(out, strings.Join(v, "/"))
	}
	return out
}
