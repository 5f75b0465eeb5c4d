package relocate

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 4096

// Matcher resolves names against an ordered list of rules. The first rule that
// applies wins; names no rule applies to are returned unchanged.
type Matcher struct {
	rules     []*Rule
	cacheSize int
	paths     *lru.Cache
	values    *lru.Cache
}

type MatcherOption func(*Matcher)

// WithCacheSize bounds the number of memoised results per resolution mode. Zero
// disables memoisation.
func WithCacheSize(n int) MatcherOption {
	return func(m *Matcher) {
		m.cacheSize = n
	}
}

func NewMatcher(rules []*Rule, opts ...MatcherOption) *Matcher {
	m := &Matcher{rules: rules, cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(m)
	}

	if m.cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		m.paths, _ = lru.New(m.cacheSize)
		m.values, _ = lru.New(m.cacheSize)
	}
	return m
}

// HasRules reports whether any rule is configured.
func (m *Matcher) HasRules() bool {
	return len(m.rules) > 0
}

// Rules returns the rules in evaluation order.
func (m *Matcher) Rules() []*Rule {
	return m.rules
}

// MapPath resolves a slash separated name: entry paths and internal class
// names. A descriptor wrapping ("[", "L...;") is preserved around the mapped
// inner name.
func (m *Matcher) MapPath(name string) string {
	return m.memo(m.paths, name, func(inner string) (string, bool) {
		for _, r := range m.rules {
			if r.CanRelocatePath(inner) {
				return r.RelocatePath(inner), true
			}
		}
		return inner, false
	})
}

// MapValue resolves a string that may hold a dotted class name, a path or a
// wrapped descriptor. Each rule is tried as a class name first and as a path
// second.
func (m *Matcher) MapValue(value string) string {
	return m.memo(m.values, value, func(inner string) (string, bool) {
		for _, r := range m.rules {
			if r.CanRelocateClass(inner) {
				return r.RelocateClass(inner), true
			}
			if r.CanRelocatePath(inner) {
				return r.RelocatePath(inner), true
			}
		}
		return inner, false
	})
}

func (m *Matcher) memo(cache *lru.Cache, name string, resolve func(string) (string, bool)) string {
	if len(m.rules) == 0 {
		return name
	}
	if cache != nil {
		if v, ok := cache.Get(name); ok {
			return v.(string)
		}
	}

	mapped := name
	prefix, inner, suffix := unwrap(name)
	if relocated, ok := resolve(inner); ok {
		mapped = prefix + relocated + suffix
	}

	if cache != nil {
		cache.Add(name, mapped)
	}
	return mapped
}

// unwrap splits an array or object descriptor ("[[Lcom/foo/Bar;") into its
// wrapping and the class name. Other names are returned as inner unchanged.
func unwrap(name string) (prefix, inner, suffix string) {
	i := 0
	for i < len(name) && name[i] == '[' {
		i++
	}
	if i < len(name) && name[i] == 'L' && strings.HasSuffix(name, ";") && len(name)-1 > i+1 {
		return name[:i+1], name[i+1 : len(name)-1], ";"
	}
	return "", name, ""
}
