package relocate

import (
	"github.com/open-policy-agent/jar-relocator/internal/classfile"
)

// ClassRewriter applies a Matcher to every class reference of a class file.
type ClassRewriter struct {
	m *Matcher
}

func NewClassRewriter(m *Matcher) *ClassRewriter {
	return &ClassRewriter{m: m}
}

// Rewrite returns the relocated class file. Structural names are resolved with
// MapPath and string constants with MapValue. The result is serialised with a
// newly built constant pool, so no entry of the input pool survives unless the
// rewritten class still uses it. Without rules, or when neither a name nor any
// pool string would change, the input is returned as is.
func (w *ClassRewriter) Rewrite(b []byte) ([]byte, error) {
	if !w.m.HasRules() {
		return b, nil
	}

	c, err := classfile.Parse(b)
	if err != nil {
		return nil, err
	}

	r := &trackingRemapper{m: w.m}
	if err := classfile.Remap(c, r); err != nil {
		return nil, err
	}
	if !r.changed {
		stale, err := w.hasStaleConstant(b)
		if err != nil {
			return nil, err
		}
		if !stale {
			return b, nil
		}
	}
	return c.Bytes()
}

// hasStaleConstant reports whether a pool string that the class no longer
// refers to would be relocated. Rewriting drops such entries.
func (w *ClassRewriter) hasStaleConstant(b []byte) (bool, error) {
	texts, err := classfile.Utf8Constants(b)
	if err != nil {
		return false, err
	}
	for _, s := range texts {
		if w.m.MapPath(s) != s || w.m.MapValue(s) != s {
			return true, nil
		}
	}
	return false, nil
}

type trackingRemapper struct {
	m       *Matcher
	changed bool
}

func (r *trackingRemapper) Map(name string) string {
	mapped := r.m.MapPath(name)
	if mapped != name {
		r.changed = true
	}
	return mapped
}

func (r *trackingRemapper) MapValue(value string) string {
	mapped := r.m.MapValue(value)
	if mapped != value {
		r.changed = true
	}
	return mapped
}
