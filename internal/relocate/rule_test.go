package relocate

import "testing"

func ptr(s string) *string { return &s }

func TestRuleCanRelocatePath(t *testing.T) {
	tests := []struct {
		note     string
		pattern  string
		includes []string
		excludes []string
		path     string
		exp      bool
	}{
		{note: "package prefix", pattern: "com.foo", path: "com/foo/Thing", exp: true},
		{note: "class suffix ignored", pattern: "com.foo", path: "com/foo/Thing.class", exp: true},
		{note: "leading slash", pattern: "com.foo", path: "/com/foo/thing.properties", exp: true},
		{note: "plain prefix match", pattern: "com.foo", path: "com/foobar/Thing", exp: true},
		{note: "other package", pattern: "com.foo", path: "org/foo/Thing", exp: false},
		{note: "slash pattern", pattern: "com/foo", path: "com/foo/Thing", exp: true},
		{note: "empty pattern", pattern: "", path: "a/b", exp: true},
		{
			note:     "excluded class",
			pattern:  "com.foo",
			excludes: []string{"com.foo.internal.*"},
			path:     "com/foo/internal/Secret",
			exp:      false,
		},
		{
			note:     "excluded package itself",
			pattern:  "com.foo",
			excludes: []string{"com.foo.internal.*"},
			path:     "com/foo/internal",
			exp:      false,
		},
		{
			note:     "single star stops at separator",
			pattern:  "com.foo",
			excludes: []string{"com.foo.internal.*"},
			path:     "com/foo/internal/sub/Thing",
			exp:      true,
		},
		{
			note:     "not excluded",
			pattern:  "com.foo",
			excludes: []string{"com.foo.internal.*"},
			path:     "com/foo/Api",
			exp:      true,
		},
		{
			note:     "double star matches nested",
			pattern:  "com.foo",
			includes: []string{"com.foo.api.**"},
			path:     "com/foo/api/v1/Thing",
			exp:      true,
		},
		{
			note:     "double star matches parent",
			pattern:  "com.foo",
			includes: []string{"com.foo.api.**"},
			path:     "com/foo/api",
			exp:      true,
		},
		{
			note:     "not included",
			pattern:  "com.foo",
			includes: []string{"com.foo.api.**"},
			path:     "com/foo/impl/Thing",
			exp:      false,
		},
		{
			note:     "double star matches zero directories",
			pattern:  "com",
			excludes: []string{"com/**/Impl"},
			path:     "com/Impl",
			exp:      false,
		},
		{
			note:     "double star matches several directories",
			pattern:  "com",
			excludes: []string{"com/**/Impl"},
			path:     "com/a/b/Impl",
			exp:      false,
		},
		{
			note:     "trailing slash",
			pattern:  "com.foo",
			excludes: []string{"com/foo/gen/"},
			path:     "com/foo/gen/a/Thing",
			exp:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			r, err := NewRule(tc.pattern, ptr("x"), tc.includes, tc.excludes)
			if err != nil {
				t.Fatal(err)
			}
			if got := r.CanRelocatePath(tc.path); got != tc.exp {
				t.Fatalf("CanRelocatePath(%q) = %v, want %v", tc.path, got, tc.exp)
			}
		})
	}
}

func TestRuleRelocate(t *testing.T) {
	tests := []struct {
		note    string
		pattern string
		shaded  *string
		path    string
		expPath string
		class   string
		expCls  string
	}{
		{
			note:    "shaded pattern",
			pattern: "com.foo",
			shaded:  ptr("com.bar"),
			path:    "com/foo/Thing.class",
			expPath: "com/bar/Thing.class",
			class:   "com.foo.Thing",
			expCls:  "com.bar.Thing",
		},
		{
			note:    "leading slash kept",
			pattern: "com.foo",
			shaded:  ptr("com.bar"),
			path:    "/com/foo/thing.properties",
			expPath: "/com/bar/thing.properties",
		},
		{
			note:    "hidden by default",
			pattern: "com.foo",
			path:    "com/foo/Thing",
			expPath: "hidden/com/foo/Thing",
			class:   "com.foo.Thing",
			expCls:  "hidden.com.foo.Thing",
		},
		{
			note:    "empty pattern",
			pattern: "",
			path:    "a/b",
			expPath: "hidden/a/b",
		},
		{
			note:    "first occurrence only",
			pattern: "a.b",
			shaded:  ptr("x.y"),
			path:    "a/b/a/b/C",
			expPath: "x/y/a/b/C",
			class:   "a.b.a.b.C",
			expCls:  "x.y.a.b.C",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			r, err := NewRule(tc.pattern, tc.shaded, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := r.RelocatePath(tc.path); got != tc.expPath {
				t.Errorf("RelocatePath(%q) = %q, want %q", tc.path, got, tc.expPath)
			}
			if tc.class == "" {
				return
			}
			if !r.CanRelocateClass(tc.class) {
				t.Errorf("CanRelocateClass(%q) = false", tc.class)
			}
			if got := r.RelocateClass(tc.class); got != tc.expCls {
				t.Errorf("RelocateClass(%q) = %q, want %q", tc.class, got, tc.expCls)
			}
		})
	}
}

func TestRuleCanRelocateClassRejectsPaths(t *testing.T) {
	r, err := NewRule("com.foo", ptr("com.bar"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.CanRelocateClass("com/foo/Thing") {
		t.Fatal("expected slash separated name to be rejected")
	}
}

func TestRulePatterns(t *testing.T) {
	r, err := NewRule("com/foo", ptr("com/bar"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Pattern() != "com.foo" || r.ShadedPattern() != "com.bar" {
		t.Fatalf("unexpected patterns: %q, %q", r.Pattern(), r.ShadedPattern())
	}
	if r.String() != "com.foo -> com.bar" {
		t.Fatalf("unexpected string: %q", r.String())
	}
}

func TestRuleApplyToSourceContent(t *testing.T) {
	tests := []struct {
		note    string
		pattern string
		content string
		exp     string
	}{
		{
			note:    "imports and references",
			pattern: "com.foo",
			content: "import com.foo.Thing;\nclass A { com.foo.Other o; }\n",
			exp:     "import com.bar.Thing;\nclass A { com.bar.Other o; }\n",
		},
		{
			note:    "word boundary",
			pattern: "com.foo",
			content: "xcom.foo.Thing",
			exp:     "xcom.foo.Thing",
		},
		{
			note:    "empty pattern",
			pattern: "",
			content: "import com.foo.Thing;",
			exp:     "import com.foo.Thing;",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			r, err := NewRule(tc.pattern, ptr("com.bar"), nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := r.ApplyToSourceContent(tc.content); got != tc.exp {
				t.Fatalf("got %q, want %q", got, tc.exp)
			}
		})
	}
}

func TestRuleLiteralGlobCharacters(t *testing.T) {
	tests := []struct {
		note    string
		include string
		path    string
		exp     bool
	}{
		{note: "bracket", include: "a/[b", path: "a/[b", exp: true},
		{note: "bracket is no class", include: "a/[bc]", path: "a/b", exp: false},
		{note: "closed bracket", include: "a/[bc]", path: "a/[bc]", exp: true},
		{note: "braces", include: "a/{x,y}", path: "a/{x,y}", exp: true},
		{note: "braces are no alternation", include: "a/{x,y}", path: "a/x", exp: false},
		{note: "exclamation mark", include: "a/!b", path: "a/!b", exp: true},
		{note: "backslash", include: `a/\b`, path: `a/\b`, exp: true},
		{note: "wildcard still applies", include: "a/[b*", path: "a/[bc", exp: true},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			r, err := NewRule("a", nil, []string{tc.include}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := r.IsIncluded(tc.path); got != tc.exp {
				t.Fatalf("IsIncluded(%q) = %v, want %v", tc.path, got, tc.exp)
			}
		})
	}
}
