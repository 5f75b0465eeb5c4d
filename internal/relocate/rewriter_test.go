package relocate

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-policy-agent/jar-relocator/internal/classfile"
	"github.com/open-policy-agent/jar-relocator/internal/test/jartest"
)

func rewriter(t *testing.T, pattern, shaded string) *ClassRewriter {
	t.Helper()

	r, err := NewRule(pattern, &shaded, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewClassRewriter(NewMatcher([]*Rule{r}))
}

func thing() jartest.Class {
	return jartest.Class{
		Name:    "com/foo/Thing",
		Super:   "com/foo/Base",
		Fields:  []string{"Lcom/foo/Dep;", "[Lcom/foo/Dep;", "I"},
		Strings: []string{"com.foo.Thing", "com/foo/thing.properties", "plain"},
		Calls:   []string{"com/foo/Util", "java/lang/System"},
	}
}

func TestClassRewriterUnchanged(t *testing.T) {
	in := thing().Bytes(t)

	tests := []struct {
		note string
		w    *ClassRewriter
	}{
		{note: "no rules", w: NewClassRewriter(NewMatcher(nil))},
		{note: "unrelated rule", w: rewriter(t, "org.other", "org.shaded")},
		{note: "identity rule", w: rewriter(t, "com.foo", "com.foo")},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			out, err := tc.w.Rewrite(in)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, in) {
				t.Fatal("expected class to be returned unchanged")
			}
		})
	}
}

func TestClassRewriterRelocates(t *testing.T) {
	out, err := rewriter(t, "com.foo", "com.bar").Rewrite(thing().Bytes(t))
	if err != nil {
		t.Fatal(err)
	}

	for _, stale := range []string{"com/foo", "com.foo"} {
		if bytes.Contains(out, []byte(stale)) {
			t.Errorf("rewritten class still contains %q", stale)
		}
	}
	for _, want := range []string{"com/bar/Util", "com.bar.Thing", "com/bar/thing.properties", "plain", "java/lang/System"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("rewritten class does not contain %q", want)
		}
	}

	c, err := classfile.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if c.This != "com/bar/Thing" || c.Super != "com/bar/Base" {
		t.Fatalf("unexpected class names: %s extends %s", c.This, c.Super)
	}
	var descs []string
	for _, f := range c.Fields {
		descs = append(descs, f.Descriptor)
	}
	if diff := cmp.Diff([]string{"Lcom/bar/Dep;", "[Lcom/bar/Dep;", "I"}, descs); diff != "" {
		t.Fatalf("unexpected field descriptors (-want, +got):\n%s", diff)
	}
}

// withUnusedUtf8 appends a Utf8 entry to the constant pool that nothing in the
// class refers to, the way javac leaves names of removed local classes behind.
func withUnusedUtf8(t *testing.T, b []byte, text string) []byte {
	t.Helper()

	count := int(binary.BigEndian.Uint16(b[8:]))
	off := 10
	for i := 1; i < count; i++ {
		switch tag := b[off]; tag {
		case classfile.TagUtf8:
			off += 3 + int(binary.BigEndian.Uint16(b[off+1:]))
		case classfile.TagClass, classfile.TagString, classfile.TagMethodType, classfile.TagModule, classfile.TagPackage:
			off += 3
		case classfile.TagMethodHandle:
			off += 4
		case classfile.TagLong, classfile.TagDouble:
			off += 9
			i++
		case classfile.TagInteger, classfile.TagFloat, classfile.TagFieldref, classfile.TagMethodref,
			classfile.TagInterfaceMethodref, classfile.TagNameAndType, classfile.TagDynamic, classfile.TagInvokeDynamic:
			off += 5
		default:
			t.Fatalf("unexpected tag %d at pool index %d", tag, i)
		}
	}

	out := make([]byte, 0, len(b)+3+len(text))
	out = append(out, b[:8]...)
	out = binary.BigEndian.AppendUint16(out, uint16(count+1))
	out = append(out, b[10:off]...)
	out = append(out, classfile.TagUtf8)
	out = binary.BigEndian.AppendUint16(out, uint16(len(text)))
	out = append(out, text...)
	return append(out, b[off:]...)
}

func TestClassRewriterUnusedConstants(t *testing.T) {
	base := jartest.Class{Name: "org/app/Main", Super: "java/lang/Object"}

	tests := []struct {
		note      string
		unused    string
		unchanged bool
	}{
		{note: "relocated path", unused: "com/foo/Stale"},
		{note: "relocated value", unused: "com.foo.Stale"},
		{note: "unrelated", unused: "org/other/Stale", unchanged: true},
	}

	w := rewriter(t, "com.foo", "com.bar")
	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			in := withUnusedUtf8(t, base.Bytes(t), tc.unused)
			if _, err := classfile.Parse(in); err != nil {
				t.Fatal(err)
			}

			out, err := w.Rewrite(in)
			if err != nil {
				t.Fatal(err)
			}
			if tc.unchanged {
				if !bytes.Equal(out, in) {
					t.Fatal("expected class to be returned unchanged")
				}
				return
			}
			if bytes.Contains(out, []byte(tc.unused)) {
				t.Fatalf("rewritten class still contains %q", tc.unused)
			}
			c, err := classfile.Parse(out)
			if err != nil {
				t.Fatal(err)
			}
			if c.This != "org/app/Main" {
				t.Fatalf("unexpected class name %s", c.This)
			}
		})
	}
}

func TestClassRewriterCompiledClasses(t *testing.T) {
	w := rewriter(t, "com.acme", "org.shaded.acme")

	for _, name := range []string{"Pipeline", "Pipeline$1", "Item", "Marker"} {
		t.Run(name, func(t *testing.T) {
			in, err := os.ReadFile(filepath.Join("..", "classfile", "testdata", name+".class"))
			if err != nil {
				t.Fatal(err)
			}

			out, err := w.Rewrite(in)
			if err != nil {
				t.Fatal(err)
			}
			for _, stale := range []string{"com/acme", "com.acme"} {
				if bytes.Contains(out, []byte(stale)) {
					t.Errorf("rewritten class still contains %q", stale)
				}
			}

			c, err := classfile.Parse(out)
			if err != nil {
				t.Fatal(err)
			}
			if c.This != "org/shaded/acme/"+name {
				t.Fatalf("unexpected class name %s", c.This)
			}

			again, err := w.Rewrite(out)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, again) {
				t.Fatal("expected second rewrite to leave the class unchanged")
			}
		})
	}
}

func TestClassRewriterIdempotent(t *testing.T) {
	w := rewriter(t, "com.foo", "com.bar")
	once, err := w.Rewrite(thing().Bytes(t))
	if err != nil {
		t.Fatal(err)
	}
	twice, err := w.Rewrite(once)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatal("expected second rewrite to leave the class unchanged")
	}
}

func TestClassRewriterMalformed(t *testing.T) {
	if _, err := rewriter(t, "com.foo", "com.bar").Rewrite([]byte("not a class")); err == nil {
		t.Fatal("expected error")
	}
}
