// Package jartest builds and inspects small jar files for tests.
package jartest

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/open-policy-agent/jar-relocator/internal/classfile"
)

// Modified is the modification time of every entry written by Write.
var Modified = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// Entry is a jar entry. Names ending in '/' are directories.
type Entry struct {
	Name string
	Data []byte
}

func File(name, content string) Entry {
	return Entry{Name: name, Data: []byte(content)}
}

func Dir(name string) Entry {
	return Entry{Name: name}
}

// Write creates a jar at path holding entries in the given order.
func Write(t testing.TB, path string, entries ...Entry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, e := range entries {
		method := zip.Deflate
		if e.Data == nil {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.Name, Method: method, Modified: Modified})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// Read returns the entries of the jar at path in archive order.
func Read(t testing.TB, path string) []Entry {
	t.Helper()

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		e := Entry{Name: f.Name}
		if !f.FileInfo().IsDir() {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			e.Data, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatal(err)
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func Names(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Content returns the data of the entry called name, or nil.
func Content(entries []Entry, name string) []byte {
	for _, e := range entries {
		if e.Name == name {
			return e.Data
		}
	}
	return nil
}

// Class describes a minimal class file.
type Class struct {
	Name    string
	Super   string   // java/lang/Object when empty
	Fields  []string // field descriptors
	Strings []string // loaded with ldc
	Calls   []string // classes whose static run()V method is invoked
}

// Bytes returns the serialised class.
func (c Class) Bytes(t testing.TB) []byte {
	t.Helper()

	super := c.Super
	if super == "" {
		super = "java/lang/Object"
	}
	cls := &classfile.Class{Major: 52, Access: 0x21, This: c.Name, Super: super}
	for i, desc := range c.Fields {
		cls.Fields = append(cls.Fields, &classfile.Member{Access: 0x1, Name: "f" + string(rune('a'+i)), Descriptor: desc})
	}

	code := &classfile.Code{MaxStack: 1, MaxLocals: 1}
	for _, s := range c.Strings {
		code.Refs = append(code.Refs, classfile.CodeRef{Offset: len(code.Bytecode) + 1, Narrow: true, Value: classfile.String(s)})
		code.Bytecode = append(code.Bytecode, 0x12, 0, 0x57) // ldc, pop
	}
	for _, owner := range c.Calls {
		code.Refs = append(code.Refs, classfile.CodeRef{Offset: len(code.Bytecode) + 1, Value: classfile.MemberRef{
			Kind:       classfile.TagMethodref,
			Owner:      owner,
			Name:       "run",
			Descriptor: "()V",
		}})
		code.Bytecode = append(code.Bytecode, 0xb8, 0, 0) // invokestatic
	}
	code.Bytecode = append(code.Bytecode, 0xb1) // return
	cls.Methods = []*classfile.Member{{Access: 0x9, Name: "run", Descriptor: "()V", Attributes: []classfile.Attribute{code}}}

	bs, err := cls.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return bs
}
