package classfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func widget() *Class {
	return &Class{
		Major:      52,
		Access:     0x21,
		This:       "com/acme/Widget",
		Super:      "java/lang/Object",
		Interfaces: []string{"com/acme/api/Part"},
		Fields: []*Member{
			{
				Access:     0x1a,
				Name:       "NAME",
				Descriptor: "Ljava/lang/String;",
				Attributes: []Attribute{&ConstantValue{Value: String("com.acme.Widget")}},
			},
			{
				Access:     0x2,
				Name:       "parts",
				Descriptor: "Ljava/util/List;",
				Attributes: []Attribute{
					&Signature{Value: "Ljava/util/List<Lcom/acme/api/Part;>;"},
					&Annotations{Visible: true, Annotations: []*Annotation{{
						Type: "Lcom/acme/Marker;",
						Elements: []ElementPair{
							{Name: "value", Value: &ElementValue{Tag: 's', Const: Utf8("com.acme.Widget")}},
							{Name: "type", Value: &ElementValue{Tag: 'c', Class: "Lcom/acme/api/Part;"}},
							{Name: "kind", Value: &ElementValue{Tag: 'e', EnumType: "Lcom/acme/Kind;", EnumName: "BIG"}},
							{Name: "sizes", Value: &ElementValue{Tag: '[', Values: []*ElementValue{
								{Tag: 'I', Const: Integer(3)},
								{Tag: 'J', Const: Long(4)},
								{Tag: '@', Annotation: &Annotation{Type: "Lcom/acme/Size;"}},
							}}},
						},
					}}},
				},
			},
		},
		Methods: []*Member{
			{
				Access:     0x1,
				Name:       "run",
				Descriptor: "(Lcom/acme/api/Part;)Lcom/acme/Widget;",
				Attributes: []Attribute{
					&Code{
						MaxStack:  2,
						MaxLocals: 2,
						Bytecode: []byte{
							0x12, 0, // ldc
							0x57,       // pop
							0xb2, 0, 0, // getstatic
							0x57,
							0xbb, 0, 0, // new
							0x57,
							0x14, 0, 0, // ldc2_w
							0x58,
							0x01, // aconst_null
							0xb0, // areturn
						},
						Refs: []CodeRef{
							{Offset: 1, Narrow: true, Value: String("com/acme/data.txt")},
							{Offset: 4, Value: MemberRef{Kind: TagFieldref, Owner: "com/acme/Widget", Name: "NAME", Descriptor: "Ljava/lang/String;"}},
							{Offset: 8, Value: ClassRef("com/acme/Widget")},
							{Offset: 12, Value: Double(0x400921fb54442d18)},
						},
						Handlers: []Handler{
							{Start: 0, End: 3, PC: 15, Catch: "com/acme/Failure"},
							{Start: 0, End: 3, PC: 15},
						},
						Attributes: []Attribute{
							&StackMapTable{Frames: []Frame{
								{Type: 3},
								{Type: 70, Stack: []VerificationType{{Tag: VerifyObject, Class: "com/acme/Failure"}}},
								{Type: 252, Delta: 1, Locals: []VerificationType{{Tag: VerifyLong}}},
								{Type: 255, Delta: 2,
									Locals: []VerificationType{{Tag: VerifyObject, Class: "[Lcom/acme/Widget;"}, {Tag: VerifyInteger}},
									Stack:  []VerificationType{{Tag: VerifyUninitialized, Offset: 7}},
								},
							}},
							&LocalVariables{Entries: []LocalVariable{{Length: 17, Name: "this", Descriptor: "Lcom/acme/Widget;"}}},
							&LocalVariables{Types: true, Entries: []LocalVariable{{Length: 17, Name: "this", Descriptor: "Lcom/acme/Widget<TT;>;"}}},
							&RawAttribute{Name: "LineNumberTable", Data: []byte{0, 1, 0, 0, 0, 7}},
							&TypeAnnotations{Annotations: []*TypeAnnotation{{
								Target:     []byte{0x47, 0, 8, 0, 0},
								Annotation: &Annotation{Type: "Lcom/acme/NonNull;"},
							}}},
						},
					},
					&Exceptions{Classes: []string{"com/acme/Failure"}},
					&Signature{Value: "<T:Ljava/lang/Object;>(Lcom/acme/api/Part;)Lcom/acme/Widget;^Lcom/acme/Failure;"},
					&MethodParameters{Parameters: []MethodParameter{{Name: "part"}, {Access: 0x1000}}},
					&ParameterAnnotations{Visible: true, Parameters: [][]*Annotation{{{Type: "Lcom/acme/Marker;"}}}},
				},
			},
			{
				Access:     0x9,
				Name:       "supplier",
				Descriptor: "()Ljava/util/function/Supplier;",
				Attributes: []Attribute{
					&Code{
						MaxStack: 1,
						Bytecode: []byte{0xba, 0, 0, 0, 0, 0xb0},
						Refs: []CodeRef{
							{Offset: 1, Value: Dynamic{Kind: TagInvokeDynamic, Name: "get", Descriptor: "()Ljava/util/function/Supplier;"}},
						},
					},
				},
			},
		},
		Attributes: []Attribute{
			&SourceFile{File: "Widget.java"},
			&InnerClasses{Classes: []InnerClass{
				{Inner: "com/acme/Widget$Inner", Outer: "com/acme/Widget", Name: "Inner", Access: 0x9},
				{Inner: "com/acme/Widget$1"},
			}},
			&EnclosingMethod{Class: "com/acme/Outer", Method: &NameAndType{Name: "run", Descriptor: "()V"}},
			&EnclosingMethod{Class: "com/acme/Outer"},
			&NestHost{Class: "com/acme/Outer"},
			&ClassList{Name: AttrNestMembers, Classes: []string{"com/acme/Widget$Inner"}},
			&ClassList{Name: AttrPermittedSubclasses, Classes: []string{"com/acme/Gadget"}},
			&Record{Components: []RecordComponent{{
				Name:       "part",
				Descriptor: "Lcom/acme/api/Part;",
				Attributes: []Attribute{&Signature{Value: "Lcom/acme/api/Part;"}},
			}}},
			&BootstrapMethods{Methods: []BootstrapMethod{{
				Handle: MethodHandle{ReferenceKind: 6, Ref: MemberRef{
					Kind:       TagMethodref,
					Owner:      "java/lang/invoke/LambdaMetafactory",
					Name:       "metafactory",
					Descriptor: "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
				}},
				Arguments: []Constant{
					MethodType("()Ljava/lang/Object;"),
					String("com.acme.Widget"),
					Integer(7),
					ClassRef("com/acme/Widget"),
				},
			}}},
			&RawAttribute{Name: "Deprecated"},
		},
	}
}

func moduleInfo() *Class {
	return &Class{
		Major:  53,
		Access: 0x8000,
		This:   "module-info",
		Attributes: []Attribute{
			&Module{
				Name:     "com.acme",
				Version:  "1.0",
				Requires: []ModuleRequire{{Module: "java.base", Flags: 0x8000}},
				Exports:  []ModuleExport{{Package: "com/acme/api"}},
				Opens:    []ModuleExport{{Package: "com/acme/impl", To: []string{"com.acme.test"}}},
				Uses:     []string{"com/acme/api/Part"},
				Provides: []ModuleProvide{{Service: "com/acme/api/Part", With: []string{"com/acme/impl/PartImpl"}}},
			},
			&ModulePackages{Packages: []string{"com/acme/api", "com/acme/impl"}},
			&ModuleMainClass{Class: "com/acme/Main"},
		},
	}
}

var ignoreBytecode = cmpopts.IgnoreFields(Code{}, "Bytecode")

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		note  string
		class *Class
	}{
		{note: "class", class: widget()},
		{note: "module", class: moduleInfo()},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			bs, err := tc.class.Bytes()
			if err != nil {
				t.Fatal(err)
			}

			parsed, err := Parse(bs)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.class, parsed, cmpopts.EquateEmpty(), ignoreBytecode); diff != "" {
				t.Fatalf("unexpected class (-want,+got):\n%s", diff)
			}

			again, err := parsed.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(bs, again) {
				t.Fatal("serialisation is not stable across a parse")
			}
		})
	}
}

// compiled lists the javac style fixtures in testdata, assembled by
// testdata/genfixtures.py.
var compiled = []string{"Pipeline", "Pipeline$1", "Item", "Marker"}

func readCompiled(t *testing.T, name string) []byte {
	t.Helper()

	bs, err := os.ReadFile(filepath.Join("testdata", name+".class"))
	if err != nil {
		t.Fatal(err)
	}
	return bs
}

// maskOperands clears the constant pool operands of every method body, so
// bodies compare equal across differently laid out pools.
func maskOperands(c *Class) {
	for _, m := range c.Methods {
		for _, a := range m.Attributes {
			code, ok := a.(*Code)
			if !ok {
				continue
			}
			for _, ref := range code.Refs {
				code.Bytecode[ref.Offset] = 0
				if !ref.Narrow {
					code.Bytecode[ref.Offset+1] = 0
				}
			}
		}
	}
}

func TestRoundTripCompiled(t *testing.T) {
	for _, name := range compiled {
		t.Run(name, func(t *testing.T) {
			c, err := Parse(readCompiled(t, name))
			if err != nil {
				t.Fatal(err)
			}
			if c.This != "com/acme/"+name {
				t.Fatalf("unexpected class name %s", c.This)
			}

			bs, err := c.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			parsed, err := Parse(bs)
			if err != nil {
				t.Fatal(err)
			}
			again, err := parsed.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(bs, again) {
				t.Fatal("serialisation is not stable across a parse")
			}

			maskOperands(c)
			maskOperands(parsed)
			if diff := cmp.Diff(c, parsed, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("unexpected class (-want,+got):\n%s", diff)
			}
		})
	}
}

func TestCompiledFeatures(t *testing.T) {
	pipeline, err := Parse(readCompiled(t, "Pipeline"))
	if err != nil {
		t.Fatal(err)
	}

	var bootstrap *BootstrapMethods
	for _, a := range pipeline.Attributes {
		if bm, ok := a.(*BootstrapMethods); ok {
			bootstrap = bm
		}
	}
	if bootstrap == nil || len(bootstrap.Methods) != 2 {
		t.Fatalf("expected lambda and string concat bootstrap methods, got %+v", bootstrap)
	}
	impl := bootstrap.Methods[0].Arguments[1]
	exp := MethodHandle{ReferenceKind: 6, Ref: MemberRef{
		Kind:       TagMethodref,
		Owner:      "com/acme/Pipeline",
		Name:       "lambda$run$0",
		Descriptor: "(Lcom/acme/Item;)Ljava/lang/String;",
	}}
	if diff := cmp.Diff(exp, impl); diff != "" {
		t.Fatalf("unexpected lambda implementation (-want,+got):\n%s", diff)
	}

	methods := map[string]*Code{}
	for _, m := range pipeline.Methods {
		for _, a := range m.Attributes {
			if code, ok := a.(*Code); ok {
				methods[m.Name+m.Descriptor] = code
			}
		}
	}
	if refs := methods["classify(I)I"].Refs; len(refs) != 0 {
		t.Fatalf("tableswitch operands read as constants: %v", refs)
	}
	var strs []Constant
	for _, ref := range methods["name(I)Ljava/lang/String;"].Refs {
		strs = append(strs, ref.Value)
	}
	if diff := cmp.Diff([]Constant{String("com.acme.ok"), String("missing"), String("com/acme/other")}, strs); diff != "" {
		t.Fatalf("unexpected lookupswitch constants (-want,+got):\n%s", diff)
	}

	item, err := Parse(readCompiled(t, "Item"))
	if err != nil {
		t.Fatal(err)
	}
	var record *Record
	for _, a := range item.Attributes {
		if r, ok := a.(*Record); ok {
			record = r
		}
	}
	if record == nil || len(record.Components) != 2 || record.Components[0].Name != "name" {
		t.Fatalf("unexpected record components %+v", record)
	}
}

func TestRemapCompiled(t *testing.T) {
	for _, name := range compiled {
		t.Run(name, func(t *testing.T) {
			c, err := Parse(readCompiled(t, name))
			if err != nil {
				t.Fatal(err)
			}
			if err := Remap(c, acme); err != nil {
				t.Fatal(err)
			}
			bs, err := c.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			for _, stale := range []string{"com/acme", "com.acme"} {
				if bytes.Contains(bs, []byte(stale)) {
					t.Errorf("relocated class still contains %q", stale)
				}
			}

			parsed, err := Parse(bs)
			if err != nil {
				t.Fatal(err)
			}
			if parsed.This != "shaded/acme/"+name {
				t.Fatalf("unexpected class name %s", parsed.This)
			}
		})
	}
}

func TestBytesNarrowConstants(t *testing.T) {
	class := func(strs int) *Class {
		c := &Class{Major: 52, This: "com/acme/Big", Super: "java/lang/Object"}
		for i := range 300 {
			c.Fields = append(c.Fields, &Member{Name: fmt.Sprintf("f%d", i), Descriptor: fmt.Sprintf("Lcom/acme/T%d;", i)})
		}
		code := &Code{MaxStack: 1}
		for i := range strs {
			code.Refs = append(code.Refs, CodeRef{Offset: len(code.Bytecode) + 1, Narrow: true, Value: String(fmt.Sprintf("s%d", i))})
			code.Bytecode = append(code.Bytecode, 0x12, 0, 0x57)
		}
		code.Bytecode = append(code.Bytecode, 0xb1)
		c.Methods = []*Member{{Name: "m", Descriptor: "()V", Attributes: []Attribute{code}}}
		return c
	}

	bs, err := class(2).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	code := parsed.Methods[0].Attributes[0].(*Code)
	exp := []CodeRef{
		{Offset: 1, Narrow: true, Value: String("s0")},
		{Offset: 4, Narrow: true, Value: String("s1")},
	}
	if diff := cmp.Diff(exp, code.Refs); diff != "" {
		t.Fatalf("unexpected code refs (-want,+got):\n%s", diff)
	}

	if _, err := class(300).Bytes(); err == nil || !strings.Contains(err.Error(), "ldc constant") {
		t.Fatalf("expected ldc overflow error, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	valid, err := widget().Bytes()
	if err != nil {
		t.Fatal(err)
	}

	badTag := bytes.Clone(valid)
	badTag[10] = 2 // first pool entry

	cases := []struct {
		note   string
		input  []byte
		reason string
	}{
		{note: "empty", input: nil, reason: "bad magic"},
		{note: "bad magic", input: []byte{0xca, 0xfe, 0xd0, 0x0d, 0, 0, 0, 52}, reason: "bad magic"},
		{note: "truncated", input: valid[:len(valid)/2], reason: "unexpected end"},
		{note: "trailing bytes", input: append(bytes.Clone(valid), 0), reason: "trailing bytes"},
		{note: "unknown tag", input: badTag, reason: "unknown constant pool tag 2"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := Parse(tc.input)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected format error, got %v", err)
			}
			if !strings.Contains(fe.Reason, tc.reason) {
				t.Fatalf("expected reason %q, got %q", tc.reason, fe.Reason)
			}
		})
	}
}

func TestScanCode(t *testing.T) {
	cases := []struct {
		note   string
		code   []byte
		exp    []operand
		expErr string
	}{
		{
			note: "tableswitch and wide",
			code: []byte{
				0x00,
				0xaa, 0, 0, // tableswitch, padding
				0, 0, 0, 1, // default
				0, 0, 0, 0, // low
				0, 0, 0, 1, // high
				0, 0, 0, 1, 0, 0, 0, 1,
				0xc4, 0x84, 0, 2, 0, 2, // wide iinc
				0x13, 0, 5, // ldc_w
				0xb1,
			},
			exp: []operand{{offset: 31, index: 5}},
		},
		{
			note: "lookupswitch",
			code: []byte{
				0xab, 0, 0, 0, // lookupswitch, padding
				0, 0, 0, 1, // default
				0, 0, 0, 1, // npairs
				0, 0, 0, 9, 0, 0, 0, 1,
				0x12, 7,
				0xb9, 0, 3, 1, 0, // invokeinterface
				0xb1,
			},
			exp: []operand{{offset: 21, narrow: true, index: 7}, {offset: 23, index: 3}},
		},
		{
			note:   "invalid opcode",
			code:   []byte{0xcb},
			expErr: "invalid opcode",
		},
		{
			note:   "truncated operand",
			code:   []byte{0xb2, 0},
			expErr: "truncated instruction",
		},
		{
			note:   "truncated switch",
			code:   []byte{0xaa, 0, 0, 0, 0},
			expErr: "truncated switch",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			ops, err := scanCode(tc.code)
			if tc.expErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.expErr) {
					t.Fatalf("expected error %q, got %v", tc.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, ops, cmp.AllowUnexported(operand{})); diff != "" {
				t.Fatalf("unexpected operands (-want,+got):\n%s", diff)
			}
		})
	}
}

type prefixRemapper struct {
	from, to string
}

func (r prefixRemapper) Map(name string) string {
	if strings.HasPrefix(name, r.from) {
		return r.to + name[len(r.from):]
	}
	return name
}

func (r prefixRemapper) MapValue(value string) string {
	from, to := strings.ReplaceAll(r.from, "/", "."), strings.ReplaceAll(r.to, "/", ".")
	if strings.HasPrefix(value, from) {
		return to + value[len(from):]
	}
	return r.Map(value)
}

var acme = prefixRemapper{from: "com/acme/", to: "shaded/acme/"}

func TestRemap(t *testing.T) {
	for _, c := range []*Class{widget(), moduleInfo()} {
		if err := Remap(c, acme); err != nil {
			t.Fatal(err)
		}
		bs, err := c.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Contains(bs, []byte("com/acme")) || bytes.Contains(bs, []byte("com.acme.W")) {
			t.Fatalf("stale name left in %s", c.This)
		}
	}

	c := widget()
	if err := Remap(c, acme); err != nil {
		t.Fatal(err)
	}

	if c.This != "shaded/acme/Widget" || c.Interfaces[0] != "shaded/acme/api/Part" {
		t.Fatalf("unexpected class names %q %v", c.This, c.Interfaces)
	}
	if got := c.Fields[0].Attributes[0].(*ConstantValue).Value; got != String("shaded.acme.Widget") {
		t.Fatalf("unexpected constant value %v", got)
	}

	code := c.Methods[0].Attributes[0].(*Code)
	exp := []CodeRef{
		{Offset: 1, Narrow: true, Value: String("shaded/acme/data.txt")},
		{Offset: 4, Value: MemberRef{Kind: TagFieldref, Owner: "shaded/acme/Widget", Name: "NAME", Descriptor: "Ljava/lang/String;"}},
		{Offset: 8, Value: ClassRef("shaded/acme/Widget")},
		{Offset: 12, Value: Double(0x400921fb54442d18)},
	}
	if diff := cmp.Diff(exp, code.Refs); diff != "" {
		t.Fatalf("unexpected code refs (-want,+got):\n%s", diff)
	}

	inner := c.Attributes[1].(*InnerClasses).Classes[0]
	if diff := cmp.Diff(InnerClass{Inner: "shaded/acme/Widget$Inner", Outer: "shaded/acme/Widget", Name: "Inner", Access: 0x9}, inner); diff != "" {
		t.Fatalf("unexpected inner class (-want,+got):\n%s", diff)
	}

	if got := c.Methods[0].Name; got != "run" {
		t.Fatalf("member name changed to %q", got)
	}
}

func TestRemapMalformedSignature(t *testing.T) {
	c := widget()
	c.Fields[1].Attributes[0] = &Signature{Value: "Lcom/acme/Broken"}
	if err := Remap(c, acme); err == nil {
		t.Fatal("expected error")
	}
}

func TestMapDescriptor(t *testing.T) {
	cases := []struct {
		note string
		desc string
		exp  string
	}{
		{note: "primitive", desc: "I", exp: "I"},
		{note: "method", desc: "(ILcom/acme/A;[[Lcom/acme/B;)Lcom/acme/C;", exp: "(ILshaded/acme/A;[[Lshaded/acme/B;)Lshaded/acme/C;"},
		{note: "unrelated", desc: "[Lcom/other/X;", exp: "[Lcom/other/X;"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			if got := MapDescriptor(acme, tc.desc); got != tc.exp {
				t.Fatalf("expected %q, got %q", tc.exp, got)
			}
		})
	}
}

func TestMapSignature(t *testing.T) {
	cases := []struct {
		note   string
		sig    string
		exp    string
		expErr bool
	}{
		{
			note: "type arguments",
			sig:  "Ljava/util/Map<Lcom/acme/A;Ljava/util/List<+Lcom/acme/B;>;>;",
			exp:  "Ljava/util/Map<Lshaded/acme/A;Ljava/util/List<+Lshaded/acme/B;>;>;",
		},
		{
			note: "nested class type",
			sig:  "Lcom/acme/Outer<TT;>.Inner<Lcom/acme/A;>;",
			exp:  "Lshaded/acme/Outer<TT;>.Inner<Lshaded/acme/A;>;",
		},
		{
			note: "method",
			sig:  "<T:Ljava/lang/Object;:Lcom/acme/I;>(TT;[Lcom/acme/A;I)V^Lcom/acme/E;^TX;",
			exp:  "<T:Ljava/lang/Object;:Lshaded/acme/I;>(TT;[Lshaded/acme/A;I)V^Lshaded/acme/E;^TX;",
		},
		{
			note: "class",
			sig:  "<K:Ljava/lang/Object;>Lcom/acme/Base<TK;>;Lcom/acme/I;",
			exp:  "<K:Ljava/lang/Object;>Lshaded/acme/Base<TK;>;Lshaded/acme/I;",
		},
		{
			note: "interface bound only",
			sig:  "<T::Lcom/acme/I;>Ljava/lang/Object;",
			exp:  "<T::Lshaded/acme/I;>Ljava/lang/Object;",
		},
		{
			note: "wildcard",
			sig:  "Ljava/util/List<*>;",
			exp:  "Ljava/util/List<*>;",
		},
		{
			note: "type variable",
			sig:  "TT;",
			exp:  "TT;",
		},
		{
			note:   "unterminated class type",
			sig:    "Lcom/acme/A",
			expErr: true,
		},
		{
			note:   "type parameter without bound",
			sig:    "<T>V",
			expErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got, err := MapSignature(acme, tc.sig)
			if tc.expErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.exp {
				t.Fatalf("expected %q, got %q", tc.exp, got)
			}
		})
	}
}
