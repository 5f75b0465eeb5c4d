package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

type buffer []byte

func (b *buffer) u1(v uint8)     { *b = append(*b, v) }
func (b *buffer) u2(v uint16)    { *b = binary.BigEndian.AppendUint16(*b, v) }
func (b *buffer) u4(v uint32)    { *b = binary.BigEndian.AppendUint32(*b, v) }
func (b *buffer) u8(v uint64)    { *b = binary.BigEndian.AppendUint64(*b, v) }
func (b *buffer) bytes(v []byte) { *b = append(*b, v...) }

// encoder lays out a new constant pool while the class body is written. Only
// constants reachable from the model end up in the pool.
type encoder struct {
	body  buffer
	index map[Constant]uint16
	pool  []Constant
	next  int
	err   error
}

// Bytes serialises the class with a freshly built constant pool. Constants used
// by one byte ldc instructions are allocated first; Bytes fails if they do not
// fit below index 256.
func (c *Class) Bytes() ([]byte, error) {
	e := &encoder{index: make(map[Constant]uint16), next: 1}

	for _, m := range c.Methods {
		for _, a := range m.Attributes {
			if code, ok := a.(*Code); ok {
				for _, ref := range code.Refs {
					if ref.Narrow {
						e.reserve(ref.Value)
					}
				}
			}
		}
	}
	for _, k := range e.pool {
		e.children(k)
	}

	e.class(c)
	if e.err != nil {
		return nil, e.err
	}

	out := make(buffer, 0, len(e.body)+16*len(e.pool))
	out.u4(magic)
	out.u2(c.Minor)
	out.u2(c.Major)
	out.u2(uint16(e.next))
	for _, k := range e.pool {
		e.entry(&out, k)
	}
	if e.err != nil {
		return nil, e.err
	}
	out.bytes(e.body)
	return out, nil
}

func (e *encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

// reserve allocates a slot for k without allocating the entries it refers to.
func (e *encoder) reserve(k Constant) uint16 {
	if k == nil {
		e.fail("missing constant")
		return 0
	}
	if i, ok := e.index[k]; ok {
		return i
	}
	n := 1
	if wide(k) {
		n = 2
	}
	if e.next+n > math.MaxUint16 {
		e.fail("constant pool exceeds %d entries", math.MaxUint16)
		return 0
	}
	i := uint16(e.next)
	e.index[k] = i
	e.pool = append(e.pool, k)
	e.next += n
	return i
}

func (e *encoder) add(k Constant) uint16 {
	if i, ok := e.index[k]; ok {
		return i
	}
	i := e.reserve(k)
	if e.err == nil {
		e.children(k)
	}
	return i
}

func (e *encoder) children(k Constant) {
	switch k := k.(type) {
	case ClassRef:
		e.utf8(string(k))
	case String:
		e.utf8(string(k))
	case MethodType:
		e.utf8(string(k))
	case ModuleRef:
		e.utf8(string(k))
	case PackageRef:
		e.utf8(string(k))
	case NameAndType:
		e.utf8(k.Name)
		e.utf8(k.Descriptor)
	case MemberRef:
		e.add(ClassRef(k.Owner))
		e.add(NameAndType{Name: k.Name, Descriptor: k.Descriptor})
	case MethodHandle:
		e.add(k.Ref)
	case Dynamic:
		e.add(NameAndType{Name: k.Name, Descriptor: k.Descriptor})
	}
}

func (e *encoder) entry(out *buffer, k Constant) {
	out.u1(k.Tag())
	switch k := k.(type) {
	case Utf8:
		if len(k) > math.MaxUint16 {
			e.fail("string constant of %d bytes is too long", len(k))
			return
		}
		out.u2(uint16(len(k)))
		*out = append(*out, string(k)...)
	case Integer:
		out.u4(uint32(k))
	case Float:
		out.u4(uint32(k))
	case Long:
		out.u8(uint64(k))
	case Double:
		out.u8(uint64(k))
	case ClassRef:
		out.u2(e.index[Utf8(k)])
	case String:
		out.u2(e.index[Utf8(k)])
	case MethodType:
		out.u2(e.index[Utf8(k)])
	case ModuleRef:
		out.u2(e.index[Utf8(k)])
	case PackageRef:
		out.u2(e.index[Utf8(k)])
	case NameAndType:
		out.u2(e.index[Utf8(k.Name)])
		out.u2(e.index[Utf8(k.Descriptor)])
	case MemberRef:
		out.u2(e.index[ClassRef(k.Owner)])
		out.u2(e.index[NameAndType{Name: k.Name, Descriptor: k.Descriptor}])
	case MethodHandle:
		out.u1(k.ReferenceKind)
		out.u2(e.index[k.Ref])
	case Dynamic:
		out.u2(k.Bootstrap)
		out.u2(e.index[NameAndType{Name: k.Name, Descriptor: k.Descriptor}])
	}
}

func (e *encoder) utf8(s string) uint16 { return e.add(Utf8(s)) }

func (e *encoder) optUtf8(s string) uint16 {
	if s == "" {
		return 0
	}
	return e.utf8(s)
}

func (e *encoder) classRef(s string) uint16 { return e.add(ClassRef(s)) }

func (e *encoder) optClassRef(s string) uint16 {
	if s == "" {
		return 0
	}
	return e.classRef(s)
}

func (e *encoder) u2(v uint16) { e.body.u2(v) }

func (e *encoder) count(n int, what string) {
	if n > math.MaxUint16 {
		e.fail("too many %s: %d", what, n)
	}
	e.body.u2(uint16(n))
}

func (e *encoder) count1(n int, what string) {
	if n > math.MaxUint8 {
		e.fail("too many %s: %d", what, n)
	}
	e.body.u1(uint8(n))
}

func (e *encoder) classRefs(names []string) {
	e.count(len(names), "class references")
	for _, n := range names {
		e.u2(e.classRef(n))
	}
}

func (e *encoder) class(c *Class) {
	e.u2(c.Access)
	e.u2(e.classRef(c.This))
	e.u2(e.optClassRef(c.Super))
	e.classRefs(c.Interfaces)
	e.members(c.Fields)
	e.members(c.Methods)
	e.attributes(c.Attributes)
}

func (e *encoder) members(ms []*Member) {
	e.count(len(ms), "members")
	for _, m := range ms {
		e.u2(m.Access)
		e.u2(e.utf8(m.Name))
		e.u2(e.utf8(m.Descriptor))
		e.attributes(m.Attributes)
	}
}

func (e *encoder) attributes(attrs []Attribute) {
	e.count(len(attrs), "attributes")
	for _, a := range attrs {
		e.u2(e.utf8(a.AttributeName()))
		at := len(e.body)
		e.body.u4(0)
		e.attribute(a)
		n := len(e.body) - at - 4
		if uint64(n) > math.MaxUint32 {
			e.fail("%s attribute too long", a.AttributeName())
		}
		binary.BigEndian.PutUint32(e.body[at:], uint32(n))
	}
}

func (e *encoder) attribute(a Attribute) {
	switch a := a.(type) {
	case *RawAttribute:
		e.body.bytes(a.Data)
	case *SourceFile:
		e.u2(e.utf8(a.File))
	case *Signature:
		e.u2(e.utf8(a.Value))
	case *ConstantValue:
		e.u2(e.add(a.Value))
	case *Exceptions:
		e.classRefs(a.Classes)
	case *InnerClasses:
		e.count(len(a.Classes), "inner classes")
		for _, ic := range a.Classes {
			e.u2(e.classRef(ic.Inner))
			e.u2(e.optClassRef(ic.Outer))
			e.u2(e.optUtf8(ic.Name))
			e.u2(ic.Access)
		}
	case *EnclosingMethod:
		e.u2(e.classRef(a.Class))
		if a.Method != nil {
			e.u2(e.add(*a.Method))
		} else {
			e.u2(0)
		}
	case *Code:
		e.code(a)
	case *StackMapTable:
		e.stackMapTable(a)
	case *LocalVariables:
		e.count(len(a.Entries), "local variables")
		for _, lv := range a.Entries {
			e.u2(lv.Start)
			e.u2(lv.Length)
			e.u2(e.utf8(lv.Name))
			e.u2(e.utf8(lv.Descriptor))
			e.u2(lv.Index)
		}
	case *Annotations:
		e.annotations(a.Annotations)
	case *ParameterAnnotations:
		e.count1(len(a.Parameters), "annotated parameters")
		for _, anns := range a.Parameters {
			e.annotations(anns)
		}
	case *TypeAnnotations:
		e.count(len(a.Annotations), "type annotations")
		for _, ta := range a.Annotations {
			e.body.bytes(ta.Target)
			e.annotation(ta.Annotation)
		}
	case *AnnotationDefault:
		e.elementValue(a.Value)
	case *BootstrapMethods:
		e.count(len(a.Methods), "bootstrap methods")
		for _, m := range a.Methods {
			e.u2(e.add(m.Handle))
			e.count(len(m.Arguments), "bootstrap arguments")
			for _, arg := range m.Arguments {
				e.u2(e.add(arg))
			}
		}
	case *MethodParameters:
		e.count1(len(a.Parameters), "method parameters")
		for _, mp := range a.Parameters {
			e.u2(e.optUtf8(mp.Name))
			e.u2(mp.Access)
		}
	case *NestHost:
		e.u2(e.classRef(a.Class))
	case *ClassList:
		e.classRefs(a.Classes)
	case *Record:
		e.count(len(a.Components), "record components")
		for _, rc := range a.Components {
			e.u2(e.utf8(rc.Name))
			e.u2(e.utf8(rc.Descriptor))
			e.attributes(rc.Attributes)
		}
	case *Module:
		e.module(a)
	case *ModulePackages:
		e.count(len(a.Packages), "module packages")
		for _, p := range a.Packages {
			e.u2(e.add(PackageRef(p)))
		}
	case *ModuleMainClass:
		e.u2(e.classRef(a.Class))
	default:
		e.fail("unsupported attribute type %T", a)
	}
}

func (e *encoder) code(c *Code) {
	e.u2(c.MaxStack)
	e.u2(c.MaxLocals)

	code := bytes.Clone(c.Bytecode)
	for _, ref := range c.Refs {
		width := 2
		if ref.Narrow {
			width = 1
		}
		if ref.Offset < 0 || ref.Offset+width > len(code) {
			e.fail("code reference at offset %d outside of bytecode", ref.Offset)
			return
		}
		i := e.add(ref.Value)
		if ref.Narrow {
			if i > math.MaxUint8 {
				e.fail("ldc constant at bytecode offset %d has pool index %d", ref.Offset, i)
				return
			}
			code[ref.Offset] = uint8(i)
		} else {
			binary.BigEndian.PutUint16(code[ref.Offset:], i)
		}
	}
	e.body.u4(uint32(len(code)))
	e.body.bytes(code)

	e.count(len(c.Handlers), "exception handlers")
	for _, h := range c.Handlers {
		e.u2(h.Start)
		e.u2(h.End)
		e.u2(h.PC)
		e.u2(e.optClassRef(h.Catch))
	}
	e.attributes(c.Attributes)
}

func (e *encoder) stackMapTable(t *StackMapTable) {
	e.count(len(t.Frames), "stack map frames")
	for _, f := range t.Frames {
		e.body.u1(f.Type)
		switch {
		case f.Type <= 63:
		case f.Type <= 127:
			e.verificationTypes(f.Stack, 1)
		case f.Type == 247:
			e.u2(f.Delta)
			e.verificationTypes(f.Stack, 1)
		case f.Type >= 248 && f.Type <= 251:
			e.u2(f.Delta)
		case f.Type >= 252 && f.Type <= 254:
			e.u2(f.Delta)
			e.verificationTypes(f.Locals, int(f.Type)-251)
		case f.Type == 255:
			e.u2(f.Delta)
			e.count(len(f.Locals), "frame locals")
			e.verificationTypes(f.Locals, len(f.Locals))
			e.count(len(f.Stack), "frame stack items")
			e.verificationTypes(f.Stack, len(f.Stack))
		default:
			e.fail("reserved stack map frame type %d", f.Type)
		}
	}
}

func (e *encoder) verificationTypes(vs []VerificationType, want int) {
	if len(vs) != want {
		e.fail("stack map frame has %d verification types, want %d", len(vs), want)
		return
	}
	for _, v := range vs {
		e.body.u1(v.Tag)
		switch v.Tag {
		case VerifyObject:
			e.u2(e.classRef(v.Class))
		case VerifyUninitialized:
			e.u2(v.Offset)
		}
	}
}

func (e *encoder) annotations(anns []*Annotation) {
	e.count(len(anns), "annotations")
	for _, a := range anns {
		e.annotation(a)
	}
}

func (e *encoder) annotation(a *Annotation) {
	e.u2(e.utf8(a.Type))
	e.count(len(a.Elements), "annotation elements")
	for _, el := range a.Elements {
		e.u2(e.utf8(el.Name))
		e.elementValue(el.Value)
	}
}

func (e *encoder) elementValue(v *ElementValue) {
	e.body.u1(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'I', 'S', 'Z', 'D', 'F', 'J', 's':
		e.u2(e.add(v.Const))
	case 'e':
		e.u2(e.utf8(v.EnumType))
		e.u2(e.utf8(v.EnumName))
	case 'c':
		e.u2(e.utf8(v.Class))
	case '@':
		e.annotation(v.Annotation)
	case '[':
		e.count(len(v.Values), "array element values")
		for _, el := range v.Values {
			e.elementValue(el)
		}
	default:
		e.fail("unknown element value tag %q", v.Tag)
	}
}

func (e *encoder) module(m *Module) {
	e.u2(e.add(ModuleRef(m.Name)))
	e.u2(m.Flags)
	e.u2(e.optUtf8(m.Version))

	e.count(len(m.Requires), "module requires")
	for _, r := range m.Requires {
		e.u2(e.add(ModuleRef(r.Module)))
		e.u2(r.Flags)
		e.u2(e.optUtf8(r.Version))
	}
	for _, exports := range [][]ModuleExport{m.Exports, m.Opens} {
		e.count(len(exports), "module exports")
		for _, x := range exports {
			e.u2(e.add(PackageRef(x.Package)))
			e.u2(x.Flags)
			e.count(len(x.To), "export targets")
			for _, to := range x.To {
				e.u2(e.add(ModuleRef(to)))
			}
		}
	}
	e.classRefs(m.Uses)
	e.count(len(m.Provides), "module provides")
	for _, p := range m.Provides {
		e.u2(e.classRef(p.Service))
		e.classRefs(p.With)
	}
}
