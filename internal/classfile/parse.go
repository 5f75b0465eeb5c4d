package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const magic = 0xCAFEBABE

// FormatError reports a class file that cannot be decoded.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed class file at offset %d: %s", e.Offset, e.Reason)
}

// reader decodes big-endian values. The first failure sticks: later reads
// return zero values, so callers check err once per structure.
type reader struct {
	buf  []byte
	off  int
	base int // offset of buf within the class file, for error reporting
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = &FormatError{Offset: r.base + r.off, Reason: fmt.Sprintf(format, args...)}
	}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.fail("unexpected end of data reading %d bytes", n)
		r.off = len(r.buf)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	if b := r.bytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u2() uint16 {
	if b := r.bytes(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.bytes(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u8() uint64 {
	if b := r.bytes(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

type rawConst struct {
	tag  uint8
	kind uint8 // MethodHandle reference kind
	a, b uint16
	num  uint64
	text string
}

type parser struct {
	r    *reader
	pool []rawConst
}

// Parse decodes a class file into its structural model. The constant pool is
// resolved away: the returned Class refers to names and values only.
func Parse(b []byte) (*Class, error) {
	p := &parser{r: &reader{buf: b}}
	c := p.class()
	if p.r.err != nil {
		return nil, p.r.err
	}
	return c, nil
}

// Utf8Constants returns the text of every Utf8 entry of the class file's
// constant pool, including entries nothing in the class refers to.
func Utf8Constants(b []byte) ([]string, error) {
	p := &parser{r: &reader{buf: b}}
	if len(b) < 8 || binary.BigEndian.Uint32(b) != magic {
		p.r.fail("bad magic number")
		return nil, p.r.err
	}
	p.r.off = 8
	p.readPool()
	if p.r.err != nil {
		return nil, p.r.err
	}

	var texts []string
	for _, c := range p.pool {
		if c.tag == TagUtf8 {
			texts = append(texts, c.text)
		}
	}
	return texts, nil
}

func (p *parser) class() *Class {
	r := p.r
	if len(r.buf) < 4 || binary.BigEndian.Uint32(r.buf) != magic {
		r.fail("bad magic number")
		return nil
	}
	r.off = 4

	c := &Class{}
	c.Minor = r.u2()
	c.Major = r.u2()
	p.readPool()
	c.Access = r.u2()
	c.This = p.classRef(r.u2())
	c.Super = p.optClassRef(r.u2())
	c.Interfaces = p.classRefs()
	c.Fields = p.members()
	c.Methods = p.members()
	c.Attributes = p.attributes()

	if r.err == nil && r.off != len(r.buf) {
		r.fail("%d trailing bytes", len(r.buf)-r.off)
	}
	return c
}

func (p *parser) readPool() {
	r := p.r
	count := int(r.u2())
	if count == 0 {
		r.fail("empty constant pool")
		return
	}
	p.pool = make([]rawConst, count)
	for i := 1; i < count && r.err == nil; i++ {
		c := rawConst{tag: r.u1()}
		switch c.tag {
		case TagUtf8:
			c.text = string(r.bytes(int(r.u2())))
		case TagInteger, TagFloat:
			c.num = uint64(r.u4())
		case TagLong, TagDouble:
			c.num = r.u8()
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.a = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.a = r.u2()
			c.b = r.u2()
		case TagMethodHandle:
			c.kind = r.u1()
			c.a = r.u2()
		default:
			r.off--
			r.fail("unknown constant pool tag %d at index %d", c.tag, i)
			return
		}
		p.pool[i] = c
		if c.tag == TagLong || c.tag == TagDouble {
			i++ // the next slot is unusable
		}
	}
}

func (p *parser) entry(i uint16, tags ...uint8) *rawConst {
	if int(i) == 0 || int(i) >= len(p.pool) {
		p.r.fail("constant pool index %d out of range", i)
		return nil
	}
	c := &p.pool[i]
	for _, tag := range tags {
		if c.tag == tag {
			return c
		}
	}
	p.r.fail("constant pool index %d is a %s entry", i, tagName(c.tag))
	return nil
}

func (p *parser) utf8(i uint16) string {
	if c := p.entry(i, TagUtf8); c != nil {
		return c.text
	}
	return ""
}

func (p *parser) optUtf8(i uint16) string {
	if i == 0 {
		return ""
	}
	return p.utf8(i)
}

func (p *parser) classRef(i uint16) string {
	if c := p.entry(i, TagClass); c != nil {
		return p.utf8(c.a)
	}
	return ""
}

func (p *parser) optClassRef(i uint16) string {
	if i == 0 {
		return ""
	}
	return p.classRef(i)
}

func (p *parser) classRefs() []string {
	n := int(p.r.u2())
	names := make([]string, 0, n)
	for range n {
		names = append(names, p.classRef(p.r.u2()))
	}
	return names
}

func (p *parser) moduleRef(i uint16) string {
	if c := p.entry(i, TagModule); c != nil {
		return p.utf8(c.a)
	}
	return ""
}

func (p *parser) packageRef(i uint16) string {
	if c := p.entry(i, TagPackage); c != nil {
		return p.utf8(c.a)
	}
	return ""
}

func (p *parser) nameAndType(i uint16) NameAndType {
	if c := p.entry(i, TagNameAndType); c != nil {
		return NameAndType{Name: p.utf8(c.a), Descriptor: p.utf8(c.b)}
	}
	return NameAndType{}
}

func (p *parser) memberRef(i uint16) MemberRef {
	c := p.entry(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if c == nil {
		return MemberRef{}
	}
	nt := p.nameAndType(c.b)
	return MemberRef{Kind: c.tag, Owner: p.classRef(c.a), Name: nt.Name, Descriptor: nt.Descriptor}
}

// constant resolves any entry except Utf8, which only appears through the
// typed accessors above.
func (p *parser) constant(i uint16) Constant {
	c := p.entry(i, TagInteger, TagFloat, TagLong, TagDouble, TagClass, TagString,
		TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
		TagMethodHandle, TagMethodType, TagDynamic, TagInvokeDynamic, TagModule, TagPackage)
	if c == nil {
		return nil
	}
	switch c.tag {
	case TagInteger:
		return Integer(int32(uint32(c.num)))
	case TagFloat:
		return Float(uint32(c.num))
	case TagLong:
		return Long(int64(c.num))
	case TagDouble:
		return Double(c.num)
	case TagClass:
		return ClassRef(p.utf8(c.a))
	case TagString:
		return String(p.utf8(c.a))
	case TagMethodType:
		return MethodType(p.utf8(c.a))
	case TagModule:
		return ModuleRef(p.utf8(c.a))
	case TagPackage:
		return PackageRef(p.utf8(c.a))
	case TagNameAndType:
		return p.nameAndType(i)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		return p.memberRef(i)
	case TagMethodHandle:
		return MethodHandle{ReferenceKind: c.kind, Ref: p.memberRef(c.a)}
	default: // TagDynamic, TagInvokeDynamic
		nt := p.nameAndType(c.b)
		return Dynamic{Kind: c.tag, Bootstrap: c.a, Name: nt.Name, Descriptor: nt.Descriptor}
	}
}

func (p *parser) members() []*Member {
	n := int(p.r.u2())
	members := make([]*Member, 0, n)
	for range n {
		m := &Member{
			Access:     p.r.u2(),
			Name:       p.utf8(p.r.u2()),
			Descriptor: p.utf8(p.r.u2()),
		}
		m.Attributes = p.attributes()
		members = append(members, m)
	}
	return members
}

func (p *parser) attributes() []Attribute {
	n := int(p.r.u2())
	attrs := make([]Attribute, 0, n)
	for range n {
		name := p.utf8(p.r.u2())
		length := int(p.r.u4())
		at := p.r.base + p.r.off
		data := p.r.bytes(length)
		if p.r.err != nil {
			return nil
		}
		attrs = append(attrs, p.attribute(name, data, at))
		if p.r.err != nil {
			return nil
		}
	}
	return attrs
}

// attribute decodes the content of a single attribute with a reader scoped to
// its bytes; the whole content must be consumed.
func (p *parser) attribute(name string, data []byte, at int) Attribute {
	q := &parser{r: &reader{buf: data, base: at}, pool: p.pool}
	r := q.r

	var a Attribute
	switch name {
	case AttrSourceFile:
		a = &SourceFile{File: q.utf8(r.u2())}
	case AttrSignature:
		a = &Signature{Value: q.utf8(r.u2())}
	case AttrConstantValue:
		a = &ConstantValue{Value: q.constant(r.u2())}
	case AttrExceptions:
		a = &Exceptions{Classes: q.classRefs()}
	case AttrInnerClasses:
		a = q.innerClasses()
	case AttrEnclosingMethod:
		em := &EnclosingMethod{Class: q.classRef(r.u2())}
		if i := r.u2(); i != 0 {
			nt := q.nameAndType(i)
			em.Method = &nt
		}
		a = em
	case AttrCode:
		a = q.code()
	case AttrStackMapTable:
		a = q.stackMapTable()
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		a = q.localVariables(name == AttrLocalVariableTypeTable)
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		a = &Annotations{Visible: name == AttrRuntimeVisibleAnnotations, Annotations: q.annotations()}
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
		pa := &ParameterAnnotations{Visible: name == AttrRuntimeVisibleParameterAnnotations}
		n := int(r.u1())
		for range n {
			pa.Parameters = append(pa.Parameters, q.annotations())
		}
		a = pa
	case AttrRuntimeVisibleTypeAnnotations, AttrRuntimeInvisibleTypeAnnotations:
		ta := &TypeAnnotations{Visible: name == AttrRuntimeVisibleTypeAnnotations}
		n := int(r.u2())
		for range n {
			ta.Annotations = append(ta.Annotations, q.typeAnnotation())
		}
		a = ta
	case AttrAnnotationDefault:
		a = &AnnotationDefault{Value: q.elementValue()}
	case AttrBootstrapMethods:
		a = q.bootstrapMethods()
	case AttrMethodParameters:
		mp := &MethodParameters{}
		n := int(r.u1())
		for range n {
			mp.Parameters = append(mp.Parameters, MethodParameter{Name: q.optUtf8(r.u2()), Access: r.u2()})
		}
		a = mp
	case AttrNestHost:
		a = &NestHost{Class: q.classRef(r.u2())}
	case AttrNestMembers, AttrPermittedSubclasses:
		a = &ClassList{Name: name, Classes: q.classRefs()}
	case AttrRecord:
		a = q.record()
	case AttrModule:
		a = q.module()
	case AttrModulePackages:
		mp := &ModulePackages{}
		n := int(r.u2())
		for range n {
			mp.Packages = append(mp.Packages, q.packageRef(r.u2()))
		}
		a = mp
	case AttrModuleMainClass:
		a = &ModuleMainClass{Class: q.classRef(r.u2())}
	default:
		return &RawAttribute{Name: name, Data: bytes.Clone(data)}
	}

	if r.err == nil && r.off != len(data) {
		r.fail("%s attribute has %d trailing bytes", name, len(data)-r.off)
	}
	if r.err != nil {
		p.r.err = r.err
		return nil
	}
	return a
}

func (p *parser) innerClasses() *InnerClasses {
	r := p.r
	ic := &InnerClasses{}
	n := int(r.u2())
	for range n {
		ic.Classes = append(ic.Classes, InnerClass{
			Inner:  p.classRef(r.u2()),
			Outer:  p.optClassRef(r.u2()),
			Name:   p.optUtf8(r.u2()),
			Access: r.u2(),
		})
	}
	return ic
}

func (p *parser) code() *Code {
	r := p.r
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Bytecode = bytes.Clone(r.bytes(int(r.u4())))
	if r.err != nil {
		return nil
	}

	operands, err := scanCode(c.Bytecode)
	if err != nil {
		r.fail("%v", err)
		return nil
	}
	for _, op := range operands {
		c.Refs = append(c.Refs, CodeRef{Offset: op.offset, Narrow: op.narrow, Value: p.constant(op.index)})
	}

	n := int(r.u2())
	for range n {
		c.Handlers = append(c.Handlers, Handler{
			Start: r.u2(),
			End:   r.u2(),
			PC:    r.u2(),
			Catch: p.optClassRef(r.u2()),
		})
	}
	c.Attributes = p.attributes()
	return c
}

func (p *parser) stackMapTable() *StackMapTable {
	r := p.r
	t := &StackMapTable{}
	n := int(r.u2())
	for range n {
		f := Frame{Type: r.u1()}
		switch {
		case f.Type <= 63:
		case f.Type <= 127:
			f.Stack = []VerificationType{p.verificationType()}
		case f.Type < 247:
			r.fail("reserved stack map frame type %d", f.Type)
		case f.Type == 247:
			f.Delta = r.u2()
			f.Stack = []VerificationType{p.verificationType()}
		case f.Type <= 251:
			f.Delta = r.u2()
		case f.Type <= 254:
			f.Delta = r.u2()
			for range int(f.Type) - 251 {
				f.Locals = append(f.Locals, p.verificationType())
			}
		default:
			f.Delta = r.u2()
			for range int(r.u2()) {
				f.Locals = append(f.Locals, p.verificationType())
			}
			for range int(r.u2()) {
				f.Stack = append(f.Stack, p.verificationType())
			}
		}
		if r.err != nil {
			return nil
		}
		t.Frames = append(t.Frames, f)
	}
	return t
}

func (p *parser) verificationType() VerificationType {
	v := VerificationType{Tag: p.r.u1()}
	switch v.Tag {
	case VerifyObject:
		v.Class = p.classRef(p.r.u2())
	case VerifyUninitialized:
		v.Offset = p.r.u2()
	default:
		if v.Tag > VerifyUninitialized {
			p.r.fail("unknown verification type %d", v.Tag)
		}
	}
	return v
}

func (p *parser) localVariables(types bool) *LocalVariables {
	r := p.r
	lv := &LocalVariables{Types: types}
	n := int(r.u2())
	for range n {
		lv.Entries = append(lv.Entries, LocalVariable{
			Start:      r.u2(),
			Length:     r.u2(),
			Name:       p.utf8(r.u2()),
			Descriptor: p.utf8(r.u2()),
			Index:      r.u2(),
		})
	}
	return lv
}

func (p *parser) annotations() []*Annotation {
	n := int(p.r.u2())
	anns := make([]*Annotation, 0, n)
	for range n {
		anns = append(anns, p.annotation())
	}
	return anns
}

func (p *parser) annotation() *Annotation {
	r := p.r
	a := &Annotation{Type: p.utf8(r.u2())}
	n := int(r.u2())
	for range n {
		name := p.utf8(r.u2())
		a.Elements = append(a.Elements, ElementPair{Name: name, Value: p.elementValue()})
		if r.err != nil {
			return nil
		}
	}
	return a
}

func (p *parser) elementValue() *ElementValue {
	r := p.r
	v := &ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'I', 'S', 'Z', 'D', 'F', 'J':
		v.Const = p.constant(r.u2())
	case 's':
		v.Const = Utf8(p.utf8(r.u2()))
	case 'e':
		v.EnumType = p.utf8(r.u2())
		v.EnumName = p.utf8(r.u2())
	case 'c':
		v.Class = p.utf8(r.u2())
	case '@':
		v.Annotation = p.annotation()
	case '[':
		n := int(r.u2())
		for range n {
			v.Values = append(v.Values, p.elementValue())
			if r.err != nil {
				return nil
			}
		}
	default:
		if r.err == nil {
			r.off--
			r.fail("unknown element value tag %q", v.Tag)
		}
	}
	return v
}

func (p *parser) typeAnnotation() *TypeAnnotation {
	r := p.r
	start := r.off
	switch t := r.u1(); {
	case t == 0x00, t == 0x01, t == 0x16:
		r.bytes(1)
	case t == 0x10, t == 0x11, t == 0x12, t == 0x17, t >= 0x42 && t <= 0x46:
		r.bytes(2)
	case t >= 0x13 && t <= 0x15:
	case t == 0x40, t == 0x41:
		r.bytes(6 * int(r.u2()))
	case t >= 0x47 && t <= 0x4b:
		r.bytes(3)
	default:
		r.fail("unknown type annotation target %#x", t)
	}
	r.bytes(2 * int(r.u1()))
	if r.err != nil {
		return nil
	}
	return &TypeAnnotation{Target: bytes.Clone(r.buf[start:r.off]), Annotation: p.annotation()}
}

func (p *parser) bootstrapMethods() *BootstrapMethods {
	r := p.r
	bm := &BootstrapMethods{}
	n := int(r.u2())
	for range n {
		i := r.u2()
		h, ok := p.constant(i).(MethodHandle)
		if !ok {
			r.fail("bootstrap method %d is not a method handle", i)
			return nil
		}
		m := BootstrapMethod{Handle: h}
		argc := int(r.u2())
		for range argc {
			m.Arguments = append(m.Arguments, p.constant(r.u2()))
		}
		bm.Methods = append(bm.Methods, m)
	}
	return bm
}

func (p *parser) record() *Record {
	r := p.r
	rec := &Record{}
	n := int(r.u2())
	for range n {
		rc := RecordComponent{Name: p.utf8(r.u2()), Descriptor: p.utf8(r.u2())}
		rc.Attributes = p.attributes()
		rec.Components = append(rec.Components, rc)
	}
	return rec
}

func (p *parser) module() *Module {
	r := p.r
	m := &Module{
		Name:    p.moduleRef(r.u2()),
		Flags:   r.u2(),
		Version: p.optUtf8(r.u2()),
	}
	for range int(r.u2()) {
		m.Requires = append(m.Requires, ModuleRequire{
			Module:  p.moduleRef(r.u2()),
			Flags:   r.u2(),
			Version: p.optUtf8(r.u2()),
		})
	}
	m.Exports = p.moduleExports()
	m.Opens = p.moduleExports()
	m.Uses = p.classRefs()
	for range int(r.u2()) {
		m.Provides = append(m.Provides, ModuleProvide{Service: p.classRef(r.u2()), With: p.classRefs()})
	}
	return m
}

func (p *parser) moduleExports() []ModuleExport {
	r := p.r
	n := int(r.u2())
	exports := make([]ModuleExport, 0, n)
	for range n {
		e := ModuleExport{Package: p.packageRef(r.u2()), Flags: r.u2()}
		for range int(r.u2()) {
			e.To = append(e.To, p.moduleRef(r.u2()))
		}
		exports = append(exports, e)
	}
	return exports
}
