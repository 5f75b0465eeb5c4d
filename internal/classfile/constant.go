package classfile

import "fmt"

// Constant pool tags, JVMS 4.4.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Constant is a resolved constant pool entry. Entries never carry pool indices:
// references between entries are resolved to their values when parsing, and a
// new pool is laid out when a class is serialised. All implementations are
// comparable so that equal constants share one pool slot.
type Constant interface {
	Tag() uint8
}

// Utf8 holds the raw (modified UTF-8) bytes of a CONSTANT_Utf8 entry. The bytes
// are not decoded, which keeps every entry byte-exact across a parse and write.
type Utf8 string

// Integer is a CONSTANT_Integer. Annotation values of type byte, char, short and
// boolean are stored as integers too.
type Integer int32

// Float is a CONSTANT_Float, kept as its IEEE 754 bit pattern.
type Float uint32

// Long is a CONSTANT_Long.
type Long int64

// Double is a CONSTANT_Double, kept as its IEEE 754 bit pattern.
type Double uint64

// ClassRef is a CONSTANT_Class: an internal class name or an array descriptor.
type ClassRef string

// String is a CONSTANT_String.
type String string

// MethodType is a CONSTANT_MethodType holding a method descriptor.
type MethodType string

// ModuleRef is a CONSTANT_Module.
type ModuleRef string

// PackageRef is a CONSTANT_Package holding a package name in internal form.
type PackageRef string

// NameAndType is a CONSTANT_NameAndType.
type NameAndType struct {
	Name       string
	Descriptor string
}

// MemberRef is a CONSTANT_Fieldref, CONSTANT_Methodref or
// CONSTANT_InterfaceMethodref, distinguished by Kind.
type MemberRef struct {
	Kind       uint8
	Owner      string
	Name       string
	Descriptor string
}

// MethodHandle is a CONSTANT_MethodHandle.
type MethodHandle struct {
	ReferenceKind uint8
	Ref           MemberRef
}

// Dynamic is a CONSTANT_Dynamic or CONSTANT_InvokeDynamic, distinguished by Kind.
// Bootstrap indexes the BootstrapMethods attribute, not the pool.
type Dynamic struct {
	Kind       uint8
	Bootstrap  uint16
	Name       string
	Descriptor string
}

func (Utf8) Tag() uint8         { return TagUtf8 }
func (Integer) Tag() uint8      { return TagInteger }
func (Float) Tag() uint8        { return TagFloat }
func (Long) Tag() uint8         { return TagLong }
func (Double) Tag() uint8       { return TagDouble }
func (ClassRef) Tag() uint8     { return TagClass }
func (String) Tag() uint8       { return TagString }
func (MethodType) Tag() uint8   { return TagMethodType }
func (ModuleRef) Tag() uint8    { return TagModule }
func (PackageRef) Tag() uint8   { return TagPackage }
func (NameAndType) Tag() uint8  { return TagNameAndType }
func (m MemberRef) Tag() uint8  { return m.Kind }
func (MethodHandle) Tag() uint8 { return TagMethodHandle }
func (d Dynamic) Tag() uint8    { return d.Kind }

// wide reports whether the constant occupies two pool slots.
func wide(c Constant) bool {
	switch c.(type) {
	case Long, Double:
		return true
	}
	return false
}

// loadable reports whether c may be the operand of ldc, a bootstrap argument or
// a ConstantValue.
func loadable(c Constant) bool {
	switch c := c.(type) {
	case Integer, Float, Long, Double, ClassRef, String, MethodHandle, MethodType:
		return true
	case Dynamic:
		return c.Kind == TagDynamic
	}
	return false
}

func tagName(tag uint8) string {
	switch tag {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagDynamic:
		return "Dynamic"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	case TagModule:
		return "Module"
	case TagPackage:
		return "Package"
	}
	return fmt.Sprintf("tag(%d)", tag)
}
