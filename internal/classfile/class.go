package classfile

// Attribute names with a structural representation. Every other attribute is
// carried as a RawAttribute.
const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrStackMapTable                        = "StackMapTable"
	AttrExceptions                           = "Exceptions"
	AttrInnerClasses                         = "InnerClasses"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrSignature                            = "Signature"
	AttrSourceFile                           = "SourceFile"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrMethodParameters                     = "MethodParameters"
	AttrModule                               = "Module"
	AttrModulePackages                       = "ModulePackages"
	AttrModuleMainClass                      = "ModuleMainClass"
	AttrNestHost                             = "NestHost"
	AttrNestMembers                          = "NestMembers"
	AttrPermittedSubclasses                  = "PermittedSubclasses"
	AttrRecord                               = "Record"
)

// Class is the structural model of one class file.
type Class struct {
	Minor      uint16
	Major      uint16
	Access     uint16
	This       string
	Super      string // empty for java/lang/Object and module-info
	Interfaces []string
	Fields     []*Member
	Methods    []*Member
	Attributes []Attribute
}

// Member is a field or a method.
type Member struct {
	Access     uint16
	Name       string
	Descriptor string
	Attributes []Attribute
}

// Attribute is one of the attribute types below.
type Attribute interface {
	AttributeName() string
}

// RawAttribute is an attribute whose content holds no pool references this
// package knows about (Deprecated, Synthetic, LineNumberTable,
// SourceDebugExtension, vendor attributes). Its bytes are written back as is.
type RawAttribute struct {
	Name string
	Data []byte
}

type SourceFile struct {
	File string
}

type Signature struct {
	Value string
}

// ConstantValue holds an Integer, Float, Long, Double or String.
type ConstantValue struct {
	Value Constant
}

type Exceptions struct {
	Classes []string
}

type InnerClasses struct {
	Classes []InnerClass
}

// InnerClass names are empty where the class file has a zero index.
type InnerClass struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

type EnclosingMethod struct {
	Class  string
	Method *NameAndType
}

// Code keeps the bytecode as is. Every instruction operand that indexes the
// constant pool is recorded in Refs and patched when the class is written, so
// instruction offsets never move.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Refs       []CodeRef
	Handlers   []Handler
	Attributes []Attribute
}

// CodeRef is a pool operand at Offset within the bytecode. Narrow operands are
// the single byte index of ldc.
type CodeRef struct {
	Offset int
	Narrow bool
	Value  Constant
}

// Handler is an exception table entry; Catch is empty for finally blocks.
type Handler struct {
	Start uint16
	End   uint16
	PC    uint16
	Catch string
}

type StackMapTable struct {
	Frames []Frame
}

// Frame is a stack map frame; Type is the raw frame_type byte.
type Frame struct {
	Type   uint8
	Delta  uint16
	Locals []VerificationType
	Stack  []VerificationType
}

// Verification type tags, JVMS 4.7.4.
const (
	VerifyTop               uint8 = 0
	VerifyInteger           uint8 = 1
	VerifyFloat             uint8 = 2
	VerifyDouble            uint8 = 3
	VerifyLong              uint8 = 4
	VerifyNull              uint8 = 5
	VerifyUninitializedThis uint8 = 6
	VerifyObject            uint8 = 7
	VerifyUninitialized     uint8 = 8
)

type VerificationType struct {
	Tag    uint8
	Class  string // VerifyObject
	Offset uint16 // VerifyUninitialized
}

// LocalVariables is a LocalVariableTable or, when Types is set, a
// LocalVariableTypeTable whose entries hold signatures instead of descriptors.
type LocalVariables struct {
	Types   bool
	Entries []LocalVariable
}

type LocalVariable struct {
	Start      uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

type Annotations struct {
	Visible     bool
	Annotations []*Annotation
}

type ParameterAnnotations struct {
	Visible    bool
	Parameters [][]*Annotation
}

type TypeAnnotations struct {
	Visible     bool
	Annotations []*TypeAnnotation
}

// TypeAnnotation keeps target_type, target_info and type_path verbatim; none
// of them reference the pool.
type TypeAnnotation struct {
	Target     []byte
	Annotation *Annotation
}

type Annotation struct {
	Type     string
	Elements []ElementPair
}

type ElementPair struct {
	Name  string
	Value *ElementValue
}

// ElementValue is an annotation element value. Tag selects the populated
// fields: primitive tags and 's' use Const (a Utf8 for 's'), 'e' uses
// EnumType and EnumName, 'c' uses Class (a return descriptor), '@' uses
// Annotation and '[' uses Values.
type ElementValue struct {
	Tag        byte
	Const      Constant
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Values     []*ElementValue
}

type AnnotationDefault struct {
	Value *ElementValue
}

type BootstrapMethods struct {
	Methods []BootstrapMethod
}

type BootstrapMethod struct {
	Handle    MethodHandle
	Arguments []Constant
}

type MethodParameters struct {
	Parameters []MethodParameter
}

type MethodParameter struct {
	Name   string
	Access uint16
}

type NestHost struct {
	Class string
}

// ClassList is a NestMembers or PermittedSubclasses attribute.
type ClassList struct {
	Name    string
	Classes []string
}

type Record struct {
	Components []RecordComponent
}

type RecordComponent struct {
	Name       string
	Descriptor string
	Attributes []Attribute
}

type Module struct {
	Name     string
	Flags    uint16
	Version  string
	Requires []ModuleRequire
	Exports  []ModuleExport
	Opens    []ModuleExport
	Uses     []string
	Provides []ModuleProvide
}

type ModuleRequire struct {
	Module  string
	Flags   uint16
	Version string
}

// ModuleExport is an exports or opens entry.
type ModuleExport struct {
	Package string
	Flags   uint16
	To      []string
}

type ModuleProvide struct {
	Service string
	With    []string
}

type ModulePackages struct {
	Packages []string
}

type ModuleMainClass struct {
	Class string
}

func (a *RawAttribute) AttributeName() string    { return a.Name }
func (*SourceFile) AttributeName() string        { return AttrSourceFile }
func (*Signature) AttributeName() string         { return AttrSignature }
func (*ConstantValue) AttributeName() string     { return AttrConstantValue }
func (*Exceptions) AttributeName() string        { return AttrExceptions }
func (*InnerClasses) AttributeName() string      { return AttrInnerClasses }
func (*EnclosingMethod) AttributeName() string   { return AttrEnclosingMethod }
func (*Code) AttributeName() string              { return AttrCode }
func (*StackMapTable) AttributeName() string     { return AttrStackMapTable }
func (*AnnotationDefault) AttributeName() string { return AttrAnnotationDefault }
func (*BootstrapMethods) AttributeName() string  { return AttrBootstrapMethods }
func (*MethodParameters) AttributeName() string  { return AttrMethodParameters }
func (*NestHost) AttributeName() string          { return AttrNestHost }
func (a *ClassList) AttributeName() string       { return a.Name }
func (*Record) AttributeName() string            { return AttrRecord }
func (*Module) AttributeName() string            { return AttrModule }
func (*ModulePackages) AttributeName() string    { return AttrModulePackages }
func (*ModuleMainClass) AttributeName() string   { return AttrModuleMainClass }

func (a *LocalVariables) AttributeName() string {
	if a.Types {
		return AttrLocalVariableTypeTable
	}
	return AttrLocalVariableTable
}

func (a *Annotations) AttributeName() string {
	if a.Visible {
		return AttrRuntimeVisibleAnnotations
	}
	return AttrRuntimeInvisibleAnnotations
}

func (a *ParameterAnnotations) AttributeName() string {
	if a.Visible {
		return AttrRuntimeVisibleParameterAnnotations
	}
	return AttrRuntimeInvisibleParameterAnnotations
}

func (a *TypeAnnotations) AttributeName() string {
	if a.Visible {
		return AttrRuntimeVisibleTypeAnnotations
	}
	return AttrRuntimeInvisibleTypeAnnotations
}
