package classfile

// Remapper renames classes. Map receives internal names (never array
// descriptors); MapValue receives the content of string constants.
type Remapper interface {
	Map(name string) string
	MapValue(value string) string
}

// Remap renames every class reference in c in place: the class and its
// supertypes, member descriptors and signatures, instruction operands,
// annotations, stack map frames, and the module descriptor. Member names and
// unknown attributes are left untouched. String constants are passed through
// MapValue.
func Remap(c *Class, r Remapper) error {
	v := &remapper{r: r}
	c.This = MapType(r, c.This)
	if c.Super != "" {
		c.Super = MapType(r, c.Super)
	}
	v.types(c.Interfaces)
	for _, m := range c.Fields {
		v.member(m)
	}
	for _, m := range c.Methods {
		v.member(m)
	}
	v.attributes(c.Attributes)
	return v.err
}

type remapper struct {
	r   Remapper
	err error
}

func (v *remapper) types(names []string) {
	for i, n := range names {
		names[i] = MapType(v.r, n)
	}
}

func (v *remapper) desc(d string) string {
	return MapDescriptor(v.r, d)
}

func (v *remapper) signature(s string) string {
	mapped, err := MapSignature(v.r, s)
	if err != nil {
		if v.err == nil {
			v.err = err
		}
		return s
	}
	return mapped
}

func (v *remapper) member(m *Member) {
	m.Descriptor = v.desc(m.Descriptor)
	v.attributes(m.Attributes)
}

func (v *remapper) constant(k Constant) Constant {
	switch k := k.(type) {
	case ClassRef:
		return ClassRef(MapType(v.r, string(k)))
	case String:
		return String(v.r.MapValue(string(k)))
	case MethodType:
		return MethodType(v.desc(string(k)))
	case MemberRef:
		return v.memberRef(k)
	case MethodHandle:
		k.Ref = v.memberRef(k.Ref)
		return k
	case Dynamic:
		k.Descriptor = v.desc(k.Descriptor)
		return k
	case PackageRef:
		return PackageRef(v.r.Map(string(k)))
	}
	return k
}

func (v *remapper) memberRef(m MemberRef) MemberRef {
	m.Owner = MapType(v.r, m.Owner)
	m.Descriptor = v.desc(m.Descriptor)
	return m
}

func (v *remapper) attributes(attrs []Attribute) {
	for _, a := range attrs {
		v.attribute(a)
	}
}

func (v *remapper) attribute(a Attribute) {
	switch a := a.(type) {
	case *Signature:
		a.Value = v.signature(a.Value)
	case *ConstantValue:
		a.Value = v.constant(a.Value)
	case *Exceptions:
		v.types(a.Classes)
	case *InnerClasses:
		for i := range a.Classes {
			ic := &a.Classes[i]
			ic.Inner = MapType(v.r, ic.Inner)
			if ic.Outer != "" {
				ic.Outer = MapType(v.r, ic.Outer)
			}
		}
	case *EnclosingMethod:
		a.Class = MapType(v.r, a.Class)
		if a.Method != nil {
			a.Method.Descriptor = v.desc(a.Method.Descriptor)
		}
	case *Code:
		for i := range a.Refs {
			a.Refs[i].Value = v.constant(a.Refs[i].Value)
		}
		for i := range a.Handlers {
			if a.Handlers[i].Catch != "" {
				a.Handlers[i].Catch = MapType(v.r, a.Handlers[i].Catch)
			}
		}
		v.attributes(a.Attributes)
	case *StackMapTable:
		for i := range a.Frames {
			v.verificationTypes(a.Frames[i].Locals)
			v.verificationTypes(a.Frames[i].Stack)
		}
	case *LocalVariables:
		for i := range a.Entries {
			lv := &a.Entries[i]
			if a.Types {
				lv.Descriptor = v.signature(lv.Descriptor)
			} else {
				lv.Descriptor = v.desc(lv.Descriptor)
			}
		}
	case *Annotations:
		v.annotations(a.Annotations)
	case *ParameterAnnotations:
		for _, anns := range a.Parameters {
			v.annotations(anns)
		}
	case *TypeAnnotations:
		for _, ta := range a.Annotations {
			v.annotation(ta.Annotation)
		}
	case *AnnotationDefault:
		v.elementValue(a.Value)
	case *BootstrapMethods:
		for i := range a.Methods {
			bm := &a.Methods[i]
			bm.Handle.Ref = v.memberRef(bm.Handle.Ref)
			for j, arg := range bm.Arguments {
				bm.Arguments[j] = v.constant(arg)
			}
		}
	case *NestHost:
		a.Class = MapType(v.r, a.Class)
	case *ClassList:
		v.types(a.Classes)
	case *Record:
		for i := range a.Components {
			rc := &a.Components[i]
			rc.Descriptor = v.desc(rc.Descriptor)
			v.attributes(rc.Attributes)
		}
	case *Module:
		for _, exports := range [][]ModuleExport{a.Exports, a.Opens} {
			for i := range exports {
				exports[i].Package = v.r.Map(exports[i].Package)
			}
		}
		v.types(a.Uses)
		for i := range a.Provides {
			a.Provides[i].Service = MapType(v.r, a.Provides[i].Service)
			v.types(a.Provides[i].With)
		}
	case *ModulePackages:
		for i, p := range a.Packages {
			a.Packages[i] = v.r.Map(p)
		}
	case *ModuleMainClass:
		a.Class = MapType(v.r, a.Class)
	}
}

func (v *remapper) verificationTypes(vs []VerificationType) {
	for i := range vs {
		if vs[i].Tag == VerifyObject {
			vs[i].Class = MapType(v.r, vs[i].Class)
		}
	}
}

func (v *remapper) annotations(anns []*Annotation) {
	for _, a := range anns {
		v.annotation(a)
	}
}

func (v *remapper) annotation(a *Annotation) {
	if a == nil {
		return
	}
	a.Type = v.desc(a.Type)
	for _, el := range a.Elements {
		v.elementValue(el.Value)
	}
}

func (v *remapper) elementValue(e *ElementValue) {
	if e == nil {
		return
	}
	switch e.Tag {
	case 's':
		if s, ok := e.Const.(Utf8); ok {
			e.Const = Utf8(v.r.MapValue(string(s)))
		}
	case 'e':
		e.EnumType = v.desc(e.EnumType)
	case 'c':
		e.Class = v.desc(e.Class)
	case '@':
		v.annotation(e.Annotation)
	case '[':
		for _, el := range e.Values {
			v.elementValue(el)
		}
	}
}
