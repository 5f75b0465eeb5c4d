package classfile

import (
	"fmt"
	"strings"
)

// MapType maps an internal class name, or the descriptor when name is an
// array type.
func MapType(r Remapper, name string) string {
	if strings.HasPrefix(name, "[") {
		return MapDescriptor(r, name)
	}
	return r.Map(name)
}

// MapDescriptor maps every class name in a field or method descriptor.
func MapDescriptor(r Remapper, desc string) string {
	if !strings.ContainsRune(desc, 'L') {
		return desc
	}
	var b strings.Builder
	b.Grow(len(desc))
	for i := 0; i < len(desc); {
		if desc[i] != 'L' {
			b.WriteByte(desc[i])
			i++
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			b.WriteString(desc[i:])
			break
		}
		b.WriteByte('L')
		b.WriteString(r.Map(desc[i+1 : i+end]))
		b.WriteByte(';')
		i += end + 1
	}
	return b.String()
}

// MapSignature maps the class names of a generic class, method or field
// signature. Nested class types (Outer<T>.Inner) are mapped through their
// binary name Outer$Inner.
func MapSignature(r Remapper, sig string) (string, error) {
	m := &signatureMapper{r: r, sig: sig}
	m.b.Grow(len(sig))
	m.signature()
	if m.err != nil {
		return "", m.err
	}
	return m.b.String(), nil
}

type signatureMapper struct {
	r   Remapper
	sig string
	pos int
	b   strings.Builder
	err error
}

func (m *signatureMapper) fail() {
	if m.err == nil {
		m.err = fmt.Errorf("malformed signature %q at position %d", m.sig, m.pos)
	}
	m.pos = len(m.sig)
}

func (m *signatureMapper) peek() byte {
	if m.pos < len(m.sig) {
		return m.sig[m.pos]
	}
	return 0
}

func (m *signatureMapper) expect(c byte) {
	if m.peek() != c {
		m.fail()
		return
	}
	m.b.WriteByte(c)
	m.pos++
}

func (m *signatureMapper) signature() {
	if m.peek() == '<' {
		m.typeParameters()
	}
	if m.peek() == '(' {
		m.expect('(')
		for m.err == nil && m.peek() != ')' {
			m.javaType()
		}
		m.expect(')')
		if m.peek() == 'V' {
			m.expect('V')
		} else {
			m.javaType()
		}
		for m.err == nil && m.peek() == '^' {
			m.expect('^')
			m.referenceType()
		}
	} else {
		m.referenceType()
		for m.err == nil && m.pos < len(m.sig) {
			m.referenceType()
		}
	}
	if m.err == nil && m.pos != len(m.sig) {
		m.fail()
	}
}

func (m *signatureMapper) typeParameters() {
	m.expect('<')
	for m.err == nil && m.peek() != '>' {
		end := strings.IndexByte(m.sig[m.pos:], ':')
		if end <= 0 {
			m.fail()
			return
		}
		m.b.WriteString(m.sig[m.pos : m.pos+end])
		m.pos += end
		m.expect(':')
		if c := m.peek(); c == 'L' || c == '[' || c == 'T' {
			m.referenceType()
		}
		for m.err == nil && m.peek() == ':' {
			m.expect(':')
			m.referenceType()
		}
	}
	m.expect('>')
}

func (m *signatureMapper) javaType() {
	switch m.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		m.expect(m.peek())
	default:
		m.referenceType()
	}
}

func (m *signatureMapper) referenceType() {
	switch m.peek() {
	case 'L':
		m.classType()
	case 'T':
		end := strings.IndexByte(m.sig[m.pos:], ';')
		if end < 0 {
			m.fail()
			return
		}
		m.b.WriteString(m.sig[m.pos : m.pos+end+1])
		m.pos += end + 1
	case '[':
		m.expect('[')
		m.javaType()
	default:
		m.fail()
	}
}

// identifier consumes a class name segment up to the next '<', '.' or ';'.
func (m *signatureMapper) identifier() string {
	start := m.pos
	for m.pos < len(m.sig) {
		switch m.sig[m.pos] {
		case '<', '.', ';':
			if m.pos == start {
				m.fail()
				return ""
			}
			return m.sig[start:m.pos]
		}
		m.pos++
	}
	m.fail()
	return ""
}

func (m *signatureMapper) classType() {
	m.expect('L')
	name := m.identifier()
	if m.err != nil {
		return
	}
	mapped := m.r.Map(name)
	m.b.WriteString(mapped)

	for m.err == nil {
		switch m.peek() {
		case '<':
			m.typeArguments()
		case '.':
			m.expect('.')
			inner := m.identifier()
			if m.err != nil {
				return
			}
			outer := mapped + "$"
			name += "$" + inner
			mapped = m.r.Map(name)
			if strings.HasPrefix(mapped, outer) {
				m.b.WriteString(mapped[len(outer):])
			} else {
				m.b.WriteString(mapped[strings.LastIndexByte(mapped, '$')+1:])
			}
		case ';':
			m.expect(';')
			return
		default:
			m.fail()
		}
	}
}

func (m *signatureMapper) typeArguments() {
	m.expect('<')
	for m.err == nil && m.peek() != '>' {
		switch m.peek() {
		case '*':
			m.expect('*')
		case '+', '-':
			m.expect(m.peek())
			m.referenceType()
		default:
			m.referenceType()
		}
	}
	m.expect('>')
}
