package classfile

import (
	"encoding/binary"
	"fmt"
)

const (
	opLdc             = 0x12
	opLdcW            = 0x13
	opLdc2W           = 0x14
	opGetstatic       = 0xb2
	opInvokestatic    = 0xb8
	opInvokeinterface = 0xb9
	opInvokedynamic   = 0xba
	opNew             = 0xbb
	opAnewarray       = 0xbd
	opCheckcast       = 0xc0
	opInstanceof      = 0xc1
	opWide            = 0xc4
	opMultianewarray  = 0xc5
	opIinc            = 0x84
	opTableswitch     = 0xaa
	opLookupswitch    = 0xab
)

// opcodeLength is the fixed instruction length per opcode, zero for invalid
// opcodes and for the variable length switch and wide instructions.
var opcodeLength = func() (t [256]uint8) {
	set := func(from, to int, n uint8) {
		for i := from; i <= to; i++ {
			t[i] = n
		}
	}
	set(0x00, 0x0f, 1)
	t[0x10], t[0x11], t[0x12], t[0x13], t[0x14] = 2, 3, 2, 3, 3
	set(0x15, 0x19, 2)
	set(0x1a, 0x35, 1)
	set(0x36, 0x3a, 2)
	set(0x3b, 0x83, 1)
	t[opIinc] = 3
	set(0x85, 0x98, 1)
	set(0x99, 0xa8, 3)
	t[0xa9] = 2
	set(0xac, 0xb1, 1)
	set(0xb2, 0xb8, 3)
	t[0xb9], t[0xba], t[0xbb], t[0xbc], t[0xbd] = 5, 5, 3, 2, 3
	t[0xbe], t[0xbf], t[0xc0], t[0xc1], t[0xc2], t[0xc3] = 1, 1, 3, 3, 1, 1
	t[0xc5], t[0xc6], t[0xc7], t[0xc8], t[0xc9] = 4, 3, 3, 5, 5
	t[0xca], t[0xfe], t[0xff] = 1, 1, 1
	return t
}()

type operand struct {
	offset int
	narrow bool
	index  uint16
}

// scanCode walks the instructions of a method body and returns the position of
// every constant pool operand.
func scanCode(code []byte) ([]operand, error) {
	var ops []operand
	for pc := 0; pc < len(code); {
		op := code[pc]
		next := pc + int(opcodeLength[op])

		switch {
		case op == opLdc:
			if next <= len(code) {
				ops = append(ops, operand{offset: pc + 1, narrow: true, index: uint16(code[pc+1])})
			}
		case op == opLdcW, op == opLdc2W,
			op >= opGetstatic && op <= opInvokedynamic,
			op == opNew, op == opAnewarray, op == opCheckcast, op == opInstanceof, op == opMultianewarray:
			if next <= len(code) {
				ops = append(ops, operand{offset: pc + 1, index: binary.BigEndian.Uint16(code[pc+1:])})
			}
		case op == opWide:
			next = pc + 4
			if pc+1 < len(code) && code[pc+1] == opIinc {
				next = pc + 6
			}
		case op == opTableswitch, op == opLookupswitch:
			// operands start on a four byte boundary relative to the method start
			base := pc + 1 + (4-(pc+1)%4)%4
			if base+12 > len(code) {
				return nil, fmt.Errorf("truncated switch at bytecode offset %d", pc)
			}
			if op == opTableswitch {
				low := int32(binary.BigEndian.Uint32(code[base+4:]))
				high := int32(binary.BigEndian.Uint32(code[base+8:]))
				if high < low {
					return nil, fmt.Errorf("tableswitch at bytecode offset %d has high < low", pc)
				}
				next = base + 12 + int(int64(high)-int64(low)+1)*4
			} else {
				pairs := int32(binary.BigEndian.Uint32(code[base+4:]))
				if pairs < 0 {
					return nil, fmt.Errorf("lookupswitch at bytecode offset %d has negative pair count", pc)
				}
				next = base + 8 + int(pairs)*8
			}
		default:
			if next == pc {
				return nil, fmt.Errorf("invalid opcode %#x at bytecode offset %d", op, pc)
			}
		}

		if next > len(code) {
			return nil, fmt.Errorf("truncated instruction at bytecode offset %d", pc)
		}
		pc = next
	}
	return ops, nil
}
