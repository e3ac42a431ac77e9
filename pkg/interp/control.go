package interp

import (
	"encoding/binary"

	"github.com/hollowcore/govm/pkg/frame"
)

// executeTableswitch implements JVMS 6.5.tableswitch: a default target plus
// a dense jump table over [low, high], padded to a 4-byte boundary after
// the opcode.
func (in *Interpreter) executeTableswitch(f *frame.Frame, code []byte, pc int) (int, error) {
	index := f.Pop().I

	pad := (4 - (pc+1)%4) % 4
	p := pc + 1 + pad
	defaultOffset := int32(binary.BigEndian.Uint32(code[p : p+4]))
	low := int32(binary.BigEndian.Uint32(code[p+4 : p+8]))
	high := int32(binary.BigEndian.Uint32(code[p+8 : p+12]))

	if index < low || index > high {
		return pc + int(defaultOffset), nil
	}
	entry := p + 12 + int(index-low)*4
	offset := int32(binary.BigEndian.Uint32(code[entry : entry+4]))
	return pc + int(offset), nil
}

// executeLookupswitch implements JVMS 6.5.lookupswitch: a default target
// plus a sorted (match, offset) table, searched for an exact match.
func (in *Interpreter) executeLookupswitch(f *frame.Frame, code []byte, pc int) (int, error) {
	key := f.Pop().I

	pad := (4 - (pc+1)%4) % 4
	p := pc + 1 + pad
	defaultOffset := int32(binary.BigEndian.Uint32(code[p : p+4]))
	npairs := int32(binary.BigEndian.Uint32(code[p+4 : p+8]))

	base := p + 8
	for i := int32(0); i < npairs; i++ {
		off := base + int(i)*8
		match := int32(binary.BigEndian.Uint32(code[off : off+4]))
		if match == key {
			offset := int32(binary.BigEndian.Uint32(code[off+4 : off+8]))
			return pc + int(offset), nil
		}
	}
	return pc + int(defaultOffset), nil
}
