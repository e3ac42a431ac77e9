package interp

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/frame"
)

// executeWide implements the `wide` prefix (JVMS 6.5.wide): a 2-byte local
// index instead of 1 for the load/store/ret family, and a 2-byte iinc
// constant instead of 1.
func (in *Interpreter) executeWide(f *frame.Frame, code []byte, pc int) (int, error) {
	sub := code[pc+1]
	idx := int(u16(code, pc+2))

	switch sub {
	case OpIload, OpFload, OpAload, OpLload, OpDload:
		f.Push(f.Locals[idx])
		return pc + 4, nil
	case OpIstore, OpFstore, OpAstore, OpLstore, OpDstore:
		f.SetLocal(idx, f.Pop())
		return pc + 4, nil
	case OpRet:
		return f.Locals[idx].Addr, nil
	case OpIinc:
		delta := int32(s16(code, pc+4))
		f.Locals[idx].I += delta
		return pc + 6, nil
	}
	return 0, &vmInternal{fmt.Sprintf("wide: unsupported sub-opcode 0x%02x", sub)}
}
