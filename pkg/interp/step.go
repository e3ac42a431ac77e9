package interp

import (
	"encoding/binary"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/object"
)

// step executes exactly one instruction at f.PC and reports where control
// should go next: stepResult.returned for *return opcodes, or the bytecode
// offset to resume at (ordinary advance, a taken branch, or a handler
// target set by the caller on error).
func (in *Interpreter) step(stack *frame.Stack, f *frame.Frame, owner *class.Loaded, method *classfile.MethodInfo, pool []classfile.ConstantPoolEntry, code []byte, op byte) (stepResult, int, error) {
	pc := f.PC
	next := pc + 1

	switch op {
	case OpNop:

	case OpAconstNull:
		f.Push(object.Null())
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		f.Push(object.Int(int32(op) - int32(OpIconst0)))
	case OpLconst0, OpLconst1:
		f.Push(object.Long(int64(op) - int64(OpLconst0)))
	case OpFconst0, OpFconst1, OpFconst2:
		f.Push(object.Float(float32(op) - float32(OpFconst0)))
	case OpDconst0, OpDconst1:
		f.Push(object.Double(float64(op) - float64(OpDconst0)))
	case OpBipush:
		f.Push(object.Int(int32(int8(code[pc+1]))))
		next = pc + 2
	case OpSipush:
		f.Push(object.Int(int32(s16(code, pc+1))))
		next = pc + 3

	case OpLdc:
		if err := in.executeLdc(f, pool, uint16(code[pc+1])); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 2
	case OpLdcW, OpLdc2W:
		if err := in.executeLdc(f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3

	case OpIload, OpLload, OpFload, OpDload, OpAload:
		f.Push(f.Locals[code[pc+1]])
		next = pc + 2
	case OpIload0, OpIload1, OpIload2, OpIload3:
		f.Push(f.Locals[int(op)-int(OpIload0)])
	case OpLload0, OpLload1, OpLload2, OpLload3:
		f.Push(f.Locals[int(op)-int(OpLload0)])
	case OpFload0, OpFload1, OpFload2, OpFload3:
		f.Push(f.Locals[int(op)-int(OpFload0)])
	case OpDload0, OpDload1, OpDload2, OpDload3:
		f.Push(f.Locals[int(op)-int(OpDload0)])
	case OpAload0, OpAload1, OpAload2, OpAload3:
		f.Push(f.Locals[int(op)-int(OpAload0)])

	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		f.SetLocal(int(code[pc+1]), f.Pop())
		next = pc + 2
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		f.SetLocal(int(op)-int(OpIstore0), f.Pop())
	case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
		f.SetLocal(int(op)-int(OpLstore0), f.Pop())
	case OpFstore0, OpFstore1, OpFstore2, OpFstore3:
		f.SetLocal(int(op)-int(OpFstore0), f.Pop())
	case OpDstore0, OpDstore1, OpDstore2, OpDstore3:
		f.SetLocal(int(op)-int(OpDstore0), f.Pop())
	case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
		f.SetLocal(int(op)-int(OpAstore0), f.Pop())

	case OpIinc:
		idx := int(code[pc+1])
		delta := int32(int8(code[pc+2]))
		f.Locals[idx] = object.Int(f.Locals[idx].I + delta)
		next = pc + 3

	case OpPop:
		f.Pop()
	case OpPop2:
		// A long/double is one Value here, so pop2 removes just that one.
		if !f.Pop().IsCategory2() {
			f.Pop()
		}
	case OpDup:
		v := f.Peek(0)
		f.Push(v)
	case OpDupX1:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDupX2:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case OpDup2:
		if f.Peek(0).IsCategory2() {
			f.Push(f.Peek(0))
			break
		}
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDup2X1:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case OpDup2X2:
		v1, v2, v3, v4 := f.Pop(), f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case OpSwap:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)

	case OpGoto:
		next = pc + int(s16(code, pc+1))
	case OpGotoW:
		next = pc + int(int32(binary.BigEndian.Uint32(code[pc+1 : pc+5])))
	case OpJsr:
		f.Push(object.ReturnAddress(pc + 3))
		next = pc + int(s16(code, pc+1))
	case OpJsrW:
		f.Push(object.ReturnAddress(pc + 5))
		next = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:pc+5])))
	case OpRet:
		next = f.Locals[code[pc+1]].Addr

	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		v := f.Pop().I
		if compareToZero(op, v) {
			next = pc + int(s16(code, pc+1))
		} else {
			next = pc + 3
		}
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		v2, v1 := f.Pop().I, f.Pop().I
		if compareInts(op, v1, v2) {
			next = pc + int(s16(code, pc+1))
		} else {
			next = pc + 3
		}
	case OpIfAcmpeq, OpIfAcmpne:
		v2, v1 := f.Pop().Ref, f.Pop().Ref
		eq := v1 == v2
		if (op == OpIfAcmpeq) == eq {
			next = pc + int(s16(code, pc+1))
		} else {
			next = pc + 3
		}
	case OpIfnull, OpIfnonnull:
		isNull := f.Pop().Ref.IsNull()
		if (op == OpIfnull) == isNull {
			next = pc + int(s16(code, pc+1))
		} else {
			next = pc + 3
		}

	case OpTableswitch:
		n, err := in.executeTableswitch(f, code, pc)
		if err != nil {
			return stepResult{}, 0, err
		}
		next = n
	case OpLookupswitch:
		n, err := in.executeLookupswitch(f, code, pc)
		if err != nil {
			return stepResult{}, 0, err
		}
		next = n

	case OpIreturn, OpFreturn, OpAreturn:
		return stepResult{returned: true, value: f.Pop()}, 0, nil
	case OpLreturn, OpDreturn:
		return stepResult{returned: true, value: f.Pop()}, 0, nil
	case OpReturn:
		return stepResult{returned: true, value: object.Value{}}, 0, nil

	case OpMonitorenter, OpMonitorexit:
		if f.Pop().Ref.IsNull() {
			return stepResult{}, 0, in.throwNPE(stack)
		}
		// single-threaded VM: no-op beyond the null check (spec §4.G).

	case OpAthrow:
		ref := f.Pop().Ref
		if ref.IsNull() {
			return stepResult{}, 0, in.throwNPE(stack)
		}
		return stepResult{}, 0, in.throwUser(stack, ref)

	default:
		return in.stepExtended(stack, f, owner, method, pool, code, op, pc)
	}

	return stepResult{}, next, nil
}

func compareToZero(op byte, v int32) bool {
	switch op {
	case OpIfeq:
		return v == 0
	case OpIfne:
		return v != 0
	case OpIflt:
		return v < 0
	case OpIfge:
		return v >= 0
	case OpIfgt:
		return v > 0
	case OpIfle:
		return v <= 0
	}
	return false
}

func compareInts(op byte, a, b int32) bool {
	switch op {
	case OpIfIcmpeq:
		return a == b
	case OpIfIcmpne:
		return a != b
	case OpIfIcmplt:
		return a < b
	case OpIfIcmpge:
		return a >= b
	case OpIfIcmpgt:
		return a > b
	case OpIfIcmple:
		return a <= b
	}
	return false
}

// executeTableswitch and executeLookupswitch are defined in control.go.
