package interp

import (
	"math"

	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/object"
)

// executeArithmetic handles the iadd..lxor/ineg..dneg/shift family: pop
// operands, compute, push the result. Integer divide/remainder by zero
// raise ArithmeticException (spec §4.G); float division follows IEEE-754
// (±Inf/NaN), never throws.
func (in *Interpreter) executeArithmetic(stack *frame.Stack, f *frame.Frame, op byte) error {
	switch op {
	case OpIadd:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a + b))
	case OpLadd:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a + b))
	case OpFadd:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Float(a + b))
	case OpDadd:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Double(a + b))

	case OpIsub:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a - b))
	case OpLsub:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a - b))
	case OpFsub:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Float(a - b))
	case OpDsub:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Double(a - b))

	case OpImul:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a * b))
	case OpLmul:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a * b))
	case OpFmul:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Float(a * b))
	case OpDmul:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Double(a * b))

	case OpIdiv:
		b, a := f.Pop().I, f.Pop().I
		v, ok := idiv(a, b)
		if !ok {
			return in.synthesizeThrow(stack, "java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(object.Int(v))
	case OpLdiv:
		b, a := f.Pop().L, f.Pop().L
		v, ok := ldiv(a, b)
		if !ok {
			return in.synthesizeThrow(stack, "java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(object.Long(v))
	case OpFdiv:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Float(a / b))
	case OpDdiv:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Double(a / b))

	case OpIrem:
		b, a := f.Pop().I, f.Pop().I
		v, ok := irem(a, b)
		if !ok {
			return in.synthesizeThrow(stack, "java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(object.Int(v))
	case OpLrem:
		b, a := f.Pop().L, f.Pop().L
		v, ok := lrem(a, b)
		if !ok {
			return in.synthesizeThrow(stack, "java/lang/ArithmeticException", "/ by zero")
		}
		f.Push(object.Long(v))
	case OpFrem:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Float(float32(math.Mod(float64(a), float64(b)))))
	case OpDrem:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Double(math.Mod(a, b)))

	case OpIneg:
		f.Push(object.Int(-f.Pop().I))
	case OpLneg:
		f.Push(object.Long(-f.Pop().L))
	case OpFneg:
		f.Push(object.Float(-f.Pop().F))
	case OpDneg:
		f.Push(object.Double(-f.Pop().D))

	case OpIshl:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(ishl(a, b)))
	case OpIshr:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(ishr(a, b)))
	case OpIushr:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(iushr(a, b)))
	case OpLshl:
		b, a := f.Pop().I, f.Pop().L
		f.Push(object.Long(lshl(a, b)))
	case OpLshr:
		b, a := f.Pop().I, f.Pop().L
		f.Push(object.Long(lshr(a, b)))
	case OpLushr:
		b, a := f.Pop().I, f.Pop().L
		f.Push(object.Long(lushr(a, b)))

	case OpIand:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a & b))
	case OpLand:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a & b))
	case OpIor:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a | b))
	case OpLor:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a | b))
	case OpIxor:
		b, a := f.Pop().I, f.Pop().I
		f.Push(object.Int(a ^ b))
	case OpLxor:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Long(a ^ b))

	case OpI2l:
		f.Push(object.Long(int64(f.Pop().I)))
	case OpI2f:
		f.Push(object.Float(float32(f.Pop().I)))
	case OpI2d:
		f.Push(object.Double(float64(f.Pop().I)))
	case OpL2i:
		f.Push(object.Int(int32(f.Pop().L)))
	case OpL2f:
		f.Push(object.Float(float32(f.Pop().L)))
	case OpL2d:
		f.Push(object.Double(float64(f.Pop().L)))
	case OpF2i:
		f.Push(object.Int(f2i(f.Pop().F)))
	case OpF2l:
		f.Push(object.Long(f2l(f.Pop().F)))
	case OpF2d:
		f.Push(object.Double(float64(f.Pop().F)))
	case OpD2i:
		f.Push(object.Int(d2i(f.Pop().D)))
	case OpD2l:
		f.Push(object.Long(d2l(f.Pop().D)))
	case OpD2f:
		f.Push(object.Float(float32(f.Pop().D)))
	case OpI2b:
		f.Push(object.Int(int32(int8(f.Pop().I))))
	case OpI2c:
		f.Push(object.Int(int32(uint16(f.Pop().I))))
	case OpI2s:
		f.Push(object.Int(int32(int16(f.Pop().I))))

	case OpLcmp:
		b, a := f.Pop().L, f.Pop().L
		f.Push(object.Int(lcmp(a, b)))
	case OpFcmpl:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Int(fcmp(a, b, false)))
	case OpFcmpg:
		b, a := f.Pop().F, f.Pop().F
		f.Push(object.Int(fcmp(a, b, true)))
	case OpDcmpl:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Int(dcmp(a, b, false)))
	case OpDcmpg:
		b, a := f.Pop().D, f.Pop().D
		f.Push(object.Int(dcmp(a, b, true)))
	}
	return nil
}

func isArithmeticOp(op byte) bool {
	switch op {
	case OpIadd, OpLadd, OpFadd, OpDadd,
		OpIsub, OpLsub, OpFsub, OpDsub,
		OpImul, OpLmul, OpFmul, OpDmul,
		OpIdiv, OpLdiv, OpFdiv, OpDdiv,
		OpIrem, OpLrem, OpFrem, OpDrem,
		OpIneg, OpLneg, OpFneg, OpDneg,
		OpIshl, OpIshr, OpIushr, OpLshl, OpLshr, OpLushr,
		OpIand, OpLand, OpIor, OpLor, OpIxor, OpLxor,
		OpI2l, OpI2f, OpI2d, OpL2i, OpL2f, OpL2d,
		OpF2i, OpF2l, OpF2d, OpD2i, OpD2l, OpD2f,
		OpI2b, OpI2c, OpI2s,
		OpLcmp, OpFcmpl, OpFcmpg, OpDcmpl, OpDcmpg:
		return true
	}
	return false
}
