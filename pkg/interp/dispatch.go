package interp

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
)

// stepExtended handles every opcode step()'s primary switch defers to:
// array element access, arithmetic/conversion, field and method
// resolution, object/array allocation, and type tests. Kept in its own
// switch purely so no single function in this package grows unwieldy —
// dispatch is still exactly one instruction per call.
func (in *Interpreter) stepExtended(stack *frame.Stack, f *frame.Frame, owner *class.Loaded, method *classfile.MethodInfo, pool []classfile.ConstantPoolEntry, code []byte, op byte, pc int) (stepResult, int, error) {
	next := pc + 1

	if isArithmeticOp(op) {
		if err := in.executeArithmetic(stack, f, op); err != nil {
			return stepResult{}, 0, err
		}
		return stepResult{}, next, nil
	}

	switch op {
	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		if err := in.executeArrayLoad(stack, f); err != nil {
			return stepResult{}, 0, err
		}

	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		if err := in.executeArrayStore(stack, f); err != nil {
			return stepResult{}, 0, err
		}

	case OpGetstatic:
		if err := in.executeGetstatic(f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpPutstatic:
		if err := in.executePutstatic(f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpGetfield:
		if err := in.executeGetfield(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpPutfield:
		if err := in.executePutfield(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3

	case OpInvokestatic:
		if err := in.executeInvokestatic(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpInvokespecial:
		if err := in.executeInvokespecial(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpInvokevirtual:
		if err := in.executeInvokevirtual(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpInvokeinterface:
		if err := in.executeInvokeinterface(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 5 // index(2) + count(1) + reserved(1)

	case OpInvokedynamic:
		// invokedynamic's bootstrap-method linkage (lambda metafactory,
		// string concatenation) is not modeled; executing one reports a
		// VM-internal error.
		return stepResult{}, 0, &vmInternal{"invokedynamic is not supported"}

	case OpNew:
		if err := in.executeNew(f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpNewarray:
		if err := in.executeNewarray(stack, f, code[pc+1]); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 2
	case OpAnewarray:
		if err := in.executeAnewarray(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpMultianewarray:
		if err := in.executeMultianewarray(stack, f, pool, u16(code, pc+1), int(code[pc+3])); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 4
	case OpArraylength:
		if err := in.executeArraylength(stack, f); err != nil {
			return stepResult{}, 0, err
		}
	case OpCheckcast:
		if err := in.executeCheckcast(stack, f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3
	case OpInstanceof:
		if err := in.executeInstanceof(f, pool, u16(code, pc+1)); err != nil {
			return stepResult{}, 0, err
		}
		next = pc + 3

	case OpWide:
		n, err := in.executeWide(f, code, pc)
		if err != nil {
			return stepResult{}, 0, err
		}
		next = n

	default:
		return stepResult{}, 0, &vmInternal{fmt.Sprintf("unimplemented opcode 0x%02x at pc %d", op, pc)}
	}

	return stepResult{}, next, nil
}
