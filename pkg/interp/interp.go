package interp

import (
	"encoding/binary"
	"fmt"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/object"
	"github.com/hollowcore/govm/pkg/vmerr"
)

// Interpreter is the fetch-decode-execute engine (spec §4.G). It carries no
// state of its own beyond the Machine capability handed to it at
// construction — every activation record lives on the frame.Stack passed
// to Invoke, so one Interpreter safely serves every call stack a VM
// allocates.
type Interpreter struct {
	machine Machine
}

// New creates an interpreter bound to the given Machine.
func New(m Machine) *Interpreter {
	return &Interpreter{machine: m}
}

// Invoke runs method on owner's behalf with the given receiver (zero Value
// for static methods) and already-evaluated arguments (excluding the
// receiver), pushing one frame on stack for the duration of the call (spec
// §4.F, §4.G: "Execute may produce a sub-invocation which recursively
// reuses the interpreter with a fresh frame"). Returns the method's result
// (zero Value for void) or an error: *vmerr.Thrown if the method raised an
// exception that no frame on this stack's portion of the call handled
// (including a java/lang/StackOverflowError when the stack already holds
// frame.MaxDepth frames), or a structural/internal error.
func (in *Interpreter) Invoke(stack *frame.Stack, owner *class.Loaded, method *classfile.MethodInfo, receiver object.Value, args []object.Value) (object.Value, error) {
	if method.IsNative() {
		return in.invokeNative(stack, owner, method, receiver, args)
	}
	if method.Code == nil {
		return object.Value{}, &vmerr.Internal{Reason: fmt.Sprintf("%s.%s has no Code attribute and is not native", owner.Name, method.Name)}
	}

	mref := frame.MethodRef{ClassName: owner.Name, MethodName: method.Name, Descriptor: method.Descriptor, Code: method.Code}
	f := frame.NewFrame(mref, int(method.Code.MaxLocals), int(method.Code.MaxStack))

	local := 0
	if !method.IsStatic() {
		f.SetLocal(local, receiver)
		local++
	}
	for _, a := range args {
		f.SetLocal(local, a)
		local++
		if a.IsCategory2() {
			local++
		}
	}

	if err := stack.Push(f); err != nil {
		if err == frame.ErrStackOverflow {
			return object.Value{}, in.synthesizeThrow(stack, "java/lang/StackOverflowError", "")
		}
		return object.Value{}, err
	}
	defer stack.Pop()

	return in.runFrame(stack, f, owner, method)
}

func (in *Interpreter) invokeNative(stack *frame.Stack, owner *class.Loaded, method *classfile.MethodInfo, receiver object.Value, args []object.Value) (object.Value, error) {
	// fillInStackTrace needs the live call stack to capture frames, which
	// natives.Context deliberately does not expose to every other native
	// callback — so it is captured here, one level above the registry,
	// rather than widening Context for this single method.
	if owner.Name == "java/lang/Throwable" && method.Name == "fillInStackTrace" {
		in.machine.RecordStackTrace(receiver.Ref, captureStackTrace(stack))
		return receiver, nil
	}
	cb, err := in.machine.Natives().Lookup(owner.Name, method.Name, method.Descriptor)
	if err != nil {
		return object.Value{}, &vmerr.Internal{Reason: "unresolvable native method", Err: err}
	}
	v, err := cb(in.machine.NativeContext(), receiver, args)
	if err != nil {
		return object.Value{}, err
	}
	return v, nil
}

// runFrame drives the fetch-decode-execute loop for one frame until it
// returns or an unhandled exception propagates out (spec §4.G's per-
// instruction state machine: "Fetch -> Decode -> (ResolveIfNeeded) ->
// Execute -> AdvancePC | Branch | Return | Throw").
func (in *Interpreter) runFrame(stack *frame.Stack, f *frame.Frame, owner *class.Loaded, method *classfile.MethodInfo) (object.Value, error) {
	code := method.Code.Code
	pool := owner.File.ConstantPool

	for {
		if f.PC >= len(code) {
			return object.Value{}, &vmerr.Internal{Reason: fmt.Sprintf("%s.%s: PC ran off the end of the bytecode", owner.Name, method.Name)}
		}
		startPC := f.PC
		op := code[f.PC]

		result, next, err := in.step(stack, f, owner, method, pool, code, op)
		if err != nil {
			thrown, ok := err.(*vmerr.Thrown)
			if !ok {
				return object.Value{}, err
			}
			handlerPC, found, herr := findHandler(in.machine, pool, method, startPC, thrown.ClassName)
			if herr != nil {
				return object.Value{}, herr
			}
			if !found {
				return object.Value{}, thrown
			}
			f.SetSP(0)
			f.Push(object.Object(thrown.Object))
			f.PC = handlerPC
			continue
		}
		if result.returned {
			return result.value, nil
		}
		f.PC = next
	}
}

// stepResult communicates what runFrame should do after one instruction.
type stepResult struct {
	returned bool
	value    object.Value
}

// u16 reads a big-endian two-byte operand starting at code[pc].
func u16(code []byte, pc int) uint16 { return binary.BigEndian.Uint16(code[pc : pc+2]) }
func s16(code []byte, pc int) int16  { return int16(u16(code, pc)) }

func (in *Interpreter) throwNPE(stack *frame.Stack) error {
	return in.synthesizeThrow(stack, "java/lang/NullPointerException", "")
}

func (in *Interpreter) synthesizeThrow(stack *frame.Stack, className, message string) error {
	cls, err := in.machine.ResolveClass(className)
	if err != nil {
		return &vmerr.Internal{Reason: "missing built-in exception class " + className, Err: err}
	}
	inst := object.NewInstance(cls.ID, cls.InstanceFieldKinds)
	ref, err := in.machine.Allocate(inst)
	if err != nil {
		return err
	}
	if message != "" {
		if fld, ok := cls.FindInstanceField("detailMessage"); ok {
			msgRef, merr := in.machine.NewString(message)
			if merr == nil {
				inst.SetSlot(fld.Slot, object.Object(msgRef))
			}
		}
	}
	in.machine.RecordStackTrace(ref, captureStackTrace(stack))
	return &vmerr.Thrown{Object: ref, ClassName: className}
}

func (in *Interpreter) throwUser(stack *frame.Stack, ref object.Ref) error {
	obj := in.machine.Get(ref)
	cls := in.machine.ClassByID(obj.ClassID())
	name := "java/lang/Throwable"
	if cls != nil {
		name = cls.Name
	}
	in.machine.RecordStackTrace(ref, captureStackTrace(stack))
	return &vmerr.Thrown{Object: ref, ClassName: name}
}
