package interp

import (
	"strings"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/object"
)

// ResolveInstanceMethod walks start's superclass chain, then its
// interfaces (for default methods), looking for (name, descriptor) (spec
// §4.G: "virtual dispatch ... walking upward until a matching method is
// found"). Exported so the embedding VM can resolve a top-level
// class_and_method reference the same way invokevirtual does (spec §6
// "resolve_class_method").
func ResolveInstanceMethod(start *class.Loaded, name, descriptor string) (*class.Loaded, *classfile.MethodInfo, error) {
	for c := start; c != nil; c = c.Super {
		if m := c.File.FindMethod(name, descriptor); m != nil && !m.IsAbstract() {
			return c, m, nil
		}
	}
	if m, c := findInterfaceMethod(start, name, descriptor); m != nil {
		return c, m, nil
	}
	return nil, nil, &class.MethodNotFoundError{Class: start.Name, Method: name, Descriptor: descriptor}
}

func findInterfaceMethod(start *class.Loaded, name, descriptor string) (*classfile.MethodInfo, *class.Loaded) {
	for c := start; c != nil; c = c.Super {
		for _, iface := range c.Interfaces {
			if m := iface.File.FindMethod(name, descriptor); m != nil && !m.IsAbstract() {
				return m, iface
			}
			if m, owner := findInterfaceMethod(iface, name, descriptor); m != nil {
				return m, owner
			}
		}
	}
	return nil, nil
}

// popArgs pops len(params) values off the operand stack in call order.
// Each JVM value — including category-2 long/double — occupies exactly one
// logical operand-stack slot in this Value-based model (the two-word
// accounting only matters for locals array indexing, handled in Invoke).
func popArgs(f *frame.Frame, n int) []object.Value {
	args := make([]object.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = f.Pop()
	}
	return args
}

func (in *Interpreter) pushResult(f *frame.Frame, ret classfile.FieldType, v object.Value) {
	if ret.Kind == classfile.KindVoid {
		return
	}
	f.Push(v)
}

// executeInvokestatic implements `invokestatic`: resolves the symbolic
// class directly, no receiver, triggers class initialization.
func (in *Interpreter) executeInvokestatic(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveMethodref(pool, index)
	if err != nil {
		return err
	}
	cls, err := in.machine.ResolveClass(ref.ClassName)
	if err != nil {
		return err
	}
	owner, method, err := ResolveInstanceMethod(cls, ref.MethodName, ref.Descriptor)
	if err != nil {
		return err
	}
	params, retType, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	args := popArgs(f, len(params))
	v, err := in.Invoke(stack, owner, method, object.Value{}, args)
	if err != nil {
		return err
	}
	in.pushResult(f, retType, v)
	return nil
}

// executeInvokespecial implements `invokespecial`: resolution starts at
// the symbolic class and walks upward, but never redirects to a subclass
// override (spec §4.G: "invokespecial suppresses the walk" over the
// receiver's dynamic class).
func (in *Interpreter) executeInvokespecial(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveMethodref(pool, index)
	if err != nil {
		return err
	}
	cls, err := in.machine.ResolveClass(ref.ClassName)
	if err != nil {
		return err
	}
	owner, method, err := ResolveInstanceMethod(cls, ref.MethodName, ref.Descriptor)
	if err != nil {
		return err
	}
	params, retType, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	args := popArgs(f, len(params))
	receiver := f.Pop()
	if receiver.Ref.IsNull() {
		return in.throwNPE(stack)
	}
	v, err := in.Invoke(stack, owner, method, receiver, args)
	if err != nil {
		return err
	}
	in.pushResult(f, retType, v)
	return nil
}

// executeInvokevirtual implements `invokevirtual`: dispatch walks from the
// receiver's actual runtime class (spec §4.G).
func (in *Interpreter) executeInvokevirtual(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveMethodref(pool, index)
	if err != nil {
		// invokeinterface shares this path; its operand names an
		// InterfaceMethodref rather than a Methodref.
		if iref, ierr := classfile.ResolveInterfaceMethodref(pool, index); ierr == nil {
			ref, err = iref, nil
		}
	}
	if err != nil {
		return err
	}
	// The symbolic reference class is ordinarily a named, classfile-backed
	// class, but javac emits an array descriptor here for a call compiled
	// against a declared array type (e.g. an int[] receiver's .clone()) —
	// resolved as a synthetic array class rather than loaded off the
	// class path (spec §4.D: arrays are objects rooted at java/lang/Object).
	if strings.HasPrefix(ref.ClassName, "[") {
		if _, err := in.machine.ResolveArrayClass(ref.ClassName); err != nil {
			return err
		}
	} else if _, err := in.machine.ResolveClass(ref.ClassName); err != nil {
		return err
	}
	params, retType, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	args := popArgs(f, len(params))
	receiver := f.Pop()
	if receiver.Ref.IsNull() {
		return in.throwNPE(stack)
	}
	obj := in.machine.Get(receiver.Ref)
	runtimeClass := in.machine.ClassByID(obj.ClassID())
	if runtimeClass == nil {
		return &vmInternal{"invokevirtual: receiver has no resolved runtime class"}
	}
	owner, method, err := ResolveInstanceMethod(runtimeClass, ref.MethodName, ref.Descriptor)
	if err != nil {
		return err
	}
	v, err := in.Invoke(stack, owner, method, receiver, args)
	if err != nil {
		return err
	}
	in.pushResult(f, retType, v)
	return nil
}

// executeInvokeinterface implements `invokeinterface`: same dispatch walk
// as invokevirtual, starting from the receiver's runtime class (spec
// §4.G).
func (in *Interpreter) executeInvokeinterface(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	return in.executeInvokevirtual(stack, f, pool, index)
}
