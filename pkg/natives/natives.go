// Package natives implements the native method registry (spec §4.I): a
// mapping from (class name, method name, descriptor) to a host-implemented
// callback. Grounded on the teacher's executeNativeMethod dispatch
// (daimatz-gojvm/pkg/vm/vm.go) and its PrintStream helper
// (daimatz-gojvm/pkg/native/system.go), restructured from one large switch
// into a registered-callback table so the interpreter package does not need
// to know the native surface area.
package natives

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/object"
	"github.com/hollowcore/govm/pkg/vmerr"
)

// Context is the capability surface a native callback needs — the subset
// of the VM an embedder-polymorphic interpreter exposes (spec §9:
// "the interpreter is polymorphic over a capability {resolve class by id,
// materialize strings, allocate} supplied by the VM").
type Context interface {
	Allocate(obj object.Object) (object.Ref, error)
	Get(ref object.Ref) object.Object
	NewString(s string) (object.Ref, error)
	ExtractString(ref object.Ref) (string, error)
	Print(s string)
	StackTrace(ref object.Ref) []StackTraceFrame
	FillInStackTrace(ref object.Ref)
}

// StackTraceFrame is one captured frame (spec §4.H), surfaced here so the
// Throwable.getStackTrace native can materialize StackTraceElement objects
// lazily (SPEC_FULL.md supplemental feature, grounded on rjvm's
// new_java_lang_stack_trace_element_object).
type StackTraceFrame struct {
	DeclaringClass string
	MethodName     string
	SourceFile     string
	LineNumber     int
}

// Callback is a registered native method implementation.
type Callback func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error)

type key struct {
	class, method, descriptor string
}

// Registry maps (class, method, descriptor) to host callbacks.
type Registry struct {
	table map[key]Callback
}

// NewRegistry creates a registry pre-populated with the natives spec §4.I
// requires: System.arraycopy, Throwable.getStackTrace/fillInStackTrace,
// Object.hashCode, Class.getName, the System.out.println family, and the
// boxed types' xxxValue unboxing accessors (no valueOf).
func NewRegistry() *Registry {
	r := &Registry{table: make(map[key]Callback)}
	registerCore(r)
	return r
}

// Register adds or replaces a callback.
func (r *Registry) Register(class, method, descriptor string, cb Callback) {
	r.table[key{class, method, descriptor}] = cb
}

// Lookup returns the callback for (class, method, descriptor), or
// *vmerr.NotImplemented if none is registered.
func (r *Registry) Lookup(class, method, descriptor string) (Callback, error) {
	cb, ok := r.table[key{class, method, descriptor}]
	if !ok {
		return nil, &vmerr.NotImplemented{ClassName: class, MethodName: method, Descriptor: descriptor}
	}
	return cb, nil
}

func registerCore(r *Registry) {
	r.Register("java/lang/Object", "hashCode", "()I", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		// Identity hash lives on the object header itself (object.Object's
		// IdentityHash, lazily assigned on first call) rather than being
		// derived from the live Ref, which a mark-compact collection
		// renumbers — spec.md:185 requires the same header to report an
		// identical hash before and after a collection.
		return object.Int(ctx.Get(receiver.Ref).IdentityHash()), nil
	})

	r.Register("java/lang/Object", "clone", "()Ljava/lang/Object;", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		arr, ok := ctx.Get(receiver.Ref).(*object.Array)
		if !ok {
			return object.Value{}, fmt.Errorf("CloneNotSupportedException: %T", ctx.Get(receiver.Ref))
		}
		clone := arr.Clone(arr.ClassID())
		ref, err := ctx.Allocate(clone)
		if err != nil {
			return object.Value{}, err
		}
		return object.Object(ref), nil
	})

	r.Register("java/lang/Class", "getName", "()Ljava/lang/String;", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		inst, ok := ctx.Get(receiver.Ref).(*object.Instance)
		if !ok || len(inst.Slots) == 0 {
			return object.Value{}, fmt.Errorf("Class.getName: receiver is not a java/lang/Class instance")
		}
		nameRef := inst.Slots[0].Ref
		s, err := ctx.ExtractString(nameRef)
		if err != nil {
			return object.Value{}, err
		}
		result, err := ctx.NewString(s)
		if err != nil {
			return object.Value{}, err
		}
		return object.Object(result), nil
	})

	r.Register("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		if args[0].Ref.IsNull() || args[2].Ref.IsNull() {
			return object.Value{}, fmt.Errorf("NullPointerException")
		}
		src, ok1 := ctx.Get(args[0].Ref).(*object.Array)
		dst, ok2 := ctx.Get(args[2].Ref).(*object.Array)
		if !ok1 || !ok2 {
			return object.Value{}, fmt.Errorf("ArrayStoreException: arraycopy receiver is not an array")
		}
		srcPos, dstPos, length := int(args[1].I), int(args[3].I), int(args[4].I)
		if srcPos < 0 || dstPos < 0 || length < 0 ||
			srcPos+length > src.Len() || dstPos+length > dst.Len() {
			return object.Value{}, fmt.Errorf("ArrayIndexOutOfBoundsException: arraycopy bounds")
		}
		for i := 0; i < length; i++ {
			v, _ := src.Get(srcPos + i)
			dst.Set(dstPos+i, v)
		}
		return object.Value{}, nil
	})

	r.Register("java/lang/Throwable", "fillInStackTrace", "()Ljava/lang/Throwable;", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		ctx.FillInStackTrace(receiver.Ref)
		return receiver, nil
	})

	r.Register("java/lang/Throwable", "getStackTrace", "()[Ljava/lang/StackTraceElement;", func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
		frames := ctx.StackTrace(receiver.Ref)
		arr := object.NewArray(0, object.ElemReference, len(frames))
		for i, f := range frames {
			elem, err := materializeStackTraceElement(ctx, f)
			if err != nil {
				return object.Value{}, err
			}
			arr.Set(i, elem)
		}
		ref, err := ctx.Allocate(arr)
		if err != nil {
			return object.Value{}, err
		}
		return object.Object(ref), nil
	})

	printlnDescriptors := []string{
		"()V", "(I)V", "(J)V", "(F)V", "(D)V", "(Z)V", "(C)V",
		"(Ljava/lang/String;)V", "(Ljava/lang/Object;)V",
	}
	for _, desc := range printlnDescriptors {
		desc := desc
		r.Register("java/io/PrintStream", "println", desc, func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
			ctx.Print(formatPrintArg(ctx, desc, args) + "\n")
			return object.Value{}, nil
		})
		if desc != "()V" {
			r.Register("java/io/PrintStream", "print", desc, func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
				ctx.Print(formatPrintArg(ctx, desc, args))
				return object.Value{}, nil
			})
		}
	}

	registerBoxing(r, "java/lang/Integer", object.ElemInt)
	registerBoxing(r, "java/lang/Long", object.ElemLong)
	registerBoxing(r, "java/lang/Float", object.ElemFloat)
	registerBoxing(r, "java/lang/Double", object.ElemDouble)
	registerBoxing(r, "java/lang/Boolean", object.ElemBoolean)
}

func formatPrintArg(ctx Context, desc string, args []object.Value) string {
	if len(args) == 0 {
		return ""
	}
	v := args[0]
	switch desc {
	case "(I)V":
		return fmt.Sprintf("%d", v.I)
	case "(J)V":
		return fmt.Sprintf("%d", v.L)
	case "(F)V":
		return fmt.Sprintf("%v", v.F)
	case "(D)V":
		return fmt.Sprintf("%v", v.D)
	case "(Z)V":
		if v.I != 0 {
			return "true"
		}
		return "false"
	case "(C)V":
		return string(rune(v.I))
	case "(Ljava/lang/String;)V":
		s, err := ctx.ExtractString(v.Ref)
		if err != nil {
			return "null"
		}
		return s
	default:
		if v.Ref.IsNull() {
			return "null"
		}
		s, err := ctx.ExtractString(v.Ref)
		if err == nil {
			return s
		}
		return fmt.Sprintf("%v", ctx.Get(v.Ref))
	}
}

// registerBoxing registers a boxed-primitive type's xxxValue unboxing
// accessor, which returns the receiver's slot 0. valueOf is not registered,
// so no boxing native exists. Grounded on the teacher's handleBoxedType
// (daimatz-gojvm/pkg/vm/vm.go).
func registerBoxing(r *Registry, className string, kind object.ElemKind) {
	unbox := func(name string) Callback {
		return func(ctx Context, receiver object.Value, args []object.Value) (object.Value, error) {
			inst, ok := ctx.Get(receiver.Ref).(*object.Instance)
			if !ok || len(inst.Slots) == 0 {
				return object.Value{}, fmt.Errorf("%s.%s: receiver is not a boxed %s", className, name, className)
			}
			return inst.Slots[0], nil
		}
	}
	switch kind {
	case object.ElemInt:
		r.Register(className, "intValue", "()I", unbox("intValue"))
	case object.ElemLong:
		r.Register(className, "longValue", "()J", unbox("longValue"))
	case object.ElemFloat:
		r.Register(className, "floatValue", "()F", unbox("floatValue"))
	case object.ElemDouble:
		r.Register(className, "doubleValue", "()D", unbox("doubleValue"))
	case object.ElemBoolean:
		r.Register(className, "booleanValue", "()Z", unbox("booleanValue"))
	}
}

func materializeStackTraceElement(ctx Context, f StackTraceFrame) (object.Value, error) {
	className, err := ctx.NewString(f.DeclaringClass)
	if err != nil {
		return object.Value{}, err
	}
	methodName, err := ctx.NewString(f.MethodName)
	if err != nil {
		return object.Value{}, err
	}
	inst := object.NewInstance(0, []object.ElemKind{
		object.ElemReference, // declaringClass
		object.ElemReference, // methodName
		object.ElemReference, // fileName
		object.ElemInt,       // lineNumber
	})
	inst.SetSlot(0, object.Object(className))
	inst.SetSlot(1, object.Object(methodName))
	if f.SourceFile != "" {
		fileRef, err := ctx.NewString(f.SourceFile)
		if err != nil {
			return object.Value{}, err
		}
		inst.SetSlot(2, object.Object(fileRef))
	}
	inst.SetSlot(3, object.Int(int32(f.LineNumber)))
	ref, err := ctx.Allocate(inst)
	if err != nil {
		return object.Value{}, err
	}
	return object.Object(ref), nil
}
