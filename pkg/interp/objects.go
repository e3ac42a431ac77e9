package interp

import (
	"fmt"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/object"
)

// executeLdc resolves a constant-pool entry for ldc/ldc_w/ldc2_w (spec
// §4.G: "resolves Int/Long/Float/Double/StringRef/ClassRef; StringRef
// materializes an interned java/lang/String").
func (in *Interpreter) executeLdc(f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	if int(index) >= len(pool) || pool[index] == nil {
		return &vmInternal{fmt.Sprintf("ldc: invalid constant pool index %d", index)}
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantInteger:
		f.Push(object.Int(c.Value))
	case *classfile.ConstantFloat:
		f.Push(object.Float(c.Value))
	case *classfile.ConstantLong:
		f.Push(object.Long(c.Value))
	case *classfile.ConstantDouble:
		f.Push(object.Double(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return err
		}
		ref, err := in.machine.NewString(s)
		if err != nil {
			return err
		}
		f.Push(object.Object(ref))
	case *classfile.ConstantClass:
		name, err := classfile.GetUtf8(pool, c.NameIndex)
		if err != nil {
			return err
		}
		ref, err := in.machine.ClassObjectFor(name)
		if err != nil {
			return err
		}
		f.Push(object.Object(ref))
	default:
		return &vmInternal{fmt.Sprintf("ldc: unsupported constant pool tag %d", pool[index].Tag())}
	}
	return nil
}

// vmInternal is a lightweight structural error for conditions the parser
// layer already validated against (verified bytecode assumption, spec §1
// non-goal: no bytecode verifier) but that defensive code still reports
// distinctly from a Java-level throwable.
type vmInternal struct{ msg string }

func (e *vmInternal) Error() string { return e.msg }

// executeArrayLoad implements {i,l,f,d,a,b,c,s}aload (spec §4.G: null ->
// NullPointerException, out of range -> ArrayIndexOutOfBoundsException).
func (in *Interpreter) executeArrayLoad(stack *frame.Stack, f *frame.Frame) error {
	index := f.Pop().I
	ref := f.Pop().Ref
	if ref.IsNull() {
		return in.throwNPE(stack)
	}
	arr, ok := in.machine.Get(ref).(*object.Array)
	if !ok {
		return &vmInternal{"array load: receiver is not an array"}
	}
	v, err := arr.Get(int(index))
	if err != nil {
		return in.synthesizeThrow(stack, "java/lang/ArrayIndexOutOfBoundsException", err.Error())
	}
	f.Push(v)
	return nil
}

// executeArrayStore implements {i,l,f,d,a,b,c,s}astore, including aastore's
// ArrayStoreException check (spec §4.G: "store checks element type against
// array's element type").
func (in *Interpreter) executeArrayStore(stack *frame.Stack, f *frame.Frame) error {
	value := f.Pop()
	index := f.Pop().I
	ref := f.Pop().Ref
	if ref.IsNull() {
		return in.throwNPE(stack)
	}
	arr, ok := in.machine.Get(ref).(*object.Array)
	if !ok {
		return &vmInternal{"array store: receiver is not an array"}
	}
	if arr.Elem == object.ElemReference && !value.Ref.IsNull() && arr.ElemComponent != "" {
		obj := in.machine.Get(value.Ref)
		storeCls := in.machine.ClassByID(obj.ClassID())
		ok, err := in.valueAssignable(storeCls, arr.ElemComponent)
		if err != nil {
			return err
		}
		if !ok {
			return in.synthesizeThrow(stack, "java/lang/ArrayStoreException", arr.ElemComponent)
		}
	}
	if err := arr.Set(int(index), value); err != nil {
		return in.synthesizeThrow(stack, "java/lang/ArrayIndexOutOfBoundsException", err.Error())
	}
	return nil
}

func (in *Interpreter) valueAssignable(storeCls *class.Loaded, elemComponent string) (bool, error) {
	if storeCls == nil {
		return true, nil
	}
	return isSubtype(in.machine, storeCls.Name, elemComponent)
}

// executeNew implements `new`: allocate an instance with every field
// defaulted per JVMS 2.3/2.4, triggering resolution/initialization of the
// named class first (spec §4.G, §4.C).
func (in *Interpreter) executeNew(f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	name, err := classfile.GetClassName(pool, index)
	if err != nil {
		return err
	}
	cls, err := in.machine.ResolveClass(name)
	if err != nil {
		return err
	}
	inst := object.NewInstance(cls.ID, cls.InstanceFieldKinds)
	ref, err := in.machine.Allocate(inst)
	if err != nil {
		return err
	}
	f.Push(object.Object(ref))
	return nil
}

var newarrayKinds = map[byte]object.ElemKind{
	ATypeBoolean: object.ElemBoolean,
	ATypeChar:    object.ElemChar,
	ATypeFloat:   object.ElemFloat,
	ATypeDouble:  object.ElemDouble,
	ATypeByte:    object.ElemByte,
	ATypeShort:   object.ElemShort,
	ATypeInt:     object.ElemInt,
	ATypeLong:    object.ElemLong,
}

// arrayClassDescriptor builds the "["-prefixed descriptor for an array of
// the given element kind/component, the form ResolveArrayClass (and
// isSubtype/dynamicTypeName) key their synthetic runtime classes by.
func arrayClassDescriptor(elem object.ElemKind, elemComponent string) string {
	switch elem {
	case object.ElemInt:
		return "[I"
	case object.ElemLong:
		return "[J"
	case object.ElemFloat:
		return "[F"
	case object.ElemDouble:
		return "[D"
	case object.ElemByte:
		return "[B"
	case object.ElemChar:
		return "[C"
	case object.ElemShort:
		return "[S"
	case object.ElemBoolean:
		return "[Z"
	default: // ElemReference
		return "[" + componentDescriptor(elemComponent)
	}
}

// executeNewarray implements `newarray` for a primitive element type (spec
// §4.G: "negative dimension -> NegativeArraySizeException").
func (in *Interpreter) executeNewarray(stack *frame.Stack, f *frame.Frame, atype byte) error {
	length := f.Pop().I
	if length < 0 {
		return in.synthesizeThrow(stack, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length))
	}
	kind, ok := newarrayKinds[atype]
	if !ok {
		return &vmInternal{fmt.Sprintf("newarray: unknown atype %d", atype)}
	}
	cls, err := in.machine.ResolveArrayClass(arrayClassDescriptor(kind, ""))
	if err != nil {
		return err
	}
	arr := object.NewArray(cls.ID, kind, int(length))
	ref, err := in.machine.Allocate(arr)
	if err != nil {
		return err
	}
	f.Push(object.Object(ref))
	return nil
}

// executeAnewarray implements `anewarray` for a reference component type.
func (in *Interpreter) executeAnewarray(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	compName, err := classfile.GetClassName(pool, index)
	if err != nil {
		return err
	}
	length := f.Pop().I
	if length < 0 {
		return in.synthesizeThrow(stack, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length))
	}
	cls, err := in.machine.ResolveArrayClass(arrayClassDescriptor(object.ElemReference, compName))
	if err != nil {
		return err
	}
	arr := object.NewArray(cls.ID, object.ElemReference, int(length))
	arr.ElemComponent = compName
	ref, err := in.machine.Allocate(arr)
	if err != nil {
		return err
	}
	f.Push(object.Object(ref))
	return nil
}

// executeMultianewarray implements `multianewarray` (JVMS 6.5.multianewarray):
// builds nested Arrays outer-to-inner, each dimension's length taken from
// the operand stack in declared order.
func (in *Interpreter) executeMultianewarray(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16, dims int) error {
	arrayDesc, err := classfile.GetClassName(pool, index)
	if err != nil {
		return err
	}
	lengths := make([]int32, dims)
	for i := dims - 1; i >= 0; i-- {
		lengths[i] = f.Pop().I
	}
	for _, l := range lengths {
		if l < 0 {
			return in.synthesizeThrow(stack, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", l))
		}
	}
	ref, err := in.buildMultiArray(arrayDesc, lengths)
	if err != nil {
		return err
	}
	f.Push(object.Object(ref))
	return nil
}

func (in *Interpreter) buildMultiArray(desc string, lengths []int32) (object.Ref, error) {
	component, depth := peelArray(desc)
	remaining := "[" + component
	for i := 1; i < depth-1; i++ {
		remaining = "[" + remaining
	}

	length := int(lengths[0])
	var kind object.ElemKind
	var elemComponent string
	switch component {
	case "I":
		kind = object.ElemInt
	case "J":
		kind = object.ElemLong
	case "F":
		kind = object.ElemFloat
	case "D":
		kind = object.ElemDouble
	case "B":
		kind = object.ElemByte
	case "C":
		kind = object.ElemChar
	case "S":
		kind = object.ElemShort
	case "Z":
		kind = object.ElemBoolean
	default:
		kind = object.ElemReference
		if depth > 1 {
			elemComponent = remaining
		} else {
			elemComponent = component[1 : len(component)-1] // strip L...;
		}
	}
	if depth > 1 {
		// An outer dimension's elements are references to the next
		// dimension's arrays, whatever the leaf component type.
		kind = object.ElemReference
		elemComponent = remaining
	}

	cls, err := in.machine.ResolveArrayClass(desc)
	if err != nil {
		return 0, err
	}
	arr := object.NewArray(cls.ID, kind, length)
	arr.ElemComponent = elemComponent
	ref, err := in.machine.Allocate(arr)
	if err != nil {
		return 0, err
	}
	if depth > 1 && len(lengths) > 1 {
		for i := 0; i < length; i++ {
			childRef, err := in.buildMultiArray(remaining, lengths[1:])
			if err != nil {
				return 0, err
			}
			arr.Set(i, object.Object(childRef))
		}
	}
	return ref, nil
}

// executeArraylength implements `arraylength` (spec §4.G: "null ->
// NullPointerException").
func (in *Interpreter) executeArraylength(stack *frame.Stack, f *frame.Frame) error {
	ref := f.Pop().Ref
	if ref.IsNull() {
		return in.throwNPE(stack)
	}
	arr, ok := in.machine.Get(ref).(*object.Array)
	if !ok {
		return &vmInternal{"arraylength: receiver is not an array"}
	}
	f.Push(object.Int(int32(arr.Len())))
	return nil
}

// executeCheckcast implements `checkcast`: a failing cast raises
// ClassCastException; a null reference always passes (JVMS 6.5.checkcast).
func (in *Interpreter) executeCheckcast(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	target, err := classfile.GetClassName(pool, index)
	if err != nil {
		return err
	}
	ref := f.Peek(0).Ref
	if ref.IsNull() {
		return nil
	}
	obj := in.machine.Get(ref)
	srcName, err := in.dynamicTypeName(obj)
	if err != nil {
		return err
	}
	ok, err := isSubtype(in.machine, srcName, target)
	if err != nil {
		return err
	}
	if !ok {
		return in.synthesizeThrow(stack, "java/lang/ClassCastException", fmt.Sprintf("%s cannot be cast to %s", srcName, target))
	}
	return nil
}

// executeInstanceof implements `instanceof`: null is never an instance of
// anything (JVMS 6.5.instanceof).
func (in *Interpreter) executeInstanceof(f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	target, err := classfile.GetClassName(pool, index)
	if err != nil {
		return err
	}
	ref := f.Pop().Ref
	if ref.IsNull() {
		f.Push(object.Int(0))
		return nil
	}
	obj := in.machine.Get(ref)
	srcName, err := in.dynamicTypeName(obj)
	if err != nil {
		return err
	}
	ok, err := isSubtype(in.machine, srcName, target)
	if err != nil {
		return err
	}
	if ok {
		f.Push(object.Int(1))
	} else {
		f.Push(object.Int(0))
	}
	return nil
}

// dynamicTypeName recovers a runtime object's type name in the descriptor
// form isSubtype expects — a plain binary name for an Instance, or a
// bracketed array descriptor for an Array.
func (in *Interpreter) dynamicTypeName(obj object.Object) (string, error) {
	switch o := obj.(type) {
	case *object.Instance:
		cls := in.machine.ClassByID(o.Class)
		if cls == nil {
			return "", &vmInternal{"object has no resolved runtime class"}
		}
		return cls.Name, nil
	case *object.Array:
		switch o.Elem {
		case object.ElemReference:
			return "[" + componentDescriptor(o.ElemComponent), nil
		case object.ElemInt:
			return "[I", nil
		case object.ElemLong:
			return "[J", nil
		case object.ElemFloat:
			return "[F", nil
		case object.ElemDouble:
			return "[D", nil
		case object.ElemByte:
			return "[B", nil
		case object.ElemChar:
			return "[C", nil
		case object.ElemShort:
			return "[S", nil
		case object.ElemBoolean:
			return "[Z", nil
		}
	}
	return "", &vmInternal{"unrecognized object kind"}
}

// executeGetstatic/executePutstatic/executeGetfield/executePutfield
// implement the field family (spec §4.G: "resolution may trigger class
// initialization").

func (in *Interpreter) executeGetstatic(f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveFieldref(pool, index)
	if err != nil {
		return err
	}
	cls, err := in.machine.ResolveClass(ref.ClassName)
	if err != nil {
		return err
	}
	owner := findStaticOwner(cls, ref.FieldName)
	if owner == nil {
		return &class.FieldNotFoundError{Class: ref.ClassName, Field: ref.FieldName}
	}
	v, _ := owner.GetStatic(ref.FieldName)
	f.Push(v)
	return nil
}

func (in *Interpreter) executePutstatic(f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveFieldref(pool, index)
	if err != nil {
		return err
	}
	cls, err := in.machine.ResolveClass(ref.ClassName)
	if err != nil {
		return err
	}
	owner := findStaticOwner(cls, ref.FieldName)
	if owner == nil {
		return &class.FieldNotFoundError{Class: ref.ClassName, Field: ref.FieldName}
	}
	owner.SetStatic(ref.FieldName, f.Pop())
	return nil
}

func findStaticOwner(cls *class.Loaded, name string) *class.Loaded {
	for c := cls; c != nil; c = c.Super {
		if _, ok := c.FindStaticField(name); ok {
			return c
		}
	}
	return nil
}

func (in *Interpreter) executeGetfield(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveFieldref(pool, index)
	if err != nil {
		return err
	}
	if _, err := in.machine.ResolveClass(ref.ClassName); err != nil {
		return err
	}
	objRef := f.Pop().Ref
	if objRef.IsNull() {
		return in.throwNPE(stack)
	}
	inst, ok := in.machine.Get(objRef).(*object.Instance)
	if !ok {
		return &vmInternal{"getfield: receiver is not an instance"}
	}
	cls := in.machine.ClassByID(inst.Class)
	fld, ok := cls.FindInstanceField(ref.FieldName)
	if !ok {
		return &class.FieldNotFoundError{Class: ref.ClassName, Field: ref.FieldName}
	}
	v, err := inst.GetSlot(fld.Slot)
	if err != nil {
		return &vmInternal{err.Error()}
	}
	f.Push(v)
	return nil
}

func (in *Interpreter) executePutfield(stack *frame.Stack, f *frame.Frame, pool []classfile.ConstantPoolEntry, index uint16) error {
	ref, err := classfile.ResolveFieldref(pool, index)
	if err != nil {
		return err
	}
	if _, err := in.machine.ResolveClass(ref.ClassName); err != nil {
		return err
	}
	value := f.Pop()
	objRef := f.Pop().Ref
	if objRef.IsNull() {
		return in.throwNPE(stack)
	}
	inst, ok := in.machine.Get(objRef).(*object.Instance)
	if !ok {
		return &vmInternal{"putfield: receiver is not an instance"}
	}
	cls := in.machine.ClassByID(inst.Class)
	fld, ok := cls.FindInstanceField(ref.FieldName)
	if !ok {
		return &class.FieldNotFoundError{Class: ref.ClassName, Field: ref.FieldName}
	}
	if err := inst.SetSlot(fld.Slot, value); err != nil {
		return &vmInternal{err.Error()}
	}
	return nil
}
