// Package object implements the VM's runtime object model (spec §4.D): the
// tagged-union Value type used on every operand stack and local-variable
// slot, and the Instance/Array object representations those references
// point into the heap.
package object

import "fmt"

// identitySeq hands out the next lazily-assigned identity hash (spec.md:82:
// "an identity hash (lazy)"). A plain package-level counter is enough since
// the VM is single-threaded (spec §1 non-goal: no multi-threading); each
// object claims its hash once, on first hashCode() call, and keeps it for
// the rest of its lifetime regardless of how the GC renumbers its Ref.
var identitySeq int32

func nextIdentityHash() int32 {
	identitySeq++
	return identitySeq
}

// Kind discriminates the tagged union a Value carries (spec §3).
type Kind uint8

const (
	KindInt Kind = iota
	KindLong
	KindFloat
	KindDouble
	KindObject // reference, possibly null
	KindReturnAddress
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindObject:
		return "object"
	case KindReturnAddress:
		return "returnAddress"
	default:
		return "unknown"
	}
}

// Ref is a heap handle. It is opaque outside the heap package: frames and
// the interpreter carry it around without dereferencing it directly except
// through the embedder-supplied accessors the heap package exposes. Zero
// value is the null reference.
type Ref uint32

// IsNull reports whether this reference is the null reference.
func (r Ref) IsNull() bool { return r == 0 }

// Value is the tagged union every operand-stack slot and local-variable
// slot holds (spec §3: "Int, Long, Float, Double, Object(ref-or-null),
// ReturnAddress"). Only one of the payload fields is meaningful, selected
// by Kind; this mirrors the teacher's Value{Type, Int, Ref} struct
// (daimatz-gojvm/pkg/vm/frame.go) generalized to the full set of JVM
// value categories.
type Value struct {
	Kind Kind
	I    int32
	L    int64
	F    float32
	D    float64
	Ref  Ref    // valid when Kind == KindObject
	Addr int    // valid when Kind == KindReturnAddress: a bytecode offset
}

func Int(v int32) Value    { return Value{Kind: KindInt, I: v} }
func Long(v int64) Value   { return Value{Kind: KindLong, L: v} }
func Float(v float32) Value { return Value{Kind: KindFloat, F: v} }
func Double(v float64) Value { return Value{Kind: KindDouble, D: v} }
func Object(r Ref) Value   { return Value{Kind: KindObject, Ref: r} }
func Null() Value          { return Value{Kind: KindObject, Ref: 0} }
func ReturnAddress(pc int) Value { return Value{Kind: KindReturnAddress, Addr: pc} }

// IsCategory2 reports whether this value occupies two stack/local slots
// (JVMS 2.6.1/2.6.2): true for long and double only.
func (v Value) IsCategory2() bool {
	return v.Kind == KindLong || v.Kind == KindDouble
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("int(%d)", v.I)
	case KindLong:
		return fmt.Sprintf("long(%d)", v.L)
	case KindFloat:
		return fmt.Sprintf("float(%v)", v.F)
	case KindDouble:
		return fmt.Sprintf("double(%v)", v.D)
	case KindObject:
		if v.Ref.IsNull() {
			return "null"
		}
		return fmt.Sprintf("ref(%d)", v.Ref)
	case KindReturnAddress:
		return fmt.Sprintf("retaddr(%d)", v.Addr)
	default:
		return "invalid"
	}
}

// ElemKind is the element type of an array object (spec §4.D), used both
// for default-value selection and for array-store type checks.
type ElemKind uint8

const (
	ElemByte ElemKind = iota
	ElemChar
	ElemDouble
	ElemFloat
	ElemInt
	ElemLong
	ElemShort
	ElemBoolean
	ElemReference
)

// DefaultValue returns the JVM default value for this element kind (JVMS
// 2.3, 2.4: zero/false/null).
func (k ElemKind) DefaultValue() Value {
	switch k {
	case ElemDouble:
		return Double(0)
	case ElemFloat:
		return Float(0)
	case ElemLong:
		return Long(0)
	case ElemReference:
		return Null()
	default:
		return Int(0)
	}
}

// IsCategory2 reports whether elements of this kind are category-2 values.
func (k ElemKind) IsCategory2() bool {
	return k == ElemLong || k == ElemDouble
}

// Object is the interface implemented by both Instance and Array: anything
// the heap can store and the GC can trace. Discriminating via a type switch
// on the concrete type (rather than a Kind field) keeps the two shapes
// distinct structs, matching how the teacher keeps JObject and JArray
// separate (daimatz-gojvm/pkg/vm/object.go), but unifies them behind one
// interface so the heap and GC can be written once.
type Object interface {
	// ClassID identifies the loaded class (or array class) this object is
	// an instance of; the class manager resolves it back to a name.
	ClassID() uint32
	// IdentityHash returns this object's identity hash, assigning one on
	// first call (spec.md:82). The mark-compact collector relocates an
	// object's Ref but never its Go-level header, so a value stored here
	// survives collection untouched — the "rewritten reference still
	// dereferences to a header with an identical identity hash" property
	// spec.md:185 requires.
	IdentityHash() int32
	// refSlotIndices returns the indices of this object's storage slots
	// whose declared kind is a reference.
	refSlotIndices() []int
}

// Instance is a heap object with named fields, laid out as instance slots
// assigned by the class manager (superclass fields first). Field lookup by
// name is a class-manager concern (it maps name -> slot); Instance itself
// is a flat, bounds-checked slot array.
type Instance struct {
	Class  uint32
	Slots  []Value
	// fieldKinds tracks which slots are references, so the GC does not
	// need the class manager to trace a live instance.
	fieldKinds []ElemKind
	// identityHash is 0 until the first IdentityHash() call.
	identityHash int32
}

// NewInstance allocates an Instance with the given slot kinds, each
// defaulted per JVMS 2.3/2.4. The class manager computes fieldKinds from
// the resolved instance-field layout (superclass-first).
func NewInstance(classID uint32, fieldKinds []ElemKind) *Instance {
	slots := make([]Value, len(fieldKinds))
	for i, k := range fieldKinds {
		slots[i] = k.DefaultValue()
	}
	return &Instance{Class: classID, Slots: slots, fieldKinds: fieldKinds}
}

func (o *Instance) ClassID() uint32 { return o.Class }

// IdentityHash implements Object.
func (o *Instance) IdentityHash() int32 {
	if o.identityHash == 0 {
		o.identityHash = nextIdentityHash()
	}
	return o.identityHash
}

// GetSlot returns the value in slot i. The object model only checks bounds
// here; type checking against the expected descriptor is the interpreter's
// job (spec §4.D: "field/array slot bounds+type checking split between
// object model (storage bounds only) and interpreter (type checks)").
func (o *Instance) GetSlot(i int) (Value, error) {
	if i < 0 || i >= len(o.Slots) {
		return Value{}, fmt.Errorf("instance slot %d out of range [0,%d)", i, len(o.Slots))
	}
	return o.Slots[i], nil
}

func (o *Instance) SetSlot(i int, v Value) error {
	if i < 0 || i >= len(o.Slots) {
		return fmt.Errorf("instance slot %d out of range [0,%d)", i, len(o.Slots))
	}
	o.Slots[i] = v
	return nil
}

func (o *Instance) refSlotIndices() []int {
	var idx []int
	for i, k := range o.fieldKinds {
		if k == ElemReference {
			idx = append(idx, i)
		}
	}
	return idx
}

// Array is a heap object holding a contiguous, homogeneously-typed element
// run. Multi-dimensional arrays are arrays of arrays: each dimension is a
// separate Array object, its elements holding references to the next
// dimension down (or to leaf-level primitive/reference arrays), matching
// how multianewarray is specified (JVMS 6.5.multianewarray).
type Array struct {
	Class uint32
	Elem  ElemKind
	Slots []Value
	// ElemComponent names the declared component type for a reference
	// array: a plain binary class name ("java/lang/String") for a
	// single-dimension object array, or a "[" prefixed array descriptor
	// for an array of arrays. Empty for primitive-element arrays, which
	// need no store-type check beyond the kind tag already on Elem.
	ElemComponent string
	// identityHash is 0 until the first IdentityHash() call.
	identityHash int32
}

// NewArray allocates an Array of the given element kind and length, every
// slot defaulted per JVMS 2.3/2.4. A negative length is rejected by the
// caller (interpreter raises NegativeArraySizeException before calling in).
func NewArray(classID uint32, elem ElemKind, length int) *Array {
	slots := make([]Value, length)
	def := elem.DefaultValue()
	for i := range slots {
		slots[i] = def
	}
	return &Array{Class: classID, Elem: elem, Slots: slots}
}

func (a *Array) ClassID() uint32 { return a.Class }
func (a *Array) Len() int        { return len(a.Slots) }

// IdentityHash implements Object.
func (a *Array) IdentityHash() int32 {
	if a.identityHash == 0 {
		a.identityHash = nextIdentityHash()
	}
	return a.identityHash
}

func (a *Array) Get(i int) (Value, error) {
	if i < 0 || i >= len(a.Slots) {
		return Value{}, fmt.Errorf("array index %d out of range [0,%d)", i, len(a.Slots))
	}
	return a.Slots[i], nil
}

func (a *Array) Set(i int, v Value) error {
	if i < 0 || i >= len(a.Slots) {
		return fmt.Errorf("array index %d out of range [0,%d)", i, len(a.Slots))
	}
	a.Slots[i] = v
	return nil
}

func (a *Array) refSlotIndices() []int {
	if a.Elem != ElemReference {
		return nil
	}
	idx := make([]int, len(a.Slots))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Clone returns a shallow copy of this array — same element kind and
// length, slots copied by value (so reference elements alias the same
// objects, matching Java array .clone() semantics). Grounded on rjvm's
// clone_array (original_source/vm/src/vm.rs) and the teacher's ad hoc
// array-clone special case in executeInvokevirtual
// (daimatz-gojvm/pkg/vm/vm.go), generalized here to the object model so
// every call site (invokevirtual "clone", Object[] vs primitive arrays)
// shares one implementation instead of being special-cased per caller.
func (a *Array) Clone(newClassID uint32) *Array {
	slots := make([]Value, len(a.Slots))
	copy(slots, a.Slots)
	return &Array{Class: newClassID, Elem: a.Elem, ElemComponent: a.ElemComponent, Slots: slots}
}
