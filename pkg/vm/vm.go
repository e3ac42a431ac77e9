// Package vm wires the class-path resolver, class manager, heap, call
// stacks, interpreter and native registry into the embedder-facing API
// spec §6 describes. Grounded on the teacher's VM (daimatz-gojvm/pkg/vm/vm.go,
// NewVM/Execute/executeMethod), restructured around the split the rest of
// this module introduces: class loading, object storage, frame layout and
// bytecode dispatch each now live in their own package, and VM is reduced
// to implementing the capability interfaces those packages expose
// (interp.Machine, heap.RootProvider/RootRewriter, natives.Context) plus
// the handful of embedder entry points spec §6 lists.
package vm

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hollowcore/govm/pkg/class"
	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/classpath"
	"github.com/hollowcore/govm/pkg/frame"
	"github.com/hollowcore/govm/pkg/heap"
	"github.com/hollowcore/govm/pkg/interp"
	"github.com/hollowcore/govm/pkg/natives"
	"github.com/hollowcore/govm/pkg/object"
	"github.com/hollowcore/govm/pkg/vmerr"
)

// wordSize is the accounting unit heap.New's capacityWords is expressed
// in; VM's embedder-facing constructor instead takes bytes (spec §6:
// "construct VM with max_memory in bytes"), so New converts once here.
const wordSize = 8

// VM is the top-level embedder object (spec §6). Zero value is not usable;
// construct with New.
type VM struct {
	classPath *classpath.ClassPath
	classes   *class.Manager
	heap      *heap.Heap
	stacks    []*frame.Stack
	interp    *interp.Interpreter
	natives   *natives.Registry

	classObjects map[string]object.Ref
	traces       map[object.Ref][]natives.StackTraceFrame
	// stringFallback backs NewString/ExtractString when java/lang/String
	// has not been (or cannot be) resolved on the configured class path —
	// the degraded mode noted in DESIGN.md's Open Question resolution.
	stringFallback map[object.Ref]string

	printed strings.Builder
	log     *logrus.Logger
}

// New constructs a VM with the given heap budget in bytes (spec §6:
// "construct VM with max_memory in bytes"). The class table, heap and
// side tables are all fresh and scoped to this VM's lifetime (spec §9:
// "both are scoped to the VM's lifetime and reset on VM construction").
func New(maxMemoryBytes int) *VM {
	v := &VM{
		classPath:      classpath.New(),
		classObjects:   make(map[string]object.Ref),
		traces:         make(map[object.Ref][]natives.StackTraceFrame),
		stringFallback: make(map[object.Ref]string),
		log:            logrus.New(),
	}
	v.classes = class.New(v.classPath)
	v.heap = heap.New(maxMemoryBytes/wordSize, v)
	v.natives = natives.NewRegistry()
	v.interp = interp.New(v)
	return v
}

// Logger returns the VM's lifecycle logger, for an embedder that wants to
// reconfigure its level or output (e.g. cmd/govm wiring --verbose).
func (vm *VM) Logger() *logrus.Logger { return vm.log }

// AppendClassPath parses and appends a delimited class-path string (spec
// §6: "append_class_path(entries)"; invalid entries error immediately,
// per classpath.ClassPath.Append).
func (vm *VM) AppendClassPath(entries string) error {
	return vm.classPath.Append(entries)
}

// AllocateCallStack creates a new call stack, rooted for GC purposes for
// as long as the VM holds it (spec §6: "allocate_call_stack() -> borrowed
// stack handle"). The teacher's typed_arena-backed CallStack pool
// (original_source/vm/src/vm.rs) becomes a plain Go slice here — the
// idiomatic substitute for an allocation-lifetime arena DESIGN.md records.
func (vm *VM) AllocateCallStack() *frame.Stack {
	st := frame.NewStack()
	vm.stacks = append(vm.stacks, st)
	return st
}

// ResolveClassMethod resolves className (running any newly-triggered
// <clinit> chain) and looks up (methodName, descriptor) with
// interp.ResolveInstanceMethod, the same walk the invoke instructions use
// (spec §6: "resolve_class_method(stack, class, method, descriptor)").
func (vm *VM) ResolveClassMethod(stack *frame.Stack, className, methodName, descriptor string) (*class.Loaded, *classfile.MethodInfo, error) {
	cls, err := vm.ResolveClass(className)
	if err != nil {
		return nil, nil, err
	}
	return interp.ResolveInstanceMethod(cls, methodName, descriptor)
}

// Invoke runs a resolved (owner, method) on stack (spec §6: "invoke(stack,
// class_and_method, receiver?, args)"). The embedder resolves first via
// ResolveClassMethod (or dispatches virtually via interp.ResolveInstanceMethod)
// so this stays a thin pass-through to the interpreter.
func (vm *VM) Invoke(stack *frame.Stack, owner *class.Loaded, method *classfile.MethodInfo, receiver object.Value, args []object.Value) (object.Value, error) {
	return vm.interp.Invoke(stack, owner, method, receiver, args)
}

// RunMain resolves className, builds a String[] from args as the sole
// parameter to its `main(String[])` method, and invokes it (spec §2's
// end-to-end scenario 1: "printed contains the string").
func (vm *VM) RunMain(className string, args []string) error {
	stack := vm.AllocateCallStack()
	owner, method, err := vm.ResolveClassMethod(stack, className, "main", "([Ljava/lang/String;)V")
	if err != nil {
		return err
	}
	argv, err := vm.buildStringArray(args)
	if err != nil {
		return err
	}
	_, err = vm.interp.Invoke(stack, owner, method, object.Value{}, []object.Value{argv})
	return err
}

func (vm *VM) buildStringArray(args []string) (object.Value, error) {
	cls, err := vm.ResolveArrayClass("[Ljava/lang/String;")
	if err != nil {
		return object.Value{}, err
	}
	arr := object.NewArray(cls.ID, object.ElemReference, len(args))
	arr.ElemComponent = "java/lang/String"
	ref, err := vm.heap.Allocate(arr)
	if err != nil {
		return object.Value{}, err
	}
	for i, a := range args {
		sref, err := vm.NewString(a)
		if err != nil {
			return object.Value{}, err
		}
		arr.Set(i, object.Object(sref))
	}
	return object.Object(ref), nil
}

// Printed returns everything written to the simulated System.out/System.err
// streams so far (spec §6: "printed accessor for test observation").
func (vm *VM) Printed() string { return vm.printed.String() }

// Stats reports heap occupancy and the loaded-class count (SPEC_FULL.md
// supplemental feature, grounded on rjvm's debug_stats).
type Stats struct {
	Heap          heap.Stats
	LoadedClasses int
}

func (vm *VM) Stats() Stats {
	return Stats{Heap: vm.heap.Stats(), LoadedClasses: len(vm.classes.All())}
}

// ResolveClass implements interp.Machine: loads and links name if needed,
// then runs the <clinit> chain the class manager reports still pending
// (spec §4.C: "the class manager only returns the pending list and the
// interpreter invokes them").
func (vm *VM) ResolveClass(name string) (*class.Loaded, error) {
	cls, pending, err := vm.classes.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := vm.runPendingClinits(pending); err != nil {
		return nil, err
	}
	return cls, nil
}

// runPendingClinits runs every not-yet-initialized class's <clinit>, in
// the order the class manager reports (superclass-before-subclass, spec
// §4.C) — shared by ResolveClass and ResolveArrayClass, since either can
// newly trigger java/lang/Object's resolution.
func (vm *VM) runPendingClinits(pending []*class.Loaded) error {
	for _, p := range pending {
		if p.Initialized {
			continue
		}
		p.Initialized = true
		clinit := p.File.FindMethod("<clinit>", "()V")
		if clinit == nil {
			continue
		}
		vm.log.WithField("class", p.Name).Debug("running <clinit>")
		st := vm.AllocateCallStack()
		if _, cerr := vm.interp.Invoke(st, p, clinit, object.Value{}, nil); cerr != nil {
			return cerr
		}
	}
	return nil
}

// ResolveArrayClass implements interp.Machine: returns the synthetic
// runtime class for an array descriptor, running any <clinit> the
// underlying java/lang/Object lookup newly triggered, the same contract
// ResolveClass honors.
func (vm *VM) ResolveArrayClass(descriptor string) (*class.Loaded, error) {
	cls, pending, err := vm.classes.ResolveArrayClass(descriptor)
	if err != nil {
		return nil, err
	}
	if err := vm.runPendingClinits(pending); err != nil {
		return nil, err
	}
	return cls, nil
}

// ClassByID implements interp.Machine.
func (vm *VM) ClassByID(id uint32) *class.Loaded { return vm.classes.FindByID(id) }

// Allocate implements interp.Machine and natives.Context.
func (vm *VM) Allocate(obj object.Object) (object.Ref, error) {
	ref, err := vm.heap.Allocate(obj)
	if err != nil {
		return 0, &vmerr.Internal{Reason: "allocation failed", Err: err}
	}
	return ref, nil
}

// Get implements interp.Machine and natives.Context.
func (vm *VM) Get(ref object.Ref) object.Object { return vm.heap.Get(ref) }

// NewString implements interp.Machine and natives.Context (spec §6:
// "new_string(stack, host_string) -> object reference"). When
// java/lang/String is resolvable on the class path and declares an
// instance field named "value", the string is materialized as a real
// instance with a backing char array — DESIGN.md's resolution of the
// hard-coded-slot-index Open Question (spec §9): slot indices are derived
// from the loaded class's own field layout, never hard-coded. Otherwise
// (a minimal test class path with no java/lang/String at all) the VM
// falls back to an opaque instance plus a side table, so every other
// component can keep treating string refs uniformly.
func (vm *VM) NewString(s string) (object.Ref, error) {
	if cls, err := vm.ResolveClass("java/lang/String"); err == nil {
		if fld, ok := cls.FindInstanceField("value"); ok && fld.Kind == object.ElemReference {
			runes := []rune(s)
			charCls, err := vm.ResolveArrayClass("[C")
			if err != nil {
				return 0, err
			}
			chars := object.NewArray(charCls.ID, object.ElemChar, len(runes))
			for i, r := range runes {
				chars.Set(i, object.Int(int32(r)))
			}
			charsRef, err := vm.heap.Allocate(chars)
			if err != nil {
				return 0, err
			}
			inst := object.NewInstance(cls.ID, cls.InstanceFieldKinds)
			if err := inst.SetSlot(fld.Slot, object.Object(charsRef)); err != nil {
				return 0, &vmerr.Internal{Reason: "java/lang/String.value slot", Err: err}
			}
			return vm.heap.Allocate(inst)
		}
	}
	inst := object.NewInstance(0, nil)
	ref, err := vm.heap.Allocate(inst)
	if err != nil {
		return 0, err
	}
	vm.stringFallback[ref] = s
	return ref, nil
}

// ExtractString implements interp.Machine and natives.Context: the
// inverse of NewString, reading the "value" char array back out of a real
// java/lang/String instance, or consulting the fallback side table.
func (vm *VM) ExtractString(ref object.Ref) (string, error) {
	if s, ok := vm.stringFallback[ref]; ok {
		return s, nil
	}
	inst, ok := vm.heap.Get(ref).(*object.Instance)
	if !ok {
		return "", fmt.Errorf("ExtractString: ref %d is not an instance", ref)
	}
	cls := vm.classes.FindByID(inst.Class)
	if cls == nil {
		return "", fmt.Errorf("ExtractString: ref %d has unresolved class", ref)
	}
	fld, ok := cls.FindInstanceField("value")
	if !ok {
		return "", fmt.Errorf("ExtractString: %s has no value field", cls.Name)
	}
	v, err := inst.GetSlot(fld.Slot)
	if err != nil {
		return "", err
	}
	chars, ok := vm.heap.Get(v.Ref).(*object.Array)
	if !ok {
		return "", fmt.Errorf("ExtractString: value field is not an array")
	}
	runes := make([]rune, chars.Len())
	for i := range runes {
		cv, _ := chars.Get(i)
		runes[i] = rune(cv.I)
	}
	return string(runes), nil
}

// ClassObjectFor implements interp.Machine: returns the cached
// java/lang/Class instance for name, creating it on first use (spec §4.I
// supplemental feature, grounded on rjvm's new_java_lang_class_object).
// The Class instance's slot 0 holds the class's name as a String,
// exactly as natives.go's Class.getName callback expects.
func (vm *VM) ClassObjectFor(name string) (object.Ref, error) {
	if ref, ok := vm.classObjects[name]; ok {
		return ref, nil
	}
	nameRef, err := vm.NewString(name)
	if err != nil {
		return 0, err
	}
	var classID uint32
	kinds := []object.ElemKind{object.ElemReference}
	if cls, err := vm.ResolveClass("java/lang/Class"); err == nil {
		classID = cls.ID
		if len(cls.InstanceFieldKinds) > 0 {
			kinds = cls.InstanceFieldKinds
		}
	}
	inst := object.NewInstance(classID, kinds)
	if err := inst.SetSlot(0, object.Object(nameRef)); err != nil {
		return 0, &vmerr.Internal{Reason: "java/lang/Class name slot", Err: err}
	}
	ref, err := vm.heap.Allocate(inst)
	if err != nil {
		return 0, err
	}
	vm.classObjects[name] = ref
	return ref, nil
}

// RecordStackTrace implements interp.Machine: stores a throwable's
// captured trace keyed by identity, not by identity-hash (spec §9's
// second Open Question: "a real implementation should key by object
// identity directly" — a Go map keyed by object.Ref already does this,
// since Ref is the object's actual heap identity rather than a derived
// hash that could collide).
func (vm *VM) RecordStackTrace(ref object.Ref, frames []natives.StackTraceFrame) {
	vm.traces[ref] = frames
}

// StackTrace implements interp.Machine and natives.Context.
func (vm *VM) StackTrace(ref object.Ref) []natives.StackTraceFrame { return vm.traces[ref] }

// Natives implements interp.Machine.
func (vm *VM) Natives() *natives.Registry { return vm.natives }

// NativeContext implements interp.Machine: VM itself satisfies
// natives.Context.
func (vm *VM) NativeContext() natives.Context { return vm }

// Print implements natives.Context: System.out/System.err both funnel here
// (spec §5: "observable side effects (printed buffer ...) occur at
// instruction boundaries").
func (vm *VM) Print(s string) { vm.printed.WriteString(s) }

// FillInStackTrace implements natives.Context as a structural no-op: the
// real capture happens in the interpreter's native-dispatch path (see
// interp.Invoke), which has access to the call stack this Context
// interface deliberately does not expose — only one native method needs
// frame-stack context, so it is special-cased there rather than widening
// Context for every other native callback.
func (vm *VM) FillInStackTrace(ref object.Ref) {}

// Roots implements heap.RootProvider: every reference the collector must
// trace from (spec §4.E) — static fields across every resolved class,
// every frame on every live call stack, the throwable-stack-trace side
// table's keys, and the cached java/lang/Class and string-fallback
// objects.
func (vm *VM) Roots() []object.Ref {
	var roots []object.Ref
	for _, c := range vm.classes.All() {
		for _, v := range c.StaticFields {
			if v.Kind == object.KindObject && !v.Ref.IsNull() {
				roots = append(roots, v.Ref)
			}
		}
	}
	for _, st := range vm.stacks {
		roots = st.RefSlots(roots)
	}
	for ref := range vm.traces {
		roots = append(roots, ref)
	}
	for _, ref := range vm.classObjects {
		roots = append(roots, ref)
	}
	for ref := range vm.stringFallback {
		roots = append(roots, ref)
	}
	return roots
}

// RewriteRoots implements heap.RootRewriter: fixes up every Ref this VM
// caches across a GC compaction — static fields, call-stack frames, and
// the three side tables that hold Refs (spec §4.E: "every
// reference the collector can reach through roots is rewritten").
func (vm *VM) RewriteRoots(forward []object.Ref) {
	for _, c := range vm.classes.All() {
		for i, v := range c.StaticFields {
			if v.Kind == object.KindObject && !v.Ref.IsNull() {
				c.StaticFields[i].Ref = forwardRef(v.Ref, forward)
			}
		}
	}
	for _, st := range vm.stacks {
		st.RewriteRefs(forward)
	}

	newTraces := make(map[object.Ref][]natives.StackTraceFrame, len(vm.traces))
	for ref, frames := range vm.traces {
		if nr := forwardRef(ref, forward); !nr.IsNull() {
			newTraces[nr] = frames
		}
	}
	vm.traces = newTraces

	newClassObjects := make(map[string]object.Ref, len(vm.classObjects))
	for name, ref := range vm.classObjects {
		if nr := forwardRef(ref, forward); !nr.IsNull() {
			newClassObjects[name] = nr
		}
	}
	vm.classObjects = newClassObjects

	newStringFallback := make(map[object.Ref]string, len(vm.stringFallback))
	for ref, s := range vm.stringFallback {
		if nr := forwardRef(ref, forward); !nr.IsNull() {
			newStringFallback[nr] = s
		}
	}
	vm.stringFallback = newStringFallback
}

func forwardRef(r object.Ref, forward []object.Ref) object.Ref {
	if r.IsNull() || int(r) >= len(forward) {
		return 0
	}
	return forward[r]
}
