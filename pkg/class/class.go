// Package class implements the class manager (spec §4.C): resolving and
// linking class descriptors, assigning instance-field slots and class ids,
// and computing the `<clinit>` execution order. Grounded on the teacher's
// class-loading approach (daimatz-gojvm/pkg/vm/classloader.go, since folded
// into this package) and on original_source/vm/src/vm.rs's class-resolution
// walk, which additionally enforces the ClassCircularity check this package
// implements.
package class

import (
	"bytes"
	"fmt"

	"github.com/hollowcore/govm/pkg/classfile"
	"github.com/hollowcore/govm/pkg/object"
)

// Loader supplies raw .class bytes for a binary name — implemented by
// pkg/classpath.ClassPath, or by a test fake per spec §9 ("tests may
// substitute a lightweight fake").
type Loader interface {
	Lookup(binaryName string) ([]byte, error)
}

// Field describes one instance or static field's resolved layout.
type Field struct {
	Name       string
	Descriptor string
	Kind       object.ElemKind
	Slot       int
	Static     bool
	ConstValue classfile.ConstantPoolEntry
}

// Loaded is the resolved, linked class descriptor the rest of the VM
// consumes — spec §3's "class descriptor", "owned by C for the VM's
// lifetime".
type Loaded struct {
	ID    uint32
	Name  string
	File  *classfile.ClassFile
	Super *Loaded // nil only for java/lang/Object
	Interfaces []*Loaded

	// InstanceFieldKinds is every instance-field slot this class's
	// Instances carry, inherited slots first (spec §3: "slot index
	// assigned contiguously after the superclass's instance fields").
	InstanceFieldKinds []object.ElemKind
	// instanceFields maps a field name declared anywhere in the
	// ancestry to its resolved slot + kind, for getfield/putfield.
	instanceFields map[string]Field

	// StaticFields is this class's own static-field storage shell,
	// allocated at link time (spec §4.C: "allocates the static-field
	// instance shell").
	StaticFields []object.Value
	staticIndex  map[string]Field

	Initialized bool
}

// FindInstanceField looks up a field (declared on this class or inherited)
// by name.
func (c *Loaded) FindInstanceField(name string) (Field, bool) {
	f, ok := c.instanceFields[name]
	return f, ok
}

// FindStaticField looks up a static field declared directly on this class.
func (c *Loaded) FindStaticField(name string) (Field, bool) {
	f, ok := c.staticIndex[name]
	return f, ok
}

// GetStatic reads this class's static field value.
func (c *Loaded) GetStatic(name string) (object.Value, bool) {
	f, ok := c.staticIndex[name]
	if !ok {
		return object.Value{}, false
	}
	return c.StaticFields[f.Slot], true
}

// SetStatic writes this class's static field value.
func (c *Loaded) SetStatic(name string, v object.Value) bool {
	f, ok := c.staticIndex[name]
	if !ok {
		return false
	}
	c.StaticFields[f.Slot] = v
	return true
}

// IsSubclassOf reports whether c is target or a (transitive) subclass of it.
func (c *Loaded) IsSubclassOf(target *Loaded) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == target {
			return true
		}
	}
	return false
}

// ImplementsInterface reports whether c or any ancestor directly or
// transitively implements target.
func (c *Loaded) ImplementsInterface(target *Loaded) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if iface == target || iface.ImplementsInterface(target) {
				return true
			}
		}
	}
	return false
}

// ClassCircularityError is raised when a class lists itself among its own
// ancestors (spec §4.C: "fatal ClassCircularity").
type ClassCircularityError struct{ Name string }

func (e *ClassCircularityError) Error() string {
	return fmt.Sprintf("ClassCircularity: %s", e.Name)
}

// FieldNotFoundError and MethodNotFoundError are the remaining Structural
// errors of spec §7 that the class manager can raise directly.
type FieldNotFoundError struct{ Class, Field string }

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("FieldNotFound: %s.%s", e.Class, e.Field)
}

type MethodNotFoundError struct{ Class, Method, Descriptor string }

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("MethodNotFound: %s.%s:%s", e.Class, e.Method, e.Descriptor)
}

// Manager resolves, links and indexes classes for one VM instance. Its
// class table is append-only after linking (spec §5): once an id is
// assigned, a class's descriptor and slot layout never change.
type Manager struct {
	loader Loader
	byName map[string]*Loaded
	byID   []*Loaded // index 0 unused; ids are 1-based
}

// New creates a class manager backed by the given class-path loader.
func New(loader Loader) *Manager {
	return &Manager{
		loader: loader,
		byName: make(map[string]*Loaded),
		byID:   make([]*Loaded, 1),
	}
}

// FindByID returns the class with the given id, or nil.
func (m *Manager) FindByID(id uint32) *Loaded {
	if int(id) >= len(m.byID) {
		return nil
	}
	return m.byID[id]
}

// FindByName returns the already-resolved class with this binary name, or
// nil if it has not been resolved yet.
func (m *Manager) FindByName(name string) *Loaded {
	return m.byName[name]
}

// All returns every class resolved so far, for the VM's GC root scan over
// static fields (spec §4.E: "roots ... statics").
func (m *Manager) All() []*Loaded {
	return m.byID[1:]
}

// ResolveArrayClass returns (creating and caching on first use) the
// synthetic runtime class for an array type descriptor ("[I",
// "[Ljava/lang/String;", "[[I", ...), plus any pending <clinit> the lookup
// of java/lang/Object newly triggered (same contract as Resolve: the class
// manager never runs Java code itself, so the caller must run these).
// Arrays are objects rooted at java/lang/Object (spec §4.D), so giving
// every array a resolvable class id — rather than leaving it 0, the
// reserved "no class" sentinel — lets invokevirtual dispatch an array
// receiver's inherited methods (clone, hashCode, toString, equals,
// getClass) the same way it dispatches on any other receiver. The
// synthetic class declares no methods or fields of its own; File is an
// empty *classfile.ClassFile purely so FindMethod's walk up the Super
// chain has something non-nil to call before reaching Object.
func (m *Manager) ResolveArrayClass(descriptor string) (*Loaded, []*Loaded, error) {
	if existing, ok := m.byName[descriptor]; ok {
		return existing, nil, nil
	}
	objClass, pending, err := m.Resolve("java/lang/Object")
	if err != nil {
		return nil, nil, fmt.Errorf("resolving array class %s: %w", descriptor, err)
	}
	loaded := &Loaded{
		Name:           descriptor,
		File:           &classfile.ClassFile{},
		Super:          objClass,
		instanceFields: make(map[string]Field),
		staticIndex:    make(map[string]Field),
		Initialized:    true,
	}
	m.byID = append(m.byID, loaded)
	loaded.ID = uint32(len(m.byID) - 1)
	m.byName[descriptor] = loaded
	return loaded, pending, nil
}

// Resolve loads and links name and every ancestor not yet resolved,
// returning the class plus the ordered list of classes whose <clinit>
// still needs to run — superclass-before-subclass, superinterface-before-
// implementer, depth-first post-order (spec §4.C) — for the caller
// (interpreter) to execute, since <clinit> may throw and the class
// manager itself never runs Java code.
func (m *Manager) Resolve(name string) (*Loaded, []*Loaded, error) {
	var pending []*Loaded
	visiting := make(map[string]bool)
	loaded, err := m.resolveOne(name, visiting, &pending)
	if err != nil {
		return nil, nil, err
	}
	return loaded, pending, nil
}

func (m *Manager) resolveOne(name string, visiting map[string]bool, pending *[]*Loaded) (*Loaded, error) {
	if existing, ok := m.byName[name]; ok {
		return existing, nil
	}
	if visiting[name] {
		return nil, &ClassCircularityError{Name: name}
	}
	visiting[name] = true
	defer delete(visiting, name)

	data, err := m.loader.Lookup(name)
	if err != nil {
		return nil, err
	}
	cf, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing class %s: %w", name, err)
	}

	var super *Loaded
	superName, err := cf.SuperClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving superclass of %s: %w", name, err)
	}
	if superName != "" {
		super, err = m.resolveOne(superName, visiting, pending)
		if err != nil {
			return nil, err
		}
	}

	var interfaces []*Loaded
	for _, ifIdx := range cf.Interfaces {
		ifName, err := classfile.GetClassName(cf.ConstantPool, ifIdx)
		if err != nil {
			return nil, fmt.Errorf("resolving interface of %s: %w", name, err)
		}
		ifClass, err := m.resolveOne(ifName, visiting, pending)
		if err != nil {
			return nil, err
		}
		interfaces = append(interfaces, ifClass)
	}

	loaded, err := m.link(name, cf, super, interfaces)
	if err != nil {
		return nil, err
	}

	m.byID = append(m.byID, loaded)
	loaded.ID = uint32(len(m.byID) - 1)
	m.byName[name] = loaded

	if loaded.File.FindMethod("<clinit>", "()V") != nil {
		*pending = append(*pending, loaded)
	}

	return loaded, nil
}

func (m *Manager) link(name string, cf *classfile.ClassFile, super *Loaded, interfaces []*Loaded) (*Loaded, error) {
	var instanceKinds []object.ElemKind
	instanceFields := make(map[string]Field)
	if super != nil {
		instanceKinds = append(instanceKinds, super.InstanceFieldKinds...)
		for n, f := range super.instanceFields {
			instanceFields[n] = f
		}
	}

	var staticFields []object.Value
	staticIndex := make(map[string]Field)

	for _, f := range cf.Fields {
		ft, err := classfile.ParseFieldDescriptor(f.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", name, f.Name, err)
		}
		kind := toElemKind(ft)
		isStatic := f.AccessFlags&classfile.AccStatic != 0

		if isStatic {
			slot := len(staticFields)
			staticFields = append(staticFields, kind.DefaultValue())
			field := Field{Name: f.Name, Descriptor: f.Descriptor, Kind: kind, Slot: slot, Static: true, ConstValue: f.ConstValue}
			staticIndex[f.Name] = field
			if f.ConstValue != nil {
				staticFields[slot] = constValueToValue(f.ConstValue, kind)
			}
		} else {
			slot := len(instanceKinds)
			instanceKinds = append(instanceKinds, kind)
			instanceFields[f.Name] = Field{Name: f.Name, Descriptor: f.Descriptor, Kind: kind, Slot: slot, Static: false}
		}
	}

	return &Loaded{
		Name:               name,
		File:               cf,
		Super:              super,
		Interfaces:         interfaces,
		InstanceFieldKinds: instanceKinds,
		instanceFields:     instanceFields,
		StaticFields:       staticFields,
		staticIndex:        staticIndex,
	}, nil
}

func toElemKind(ft classfile.FieldType) object.ElemKind {
	switch ft.Kind {
	case classfile.KindByte:
		return object.ElemByte
	case classfile.KindChar:
		return object.ElemChar
	case classfile.KindDouble:
		return object.ElemDouble
	case classfile.KindFloat:
		return object.ElemFloat
	case classfile.KindInt:
		return object.ElemInt
	case classfile.KindLong:
		return object.ElemLong
	case classfile.KindShort:
		return object.ElemShort
	case classfile.KindBoolean:
		return object.ElemBoolean
	default: // KindReference, KindArray
		return object.ElemReference
	}
}

func constValueToValue(cp classfile.ConstantPoolEntry, kind object.ElemKind) object.Value {
	switch c := cp.(type) {
	case *classfile.ConstantInteger:
		return object.Int(c.Value)
	case *classfile.ConstantLong:
		return object.Long(c.Value)
	case *classfile.ConstantFloat:
		return object.Float(c.Value)
	case *classfile.ConstantDouble:
		return object.Double(c.Value)
	default:
		return kind.DefaultValue()
	}
}
