package class

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// fakeLoader is the "lightweight fake" spec §9 calls for: a Loader backed
// by a map of binary name -> raw .class bytes, used to unit test linking
// without a real class-path.
type fakeLoader struct {
	classes map[string][]byte
}

func (f *fakeLoader) Lookup(name string) ([]byte, error) {
	data, ok := f.classes[name]
	if !ok {
		return nil, &missError{name}
	}
	return data, nil
}

type missError struct{ name string }

func (e *missError) Error() string { return "class not found: " + e.name }

// buildSimpleClass assembles a minimal class with one int instance field
// (none when fieldName is empty) and, optionally, a <clinit> method and a
// superclass name.
func buildSimpleClass(t *testing.T, thisName, superName, fieldName string, withClinit bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) { binary.Write(&buf, binary.BigEndian, v) }
	utf8 := func(s string) { w(uint8(1)); w(uint16(len(s))); buf.WriteString(s) }
	class := func(nameIdx uint16) { w(uint8(7)); w(nameIdx) }

	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(52))

	// pool: 1=thisName 2=Class(1) 3=superName 4=Class(3) 5=fieldName 6="I"
	// 7="<clinit>" 8="()V" 9="Code"
	w(uint16(10))
	utf8(thisName)
	class(1)
	utf8(superName)
	class(3)
	utf8(fieldName)
	utf8("I")
	utf8("<clinit>")
	utf8("()V")
	utf8("Code")

	w(uint16(0x0021)) // public super
	w(uint16(2))       // this_class
	w(uint16(4))       // super_class
	w(uint16(0))       // interfaces

	if fieldName == "" {
		w(uint16(0)) // fields_count
	} else {
		w(uint16(1)) // fields_count
		w(uint16(0)) // access flags
		w(uint16(5)) // name -> fieldName
		w(uint16(6)) // desc -> "I"
		w(uint16(0)) // attrs
	}

	if withClinit {
		w(uint16(1)) // methods_count
		w(uint16(0x0008))
		w(uint16(7)) // name -> "<clinit>"
		w(uint16(8)) // desc -> "()V"
		w(uint16(1)) // attrs_count

		code := []byte{0xb1} // return
		var codeAttr bytes.Buffer
		cw := func(v any) { binary.Write(&codeAttr, binary.BigEndian, v) }
		cw(uint16(1))
		cw(uint16(1))
		cw(uint32(len(code)))
		codeAttr.Write(code)
		cw(uint16(0))
		cw(uint16(0))

		w(uint16(9)) // "Code"
		w(uint32(codeAttr.Len()))
		buf.Write(codeAttr.Bytes())
	} else {
		w(uint16(0)) // methods_count
	}

	w(uint16(0)) // class attributes_count
	return buf.Bytes()
}

func TestResolveLinksSuperclassFieldsFirst(t *testing.T) {
	loader := &fakeLoader{classes: map[string][]byte{
		"A": buildSimpleClass(t, "A", "java/lang/Object", "x", true),
		"B": buildSimpleClass(t, "B", "A", "y", true),
	}}
	// java/lang/Object itself must resolve too — give it an empty shell.
	loader.classes["java/lang/Object"] = buildSimpleClass(t, "java/lang/Object", "", "", false)

	m := New(loader)
	b, pending, err := m.Resolve("B")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(b.InstanceFieldKinds) != 2 {
		t.Fatalf("expected 2 inherited+own instance slots, got %d", len(b.InstanceFieldKinds))
	}
	xField, ok := b.FindInstanceField("x")
	if !ok {
		t.Fatal("inherited field x not found")
	}
	yField, ok := b.FindInstanceField("y")
	if !ok {
		t.Fatal("own field y not found")
	}
	if yField.Slot <= xField.Slot {
		t.Errorf("subclass slot (%d) should be greater than superclass slot (%d)", yField.Slot, xField.Slot)
	}

	// <clinit> order: superclass-before-subclass, depth-first post-order.
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending <clinit>s (A, B), got %d", len(pending))
	}
	if pending[0].Name != "A" || pending[1].Name != "B" {
		t.Errorf("clinit order: got %s, %s — want A, B", pending[0].Name, pending[1].Name)
	}
}

func TestResolveAssignsUniqueClassIDs(t *testing.T) {
	loader := &fakeLoader{classes: map[string][]byte{
		"A":                buildSimpleClass(t, "A", "java/lang/Object", "x", false),
		"java/lang/Object": buildSimpleClass(t, "java/lang/Object", "", "", false),
	}}
	m := New(loader)
	a, _, err := m.Resolve("A")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == 0 {
		t.Error("class id should be non-zero")
	}
	if m.FindByID(a.ID) != a {
		t.Error("FindByID does not round-trip")
	}
	if m.FindByName("A") != a {
		t.Error("FindByName does not round-trip")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	loader := &fakeLoader{classes: map[string][]byte{
		"A":                buildSimpleClass(t, "A", "java/lang/Object", "x", false),
		"java/lang/Object": buildSimpleClass(t, "java/lang/Object", "", "", false),
	}}
	m := New(loader)
	a1, _, err := m.Resolve("A")
	if err != nil {
		t.Fatal(err)
	}
	a2, pending, err := m.Resolve("A")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("second Resolve should return the same *Loaded")
	}
	if len(pending) != 0 {
		t.Error("second Resolve should report no pending <clinit>s for an already-linked class")
	}
}

func TestResolveDetectsClassCircularity(t *testing.T) {
	var buf bytes.Buffer
	w := func(v any) { binary.Write(&buf, binary.BigEndian, v) }
	utf8 := func(s string) { w(uint8(1)); w(uint16(len(s))); buf.WriteString(s) }
	class := func(nameIdx uint16) { w(uint8(7)); w(nameIdx) }

	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(52))
	w(uint16(4))
	utf8("Loop")
	class(1)
	class(1) // super_class also points at "Loop" itself
	w(uint16(0x0021))
	w(uint16(2))
	w(uint16(3))
	w(uint16(0))
	w(uint16(0))
	w(uint16(0))
	w(uint16(0))

	loader := &fakeLoader{classes: map[string][]byte{"Loop": buf.Bytes()}}
	m := New(loader)
	_, _, err := m.Resolve("Loop")
	if _, ok := err.(*ClassCircularityError); !ok {
		t.Errorf("expected *ClassCircularityError, got %T (%v)", err, err)
	}
}
