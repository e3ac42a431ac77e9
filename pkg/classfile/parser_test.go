package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildClassFile assembles a minimal but structurally valid .class byte
// stream for a single class, one method with a Code attribute, and a
// handful of constant-pool entries exercising each kind the parser resolves.
// There is no compiler available to produce real bytecode here, so this
// mirrors what javac would emit for a trivial `int add(int,int)` method:
// iload_1, iload_2, iadd, ireturn.
func buildClassFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	w := func(v any) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("writing %v: %v", v, err)
		}
	}
	utf8 := func(s string) {
		w(uint8(TagUtf8))
		w(uint16(len(s)))
		buf.WriteString(s)
	}
	class := func(nameIdx uint16) { w(uint8(TagClass)); w(nameIdx) }

	w(uint32(classMagic))
	w(uint16(0))  // minor
	w(uint16(52)) // major

	// constant pool: 1=Utf8"Add" 2=Class#1 3=Utf8"java/lang/Object" 4=Class#3
	// 5=Utf8"add" 6=Utf8"(II)I" 7=Utf8"Code"
	w(uint16(8)) // constant_pool_count = count+1
	utf8("Add")
	class(1)
	utf8("java/lang/Object")
	class(3)
	utf8("add")
	utf8("(II)I")
	utf8("Code")

	w(uint16(AccPublic | AccSuper)) // access_flags
	w(uint16(2))                    // this_class -> Class#2 ("Add")
	w(uint16(4))                    // super_class -> Class#4 (Object)
	w(uint16(0))                    // interfaces_count

	w(uint16(0)) // fields_count

	w(uint16(1))               // methods_count
	w(uint16(AccPublic | AccStatic)) // access_flags
	w(uint16(5))                // name_index -> "add"
	w(uint16(6))                // descriptor_index -> "(II)I"
	w(uint16(1))                // attributes_count

	code := []byte{0x1b, 0x1c, 0x60, 0xac} // iload_1, iload_2, iadd, ireturn
	var codeAttr bytes.Buffer
	cw := func(v any) { binary.Write(&codeAttr, binary.BigEndian, v) }
	cw(uint16(2))            // max_stack
	cw(uint16(3))             // max_locals
	cw(uint32(len(code)))
	codeAttr.Write(code)
	cw(uint16(0)) // exception_table_length
	cw(uint16(0)) // code's own attributes_count

	w(uint16(7)) // attribute_name_index -> "Code"
	w(uint32(codeAttr.Len()))
	buf.Write(codeAttr.Bytes())

	w(uint16(0)) // class attributes_count

	return buf.Bytes()
}

func TestParseSyntheticClassFile(t *testing.T) {
	data := buildClassFile(t)

	cf, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cf.MajorVersion != 52 {
		t.Errorf("major version: got %d, want 52", cf.MajorVersion)
	}

	name, err := cf.ClassName()
	if err != nil {
		t.Fatalf("ClassName: %v", err)
	}
	if name != "Add" {
		t.Errorf("ClassName: got %q, want %q", name, "Add")
	}

	super, err := cf.SuperClassName()
	if err != nil {
		t.Fatalf("SuperClassName: %v", err)
	}
	if super != "java/lang/Object" {
		t.Errorf("SuperClassName: got %q, want %q", super, "java/lang/Object")
	}

	m := cf.FindMethod("add", "(II)I")
	if m == nil {
		t.Fatal("add(II)I method not found")
	}
	if m.Code == nil {
		t.Fatal("add method has no Code attribute")
	}
	if m.Code.MaxStack != 2 || m.Code.MaxLocals != 3 {
		t.Errorf("Code sizing: got max_stack=%d max_locals=%d, want 2/3", m.Code.MaxStack, m.Code.MaxLocals)
	}
	if !bytes.Equal(m.Code.Code, []byte{0x1b, 0x1c, 0x60, 0xac}) {
		t.Errorf("Code bytes: got %x", m.Code.Code)
	}
	if !m.IsStatic() {
		t.Error("add method should be static")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if err == nil {
		t.Fatal("expected error for invalid magic number, got nil")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Kind != InvalidMagic {
		t.Errorf("Kind: got %v, want InvalidMagic", pe.Kind)
	}
}

func TestParseTruncatedInput(t *testing.T) {
	data := buildClassFile(t)
	_, err := Parse(bytes.NewReader(data[:len(data)/2]))
	if err == nil {
		t.Fatal("expected error for truncated input, got nil")
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	data := buildClassFile(t)
	binary.BigEndian.PutUint16(data[6:8], 9999) // major version offset
	_, err := Parse(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected error for unsupported version, got nil")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Kind != UnsupportedVersion {
		t.Errorf("Kind: got %v, want UnsupportedVersion", pe.Kind)
	}
}

func TestParseFieldDescriptor(t *testing.T) {
	cases := []struct {
		desc string
		kind Kind
	}{
		{"I", KindInt},
		{"J", KindLong},
		{"D", KindDouble},
		{"F", KindFloat},
		{"Z", KindBoolean},
		{"B", KindByte},
		{"C", KindChar},
		{"S", KindShort},
		{"Ljava/lang/String;", KindReference},
		{"[I", KindArray},
		{"[[Ljava/lang/String;", KindArray},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			ft, err := ParseFieldDescriptor(c.desc)
			if err != nil {
				t.Fatalf("ParseFieldDescriptor(%q): %v", c.desc, err)
			}
			if ft.Kind != c.kind {
				t.Errorf("Kind: got %v, want %v", ft.Kind, c.kind)
			}
		})
	}

	t.Run("reference class name", func(t *testing.T) {
		ft, err := ParseFieldDescriptor("Ljava/lang/String;")
		if err != nil {
			t.Fatal(err)
		}
		if ft.ClassName != "java/lang/String" {
			t.Errorf("ClassName: got %q", ft.ClassName)
		}
	})

	t.Run("array dims", func(t *testing.T) {
		ft, err := ParseFieldDescriptor("[[I")
		if err != nil {
			t.Fatal(err)
		}
		if ft.Dims != 2 {
			t.Errorf("Dims: got %d, want 2", ft.Dims)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := ParseFieldDescriptor("Q"); err == nil {
			t.Error("expected error for invalid descriptor")
		}
		if _, err := ParseFieldDescriptor("Ljava/lang/String"); err == nil {
			t.Error("expected error for unterminated class descriptor")
		}
	})
}

func TestParseMethodDescriptor(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(II)I")
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 2 || params[0].Kind != KindInt || params[1].Kind != KindInt {
		t.Errorf("params: got %+v", params)
	}
	if ret.Kind != KindInt {
		t.Errorf("ret: got %+v", ret)
	}

	params, ret, err = ParseMethodDescriptor("([Ljava/lang/String;)V")
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 1 || params[0].Kind != KindArray {
		t.Errorf("params: got %+v", params)
	}
	if ret.Kind != KindVoid {
		t.Errorf("ret: got %+v", ret)
	}

	if n := ArgSlots([]FieldType{{Kind: KindLong}, {Kind: KindInt}}); n != 3 {
		t.Errorf("ArgSlots: got %d, want 3", n)
	}

	if _, _, err := ParseMethodDescriptor("II)I"); err == nil {
		t.Error("expected error for missing '('")
	}
}
