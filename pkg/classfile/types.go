// Package classfile parses the JVM .class binary format (JVMS chapter 4)
// into a structured, 1-indexed constant pool and a tree of fields, methods
// and code attributes. It targets class-file major versions up to 52
// (Java 8). Field and method names and descriptors are resolved while
// parsing; constant-pool entries keep the raw index form of the class file,
// and GetClassName/ResolveMethodref/ResolveFieldref follow those indices
// again on every call.
package classfile

// Access flags (JVMS 4.1, 4.5, 4.6 — the subset the interpreter consults).
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// MaxSupportedMajorVersion is the compatibility target: Java 8 class files.
const MaxSupportedMajorVersion = 52

// ClassFile is the structured result of parsing one .class byte stream —
// the "class descriptor" of spec §3.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     []ConstantPoolEntry // 1-indexed; index 0 is always nil
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	BootstrapMethods []BootstrapMethod
	SourceFile       string
}

// ConstantPoolEntry is implemented by every tagged constant-pool variant.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }
type ConstantInteger struct{ Value int32 }
type ConstantFloat struct{ Value float32 }
type ConstantLong struct{ Value int64 }
type ConstantDouble struct{ Value float64 }
type ConstantClass struct{ NameIndex uint16 }
type ConstantString struct{ StringIndex uint16 }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type ConstantMethodType struct{ DescriptorIndex uint16 }

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantUtf8) Tag() uint8               { return TagUtf8 }
func (c *ConstantInteger) Tag() uint8            { return TagInteger }
func (c *ConstantFloat) Tag() uint8              { return TagFloat }
func (c *ConstantLong) Tag() uint8               { return TagLong }
func (c *ConstantDouble) Tag() uint8             { return TagDouble }
func (c *ConstantClass) Tag() uint8              { return TagClass }
func (c *ConstantString) Tag() uint8             { return TagString }
func (c *ConstantFieldref) Tag() uint8           { return TagFieldref }
func (c *ConstantMethodref) Tag() uint8          { return TagMethodref }
func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }
func (c *ConstantNameAndType) Tag() uint8        { return TagNameAndType }
func (c *ConstantMethodHandle) Tag() uint8       { return TagMethodHandle }
func (c *ConstantMethodType) Tag() uint8         { return TagMethodType }
func (c *ConstantInvokeDynamic) Tag() uint8      { return TagInvokeDynamic }

// BootstrapMethod is one entry of the BootstrapMethods class attribute,
// consumed by invokedynamic (JVMS 4.7.23).
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// FieldInfo is a field_info structure (JVMS 4.5) plus its resolved name and
// descriptor. The field's slot index (class.Field.Slot) is assigned by the
// class manager (component C), not by the reader: the reader has no notion
// of inherited layout.
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	ConstValue  ConstantPoolEntry // from a ConstantValue attribute, if any
}

// MethodInfo is a method_info structure (JVMS 4.6) plus resolved name,
// descriptor and (if present) its Code attribute.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
}

func (m *MethodInfo) IsStatic() bool   { return m.AccessFlags&AccStatic != 0 }
func (m *MethodInfo) IsNative() bool   { return m.AccessFlags&AccNative != 0 }
func (m *MethodInfo) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// AttributeInfo is a raw, not-yet-interpreted attribute_info (JVMS 4.7):
// name plus its opaque payload. The parser promotes the attributes it
// understands (Code, BootstrapMethods, ConstantValue, SourceFile) into
// typed fields; everything else (debug-only attributes beyond what Code
// keeps, or annotations) is intentionally left raw and unconsumed, per
// spec §1's non-goals.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler is one entry of a Code attribute's exception table
// (JVMS 4.7.3).
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 means "any" (used for finally blocks)
}

// LineNumberEntry maps a bytecode offset to a source line (JVMS 4.7.12).
type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// LocalVariableEntry is one entry of a LocalVariableTable attribute
// (JVMS 4.7.13), kept for diagnostics; the interpreter does not require it.
type LocalVariableEntry struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

// CodeAttribute is the parsed Code attribute (JVMS 4.7.3): bytecode plus
// the frame sizing and exception/debug tables the interpreter needs.
type CodeAttribute struct {
	MaxStack           uint16
	MaxLocals          uint16
	Code               []byte
	ExceptionHandlers  []ExceptionHandler
	LineNumberTable    []LineNumberEntry
	LocalVariableTable []LocalVariableEntry
}

// Bytecode returns the method's instruction stream, satisfying
// frame.CodeSource so a *CodeAttribute can back a frame.MethodRef directly.
func (c *CodeAttribute) Bytecode() []byte { return c.Code }

// LineForPC returns the source line covering pc under JVMS's "last entry
// whose start_pc is <= pc" rule, or 0 if no line-number table was read.
func (c *CodeAttribute) LineForPC(pc int) uint16 {
	var line uint16
	bestStart := -1
	for _, e := range c.LineNumberTable {
		if int(e.StartPC) <= pc && int(e.StartPC) > bestStart {
			bestStart = int(e.StartPC)
			line = e.LineNumber
		}
	}
	return line
}
