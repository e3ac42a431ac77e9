package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, newParseError(TruncatedInput, "reading magic number", err)
	}
	if magic != classMagic {
		return nil, newParseError(InvalidMagic, fmt.Sprintf("0x%X (expected 0xCAFEBABE)", magic), nil)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, newParseError(TruncatedInput, "reading minor version", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, newParseError(TruncatedInput, "reading major version", err)
	}
	if cf.MajorVersion > MaxSupportedMajorVersion {
		return nil, newParseError(UnsupportedVersion, fmt.Sprintf("major version %d exceeds supported maximum %d", cf.MajorVersion, MaxSupportedMajorVersion), nil)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, newParseError(TruncatedInput, "reading constant pool count", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, newParseError(TruncatedInput, "reading access flags", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, newParseError(TruncatedInput, "reading this_class", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, newParseError(TruncatedInput, "reading super_class", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, newParseError(TruncatedInput, "reading interfaces count", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading interface %d", i), err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, newParseError(TruncatedInput, "reading fields count", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, newParseError(TruncatedInput, "reading methods count", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	if err := cf.parseClassAttributes(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading field %d access flags", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading field %d name index", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading field %d descriptor index", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading field %d attributes count", i), err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}
		if err := validateFieldDescriptor(desc); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d attributes: %w", i, err)
		}

		f := FieldInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
		for _, attr := range attrs {
			if attr.Name == "ConstantValue" && len(attr.Data) >= 2 {
				idx := binary.BigEndian.Uint16(attr.Data[0:2])
				if int(idx) < len(pool) {
					f.ConstValue = pool[idx]
				}
			}
		}

		fields[i] = f
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading method %d access flags", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading method %d name index", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading method %d descriptor index", i), err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading method %d attributes count", i), err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}
		if _, _, err := ParseMethodDescriptor(desc); err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d attributes: %w", i, err)
		}

		m := MethodInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}

		for _, attr := range attrs {
			if attr.Name == "Code" {
				code, err := parseCodeAttribute(attr.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
				}
				m.Code = code
				break
			}
		}

		methods[i] = m
	}
	return methods, nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading attribute %d name index", i), err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading attribute %d length", i), err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading attribute %d data", i), err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, newParseError(TruncatedInput, fmt.Sprintf("Code attribute too short: %d bytes", len(data)), nil)
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, newParseError(TruncatedInput, fmt.Sprintf("Code attribute data too short for code_length %d", codeLength), nil)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	offset := 8 + int(codeLength)
	var handlers []ExceptionHandler
	if offset+2 <= len(data) {
		exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		handlers = make([]ExceptionHandler, exTableLen)
		for i := uint16(0); i < exTableLen; i++ {
			if offset+8 > len(data) {
				return nil, newParseError(TruncatedInput, "exception table truncated", nil)
			}
			handlers[i] = ExceptionHandler{
				StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
				EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
				HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
				CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
			}
			offset += 8
		}
	}

	ca := &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
	}

	// Code attributes nest their own attribute table (LineNumberTable,
	// LocalVariableTable, StackMapTable, ...); only the first two are
	// promoted, the rest are skipped (spec §1 non-goal: no verifier).
	if offset+2 <= len(data) {
		attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		for i := uint16(0); i < attrCount; i++ {
			if offset+6 > len(data) {
				break
			}
			nameIndex := binary.BigEndian.Uint16(data[offset : offset+2])
			length := binary.BigEndian.Uint32(data[offset+2 : offset+6])
			offset += 6
			if offset+int(length) > len(data) {
				break
			}
			body := data[offset : offset+int(length)]
			offset += int(length)

			name, err := GetUtf8(pool, nameIndex)
			if err != nil {
				continue
			}
			switch name {
			case "LineNumberTable":
				ca.LineNumberTable = parseLineNumberTable(body)
			case "LocalVariableTable":
				ca.LocalVariableTable = parseLocalVariableTable(body, pool)
			}
		}
	}

	return ca, nil
}

func parseLineNumberTable(data []byte) []LineNumberEntry {
	if len(data) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(data[0:2])
	entries := make([]LineNumberEntry, 0, count)
	offset := 2
	for i := uint16(0); i < count && offset+4 <= len(data); i++ {
		entries = append(entries, LineNumberEntry{
			StartPC:    binary.BigEndian.Uint16(data[offset : offset+2]),
			LineNumber: binary.BigEndian.Uint16(data[offset+2 : offset+4]),
		})
		offset += 4
	}
	return entries
}

func parseLocalVariableTable(data []byte, pool []ConstantPoolEntry) []LocalVariableEntry {
	if len(data) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(data[0:2])
	entries := make([]LocalVariableEntry, 0, count)
	offset := 2
	for i := uint16(0); i < count && offset+10 <= len(data); i++ {
		startPC := binary.BigEndian.Uint16(data[offset : offset+2])
		length := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		nameIndex := binary.BigEndian.Uint16(data[offset+4 : offset+6])
		descIndex := binary.BigEndian.Uint16(data[offset+6 : offset+8])
		index := binary.BigEndian.Uint16(data[offset+8 : offset+10])
		offset += 10

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			continue
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			continue
		}
		entries = append(entries, LocalVariableEntry{
			StartPC:    startPC,
			Length:     length,
			Name:       name,
			Descriptor: desc,
			Index:      index,
		})
	}
	return entries
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return newParseError(TruncatedInput, "reading class attributes count", err)
	}
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return newParseError(TruncatedInput, fmt.Sprintf("reading class attribute %d name index", i), err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return newParseError(TruncatedInput, fmt.Sprintf("reading class attribute %d length", i), err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return newParseError(TruncatedInput, fmt.Sprintf("reading class attribute %d data", i), err)
		}
		name, err := GetUtf8(cf.ConstantPool, nameIndex)
		if err != nil {
			continue // skip unresolvable attribute names rather than fail the whole parse
		}
		switch name {
		case "BootstrapMethods":
			cf.BootstrapMethods, err = parseBootstrapMethods(data)
			if err != nil {
				return fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		case "SourceFile":
			if len(data) >= 2 {
				idx := binary.BigEndian.Uint16(data[0:2])
				cf.SourceFile, _ = GetUtf8(cf.ConstantPool, idx)
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, newParseError(TruncatedInput, "BootstrapMethods data too short", nil)
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("BootstrapMethods truncated at method %d", i), nil)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		args := make([]uint16, numArgs)
		for j := uint16(0); j < numArgs; j++ {
			if offset+2 > len(data) {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("BootstrapMethods truncated at arg %d of method %d", j, i), nil)
			}
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// SuperClassName returns the fully qualified name of the superclass, or ""
// for java/lang/Object.
func (cf *ClassFile) SuperClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.SuperClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}
