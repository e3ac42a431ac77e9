package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constant pool tags (JVMS 4.4).
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil. Long and Double entries
// take two constant-pool slots (JVMS 4.4.5); the reader skips the second,
// reserved slot the way javac's own verifier expects.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, newParseError(TruncatedInput, fmt.Sprintf("reading constant pool tag at index %d", i), err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Utf8 length at index %d", i), err)
			}
			bytes := make([]byte, length)
			if _, err := io.ReadFull(r, bytes); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Utf8 bytes at index %d", i), err)
			}
			pool[i] = &ConstantUtf8{Value: string(bytes)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Integer at index %d", i), err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Float at index %d", i), err)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Long at index %d", i), err)
			}
			pool[i] = &ConstantLong{Value: val}
			i++ // long occupies two slots; the next is reserved and invalid

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Double at index %d", i), err)
			}
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++ // double occupies two slots; the next is reserved and invalid

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading Class at index %d", i), err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading String at index %d", i), err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref:
			classIndex, natIndex, err := readClassNat(r, "Fieldref", i)
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagMethodref:
			classIndex, natIndex, err := readClassNat(r, "Methodref", i)
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagInterfaceMethodref:
			classIndex, natIndex, err := readClassNat(r, "InterfaceMethodref", i)
			if err != nil {
				return nil, err
			}
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading NameAndType name_index at index %d", i), err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading NameAndType descriptor_index at index %d", i), err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var refKind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &refKind); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading MethodHandle reference_kind at index %d", i), err)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading MethodHandle reference_index at index %d", i), err)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: refKind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading MethodType at index %d", i), err)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading InvokeDynamic bootstrap index at index %d", i), err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, newParseError(TruncatedInput, fmt.Sprintf("reading InvokeDynamic name_and_type at index %d", i), err)
			}
			pool[i] = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		default:
			return nil, newParseError(InvalidConstantPoolTag, fmt.Sprintf("unknown tag %d at index %d", tag, i), nil)
		}
	}

	return pool, nil
}

func readClassNat(r io.Reader, what string, i uint16) (classIndex, natIndex uint16, err error) {
	if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
		return 0, 0, newParseError(TruncatedInput, fmt.Sprintf("reading %s class_index at index %d", what, i), err)
	}
	if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
		return 0, 0, newParseError(TruncatedInput, fmt.Sprintf("reading %s name_and_type_index at index %d", what, i), err)
	}
	return classIndex, natIndex, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", newParseError(InvalidDescriptor, fmt.Sprintf("invalid constant pool index %d", index), nil)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag()), nil)
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if classIndex == 0 {
		return "", nil // 0 means "no superclass" — only valid for java/lang/Object
	}
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", newParseError(InvalidDescriptor, fmt.Sprintf("invalid constant pool index %d", classIndex), nil)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not Class", classIndex), nil)
	}
	return GetUtf8(pool, class.NameIndex)
}

// MethodRefInfo holds a resolved Methodref/InterfaceMethodref.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	entry, err := requireEntry(pool, index)
	if err != nil {
		return nil, err
	}
	mref, ok := entry.(*ConstantMethodref)
	if !ok {
		return nil, newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not Methodref", index), nil)
	}
	return resolveRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	entry, err := requireEntry(pool, index)
	if err != nil {
		return nil, err
	}
	mref, ok := entry.(*ConstantInterfaceMethodref)
	if !ok {
		return nil, newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not InterfaceMethodref", index), nil)
	}
	return resolveRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
}

func resolveRef(pool []ConstantPoolEntry, classIndex, natIndex uint16) (*MethodRefInfo, error) {
	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving ref class: %w", err)
	}
	nat, err := requireEntry(pool, natIndex)
	if err != nil {
		return nil, err
	}
	natEntry, ok := nat.(*ConstantNameAndType)
	if !ok {
		return nil, newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not NameAndType", natIndex), nil)
	}
	name, err := GetUtf8(pool, natEntry.NameIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving name: %w", err)
	}
	desc, err := GetUtf8(pool, natEntry.DescriptorIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving descriptor: %w", err)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: desc}, nil
}

// FieldRefInfo holds a resolved Fieldref.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	entry, err := requireEntry(pool, index)
	if err != nil {
		return nil, err
	}
	fref, ok := entry.(*ConstantFieldref)
	if !ok {
		return nil, newParseError(InvalidDescriptor, fmt.Sprintf("constant pool index %d is not Fieldref", index), nil)
	}
	ref, err := resolveRef(pool, fref.ClassIndex, fref.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	return &FieldRefInfo{ClassName: ref.ClassName, FieldName: ref.MethodName, Descriptor: ref.Descriptor}, nil
}

func requireEntry(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, newParseError(InvalidDescriptor, fmt.Sprintf("invalid constant pool index %d", index), nil)
	}
	return pool[index], nil
}
