package classfile

import "fmt"

// Kind is the coarse type category a descriptor letter maps to (JVMS 4.3.2).
type Kind int

const (
	KindByte Kind = iota
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindReference
	KindArray
	KindVoid
)

// FieldType is a parsed field descriptor: a primitive kind, a reference with
// its class name, or an array with an element-type descriptor.
type FieldType struct {
	Kind      Kind
	ClassName string // set when Kind == KindReference
	ElemDesc  string // set when Kind == KindArray: the descriptor one level down
	Dims      int    // set when Kind == KindArray: number of leading '['
}

// IsCategory2 reports whether a value of this type occupies two local-variable
// slots / two operand-stack words (JVMS 2.6.1, 2.6.2): only long and double.
func (t FieldType) IsCategory2() bool {
	return t.Kind == KindLong || t.Kind == KindDouble
}

// ParseFieldDescriptor parses a single field descriptor (JVMS 4.3.2):
//
//	FieldDescriptor: FieldType
//	FieldType: BaseType | ObjectType | ArrayType
//	BaseType: one of B C D F I J S Z
//	ObjectType: L ClassName ;
//	ArrayType: [ ComponentType
func ParseFieldDescriptor(desc string) (FieldType, error) {
	ft, rest, err := parseFieldType(desc)
	if err != nil {
		return FieldType{}, err
	}
	if rest != "" {
		return FieldType{}, newParseError(InvalidDescriptor, fmt.Sprintf("trailing data in field descriptor %q", desc), nil)
	}
	return ft, nil
}

func parseFieldType(desc string) (FieldType, string, error) {
	if desc == "" {
		return FieldType{}, "", newParseError(InvalidDescriptor, "empty field descriptor", nil)
	}
	switch desc[0] {
	case 'B':
		return FieldType{Kind: KindByte}, desc[1:], nil
	case 'C':
		return FieldType{Kind: KindChar}, desc[1:], nil
	case 'D':
		return FieldType{Kind: KindDouble}, desc[1:], nil
	case 'F':
		return FieldType{Kind: KindFloat}, desc[1:], nil
	case 'I':
		return FieldType{Kind: KindInt}, desc[1:], nil
	case 'J':
		return FieldType{Kind: KindLong}, desc[1:], nil
	case 'S':
		return FieldType{Kind: KindShort}, desc[1:], nil
	case 'Z':
		return FieldType{Kind: KindBoolean}, desc[1:], nil
	case 'L':
		end := -1
		for i := 1; i < len(desc); i++ {
			if desc[i] == ';' {
				end = i
				break
			}
		}
		if end < 0 {
			return FieldType{}, "", newParseError(InvalidDescriptor, fmt.Sprintf("unterminated class descriptor %q", desc), nil)
		}
		return FieldType{Kind: KindReference, ClassName: desc[1:end]}, desc[end+1:], nil
	case '[':
		elem, rest, err := parseFieldType(desc[1:])
		if err != nil {
			return FieldType{}, "", err
		}
		dims := 1
		if elem.Kind == KindArray {
			dims += elem.Dims
		}
		return FieldType{Kind: KindArray, ElemDesc: desc[1 : len(desc)-len(rest)], Dims: dims}, rest, nil
	default:
		return FieldType{}, "", newParseError(InvalidDescriptor, fmt.Sprintf("unrecognized descriptor char %q in %q", desc[0], desc), nil)
	}
}

// ParseMethodDescriptor parses a method descriptor (JVMS 4.3.3):
//
//	MethodDescriptor: ( ParameterDescriptor* ) ReturnDescriptor
//	ReturnDescriptor: FieldType | V
func ParseMethodDescriptor(desc string) (params []FieldType, ret FieldType, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, FieldType{}, newParseError(InvalidDescriptor, fmt.Sprintf("method descriptor %q missing '('", desc), nil)
	}
	rest := desc[1:]
	for len(rest) > 0 && rest[0] != ')' {
		var ft FieldType
		ft, rest, err = parseFieldType(rest)
		if err != nil {
			return nil, FieldType{}, err
		}
		params = append(params, ft)
	}
	if len(rest) == 0 || rest[0] != ')' {
		return nil, FieldType{}, newParseError(InvalidDescriptor, fmt.Sprintf("method descriptor %q missing ')'", desc), nil)
	}
	rest = rest[1:]
	if rest == "V" {
		return params, FieldType{Kind: KindVoid}, nil
	}
	ret, tail, err := parseFieldType(rest)
	if err != nil {
		return nil, FieldType{}, err
	}
	if tail != "" {
		return nil, FieldType{}, newParseError(InvalidDescriptor, fmt.Sprintf("trailing data in method descriptor %q", desc), nil)
	}
	return params, ret, nil
}

func validateFieldDescriptor(desc string) error {
	_, err := ParseFieldDescriptor(desc)
	return err
}

// ArgSlots returns how many local-variable slots this method's parameters
// occupy (category-2 types take two), not counting the receiver.
func ArgSlots(params []FieldType) int {
	n := 0
	for _, p := range params {
		if p.IsCategory2() {
			n += 2
		} else {
			n++
		}
	}
	return n
}
