package interp

import "strings"

// isSubtype implements the checkcast/instanceof subtype relation (spec
// §4.G: "{identity, transitive superclass, implemented interface, array
// covariance over reference element types with the same dimension count,
// [T <: Object for any T}"). sub and sup are either plain binary class
// names ("java/lang/String") or "["-prefixed array descriptors, the two
// forms a CONSTANT_Class entry's name can take (JVMS 4.4.1).
func isSubtype(m Machine, sub, sup string) (bool, error) {
	if sub == sup {
		return true, nil
	}
	if sup == "java/lang/Object" {
		return true, nil
	}
	subArray := strings.HasPrefix(sub, "[")
	supArray := strings.HasPrefix(sup, "[")
	if subArray != supArray {
		return false, nil // arrays implement only Object/Cloneable/Serializable, not modeled
	}
	if subArray {
		return arraySubtype(m, sub, sup)
	}
	subClass, err := m.ResolveClass(sub)
	if err != nil {
		return false, err
	}
	supClass, err := m.ResolveClass(sup)
	if err != nil {
		return false, err
	}
	return subClass.IsSubclassOf(supClass) || subClass.ImplementsInterface(supClass), nil
}

func arraySubtype(m Machine, sub, sup string) (bool, error) {
	subComp, subDepth := peelArray(sub)
	supComp, supDepth := peelArray(sup)
	if subDepth != supDepth {
		return false, nil
	}
	if strings.HasPrefix(subComp, "L") && strings.HasPrefix(supComp, "L") {
		return isSubtype(m, strings.TrimSuffix(strings.TrimPrefix(subComp, "L"), ";"),
			strings.TrimSuffix(strings.TrimPrefix(supComp, "L"), ";"))
	}
	return subComp == supComp, nil // primitive element arrays are invariant
}

func peelArray(desc string) (component string, depth int) {
	for strings.HasPrefix(desc, "[") {
		desc = desc[1:]
		depth++
	}
	return desc, depth
}

// componentDescriptor turns a plain binary class name into its reference
// descriptor form ("java/lang/String" -> "Ljava/lang/String;"), leaving an
// already-bracketed array descriptor untouched.
func componentDescriptor(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}
