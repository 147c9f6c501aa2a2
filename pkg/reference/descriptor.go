package reference

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadDescriptor is returned for malformed type or method descriptors.
var ErrBadDescriptor = errors.New("malformed descriptor")

// TypeOf returns the class referenced by a field type descriptor. Arrays
// resolve to their element class. Primitive and void descriptors reference
// nothing and return false.
func TypeOf(desc string) (ClassRef, bool) {
	desc = strings.TrimLeft(desc, "[")
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return ClassRef{}, false
	}
	return ClassRef{Name: desc[1 : len(desc)-1]}, true
}

// FromInternalName returns the class for an internal name as it appears in a
// constant pool class entry, where array types are spelled as descriptors.
func FromInternalName(name string) (ClassRef, bool) {
	if name == "" {
		return ClassRef{}, false
	}
	if strings.HasPrefix(name, "[") {
		return TypeOf(name)
	}
	return ClassRef{Name: name}, true
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits desc into argument and return descriptors.
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	var md MethodDescriptor
	if !strings.HasPrefix(desc, "(") {
		return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := typeLength(desc[i:])
		if err != nil {
			return md, fmt.Errorf("%w: %q", err, desc)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := typeLength(ret)
		if err != nil || n != len(ret) {
			return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
		}
	}
	md.Return = ret
	return md, nil
}

// typeLength returns the length of the field descriptor at the start of s.
func typeLength(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, ErrBadDescriptor
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 2 {
			return 0, ErrBadDescriptor
		}
		return i + end + 1, nil
	default:
		return 0, ErrBadDescriptor
	}
}

// MethodTypes returns every class named by a method descriptor's arguments
// and return type. Malformed descriptors yield whatever prefix parsed.
func MethodTypes(desc string) []ClassRef {
	md, _ := ParseMethodDescriptor(desc)
	var out []ClassRef
	for _, p := range md.Params {
		if c, ok := TypeOf(p); ok {
			out = append(out, c)
		}
	}
	if c, ok := TypeOf(md.Return); ok {
		out = append(out, c)
	}
	return out
}

// ParamsOf returns the text between the parentheses of a method descriptor.
func ParamsOf(desc string) string {
	end := strings.IndexByte(desc, ')')
	if !strings.HasPrefix(desc, "(") || end < 0 {
		return ""
	}
	return desc[1:end]
}
