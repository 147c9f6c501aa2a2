// Package reference defines the symbolic references exchanged between the
// extractor, the classpath and the mark engine.
//
// Every reference is a small comparable value. Two references are the same
// symbol iff they are equal with ==, so they can be used directly as map keys.
package reference

import "strings"

// Kind identifies the concrete reference variant.
type Kind uint8

const (
	KindClass Kind = iota
	KindMethod
	KindField
	KindTypelessMethod
	KindPartialMethod
	KindRecordComponent
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindTypelessMethod:
		return "typeless-method"
	case KindPartialMethod:
		return "partial-method"
	case KindRecordComponent:
		return "record-component"
	default:
		return "unknown"
	}
}

// Reference is a symbolic reference to a class or a member.
// The set of implementations is closed.
type Reference interface {
	Kind() Kind
	// Class returns the class that declares, or is, the referenced symbol.
	Class() ClassRef
	String() string
	isReference()
}

// ClassRef references a class by internal name.
type ClassRef struct {
	Name string
}

// MethodRef references a method by owner, name and full descriptor.
type MethodRef struct {
	Owner      string
	Name       string
	Descriptor string
}

// FieldRef references a field. An empty Descriptor means the type is not
// known and every same-named field along the owner's hierarchy matches.
type FieldRef struct {
	Owner      string
	Name       string
	Descriptor string
}

// TypelessMethodRef references every method of a given name.
type TypelessMethodRef struct {
	Owner string
	Name  string
}

// PartialMethodRef references methods whose argument list is known but whose
// return type is not. Params is the concatenated argument descriptors.
type PartialMethodRef struct {
	Owner  string
	Name   string
	Params string
}

// RecordComponentRef references a record component.
type RecordComponentRef struct {
	Owner      string
	Name       string
	Descriptor string
}

func (ClassRef) Kind() Kind           { return KindClass }
func (MethodRef) Kind() Kind          { return KindMethod }
func (FieldRef) Kind() Kind           { return KindField }
func (TypelessMethodRef) Kind() Kind  { return KindTypelessMethod }
func (PartialMethodRef) Kind() Kind   { return KindPartialMethod }
func (RecordComponentRef) Kind() Kind { return KindRecordComponent }

func (r ClassRef) Class() ClassRef           { return r }
func (r MethodRef) Class() ClassRef          { return ClassRef{Name: r.Owner} }
func (r FieldRef) Class() ClassRef           { return ClassRef{Name: r.Owner} }
func (r TypelessMethodRef) Class() ClassRef  { return ClassRef{Name: r.Owner} }
func (r PartialMethodRef) Class() ClassRef   { return ClassRef{Name: r.Owner} }
func (r RecordComponentRef) Class() ClassRef { return ClassRef{Name: r.Owner} }

func (ClassRef) isReference()           {}
func (MethodRef) isReference()          {}
func (FieldRef) isReference()           {}
func (TypelessMethodRef) isReference()  {}
func (PartialMethodRef) isReference()   {}
func (RecordComponentRef) isReference() {}

func (r ClassRef) String() string { return r.Name }

func (r MethodRef) String() string {
	return r.Owner + "." + r.Name + ":" + r.Descriptor
}

func (r FieldRef) String() string {
	if r.Descriptor == "" {
		return r.Owner + "." + r.Name
	}
	return r.Owner + "." + r.Name + ":" + r.Descriptor
}

func (r TypelessMethodRef) String() string {
	return r.Owner + "." + r.Name
}

func (r PartialMethodRef) String() string {
	return r.Owner + "." + r.Name + ":(" + r.Params + ")"
}

func (r RecordComponentRef) String() string {
	return r.Owner + "#" + r.Name + ":" + r.Descriptor
}

// HasDescriptor reports whether the field type is known.
func (r FieldRef) HasDescriptor() bool { return r.Descriptor != "" }

// Matches reports whether desc is a method descriptor with the known params.
func (r PartialMethodRef) Matches(desc string) bool {
	return strings.HasPrefix(desc, "("+r.Params+")")
}

// InternalName converts a binary name (dot separated) into an internal name.
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// Class returns a class reference, normalising dots to slashes.
func Class(name string) ClassRef {
	return ClassRef{Name: InternalName(name)}
}

// Method returns a method reference.
func Method(owner, name, descriptor string) MethodRef {
	return MethodRef{Owner: InternalName(owner), Name: name, Descriptor: descriptor}
}

// Field returns a field reference with a known descriptor.
func Field(owner, name, descriptor string) FieldRef {
	return FieldRef{Owner: InternalName(owner), Name: name, Descriptor: descriptor}
}

// PartialField returns a field reference whose type is unknown.
func PartialField(owner, name string) FieldRef {
	return FieldRef{Owner: InternalName(owner), Name: name}
}

// TypelessMethod returns a reference to every method called name.
func TypelessMethod(owner, name string) TypelessMethodRef {
	return TypelessMethodRef{Owner: InternalName(owner), Name: name}
}

// PartialMethod returns a reference to methods taking params.
func PartialMethod(owner, name, params string) PartialMethodRef {
	return PartialMethodRef{Owner: InternalName(owner), Name: name, Params: params}
}

// RecordComponent returns a record component reference.
func RecordComponent(owner, name, descriptor string) RecordComponentRef {
	return RecordComponentRef{Owner: InternalName(owner), Name: name, Descriptor: descriptor}
}

// IsArrayOwner reports whether owner names an array type such as
// "[Ljava/lang/String;".
func IsArrayOwner(owner string) bool {
	return strings.HasPrefix(owner, "[")
}

// Set is an insertion-ordered set of references.
type Set struct {
	index map[Reference]struct{}
	items []Reference
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{index: make(map[Reference]struct{})}
}

// Add inserts r and reports whether it was absent. Nil is ignored.
func (s *Set) Add(r Reference) bool {
	if r == nil {
		return false
	}
	if _, ok := s.index[r]; ok {
		return false
	}
	s.index[r] = struct{}{}
	s.items = append(s.items, r)
	return true
}

// AddAll inserts every reference of rs.
func (s *Set) AddAll(rs []Reference) {
	for _, r := range rs {
		s.Add(r)
	}
}

// Contains reports membership.
func (s *Set) Contains(r Reference) bool {
	_, ok := s.index[r]
	return ok
}

// Len returns the number of references.
func (s *Set) Len() int { return len(s.items) }

// Slice returns the references in insertion order. The result must not be
// modified.
func (s *Set) Slice() []Reference { return s.items }
