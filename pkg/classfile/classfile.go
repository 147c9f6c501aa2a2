// Package classfile is the in-memory class model the reachability core works
// on. Turning bytes into this model is the job of a Decoder.
package classfile

import (
	"sync"
	"sync/atomic"

	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
)

// Access flags.
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccVarargs   = 0x0080
	AccNative    = 0x0100
	AccInterface = 0x0200
	AccAbstract  = 0x0400
	AccSynthetic = 0x1000
	AccEnum      = 0x4000
	AccRecord    = 0x10000 // pseudo flag, set by decoders for classes with a Record attribute
)

// state is the mutable part every class, method, field and record component
// carries through the pipeline.
type state struct {
	included atomic.Bool

	mu       sync.Mutex
	refs     []reference.Reference
	computed bool
	external *reference.Set
	all      []reference.Reference
}

// SetReferences stores the extractor output.
func (s *state) SetReferences(refs []reference.Reference) {
	s.mu.Lock()
	s.refs = refs
	s.computed = true
	s.all = nil
	s.mu.Unlock()
}

// References returns the direct references computed by the extractor.
func (s *state) References() []reference.Reference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// ReferencesComputed reports whether SetReferences has been called.
func (s *state) ReferencesComputed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.computed
}

// AddExternalReference records a reference added by a later pipeline stage.
// It must happen before marking starts.
func (s *state) AddExternalReference(r reference.Reference) {
	s.mu.Lock()
	if s.external == nil {
		s.external = reference.NewSet()
	}
	if s.external.Add(r) {
		s.all = nil
	}
	s.mu.Unlock()
}

// AllReferences returns references ∪ external references. The union is
// cached until the next change.
func (s *state) AllReferences() []reference.Reference {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all != nil {
		return s.all
	}
	if s.external == nil || s.external.Len() == 0 {
		s.all = s.refs
		if s.all == nil {
			s.all = []reference.Reference{}
		}
		return s.all
	}
	set := reference.NewSet()
	set.AddAll(s.refs)
	set.AddAll(s.external.Slice())
	s.all = set.Slice()
	return s.all
}

// MarkIncluded sets the included flag and reports whether this call made
// the transition.
func (s *state) MarkIncluded() bool {
	return s.included.CompareAndSwap(false, true)
}

// Included reports whether the symbol was marked reachable.
func (s *state) Included() bool {
	return s.included.Load()
}

// InnerClass is an entry of the InnerClasses attribute.
type InnerClass struct {
	Name   string // internal name of the nested class
	Outer  string // internal name of the enclosing class, empty for local classes
	Simple string // simple name, empty for anonymous classes
	Access int
}

// InnerClassContainer maps (outer, simple name) to the nested class's
// internal name.
type InnerClassContainer struct {
	byName map[[2]string]string
}

// NewInnerClassContainer indexes entries that have both an outer and a
// simple name.
func NewInnerClassContainer(entries []InnerClass) *InnerClassContainer {
	c := &InnerClassContainer{byName: make(map[[2]string]string, len(entries))}
	for _, e := range entries {
		if e.Outer != "" && e.Simple != "" {
			c.byName[[2]string{e.Outer, e.Simple}] = e.Name
		}
	}
	return c
}

// Find returns the internal name of outer's nested class called simple.
func (c *InnerClassContainer) Find(outer, simple string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.byName[[2]string{outer, simple}]
	return name, ok
}

// ClassFile is one loaded class.
type ClassFile struct {
	state

	Version             int
	Access              int
	Name                string
	Super               string
	Interfaces          []string
	Signature           string
	OuterClass          string
	NestHost            string
	NestMembers         []string
	PermittedSubclasses []string
	InnerClasses        []InnerClass
	Annotations         Annotations
	RecordComponents    []*RecordComponent
	Fields              []*Field
	Methods             []*Method

	innerOnce sync.Once
	inner     *InnerClassContainer
}

// Link sets the owner of every member to c and returns c. Decoders call it
// once the class is fully populated.
func (c *ClassFile) Link() *ClassFile {
	for _, m := range c.Methods {
		m.Owner = c.Name
	}
	for _, f := range c.Fields {
		f.Owner = c.Name
	}
	for _, rc := range c.RecordComponents {
		rc.Owner = c.Name
	}
	return c
}

// Ref returns a reference to this class.
func (c *ClassFile) Ref() reference.ClassRef { return reference.ClassRef{Name: c.Name} }

// Location returns the diagnostic location of the class.
func (c *ClassFile) Location() diagnostic.Location { return diagnostic.ClassLocation(c.Name) }

func (c *ClassFile) IsRecord() bool { return c.Access&AccRecord != 0 }

// InnerClassIndex returns the nested class index, built on first use.
func (c *ClassFile) InnerClassIndex() *InnerClassContainer {
	c.innerOnce.Do(func() {
		c.inner = NewInnerClassContainer(c.InnerClasses)
	})
	return c.inner
}

// Method returns the method with the exact name and descriptor.
func (c *ClassFile) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// MethodsNamed returns every method called name.
func (c *ClassFile) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field with the name and, when desc is non-empty, the
// descriptor.
func (c *ClassFile) Field(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && (desc == "" || f.Descriptor == desc) {
			return f
		}
	}
	return nil
}

// FieldsNamed returns every field called name.
func (c *ClassFile) FieldsNamed(name string) []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// RecordComponent returns the component with the given name and descriptor.
func (c *ClassFile) RecordComponent(name, desc string) *RecordComponent {
	for _, rc := range c.RecordComponents {
		if rc.Name == name && rc.Descriptor == desc {
			return rc
		}
	}
	return nil
}

// HasStaticInitializer reports whether the class declares <clinit>.
func (c *ClassFile) HasStaticInitializer() bool {
	for _, m := range c.Methods {
		if m.Name == "<clinit>" {
			return true
		}
	}
	return false
}

// Method is a method of a class.
type Method struct {
	state

	Owner                         string
	Access                        int
	Name                          string
	Descriptor                    string
	Signature                     string
	Exceptions                    []string
	AnnotationDefault             *AnnotationValue
	Annotations                   Annotations
	VisibleParameterAnnotations   [][]Annotation
	InvisibleParameterAnnotations [][]Annotation
	Code                          *Code
}

func (m *Method) Ref() reference.MethodRef {
	return reference.MethodRef{Owner: m.Owner, Name: m.Name, Descriptor: m.Descriptor}
}

func (m *Method) Location() diagnostic.Location {
	return diagnostic.MethodLocation(m.Owner, m.Name, m.Descriptor)
}

func (m *Method) IsStatic() bool  { return m.Access&AccStatic != 0 }
func (m *Method) IsPrivate() bool { return m.Access&AccPrivate != 0 }

// IsInitializer reports whether the method is a constructor or a static
// initializer.
func (m *Method) IsInitializer() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// Field is a field of a class.
type Field struct {
	state

	Owner       string
	Access      int
	Name        string
	Descriptor  string
	Signature   string
	Value       *Constant
	Annotations Annotations
}

func (f *Field) Ref() reference.FieldRef {
	return reference.FieldRef{Owner: f.Owner, Name: f.Name, Descriptor: f.Descriptor}
}

func (f *Field) Location() diagnostic.Location {
	return diagnostic.FieldLocation(f.Owner, f.Name, f.Descriptor)
}

func (f *Field) IsPrivate() bool { return f.Access&AccPrivate != 0 }

// RecordComponent is a component of a record class.
type RecordComponent struct {
	state

	Owner       string
	Name        string
	Descriptor  string
	Signature   string
	Annotations Annotations
}

func (rc *RecordComponent) Ref() reference.RecordComponentRef {
	return reference.RecordComponentRef{Owner: rc.Owner, Name: rc.Name, Descriptor: rc.Descriptor}
}

func (rc *RecordComponent) Location() diagnostic.Location {
	return diagnostic.RecordComponentLocation(rc.Owner, rc.Name, rc.Descriptor)
}
