// Package extract computes the direct references of classes and members.
//
// Extraction is pure: it reads only the structural data of the symbol it is
// given (and the owner's inner class table) and never consults a classpath.
// Results are de-duplicated and returned in first-seen order.
package extract

import (
	"strings"

	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
	"github.com/panbanda/relocate/pkg/signature"
)

// Env configures extraction.
type Env struct {
	// KeepInvisibleAnnotations makes RuntimeInvisible* annotations count as
	// references.
	KeepInvisibleAnnotations bool
	// Reflection enables the constant-tracking reflection heuristic.
	Reflection bool
	// Report receives extraction warnings. Nil discards them.
	Report diagnostic.Handler
}

// DefaultEnv returns the environment used when nothing is configured.
func DefaultEnv() Env {
	return Env{Reflection: true, Report: diagnostic.Discard}
}

// collector accumulates references for one symbol.
type collector struct {
	env   Env
	set   *reference.Set
	inner *classfile.InnerClassContainer
	loc   diagnostic.Location
	err   error
}

func newCollector(env Env, owner *classfile.ClassFile, loc diagnostic.Location) *collector {
	if env.Report == nil {
		env.Report = diagnostic.Discard
	}
	var inner *classfile.InnerClassContainer
	if owner != nil {
		inner = owner.InnerClassIndex()
	}
	return &collector{env: env, set: reference.NewSet(), inner: inner, loc: loc}
}

func (c *collector) result() ([]reference.Reference, error) {
	return c.set.Slice(), c.err
}

func (c *collector) add(r reference.Reference) { c.set.Add(r) }

// report forwards a warning. The first handler error is kept and returned by
// result; extraction continues so the reference set stays complete.
func (c *collector) report(d diagnostic.Diagnostic) {
	if err := c.env.Report.Handle(d); err != nil && c.err == nil {
		c.err = err
	}
}

// className adds a class named the way constant pool class entries are.
func (c *collector) className(name string) {
	if ref, ok := reference.FromInternalName(name); ok {
		c.add(ref)
	}
}

func (c *collector) typeDesc(desc string) {
	if ref, ok := reference.TypeOf(desc); ok {
		c.add(ref)
	}
}

func (c *collector) methodDesc(desc string) {
	for _, ref := range reference.MethodTypes(desc) {
		c.add(ref)
	}
}

type signatureKind uint8

const (
	classSignature signatureKind = iota
	methodSignature
	typeSignature
)

// signature adds every class type of sig. A nested suffix that the inner
// class table cannot resolve drops that class type with a warning. Malformed
// signatures contribute what parsed before the error.
func (c *collector) signature(kind signatureKind, sig string, loc diagnostic.Location) {
	if sig == "" {
		return
	}
	visit := func(ct signature.ClassType) {
		name := ct.Name
		for _, simple := range ct.Inner {
			found, ok := c.inner.Find(name, simple)
			if !ok {
				c.report(diagnostic.UnresolvableInnerClass.New(loc, name, simple))
				return
			}
			name = found
		}
		c.add(reference.ClassRef{Name: name})
	}
	switch kind {
	case classSignature:
		_ = signature.Class(sig, visit)
	case methodSignature:
		_ = signature.Method(sig, visit)
	default:
		_ = signature.Type(sig, visit)
	}
}

// Class returns the references of a class declaration.
func Class(env Env, cf *classfile.ClassFile) ([]reference.Reference, error) {
	c := newCollector(env, cf, cf.Location())

	if cf.Super != "" {
		c.className(cf.Super)
	}
	for _, iface := range cf.Interfaces {
		c.className(iface)
	}
	c.signature(classSignature, cf.Signature, c.loc)
	if cf.OuterClass != "" {
		c.className(cf.OuterClass)
	}
	c.annotations(cf.Annotations)
	if cf.NestHost != "" {
		c.className(cf.NestHost)
	}

	if cf.IsRecord() {
		var params strings.Builder
		for _, rc := range cf.RecordComponents {
			c.typeDesc(rc.Descriptor)
			c.signature(typeSignature, rc.Signature, rc.Location())
			c.add(reference.MethodRef{Owner: cf.Name, Name: rc.Name, Descriptor: "()" + rc.Descriptor})
			c.add(rc.Ref())
			params.WriteString(rc.Descriptor)
		}
		c.add(reference.MethodRef{Owner: cf.Name, Name: "<init>", Descriptor: "(" + params.String() + ")V"})
	}

	if cf.HasStaticInitializer() {
		c.add(reference.MethodRef{Owner: cf.Name, Name: "<clinit>", Descriptor: "()V"})
	}
	return c.result()
}

// Method returns the references of a method, including its body.
func Method(env Env, m *classfile.Method, owner *classfile.ClassFile) ([]reference.Reference, error) {
	loc := m.Location()
	c := newCollector(env, owner, loc)

	c.methodDesc(m.Descriptor)
	c.signature(methodSignature, m.Signature, loc)
	for _, ex := range m.Exceptions {
		c.className(ex)
	}
	if m.AnnotationDefault != nil {
		c.annotationValue(*m.AnnotationDefault)
	}
	c.annotations(m.Annotations)
	c.parameterAnnotations(m.VisibleParameterAnnotations)
	if env.KeepInvisibleAnnotations {
		c.parameterAnnotations(m.InvisibleParameterAnnotations)
	}
	if m.Code != nil {
		c.code(m)
	}

	c.add(reference.ClassRef{Name: m.Owner})
	return c.result()
}

// Field returns the references of a field.
func Field(env Env, f *classfile.Field, owner *classfile.ClassFile) ([]reference.Reference, error) {
	loc := f.Location()
	c := newCollector(env, owner, loc)

	c.typeDesc(f.Descriptor)
	c.signature(typeSignature, f.Signature, loc)
	if f.Value != nil && f.Value.Kind == classfile.ConstClass {
		c.typeDesc(f.Value.Descriptor)
	}
	c.annotations(f.Annotations)

	c.add(reference.ClassRef{Name: f.Owner})
	return c.result()
}

// RecordComponent returns the references of a record component: its type,
// signature, annotations, its accessor and its owner.
func RecordComponent(env Env, rc *classfile.RecordComponent, owner *classfile.ClassFile) ([]reference.Reference, error) {
	loc := rc.Location()
	c := newCollector(env, owner, loc)

	c.typeDesc(rc.Descriptor)
	c.signature(typeSignature, rc.Signature, loc)
	c.annotations(rc.Annotations)
	c.add(reference.MethodRef{Owner: rc.Owner, Name: rc.Name, Descriptor: "()" + rc.Descriptor})

	c.add(reference.ClassRef{Name: rc.Owner})
	return c.result()
}

// Compute extracts and stores the references of cf and every member it
// declares. The first handler error is returned after all symbols have been
// processed.
func Compute(env Env, cf *classfile.ClassFile) error {
	var firstErr error
	keep := func(refs []reference.Reference, err error, set func([]reference.Reference)) {
		set(refs)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	refs, err := Class(env, cf)
	keep(refs, err, cf.SetReferences)
	for _, m := range cf.Methods {
		refs, err := Method(env, m, cf)
		keep(refs, err, m.SetReferences)
	}
	for _, f := range cf.Fields {
		refs, err := Field(env, f, cf)
		keep(refs, err, f.SetReferences)
	}
	for _, rc := range cf.RecordComponents {
		refs, err := RecordComponent(env, rc, cf)
		keep(refs, err, rc.SetReferences)
	}
	return firstErr
}

// Library stores the references of a class that is only consulted for
// resolution: every member references just its declaring class, and the
// class references each of its own members.
func Library(cf *classfile.ClassFile) {
	owner := []reference.Reference{cf.Ref()}
	members := reference.NewSet()
	for _, m := range cf.Methods {
		m.SetReferences(owner)
		members.Add(m.Ref())
	}
	for _, f := range cf.Fields {
		f.SetReferences(owner)
		members.Add(f.Ref())
	}
	for _, rc := range cf.RecordComponents {
		rc.SetReferences(owner)
		members.Add(rc.Ref())
	}
	cf.SetReferences(members.Slice())
}
