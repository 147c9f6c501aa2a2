package extract

import (
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
)

// code adds everything a method body names.
func (c *collector) code(m *classfile.Method) {
	code := m.Code

	c.annotations(code.LocalAnnotations)
	for _, tc := range code.TryCatch {
		if tc.Type != "" {
			c.className(tc.Type)
		}
		c.annotations(tc.Annotations)
	}
	for _, lv := range code.Locals {
		c.typeDesc(lv.Descriptor)
		loc := diagnostic.LocalLocation(m.Owner, m.Name, m.Descriptor, lv.Index, lv.Name)
		c.signature(typeSignature, lv.Signature, loc)
	}

	for i := range code.Insns {
		insn := &code.Insns[i]
		if insn.Frame != nil {
			c.frame(insn.Frame)
		}
		c.insn(insn)
	}

	if c.env.Reflection {
		detectReflection(c, m)
	}
}

func (c *collector) frame(f *classfile.Frame) {
	for _, v := range f.Locals {
		if v.Kind == classfile.VObject {
			c.className(v.Class)
		}
	}
	for _, v := range f.Stack {
		if v.Kind == classfile.VObject {
			c.className(v.Class)
		}
	}
}

func (c *collector) insn(insn *classfile.Insn) {
	switch insn.Op {
	case classfile.NEW, classfile.ANEWARRAY, classfile.CHECKCAST, classfile.INSTANCEOF, classfile.MULTIANEWARRAY:
		c.className(insn.Type)
	case classfile.GETSTATIC, classfile.PUTSTATIC, classfile.GETFIELD, classfile.PUTFIELD:
		c.add(insn.Field)
	case classfile.INVOKEVIRTUAL, classfile.INVOKESPECIAL, classfile.INVOKESTATIC, classfile.INVOKEINTERFACE:
		c.add(insn.Method)
	case classfile.INVOKEDYNAMIC:
		if insn.Dynamic != nil {
			c.dynamic(insn.Dynamic)
		}
	case classfile.LDC:
		c.constant(insn.Const)
	}
}

// constant adds what a loadable constant names. Handles contribute the
// member they point at; dynamic constants are unwrapped recursively.
func (c *collector) constant(k classfile.Constant) {
	switch k.Kind {
	case classfile.ConstClass:
		c.typeDesc(k.Descriptor)
	case classfile.ConstMethodType:
		c.methodDesc(k.Descriptor)
	case classfile.ConstHandle:
		if k.Handle != nil {
			c.handle(*k.Handle)
		}
	case classfile.ConstDynamic:
		if k.Dynamic != nil {
			c.dynamic(k.Dynamic)
		}
	}
}

// dynamic covers both invokedynamic call sites, whose descriptor is a method
// type, and dynamic constants, whose descriptor is a field type.
func (c *collector) dynamic(d *classfile.Dynamic) {
	if len(d.Descriptor) > 0 && d.Descriptor[0] == '(' {
		c.methodDesc(d.Descriptor)
	} else {
		c.typeDesc(d.Descriptor)
	}
	c.handle(d.Bootstrap)
	for _, arg := range d.Args {
		c.constant(arg)
	}
}

func (c *collector) handle(h classfile.Handle) {
	if h.Kind.IsField() {
		c.add(reference.FieldRef{Owner: h.Owner, Name: h.Name, Descriptor: h.Descriptor})
		return
	}
	c.add(reference.MethodRef{Owner: h.Owner, Name: h.Name, Descriptor: h.Descriptor})
}
