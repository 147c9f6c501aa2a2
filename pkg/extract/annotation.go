package extract

import "github.com/panbanda/relocate/pkg/classfile"

// annotations adds the visible annotations and type annotations, and the
// invisible ones when the environment keeps them.
func (c *collector) annotations(a classfile.Annotations) {
	c.annotationList(a.Visible)
	c.annotationList(a.VisibleType)
	if c.env.KeepInvisibleAnnotations {
		c.annotationList(a.Invisible)
		c.annotationList(a.InvisibleType)
	}
}

func (c *collector) parameterAnnotations(params [][]classfile.Annotation) {
	for _, list := range params {
		c.annotationList(list)
	}
}

func (c *collector) annotationList(list []classfile.Annotation) {
	for i := range list {
		c.annotation(&list[i])
	}
}

func (c *collector) annotation(a *classfile.Annotation) {
	c.typeDesc(a.Descriptor)
	for _, e := range a.Elements {
		c.annotationValue(e.Value)
	}
}

func (c *collector) annotationValue(v classfile.AnnotationValue) {
	switch v.Kind {
	case classfile.ValueEnum, classfile.ValueClass:
		c.typeDesc(v.Descriptor)
	case classfile.ValueAnnotation:
		if v.Annotation != nil {
			c.annotation(v.Annotation)
		}
	case classfile.ValueArray:
		for _, item := range v.Array {
			c.annotationValue(item)
		}
	}
}
