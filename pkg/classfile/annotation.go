package classfile

// Annotations groups the four annotation attributes a class, member or code
// element can carry. Type annotations keep only their values; the target
// path does not influence references.
type Annotations struct {
	Visible       []Annotation
	Invisible     []Annotation
	VisibleType   []Annotation
	InvisibleType []Annotation
}

// Annotation is one annotation instance.
type Annotation struct {
	Descriptor string
	Elements   []Element
}

// Element is a named annotation value.
type Element struct {
	Name  string
	Value AnnotationValue
}

// ValueKind discriminates AnnotationValue.
type ValueKind uint8

const (
	ValueConst ValueKind = iota
	ValueEnum
	ValueClass
	ValueAnnotation
	ValueArray
)

// AnnotationValue is an element_value.
type AnnotationValue struct {
	Kind ValueKind
	// Const holds a primitive or string constant for ValueConst.
	Const any
	// Descriptor is the enum type for ValueEnum and the class literal for
	// ValueClass.
	Descriptor string
	// Name is the enum constant.
	Name       string
	Annotation *Annotation
	Array      []AnnotationValue
}
