package classfile

// ConstantKind discriminates Constant.
type ConstantKind uint8

const (
	ConstInt ConstantKind = iota
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	ConstClass
	ConstMethodType
	ConstHandle
	ConstDynamic
)

// Constant is a loadable constant pool entry.
type Constant struct {
	Kind   ConstantKind
	Int    int64
	Float  float64
	String string
	// Descriptor is the type of a class constant, the method type of a
	// method type constant, or the field type of a dynamic constant.
	Descriptor string
	Handle     *Handle
	Dynamic    *Dynamic
}

// IsWide reports whether the constant occupies two stack slots.
func (c Constant) IsWide() bool {
	return c.Kind == ConstLong || c.Kind == ConstDouble || (c.Kind == ConstDynamic && (c.Descriptor == "J" || c.Descriptor == "D"))
}

// HandleKind is the reference_kind of a method handle.
type HandleKind uint8

const (
	HandleGetField HandleKind = iota + 1
	HandleGetStatic
	HandlePutField
	HandlePutStatic
	HandleInvokeVirtual
	HandleInvokeStatic
	HandleInvokeSpecial
	HandleNewInvokeSpecial
	HandleInvokeInterface
)

// IsField reports whether the handle targets a field.
func (k HandleKind) IsField() bool { return k >= HandleGetField && k <= HandlePutStatic }

// Handle is a method handle constant.
type Handle struct {
	Kind       HandleKind
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

// Dynamic is a dynamically computed constant or call site.
type Dynamic struct {
	Name       string
	Descriptor string
	Bootstrap  Handle
	Args       []Constant
}
