package classpath

import (
	"context"
	"errors"

	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/reference"
)

const objectClass = "java/lang/Object"

// ErrNoObject is returned for lookups on array types when java/lang/Object
// cannot be loaded. Callers drop such references without a diagnostic.
var ErrNoObject = errors.New("java/lang/Object is not on the classpath")

// Combined resolves symbols across tiers in order. The first tier that has
// a class wins.
type Combined struct {
	tiers []*ClassPath
}

// NewCombined returns a resolver over tiers, usually roots, embeds, refers.
func NewCombined(tiers ...*ClassPath) *Combined {
	return &Combined{tiers: tiers}
}

// FindClass returns the class with the internal name or nil.
func (c *Combined) FindClass(ctx context.Context, name string) (*classfile.ClassFile, error) {
	for _, cp := range c.tiers {
		cf, err := cp.FindClass(ctx, name)
		if err != nil || cf != nil {
			return cf, err
		}
	}
	return nil, nil
}

// walk visits owner and its superclass chain, then the interfaces collected
// along that chain breadth first, until visit returns false. Classes that
// cannot be loaded end their branch.
func (c *Combined) walk(ctx context.Context, owner string, visit func(*classfile.ClassFile) bool) error {
	if reference.IsArrayOwner(owner) {
		obj, err := c.FindClass(ctx, objectClass)
		if err != nil {
			return err
		}
		if obj == nil {
			return ErrNoObject
		}
		visit(obj)
		return nil
	}

	seen := make(map[string]bool)
	var interfaces []string
	for name := owner; name != "" && !seen[name]; {
		seen[name] = true
		cf, err := c.FindClass(ctx, name)
		if err != nil {
			return err
		}
		if cf == nil {
			break
		}
		if !visit(cf) {
			return nil
		}
		interfaces = append(interfaces, cf.Interfaces...)
		name = cf.Super
	}

	for len(interfaces) > 0 {
		name := interfaces[0]
		interfaces = interfaces[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		cf, err := c.FindClass(ctx, name)
		if err != nil {
			return err
		}
		if cf == nil {
			continue
		}
		if !visit(cf) {
			return nil
		}
		interfaces = append(interfaces, cf.Interfaces...)
	}
	return nil
}

// FindMethod returns the first method matching ref's name and descriptor
// along the owner's hierarchy, or nil.
//
// Array owners resolve against java/lang/Object, matching on parameters so
// covariant clone() calls succeed. Signature polymorphic methods of
// MethodHandle and VarHandle match any call-site descriptor.
func (c *Combined) FindMethod(ctx context.Context, ref reference.MethodRef) (*classfile.Method, error) {
	var found *classfile.Method
	err := c.walk(ctx, ref.Owner, func(cf *classfile.ClassFile) bool {
		found = cf.Method(ref.Name, ref.Descriptor)
		if found == nil && reference.IsArrayOwner(ref.Owner) {
			found = firstMatching(cf.MethodsNamed(ref.Name), reference.PartialMethod("", ref.Name, reference.ParamsOf(ref.Descriptor)))
		}
		if found == nil && isPolymorphicHolder(cf.Name) {
			found = polymorphic(cf, ref.Name)
		}
		return found == nil
	})
	return found, err
}

func firstMatching(ms []*classfile.Method, p reference.PartialMethodRef) *classfile.Method {
	for _, m := range ms {
		if p.Matches(m.Descriptor) {
			return m
		}
	}
	return nil
}

const polymorphicDescriptor = "([Ljava/lang/Object;)Ljava/lang/Object;"

func isPolymorphicHolder(name string) bool {
	return name == "java/lang/invoke/MethodHandle" || name == "java/lang/invoke/VarHandle"
}

func polymorphic(cf *classfile.ClassFile, name string) *classfile.Method {
	m := cf.Method(name, polymorphicDescriptor)
	if m == nil || m.Access&(classfile.AccVarargs|classfile.AccNative) != classfile.AccVarargs|classfile.AccNative {
		return nil
	}
	return m
}

// FindMethods returns every method matching a reduced method reference
// anywhere along the owner's hierarchy.
func (c *Combined) FindMethods(ctx context.Context, ref reference.Reference) ([]*classfile.Method, error) {
	var (
		owner, name string
		match       func(*classfile.Method) bool
	)
	switch r := ref.(type) {
	case reference.TypelessMethodRef:
		owner, name = r.Owner, r.Name
		match = func(*classfile.Method) bool { return true }
	case reference.PartialMethodRef:
		owner, name = r.Owner, r.Name
		match = func(m *classfile.Method) bool { return r.Matches(m.Descriptor) }
	case reference.MethodRef:
		m, err := c.FindMethod(ctx, r)
		if m == nil {
			return nil, err
		}
		return []*classfile.Method{m}, err
	default:
		return nil, nil
	}

	var out []*classfile.Method
	err := c.walk(ctx, owner, func(cf *classfile.ClassFile) bool {
		for _, m := range cf.MethodsNamed(name) {
			if match(m) {
				out = append(out, m)
			}
		}
		return true
	})
	return out, err
}

// FindFields resolves a field reference. With a descriptor it returns at
// most the first match along the hierarchy. Without one it returns every
// field of that name anywhere in the hierarchy.
func (c *Combined) FindFields(ctx context.Context, ref reference.FieldRef) ([]*classfile.Field, error) {
	var out []*classfile.Field
	err := c.walk(ctx, ref.Owner, func(cf *classfile.ClassFile) bool {
		if ref.HasDescriptor() {
			if f := cf.Field(ref.Name, ref.Descriptor); f != nil {
				out = append(out, f)
				return false
			}
			return true
		}
		out = append(out, cf.FieldsNamed(ref.Name)...)
		return true
	})
	return out, err
}

// FindRecordComponent returns the first record component matching ref along
// the owner's hierarchy, or nil.
func (c *Combined) FindRecordComponent(ctx context.Context, ref reference.RecordComponentRef) (*classfile.RecordComponent, error) {
	var found *classfile.RecordComponent
	err := c.walk(ctx, ref.Owner, func(cf *classfile.ClassFile) bool {
		found = cf.RecordComponent(ref.Name, ref.Descriptor)
		return found == nil
	})
	return found, err
}
