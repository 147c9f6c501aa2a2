package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
)

func cls(name string) reference.Reference { return reference.Class(name) }

func annotation(desc string) classfile.Annotation {
	return classfile.Annotation{Descriptor: desc}
}

func TestClass_Structure(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:       "a/Service",
		Super:      "a/Base",
		Interfaces: []string{"a/Api"},
		Signature:  "La/Base<La/Item;>;La/Api;",
		OuterClass: "a/Enclosing",
		NestHost:   "a/Host",
		Annotations: classfile.Annotations{
			Visible:   []classfile.Annotation{annotation("La/Visible;")},
			Invisible: []classfile.Annotation{annotation("La/Invisible;")},
		},
		Methods: []*classfile.Method{{Name: "<clinit>", Descriptor: "()V", Access: classfile.AccStatic}},
	}).Link()

	refs, err := Class(DefaultEnv(), cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("a/Base"),
		cls("a/Api"),
		cls("a/Item"),
		cls("a/Enclosing"),
		cls("a/Visible"),
		cls("a/Host"),
		reference.Method("a/Service", "<clinit>", "()V"),
	}, refs)

	env := DefaultEnv()
	env.KeepInvisibleAnnotations = true
	refs, err = Class(env, cf)
	require.NoError(t, err)
	assert.Contains(t, refs, cls("a/Invisible"))
}

func TestClass_InnerClassSignature(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:      "a/User",
		Super:     "java/lang/Object",
		Signature: "Ljava/lang/Object;La/Outer<La/Arg;>.Inner;La/Outer.Missing;",
		InnerClasses: []classfile.InnerClass{
			{Name: "a/Outer$Inner", Outer: "a/Outer", Simple: "Inner"},
		},
	}).Link()

	var collected diagnostic.Collector
	env := DefaultEnv()
	env.Report = &collected

	refs, err := Class(env, cf)
	require.NoError(t, err)
	assert.Contains(t, refs, cls("a/Outer$Inner"))
	assert.Contains(t, refs, cls("a/Arg"))
	assert.NotContains(t, refs, cls("a/Outer"))

	diags := collected.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostic.UnresolvableInnerClass, diags[0].Type)
	assert.Equal(t, []any{"a/Outer", "Missing"}, diags[0].Params)
	assert.Equal(t, diagnostic.ClassLocation("a/User"), diags[0].Location)
}

func TestClass_Record(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:   "a/Point",
		Super:  "java/lang/Record",
		Access: classfile.AccFinal | classfile.AccRecord,
		RecordComponents: []*classfile.RecordComponent{
			{Name: "x", Descriptor: "I"},
			{Name: "label", Descriptor: "La/Label;"},
		},
	}).Link()

	refs, err := Class(DefaultEnv(), cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("java/lang/Record"),
		reference.Method("a/Point", "x", "()I"),
		reference.RecordComponent("a/Point", "x", "I"),
		cls("a/Label"),
		reference.Method("a/Point", "label", "()La/Label;"),
		reference.RecordComponent("a/Point", "label", "La/Label;"),
		reference.Method("a/Point", "<init>", "(ILa/Label;)V"),
	}, refs)

	rcRefs, err := RecordComponent(DefaultEnv(), cf.RecordComponents[1], cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("a/Label"),
		reference.Method("a/Point", "label", "()La/Label;"),
		cls("a/Point"),
	}, rcRefs)
}

func TestMethod_Body(t *testing.T) {
	bootstrap := classfile.Handle{
		Kind: classfile.HandleInvokeStatic, Owner: "java/lang/invoke/LambdaMetafactory",
		Name: "metafactory", Descriptor: "(Ljava/lang/invoke/MethodHandles$Lookup;)Ljava/lang/invoke/CallSite;",
	}
	m := &classfile.Method{
		Name:       "run",
		Descriptor: "([La/Arg;I)La/Result;",
		Exceptions: []string{"a/Failure"},
		Code: &classfile.Code{
			MaxLocals: 3,
			TryCatch:  []classfile.TryCatch{{Start: "s", End: "e", Handler: "h", Type: "a/Caught"}},
			Locals:    []classfile.LocalVariable{{Name: "tmp", Descriptor: "[[La/Local;", Index: 2}},
			Insns: []classfile.Insn{
				{Op: classfile.NEW, Type: "a/Created"},
				{Op: classfile.ANEWARRAY, Type: "[La/Nested;"},
				{Op: classfile.GETFIELD, Field: reference.Field("a/Holder", "value", "I")},
				{Op: classfile.INVOKEINTERFACE, Method: reference.Method("a/Api", "call", "()V"), Interface: true},
				{Op: classfile.INVOKEDYNAMIC, Dynamic: &classfile.Dynamic{
					Name: "get", Descriptor: "()La/Supplier;", Bootstrap: bootstrap,
					Args: []classfile.Constant{
						{Kind: classfile.ConstMethodType, Descriptor: "()La/Out;"},
						{Kind: classfile.ConstHandle, Handle: &classfile.Handle{
							Kind: classfile.HandleInvokeStatic, Owner: "a/Impl", Name: "lambda$0", Descriptor: "()La/Out;",
						}},
					},
				}},
				{Op: classfile.LDC, Const: classfile.Constant{Kind: classfile.ConstClass, Descriptor: "La/Literal;"}},
				{Op: classfile.MULTIANEWARRAY, Type: "[[La/Grid;", Operand: 2},
				{Op: classfile.NOP, Frame: &classfile.Frame{Kind: classfile.FrameFull, Locals: []classfile.VerificationType{
					{Kind: classfile.VObject, Class: "a/Framed"}, {Kind: classfile.VInteger},
				}}},
				{Op: classfile.ACONST_NULL},
				{Op: classfile.ARETURN},
			},
		},
	}
	cf := (&classfile.ClassFile{Name: "a/Owner", Super: "java/lang/Object", Methods: []*classfile.Method{m}}).Link()

	env := DefaultEnv()
	env.Reflection = false
	refs, err := Method(env, m, cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("a/Arg"),
		cls("a/Result"),
		cls("a/Failure"),
		cls("a/Caught"),
		cls("a/Local"),
		cls("a/Created"),
		cls("a/Nested"),
		reference.Field("a/Holder", "value", "I"),
		reference.Method("a/Api", "call", "()V"),
		cls("a/Supplier"),
		reference.Method("java/lang/invoke/LambdaMetafactory", "metafactory", bootstrap.Descriptor),
		cls("a/Out"),
		reference.Method("a/Impl", "lambda$0", "()La/Out;"),
		cls("a/Literal"),
		cls("a/Grid"),
		cls("a/Framed"),
		cls("a/Owner"),
	}, refs)
}

func TestMethod_PrimitiveOnly(t *testing.T) {
	m := &classfile.Method{Name: "sum", Descriptor: "(IJ[D)V", Access: classfile.AccStatic}
	cf := (&classfile.ClassFile{Name: "a/Math", Methods: []*classfile.Method{m}}).Link()

	refs, err := Method(DefaultEnv(), m, cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{cls("a/Math")}, refs)
}

func TestField(t *testing.T) {
	f := &classfile.Field{
		Name:        "TYPE",
		Descriptor:  "Ljava/lang/Class;",
		Signature:   "Ljava/lang/Class<La/Target;>;",
		Value:       &classfile.Constant{Kind: classfile.ConstClass, Descriptor: "La/Constant;"},
		Annotations: classfile.Annotations{VisibleType: []classfile.Annotation{annotation("La/TypeUse;")}},
	}
	str := &classfile.Field{Name: "NAME", Descriptor: "Ljava/lang/String;", Value: &classfile.Constant{Kind: classfile.ConstString, String: "x"}}
	cf := (&classfile.ClassFile{Name: "a/Holder", Fields: []*classfile.Field{f, str}}).Link()

	refs, err := Field(DefaultEnv(), f, cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("java/lang/Class"),
		cls("a/Target"),
		cls("a/Constant"),
		cls("a/TypeUse"),
		cls("a/Holder"),
	}, refs)

	refs, err = Field(DefaultEnv(), str, cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{cls("java/lang/String"), cls("a/Holder")}, refs)
}

func TestAnnotationValues(t *testing.T) {
	nested := classfile.Annotation{Descriptor: "La/Inner;"}
	ann := classfile.Annotation{
		Descriptor: "La/Outer;",
		Elements: []classfile.Element{
			{Name: "mode", Value: classfile.AnnotationValue{Kind: classfile.ValueEnum, Descriptor: "La/Mode;", Name: "FAST"}},
			{Name: "type", Value: classfile.AnnotationValue{Kind: classfile.ValueClass, Descriptor: "[La/Typed;"}},
			{Name: "prim", Value: classfile.AnnotationValue{Kind: classfile.ValueClass, Descriptor: "I"}},
			{Name: "list", Value: classfile.AnnotationValue{Kind: classfile.ValueArray, Array: []classfile.AnnotationValue{
				{Kind: classfile.ValueAnnotation, Annotation: &nested},
				{Kind: classfile.ValueConst, Const: int64(3)},
			}}},
		},
	}
	cf := (&classfile.ClassFile{Name: "a/C", Annotations: classfile.Annotations{Visible: []classfile.Annotation{ann}}}).Link()

	refs, err := Class(DefaultEnv(), cf)
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		cls("a/Outer"), cls("a/Mode"), cls("a/Typed"), cls("a/Inner"),
	}, refs)
}

func TestCompute(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:    "a/C",
		Super:   "java/lang/Object",
		Methods: []*classfile.Method{{Name: "m", Descriptor: "()La/R;"}},
		Fields:  []*classfile.Field{{Name: "f", Descriptor: "La/F;"}},
	}).Link()

	require.NoError(t, Compute(DefaultEnv(), cf))
	assert.True(t, cf.ReferencesComputed())
	assert.Equal(t, []reference.Reference{cls("java/lang/Object")}, cf.References())
	assert.Equal(t, []reference.Reference{cls("a/R"), cls("a/C")}, cf.Methods[0].References())
	assert.Equal(t, []reference.Reference{cls("a/F"), cls("a/C")}, cf.Fields[0].References())
}

func TestCompute_HandlerError(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:      "a/C",
		Signature: "Ljava/lang/Object;La/Outer.Missing;",
		Methods:   []*classfile.Method{{Name: "m", Descriptor: "()V"}},
	}).Link()

	env := DefaultEnv()
	env.Report = diagnostic.HandlerFunc(func(d diagnostic.Diagnostic) error { return assert.AnError })

	err := Compute(env, cf)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, cf.Methods[0].ReferencesComputed(), "members are still processed")
}

func TestLibrary(t *testing.T) {
	cf := (&classfile.ClassFile{
		Name:    "lib/Api",
		Super:   "java/lang/Object",
		Methods: []*classfile.Method{{Name: "call", Descriptor: "(La/Arg;)V", Code: &classfile.Code{}}},
		Fields:  []*classfile.Field{{Name: "f", Descriptor: "I"}},
	}).Link()

	Library(cf)
	assert.Equal(t, []reference.Reference{cls("lib/Api")}, cf.Methods[0].References())
	assert.Equal(t, []reference.Reference{cls("lib/Api")}, cf.Fields[0].References())
	assert.Equal(t, []reference.Reference{
		reference.Method("lib/Api", "call", "(La/Arg;)V"),
		reference.Field("lib/Api", "f", "I"),
	}, cf.References())
}
