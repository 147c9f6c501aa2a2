package classpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/relocate/internal/testutil"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/reference"
)

func TestCombined_TierShadowing(t *testing.T) {
	roots := dirTier(t, Roots, testutil.Class{Name: "a/Shared", Super: "from/roots"})
	embeds := dirTier(t, Embeddable, testutil.Class{Name: "a/Shared", Super: "from/embeds"}, testutil.Class{Name: "a/Embedded"})
	refers := dirTier(t, ReferencesOnly, testutil.Class{Name: "a/Embedded", Super: "from/refers"}, testutil.Class{Name: "lib/L"})
	c := NewCombined(roots, embeds, refers)
	ctx := context.Background()

	cf, err := c.FindClass(ctx, "a/Shared")
	require.NoError(t, err)
	assert.Equal(t, "from/roots", cf.Super)

	cf, err = c.FindClass(ctx, "a/Embedded")
	require.NoError(t, err)
	assert.Equal(t, "", cf.Super)

	cf, err = c.FindClass(ctx, "lib/L")
	require.NoError(t, err)
	require.NotNil(t, cf)

	cf, err = c.FindClass(ctx, "nowhere/X")
	require.NoError(t, err)
	assert.Nil(t, cf)
}

func TestCombined_FindMethodWalk(t *testing.T) {
	tier := dirTier(t, Embeddable,
		object,
		testutil.Class{Name: "a/I", Access: []string{"interface"}, Methods: []testutil.Member{{Name: "run", Descriptor: "()V"}, {Name: "defaulted", Descriptor: "()V"}}},
		testutil.Class{Name: "a/Base", Super: "java/lang/Object", Methods: []testutil.Member{{Name: "run", Descriptor: "()V"}, {Name: "base", Descriptor: "()V"}}},
		testutil.Class{Name: "a/Impl", Super: "a/Base", Interfaces: []string{"a/I", "a/Gone"}},
	)
	c := NewCombined(tier)
	ctx := context.Background()

	tests := []struct {
		name  string
		ref   reference.MethodRef
		owner string
	}{
		{"superclass before interfaces", reference.Method("a/Impl", "run", "()V"), "a/Base"},
		{"interface after superclass chain", reference.Method("a/Impl", "defaulted", "()V"), "a/I"},
		{"superclass chain", reference.Method("a/Impl", "base", "()V"), "a/Base"},
		{"object at the top", reference.Method("a/Impl", "hashCode", "()I"), "java/lang/Object"},
		{"missing", reference.Method("a/Impl", "nope", "()V"), ""},
		{"descriptor must match", reference.Method("a/Impl", "run", "()I"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := c.FindMethod(ctx, tt.ref)
			require.NoError(t, err)
			if tt.owner == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.owner, m.Owner)
		})
	}
}

func TestCombined_InterfacesOfSuperclasses(t *testing.T) {
	c := NewCombined(dirTier(t, Embeddable,
		testutil.Class{Name: "a/K", Access: []string{"interface"}, Methods: []testutil.Member{{Name: "k", Descriptor: "()V"}}},
		testutil.Class{Name: "a/J", Access: []string{"interface"}, Interfaces: []string{"a/K"}, Methods: []testutil.Member{{Name: "j", Descriptor: "()V"}}},
		testutil.Class{Name: "a/L", Access: []string{"interface"}, Methods: []testutil.Member{{Name: "k", Descriptor: "()V"}}},
		testutil.Class{Name: "a/Base", Interfaces: []string{"a/J"}},
		testutil.Class{Name: "a/Impl", Super: "a/Base", Interfaces: []string{"a/L"}},
	))
	ctx := context.Background()

	m, err := c.FindMethod(ctx, reference.Method("a/Impl", "j", "()V"))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "a/J", m.Owner)

	// a/L is a direct interface of a/Impl, a/K only a super-interface of a/J.
	m, err = c.FindMethod(ctx, reference.Method("a/Impl", "k", "()V"))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "a/L", m.Owner)
}

func TestCombined_ArrayOwner(t *testing.T) {
	ctx := context.Background()
	c := NewCombined(dirTier(t, ReferencesOnly, object))

	m, err := c.FindMethod(ctx, reference.Method("[Ljava/lang/String;", "clone", "()[Ljava/lang/Object;"))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "java/lang/Object", m.Owner)
	assert.Equal(t, "clone", m.Name)

	m, err = c.FindMethod(ctx, reference.Method("[I", "hashCode", "()I"))
	require.NoError(t, err)
	require.NotNil(t, m)

	m, err = c.FindMethod(ctx, reference.Method("[I", "size", "()I"))
	require.NoError(t, err)
	assert.Nil(t, m)

	bare := NewCombined(dirTier(t, ReferencesOnly))
	m, err = bare.FindMethod(ctx, reference.Method("[I", "clone", "()Ljava/lang/Object;"))
	assert.ErrorIs(t, err, ErrNoObject)
	assert.Nil(t, m)
}

func TestCombined_SignaturePolymorphic(t *testing.T) {
	c := NewCombined(dirTier(t, ReferencesOnly, testutil.Class{
		Name: "java/lang/invoke/MethodHandle",
		Methods: []testutil.Member{
			{Name: "invokeExact", Descriptor: "([Ljava/lang/Object;)Ljava/lang/Object;", Access: []string{"public", "final", "native", "varargs"}},
			{Name: "bindTo", Descriptor: "(Ljava/lang/Object;)Ljava/lang/invoke/MethodHandle;", Access: []string{"public"}},
		},
	}))
	ctx := context.Background()

	m, err := c.FindMethod(ctx, reference.Method("java/lang/invoke/MethodHandle", "invokeExact", "(Ljava/lang/String;I)V"))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "([Ljava/lang/Object;)Ljava/lang/Object;", m.Descriptor)

	m, err = c.FindMethod(ctx, reference.Method("java/lang/invoke/MethodHandle", "bindTo", "(I)V"))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCombined_FindFieldsDiamond(t *testing.T) {
	// D extends B implements I; B and I both declare "value" with different types.
	c := NewCombined(dirTier(t, Embeddable,
		testutil.Class{Name: "a/I", Access: []string{"interface"}, Fields: []testutil.Member{{Name: "value", Descriptor: "I", Access: []string{"public", "static", "final"}}}},
		testutil.Class{Name: "a/B", Fields: []testutil.Member{{Name: "value", Descriptor: "J"}}},
		testutil.Class{Name: "a/D", Super: "a/B", Interfaces: []string{"a/I"}},
	))
	ctx := context.Background()

	fields, err := c.FindFields(ctx, reference.PartialField("a/D", "value"))
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "a/B", fields[0].Owner)
	assert.Equal(t, "a/I", fields[1].Owner)

	fields, err = c.FindFields(ctx, reference.Field("a/D", "value", "J"))
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "a/B", fields[0].Owner)

	fields, err = c.FindFields(ctx, reference.Field("a/D", "value", "Z"))
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestCombined_FindMethods(t *testing.T) {
	c := NewCombined(dirTier(t, Embeddable,
		testutil.Class{Name: "a/B", Methods: []testutil.Member{
			{Name: "put", Descriptor: "(I)V"},
			{Name: "put", Descriptor: "(Ljava/lang/String;)V"},
		}},
		testutil.Class{Name: "a/C", Super: "a/B", Methods: []testutil.Member{
			{Name: "put", Descriptor: "(I)Z"},
		}},
	))
	ctx := context.Background()

	ms, err := c.FindMethods(ctx, reference.TypelessMethod("a/C", "put"))
	require.NoError(t, err)
	assert.Len(t, ms, 3)

	ms, err = c.FindMethods(ctx, reference.PartialMethod("a/C", "put", "I"))
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "a/C", ms[0].Owner)
	assert.Equal(t, "a/B", ms[1].Owner)

	ms, err = c.FindMethods(ctx, reference.Method("a/C", "put", "(Ljava/lang/String;)V"))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "a/B", ms[0].Owner)
}

func TestCombined_FindRecordComponent(t *testing.T) {
	tier := New(Embeddable, yamlDecoder(t), nil)
	cf := (&classfile.ClassFile{
		Name:             "a/Point",
		Access:           classfile.AccRecord,
		RecordComponents: []*classfile.RecordComponent{{Name: "x", Descriptor: "I"}},
	}).Link()
	tier.classes[cf.Name] = cf
	c := NewCombined(tier)

	rc, err := c.FindRecordComponent(context.Background(), reference.RecordComponent("a/Point", "x", "I"))
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, "a/Point", rc.Owner)

	rc, err = c.FindRecordComponent(context.Background(), reference.RecordComponent("a/Point", "y", "I"))
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestCombined_CyclicHierarchyTerminates(t *testing.T) {
	c := NewCombined(dirTier(t, Embeddable,
		testutil.Class{Name: "a/X", Super: "a/Y"},
		testutil.Class{Name: "a/Y", Super: "a/X"},
	))
	m, err := c.FindMethod(context.Background(), reference.Method("a/X", "m", "()V"))
	require.NoError(t, err)
	assert.Nil(t, m)
}
