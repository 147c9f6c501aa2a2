package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceIdentity(t *testing.T) {
	seen := map[Reference]int{}
	seen[Method("com.x.A", "go", "()V")]++
	seen[MethodRef{Owner: "com/x/A", Name: "go", Descriptor: "()V"}]++
	seen[Field("com/x/A", "go", "I")]++
	seen[PartialField("com/x/A", "go")]++

	assert.Len(t, seen, 3)
	assert.Equal(t, 2, seen[Method("com/x/A", "go", "()V")])
	assert.Equal(t, ClassRef{Name: "com/x/A"}, Field("com/x/A", "f", "I").Class())
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		desc string
		want string
		ok   bool
	}{
		{"Ljava/lang/String;", "java/lang/String", true},
		{"[[Ljava/lang/String;", "java/lang/String", true},
		{"I", "", false},
		{"[J", "", false},
		{"V", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, ok := TypeOf(tt.desc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestFromInternalName(t *testing.T) {
	c, ok := FromInternalName("[Ljava/lang/Object;")
	require.True(t, ok)
	assert.Equal(t, "java/lang/Object", c.Name)

	c, ok = FromInternalName("com/x/A")
	require.True(t, ok)
	assert.Equal(t, "com/x/A", c.Name)

	_, ok = FromInternalName("[I")
	assert.False(t, ok)
}

func TestParseMethodDescriptor(t *testing.T) {
	md, err := ParseMethodDescriptor("(I[Ljava/lang/String;J)Ljava/util/List;")
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "[Ljava/lang/String;", "J"}, md.Params)
	assert.Equal(t, "Ljava/util/List;", md.Return)

	md, err = ParseMethodDescriptor("()V")
	require.NoError(t, err)
	assert.Empty(t, md.Params)
	assert.Equal(t, "V", md.Return)

	for _, bad := range []string{"", "I", "(I", "(Q)V", "(I)", "(I)VV", "(Ljava/lang/String)V"} {
		_, err := ParseMethodDescriptor(bad)
		assert.ErrorIs(t, err, ErrBadDescriptor, bad)
	}
}

func TestMethodTypes(t *testing.T) {
	got := MethodTypes("(ILcom/x/A;[Lcom/x/B;)[Lcom/x/C;")
	assert.Equal(t, []ClassRef{{"com/x/A"}, {"com/x/B"}, {"com/x/C"}}, got)
	assert.Empty(t, MethodTypes("(IJ)V"))
}

func TestPartialMethodMatches(t *testing.T) {
	r := PartialMethod("com/x/A", "run", "Ljava/lang/String;")
	assert.True(t, r.Matches("(Ljava/lang/String;)V"))
	assert.True(t, r.Matches("(Ljava/lang/String;)I"))
	assert.False(t, r.Matches("(Ljava/lang/String;I)V"))
	assert.Equal(t, "Ljava/lang/String;", ParamsOf("(Ljava/lang/String;)V"))
}

func TestSetPreservesOrder(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Add(Class("b")))
	assert.True(t, s.Add(Class("a")))
	assert.False(t, s.Add(Class("b")))
	assert.False(t, s.Add(nil))
	assert.Equal(t, []Reference{Class("b"), Class("a")}, s.Slice())
	assert.True(t, s.Contains(Class("a")))
}
