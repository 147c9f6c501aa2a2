package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, walk func(string, Visit) error, sig string) []ClassType {
	t.Helper()
	var out []ClassType
	require.NoError(t, walk(sig, func(ct ClassType) { out = append(out, ct) }))
	return out
}

func TestClassSignature(t *testing.T) {
	got := collect(t, Class, "<T::Ljava/lang/Comparable<TT;>;>Ljava/util/AbstractList<TT;>;Ljava/util/RandomAccess;")
	assert.Equal(t, []ClassType{
		{Name: "java/lang/Comparable"},
		{Name: "java/util/AbstractList"},
		{Name: "java/util/RandomAccess"},
	}, got)
}

func TestMethodSignature(t *testing.T) {
	got := collect(t, Method, "<E:Ljava/lang/Exception;>(Ljava/util/Map<Ljava/lang/String;[I>;TE;J)[Ljava/util/List<*>;^TE;^Ljava/io/IOException;")
	assert.Equal(t, []ClassType{
		{Name: "java/lang/Exception"},
		{Name: "java/lang/String"},
		{Name: "java/util/Map"},
		{Name: "java/util/List"},
		{Name: "java/io/IOException"},
	}, got)

	assert.Empty(t, collect(t, Method, "()V"))
}

func TestInnerClassSuffix(t *testing.T) {
	got := collect(t, Type, "Lcom/x/Outer<Ljava/lang/String;>.Inner<+Lcom/x/Arg;>.Deeper;")
	assert.Equal(t, []ClassType{
		{Name: "java/lang/String"},
		{Name: "com/x/Arg"},
		{Name: "com/x/Outer", Inner: []string{"Inner", "Deeper"}},
	}, got)
}

func TestTypeVariableAndArray(t *testing.T) {
	assert.Empty(t, collect(t, Type, "TT;"))
	assert.Equal(t, []ClassType{{Name: "java/lang/Object"}}, collect(t, Type, "[[Ljava/lang/Object;"))
}

func TestMalformed(t *testing.T) {
	for _, sig := range []string{"", "Ljava/lang/Object", "I", "Lx;junk", "Lx<;"} {
		err := Type(sig, func(ClassType) {})
		assert.ErrorIs(t, err, ErrMalformed, sig)
	}
	assert.ErrorIs(t, Method("(I", func(ClassType) {}), ErrMalformed)
	assert.ErrorIs(t, Method("(I)V^", func(ClassType) {}), ErrMalformed)
	assert.ErrorIs(t, Class("<T:>", func(ClassType) {}), ErrMalformed)
}
