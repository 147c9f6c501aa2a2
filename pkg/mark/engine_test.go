package mark

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/relocate/internal/testutil"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/classpath"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/reference"
)

var object = testutil.Class{
	Name: "java/lang/Object",
	Methods: []testutil.Member{
		{Name: "<init>", Descriptor: "()V", Access: []string{"public"}},
		{Name: "clone", Descriptor: "()Ljava/lang/Object;", Access: []string{"protected", "native"}},
	},
}

func tier(t *testing.T, kind classpath.Kind, classes ...testutil.Class) *classpath.ClassPath {
	t.Helper()
	root := t.TempDir()
	testutil.WriteClasses(t, root, classes...)
	d, err := classfile.NewYAMLDecoder()
	require.NoError(t, err)
	cp := classpath.New(kind, d, []classpath.Container{classpath.NewDirectory(root)})
	require.NoError(t, cp.Init(context.Background()))
	return cp
}

type fixture struct {
	roots, embeds, refers []testutil.Class
}

type outcome struct {
	engine   *Engine
	result   *Result
	diags    []diagnostic.Diagnostic
	tiers    [3]*classpath.ClassPath
	included []string
}

func (f fixture) run(t *testing.T, opts ...Option) outcome {
	t.Helper()
	var o outcome
	o.tiers = [3]*classpath.ClassPath{
		tier(t, classpath.Roots, f.roots...),
		tier(t, classpath.Embeddable, f.embeds...),
		tier(t, classpath.ReferencesOnly, f.refers...),
	}
	var collected diagnostic.Collector
	opts = append([]Option{WithHandler(&collected)}, opts...)
	o.engine = New(o.tiers[0], o.tiers[1], o.tiers[2], opts...)

	res, err := o.engine.Run(context.Background())
	require.NoError(t, err)
	o.result = res
	o.diags = collected.Diagnostics()
	o.included = includedSymbols(o.tiers[:]...)
	return o
}

// includedSymbols lists every included class and member, sorted, with the
// tier it came from.
func includedSymbols(tiers ...*classpath.ClassPath) []string {
	var out []string
	for _, cp := range tiers {
		for _, cf := range cp.Classes() {
			if cf.Included() {
				out = append(out, cp.Kind().String()+" "+cf.Name)
			}
			for _, m := range cf.Methods {
				if m.Included() {
					out = append(out, cp.Kind().String()+" "+m.Ref().String())
				}
			}
			for _, f := range cf.Fields {
				if f.Included() {
					out = append(out, cp.Kind().String()+" "+f.Ref().String())
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func keys(diags []diagnostic.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Key()
	}
	return out
}

func TestRun_UnresolvableMethod(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "com/x/C",
			Methods: []testutil.Member{{Name: "run", Descriptor: "()V", Calls: []string{"com/x/Missing.go:()V"}}},
		}},
	}.run(t)

	require.Len(t, o.diags, 1)
	d := o.diags[0]
	assert.Equal(t, diagnostic.UnresolvableMethod, d.Type)
	assert.Equal(t, "com/x/C", d.Location.Class)
	assert.Equal(t, []any{"com/x/Missing", "go", "()V"}, d.Params)

	assert.Contains(t, o.included, "roots com/x/C")
	assert.Contains(t, o.included, "roots com/x/C.run:()V")
	assert.Equal(t, 1, o.result.Errors)
	assert.ErrorIs(t, o.result.Err(), ErrErrorsFound)
}

func TestRun_CycleDequeuedOnce(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "a/A",
			Methods: []testutil.Member{{Name: "m", Descriptor: "()V", Calls: []string{"a/B.n:()V"}}},
		}},
		embeds: []testutil.Class{{
			Name:    "a/B",
			Methods: []testutil.Member{{Name: "n", Descriptor: "()V", Calls: []string{"a/A.m:()V"}}},
		}},
	}.run(t)

	assert.Empty(t, o.diags)
	// a/A, a/A.m, a/B.n, a/B
	assert.Equal(t, 4, o.result.Dequeued)
	assert.Equal(t, 4, o.result.References)
	assert.Equal(t, 2, o.result.Classes)
	assert.Equal(t, 2, o.result.Methods)
	assert.Equal(t, []string{
		"embeds a/B", "embeds a/B.n:()V",
		"roots a/A", "roots a/A.m:()V",
	}, o.included)
}

func TestRun_SuperclassMethodWinsOverInterface(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "app/Main",
			Methods: []testutil.Member{{Name: "main", Descriptor: "()V", Access: []string{"public", "static"}, Calls: []string{"a/Impl.run:()V"}}},
		}},
		embeds: []testutil.Class{
			{Name: "a/I", Access: []string{"interface"}, Methods: []testutil.Member{{Name: "run", Descriptor: "()V"}}},
			{Name: "a/Base", Super: "java/lang/Object", Methods: []testutil.Member{{Name: "run", Descriptor: "()V"}}},
			{Name: "a/Impl", Super: "a/Base", Interfaces: []string{"a/I"}},
		},
		refers: []testutil.Class{object},
	}.run(t, WithOverrideLinking(false))

	assert.Empty(t, o.diags)
	assert.Contains(t, o.included, "embeds a/Base.run:()V")
	assert.NotContains(t, o.included, "embeds a/I.run:()V")
}

func TestRun_ClassMarkDoesNotMarkMembers(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "a/Main",
			Methods: []testutil.Member{{Name: "main", Descriptor: "()V", News: []string{"a/Helper"}}},
		}},
		embeds: []testutil.Class{{
			Name:    "a/Helper",
			Methods: []testutil.Member{{Name: "unused", Descriptor: "()V"}},
			Fields:  []testutil.Member{{Name: "unused", Descriptor: "I"}},
		}},
	}.run(t)

	assert.Contains(t, o.included, "embeds a/Helper")
	assert.NotContains(t, o.included, "embeds a/Helper.unused:()V")
	assert.NotContains(t, o.included, "embeds a/Helper.unused:I")
}

// graph builds a fixture where each class calls the next two and a few
// classes call the same missing method from different places.
func graph(n int) fixture {
	var f fixture
	for i := 0; i < n; i++ {
		calls := []string{
			fmt.Sprintf("g/C%d.m:()V", (i+1)%n),
			fmt.Sprintf("g/C%d.m:()V", (i*7+3)%n),
		}
		if i%5 == 0 {
			calls = append(calls, "g/Missing.go:()V")
		}
		if i%7 == 0 {
			calls = append(calls, fmt.Sprintf("g/Gone%d.go:()V", i))
		}
		c := testutil.Class{
			Name:    fmt.Sprintf("g/C%d", i),
			Methods: []testutil.Member{{Name: "m", Descriptor: "()V", Calls: calls}, {Name: "dead", Descriptor: "()V"}},
			Fields:  []testutil.Member{{Name: "f", Descriptor: fmt.Sprintf("Lg/C%d;", (i+2)%n)}},
		}
		if i < 3 {
			f.roots = append(f.roots, c)
		} else {
			f.embeds = append(f.embeds, c)
		}
	}
	return f
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	f := graph(40)
	base := f.run(t, WithWorkers(1))
	require.NotEmpty(t, base.diags)

	for _, workers := range []int{2, 4, 16} {
		o := f.run(t, WithWorkers(workers))
		assert.Equal(t, base.included, o.included, "workers=%d", workers)
		assert.Equal(t, keys(base.diags), keys(o.diags), "workers=%d", workers)
		assert.Equal(t, base.result.Dequeued, o.result.Dequeued, "workers=%d", workers)
	}

	// g/Missing.go is reached from several classes; the smallest one is reported
	var missing []diagnostic.Diagnostic
	for _, d := range base.diags {
		if d.Params[0] == "g/Missing" {
			missing = append(missing, d)
		}
	}
	require.Len(t, missing, 1)
	assert.Equal(t, "g/C0", missing[0].Location.Class)
}

func TestRun_Idempotent(t *testing.T) {
	f := graph(12)
	o := f.run(t)
	before := len(o.diags)
	included := o.included

	res, err := o.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Dequeued)
	assert.Equal(t, o.result.References, res.References)
	assert.Equal(t, o.result.Errors, res.Errors)
	assert.Equal(t, included, includedSymbols(o.tiers[:]...))
	assert.Equal(t, before, o.result.Errors+o.result.Warnings)
}

func TestRun_TierShadowing(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{
			{Name: "a/X", Methods: []testutil.Member{{Name: "m", Descriptor: "()V", Calls: []string{"lib/L.f:()V"}}}},
		},
		refers: []testutil.Class{
			{Name: "a/X", Super: "from/refers"},
			{Name: "lib/L", Methods: []testutil.Member{{Name: "f", Descriptor: "()V"}, {Name: "g", Descriptor: "()V"}}},
		},
	}.run(t)

	assert.Empty(t, o.diags)
	assert.Contains(t, o.included, "roots a/X")
	assert.NotContains(t, o.included, "refers a/X")
	assert.Contains(t, o.included, "refers lib/L")
	assert.Contains(t, o.included, "refers lib/L.f:()V")
	// library classes reference all of their members
	assert.Contains(t, o.included, "refers lib/L.g:()V")

	for _, cf := range o.tiers[2].Classes() {
		assert.NotEqual(t, "a/X", cf.Name, "the refers copy must never load")
	}
}

func TestRun_NullDescriptorFieldDiamond(t *testing.T) {
	reflective := testutil.Class{Name: "a/Main"}
	root := t.TempDir()
	testutil.WriteClasses(t, root,
		testutil.Class{Name: "a/I1", Access: []string{"interface"}, Fields: []testutil.Member{{Name: "value", Descriptor: "I", Access: []string{"public", "static", "final"}}}},
		testutil.Class{Name: "a/I2", Access: []string{"interface"}, Fields: []testutil.Member{{Name: "value", Descriptor: "J", Access: []string{"public", "static", "final"}}}},
		testutil.Class{Name: "a/D", Interfaces: []string{"a/I1", "a/I2"}},
	)
	testutil.WriteFile(t, filepath.Join(root, reflective.Entry()), `
name: a/Main
methods:
  - name: probe
    descriptor: ()V
    access: [static]
    code:
      max_stack: 2
      insns:
        - {op: ldc, const: {class: a/D}}
        - {op: ldc, const: {string: value}}
        - {op: invokevirtual, method: "java/lang/Class.getField:(Ljava/lang/String;)Ljava/lang/reflect/Field;"}
        - {op: pop}
        - {op: return}
`)
	d, err := classfile.NewYAMLDecoder()
	require.NoError(t, err)
	roots := classpath.New(classpath.Roots, d, []classpath.Container{classpath.NewDirectory(root)})
	require.NoError(t, roots.Init(context.Background()))
	refers := tier(t, classpath.ReferencesOnly, testutil.Class{
		Name:    "java/lang/Class",
		Methods: []testutil.Member{{Name: "getField", Descriptor: "(Ljava/lang/String;)Ljava/lang/reflect/Field;"}},
	})

	var collected diagnostic.Collector
	e := New(roots, nil, refers, WithHandler(&collected), WithOverrideLinking(false))
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	// Roots fields are seeded anyway; check the reflective lookup found both.
	// Without a trace only queueing interns a reference.
	_, ok := e.table.Lookup(reference.PartialField("a/D", "value"))
	require.True(t, ok)

	var ids []string
	for _, dg := range collected.Diagnostics() {
		ids = append(ids, dg.Type.ID)
	}
	assert.NotContains(t, ids, diagnostic.UnresolvableField.ID)
}

func TestRun_ArrayCloneFallsBackToObject(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "a/C",
			Methods: []testutil.Member{{Name: "copy", Descriptor: "()V", Calls: []string{"[Ljava/lang/String;.clone:()[Ljava/lang/Object;"}}},
		}},
		refers: []testutil.Class{object},
	}.run(t)

	assert.Empty(t, o.diags)
	assert.Contains(t, o.included, "refers java/lang/Object.clone:()Ljava/lang/Object;")
}

func TestRun_ArrayWithoutObjectIsDropped(t *testing.T) {
	o := fixture{
		roots: []testutil.Class{{
			Name:    "a/C",
			Methods: []testutil.Member{{Name: "copy", Descriptor: "()V", Calls: []string{"[I.clone:()Ljava/lang/Object;"}}},
		}},
	}.run(t)
	assert.Empty(t, o.diags)
}

func TestRun_Suppression(t *testing.T) {
	f := fixture{
		roots: []testutil.Class{
			{Name: "com/x/C", Methods: []testutil.Member{{Name: "run", Descriptor: "()V", Calls: []string{"com/x/Missing.go:()V", "com/x/Other.go:()V"}}}},
			{Name: "com/x/D", Methods: []testutil.Member{{Name: "run", Descriptor: "()V", Calls: []string{"com/x/Missing.stop:()V"}}}},
		},
	}
	loc := diagnostic.InClass("com/x/C")
	rule := diagnostic.Rule{
		Location: &loc,
		ID:       "UNRESOLVABLE_METHOD",
		Values:   []diagnostic.ValuePattern{diagnostic.StringValue("com/x/Missing"), diagnostic.Any, diagnostic.Any},
	}

	plain := f.run(t)
	suppressed := f.run(t, WithSuppressions(diagnostic.NewSuppressions(rule)))

	require.Len(t, plain.diags, 3)
	require.Len(t, suppressed.diags, 2)
	assert.Equal(t, 1, suppressed.result.Suppressed)
	for _, d := range suppressed.diags {
		assert.False(t, d.Location.Class == "com/x/C" && d.Params[0] == "com/x/Missing")
	}
}

func TestRun_FailFast(t *testing.T) {
	roots := tier(t, classpath.Roots, testutil.Class{
		Name:    "a/C",
		Methods: []testutil.Member{{Name: "run", Descriptor: "()V", Calls: []string{"a/Missing.go:()V"}}},
	})
	e := New(roots, nil, nil, WithHandler(diagnostic.FailFast))

	_, err := e.Run(context.Background())
	var abort *diagnostic.AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, diagnostic.UnresolvableMethod, abort.Diagnostic.Type)
}

func overrideFixture() fixture {
	return fixture{
		roots: []testutil.Class{{
			Name: "a/Main",
			Methods: []testutil.Member{{
				Name: "main", Descriptor: "()V",
				News:  []string{"a/Impl"},
				Calls: []string{"lib/Api.run:()V"},
			}},
		}},
		embeds: []testutil.Class{{
			Name:       "a/Impl",
			Interfaces: []string{"lib/Api"},
			Methods: []testutil.Member{
				{Name: "run", Descriptor: "()V", Access: []string{"public"}},
				{Name: "helper", Descriptor: "()V", Access: []string{"private"}},
			},
		}},
		refers: []testutil.Class{{
			Name:    "lib/Api",
			Access:  []string{"public", "interface", "abstract"},
			Methods: []testutil.Member{{Name: "run", Descriptor: "()V", Access: []string{"public", "abstract"}}},
		}},
	}
}

func TestRun_OverrideLinking(t *testing.T) {
	o := overrideFixture().run(t)
	assert.Empty(t, o.diags)
	assert.Contains(t, o.included, "refers lib/Api.run:()V")
	assert.Contains(t, o.included, "embeds a/Impl.run:()V")
	assert.NotContains(t, o.included, "embeds a/Impl.helper:()V")

	off := overrideFixture().run(t, WithOverrideLinking(false))
	assert.NotContains(t, off.included, "embeds a/Impl.run:()V")
}

func TestRun_Trace(t *testing.T) {
	o := overrideFixture().run(t, WithTrace(true))
	tr := o.engine.Trace()
	require.NotNil(t, tr)

	main, ok := tr.Lookup(reference.Method("a/Main", "main", "()V"))
	require.True(t, ok)
	assert.Contains(t, tr.Roots(), main)

	impl, ok := tr.Lookup(reference.Method("a/Impl", "run", "()V"))
	require.True(t, ok)
	api, ok := tr.Lookup(reference.Method("lib/Api", "run", "()V"))
	require.True(t, ok)
	assert.Contains(t, tr.Edges(), Edge{From: main, To: api})
	assert.Contains(t, tr.Edges(), Edge{From: api, To: impl})
}

func TestRun_ProgressAndCancel(t *testing.T) {
	f := graph(10)
	var ticks int
	o := f.run(t, WithWorkers(1), WithProgress(func() { ticks++ }))
	assert.Equal(t, o.result.Dequeued, ticks)

	roots := tier(t, classpath.Roots, f.roots...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(roots, nil, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
