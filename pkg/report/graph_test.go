package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/relocate/internal/testutil"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/classpath"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/mark"
	"github.com/panbanda/relocate/pkg/reference"
)

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

// tracedRun marks a/Main, which calls into b/Lib; b/Lib and b/Helper call
// each other.
func tracedRun(t *testing.T) (*mark.Engine, *mark.Result) {
	t.Helper()
	roots := tier(t, classpath.Roots, testutil.Class{
		Name:    "a/Main",
		Methods: []testutil.Member{{Name: "main", Descriptor: "()V", Calls: []string{"b/Lib.go:()V"}}},
	})
	embeds := tier(t, classpath.Embeddable,
		testutil.Class{
			Name: "b/Lib",
			Methods: []testutil.Member{
				{Name: "go", Descriptor: "()V", Calls: []string{"b/Helper.help:()V"}},
				{Name: "back", Descriptor: "()V"},
				{Name: "unused", Descriptor: "()V"},
			},
		},
		testutil.Class{
			Name:    "b/Helper",
			Methods: []testutil.Member{{Name: "help", Descriptor: "()V", Calls: []string{"b/Lib.back:()V"}}},
		},
	)
	e := mark.New(roots, embeds, nil, mark.WithTrace(true), mark.WithHandler(&diagnostic.Collector{}))
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	return e, res
}

func TestWhyKept(t *testing.T) {
	e, _ := tracedRun(t)
	g := Build(e.Trace())
	assert.Positive(t, g.Nodes())
	assert.Positive(t, g.Edges())

	chain, err := g.WhyKept(reference.Method("b/Helper", "help", "()V"))
	require.NoError(t, err)
	assert.Equal(t, []reference.Reference{
		reference.Method("a/Main", "main", "()V"),
		reference.Method("b/Lib", "go", "()V"),
		reference.Method("b/Helper", "help", "()V"),
	}, chain)

	chain, err = g.WhyKept(reference.Method("a/Main", "main", "()V"))
	require.NoError(t, err)
	assert.Len(t, chain, 1, "a root explains itself")

	_, err = g.WhyKept(reference.Method("b/Lib", "unused", "()V"))
	assert.ErrorIs(t, err, ErrNotReached)
}

func TestWhyKept_NilTrace(t *testing.T) {
	g := Build(nil)
	assert.Zero(t, g.Nodes())
	_, err := g.WhyKept(reference.Class("a/Main"))
	assert.ErrorIs(t, err, ErrNotReached)
	assert.Empty(t, g.ClassCycles())
	assert.Empty(t, g.Hubs(3))
}

func TestClassCycles(t *testing.T) {
	e, _ := tracedRun(t)
	cycles := Build(e.Trace()).ClassCycles()
	assert.Equal(t, [][]string{{"b/Helper", "b/Lib"}}, cycles)
}

func TestHubs(t *testing.T) {
	e, _ := tracedRun(t)
	g := Build(e.Trace())

	all := g.Hubs(0)
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}

	var lib *Rank
	for i := range all {
		if all[i].Class == "b/Lib" {
			lib = &all[i]
		}
	}
	require.NotNil(t, lib)
	assert.Equal(t, 2, lib.In, "referenced by a/Main and b/Helper")

	assert.Len(t, g.Hubs(1), 1)
}

func TestMarkRender(t *testing.T) {
	res := &mark.Result{Classes: 2, Methods: 4, Errors: 1}
	diags := []diagnostic.Diagnostic{
		diagnostic.UnresolvableClass.New(diagnostic.ClassLocation("a/Main"), "x/Gone"),
	}
	m := NewMark(res, diags)
	require.Len(t, m.Diagnostics, 1)
	assert.Equal(t, "error", m.Diagnostics[0].Kind)
	assert.Equal(t, []string{"x/Gone"}, m.Diagnostics[0].Parameters)

	var text bytes.Buffer
	require.NoError(t, m.RenderText(&text, false))
	assert.Contains(t, text.String(), "Classes kept")
	assert.Contains(t, text.String(), "UNRESOLVABLE_CLASS")

	var md bytes.Buffer
	require.NoError(t, m.RenderMarkdown(&md))
	assert.Contains(t, md.String(), "## Diagnostics")

	clean := NewMark(&mark.Result{}, nil)
	md.Reset()
	require.NoError(t, clean.RenderMarkdown(&md))
	assert.NotContains(t, md.String(), "Diagnostics")
}

func TestWhyRender(t *testing.T) {
	target := reference.Field("b/Lib", "x", "I")
	w := NewWhy(target, []reference.Reference{reference.Class("a/Main"), target})
	assert.Equal(t, []Step{{Kind: "class", Symbol: "a/Main"}, {Kind: "field", Symbol: target.String()}}, w.Chain)

	var md bytes.Buffer
	require.NoError(t, w.RenderMarkdown(&md))
	assert.Contains(t, md.String(), "| 1 | field |")
}

func TestCyclesRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Cycles{}).RenderText(&buf, false))
	assert.Contains(t, buf.String(), "No cycles found.")

	buf.Reset()
	require.NoError(t, (&Cycles{Cycles: [][]string{{"a/A", "a/B"}}}).RenderMarkdown(&buf))
	assert.Contains(t, buf.String(), "### Cycle 1 (2 classes)")
	assert.Contains(t, buf.String(), "a/A\na/B")
}
