package diagnostic

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{UnresolvableClass.New(NoLocation, "com/x/A"), "the class 'com/x/A' not found"},
		{UnresolvableMethod.New(NoLocation, "com/x/A", "go", "()V"), "the method 'com/x/A.go:()V' not found"},
		{UnresolvableField.New(NoLocation, "com/x/A", "f", nil), "the field 'com/x/A.f' not found"},
		{UnresolvableInnerClass.New(NoLocation, "com/x/A", "B"), "the internal name of 'com/x/A.B' not found."},
		{UnresolvableReflectionClass.New(NoLocation), "Unresolvable reflection call for class found."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.d.Message())
	}
}

func TestNewPanicsOnArity(t *testing.T) {
	assert.Panics(t, func() { UnresolvableClass.New(NoLocation) })
}

func TestDiagnosticJSON(t *testing.T) {
	d := UnresolvableMethod.New(MethodLocation("com/x/C", "run", "()V"), "com/x/Missing", "go", "()V")
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Error", got["kind"])
	assert.Equal(t, "UNRESOLVABLE_METHOD", got["id"])
	assert.Equal(t, map[string]any{
		"class":  "com/x/C",
		"member": map[string]any{"name": "run", "descriptor": "()V"},
	}, got["location"])
	assert.Equal(t, []any{"com/x/Missing", "go", "()V"}, got["parameters"])

	data, err = json.Marshal(UnresolvableClass.New(ClassLocation("com/x/C"), "com/x/D"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"location":{"class":"com/x/C"}`)
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "at class a/B", ClassLocation("a/B").String())
	assert.Equal(t, "at field a/B.f:I", FieldLocation("a/B", "f", "I").String())
	assert.Equal(t, "at local variable 2(x) in method a/B.m:()V", LocalLocation("a/B", "m", "()V", 2, "x").String())
	assert.Equal(t, "", NoLocation.String())
	assert.Equal(t, "a", ClassLocation("a/B").Package())
	assert.Equal(t, "", ClassLocation("B").Package())
}

func TestCounterCountsAndSuppresses(t *testing.T) {
	pattern := InClass("com/x/C")
	s := NewSuppressions(Rule{
		Location: &pattern,
		ID:       UnresolvableMethod.ID,
		Values:   []ValuePattern{StringValue("com/x/Missing"), Any, Any},
	})
	var collected Collector
	c := NewCounter(&collected, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Handle(UnresolvableMethod.New(ClassLocation("com/x/C"), "com/x/Missing", "go", "()V")))
			assert.NoError(t, c.Handle(UnresolvableMethod.New(ClassLocation("com/x/C"), "com/x/Other", "go", "()V")))
			assert.NoError(t, c.Handle(UnresolvableInnerClass.New(ClassLocation("com/x/C"), "a", "b")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.Errors())
	assert.Equal(t, 50, c.Warnings())
	assert.Equal(t, 50, c.Suppressed())
	assert.Len(t, collected.Diagnostics(), 100)
}

func TestFailFast(t *testing.T) {
	c := NewCounter(FailFast, nil)
	assert.NoError(t, c.Handle(UnresolvableReflectionField.New(NoLocation)))

	err := c.Handle(UnresolvableClass.New(NoLocation, "a/B"))
	var abort *AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, UnresolvableClass, abort.Diagnostic.Type)
	assert.Equal(t, 1, c.Errors())
}

func TestTeeStopsAtFirstError(t *testing.T) {
	var first, second Collector
	h := Tee(&first, FailFast, &second)
	assert.Error(t, h.Handle(UnresolvableClass.New(NoLocation, "a/B")))
	assert.Len(t, first.Diagnostics(), 1)
	assert.Empty(t, second.Diagnostics())
}

func TestLocationCompare(t *testing.T) {
	class := ClassLocation("a/B")
	method := MethodLocation("a/B", "run", "()V")
	other := ClassLocation("a/C")

	assert.Zero(t, class.Compare(ClassLocation("a/B")))
	assert.Negative(t, class.Compare(method))
	assert.Negative(t, method.Compare(other))
	assert.Positive(t, MethodLocation("a/B", "z", "()V").Compare(method))
}
