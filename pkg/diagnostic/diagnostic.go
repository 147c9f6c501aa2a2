// Package diagnostic holds the typed diagnostic catalog, handlers and
// suppression rules used while marking.
package diagnostic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the severity of a diagnostic.
type Kind uint8

const (
	Error Kind = iota
	Warning
)

func (k Kind) String() string {
	if k == Warning {
		return "Warning"
	}
	return "Error"
}

// Type describes one entry of the diagnostic catalog.
type Type struct {
	ID     string
	Kind   Kind
	Arity  int
	render func(params []any) string
}

// New creates a diagnostic of this type. Params must match Arity; an absent
// optional parameter is passed as nil.
func (t *Type) New(loc Location, params ...any) Diagnostic {
	if len(params) != t.Arity {
		panic(fmt.Sprintf("diagnostic %s: got %d params, want %d", t.ID, len(params), t.Arity))
	}
	return Diagnostic{Type: t, Location: loc, Params: params}
}

func optional(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return ":" + s
	}
	return ""
}

var (
	UnresolvableInnerClass = &Type{
		ID: "UNRESOLVABLE_INNER_CLASS", Kind: Warning, Arity: 2,
		render: func(p []any) string { return fmt.Sprintf("the internal name of '%v.%v' not found.", p[0], p[1]) },
	}
	UnresolvableReflectionClass = &Type{
		ID: "UNRESOLVABLE_REFLECTION_CLASS", Kind: Warning,
		render: func([]any) string { return "Unresolvable reflection call for class found." },
	}
	UnresolvableReflectionField = &Type{
		ID: "UNRESOLVABLE_REFLECTION_FIELD", Kind: Warning,
		render: func([]any) string { return "Unresolvable reflection call for field found." },
	}
	UnresolvableReflectionMethod = &Type{
		ID: "UNRESOLVABLE_REFLECTION_METHOD", Kind: Warning,
		render: func([]any) string { return "Unresolvable reflection call for method found." },
	}
	UnresolvableClass = &Type{
		ID: "UNRESOLVABLE_CLASS", Kind: Error, Arity: 1,
		render: func(p []any) string { return fmt.Sprintf("the class '%v' not found", p[0]) },
	}
	UnresolvableField = &Type{
		ID: "UNRESOLVABLE_FIELD", Kind: Error, Arity: 3,
		render: func(p []any) string { return fmt.Sprintf("the field '%v.%v%s' not found", p[0], p[1], optional(p[2])) },
	}
	UnresolvableMethod = &Type{
		ID: "UNRESOLVABLE_METHOD", Kind: Error, Arity: 3,
		render: func(p []any) string { return fmt.Sprintf("the method '%v.%v%s' not found", p[0], p[1], optional(p[2])) },
	}
)

// Catalog lists every known diagnostic type.
var Catalog = []*Type{
	UnresolvableInnerClass,
	UnresolvableReflectionClass,
	UnresolvableReflectionField,
	UnresolvableReflectionMethod,
	UnresolvableClass,
	UnresolvableField,
	UnresolvableMethod,
}

// Lookup finds a catalog entry by id.
func Lookup(id string) (*Type, bool) {
	for _, t := range Catalog {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Diagnostic is a single reported problem.
type Diagnostic struct {
	Type     *Type
	Location Location
	Params   []any
}

// Kind returns the severity.
func (d Diagnostic) Kind() Kind { return d.Type.Kind }

// Message renders the human readable message without location.
func (d Diagnostic) Message() string {
	if d.Type.render == nil {
		return d.Type.ID
	}
	return d.Type.render(d.Params)
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(d.Type.Kind.String()))
	b.WriteString(": ")
	b.WriteString(d.Message())
	if loc := d.Location.String(); loc != "" {
		b.WriteString(" ")
		b.WriteString(loc)
	}
	return b.String()
}

// Key is a comparable identity used to compare diagnostic multisets.
func (d Diagnostic) Key() string {
	return fmt.Sprintf("%s|%v|%v", d.Type.ID, d.Location, d.Params)
}

type diagnosticJSON struct {
	Kind       string   `json:"kind"`
	ID         string   `json:"id"`
	Location   Location `json:"location"`
	Parameters []any    `json:"parameters"`
	Message    string   `json:"message"`
}

// MarshalJSON renders the stable diagnostic shape.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	params := d.Params
	if params == nil {
		params = []any{}
	}
	return json.Marshal(diagnosticJSON{
		Kind:       d.Type.Kind.String(),
		ID:         d.Type.ID,
		Location:   d.Location,
		Parameters: params,
		Message:    d.Message(),
	})
}
