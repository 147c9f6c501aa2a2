package diagnostic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// PatternKind selects what a LocationPattern matches.
type PatternKind uint8

const (
	InPackageKind PatternKind = iota + 1
	InClassKind
	InMethodKind
	InMethodWithTypeKind
	InFieldKind
	InFieldWithTypeKind
)

// LocationPattern matches diagnostic locations. It is comparable.
type LocationPattern struct {
	Kind       PatternKind
	Owner      string
	Name       string
	Descriptor string
}

// InPackage matches every location inside the package or its sub-packages.
// The empty name is the default package and matches only its own classes.
func InPackage(name string) LocationPattern {
	return LocationPattern{Kind: InPackageKind, Owner: internal(name)}
}

// InClass matches the class and every member location in it.
func InClass(name string) LocationPattern {
	return LocationPattern{Kind: InClassKind, Owner: internal(name)}
}

func InMethod(owner, name string) LocationPattern {
	return LocationPattern{Kind: InMethodKind, Owner: internal(owner), Name: name}
}

func InMethodWithType(owner, name, desc string) LocationPattern {
	return LocationPattern{Kind: InMethodWithTypeKind, Owner: internal(owner), Name: name, Descriptor: desc}
}

func InField(owner, name string) LocationPattern {
	return LocationPattern{Kind: InFieldKind, Owner: internal(owner), Name: name}
}

func InFieldWithType(owner, name, desc string) LocationPattern {
	return LocationPattern{Kind: InFieldWithTypeKind, Owner: internal(owner), Name: name, Descriptor: desc}
}

func internal(name string) string { return strings.ReplaceAll(name, ".", "/") }

func (p LocationPattern) String() string {
	switch p.Kind {
	case InPackageKind:
		return "InPackage(" + p.Owner + ")"
	case InClassKind:
		return "InClass(" + p.Owner + ")"
	case InMethodKind:
		return "InMethod(" + p.Owner + "." + p.Name + ")"
	case InMethodWithTypeKind:
		return "InMethod(" + p.Owner + "." + p.Name + ":" + p.Descriptor + ")"
	case InFieldKind:
		return "InField(" + p.Owner + "." + p.Name + ")"
	case InFieldWithTypeKind:
		return "InField(" + p.Owner + "." + p.Name + ":" + p.Descriptor + ")"
	}
	return "?"
}

// ValuePattern matches a single diagnostic parameter.
type ValuePattern interface {
	Match(v any) bool
	String() string
}

type anyValue struct{}

func (anyValue) Match(any) bool { return true }
func (anyValue) String() string { return "*" }

// Any matches every parameter, including an absent optional one.
var Any ValuePattern = anyValue{}

type stringValue string

func (s stringValue) Match(v any) bool {
	str, ok := v.(string)
	return ok && str == string(s)
}
func (s stringValue) String() string { return strconv.Quote(string(s)) }

// StringValue matches an exact string parameter.
func StringValue(s string) ValuePattern { return stringValue(s) }

type intValue int

func (i intValue) Match(v any) bool {
	n, ok := v.(int)
	return ok && n == int(i)
}
func (i intValue) String() string { return strconv.Itoa(int(i)) }

// IntValue matches an exact int parameter.
func IntValue(i int) ValuePattern { return intValue(i) }

type intRange struct{ min, max int }

func (r intRange) Match(v any) bool {
	n, ok := v.(int)
	return ok && n >= r.min && n <= r.max
}
func (r intRange) String() string { return fmt.Sprintf("%d..%d", r.min, r.max) }

// IntRange matches an int parameter within [min, max].
func IntRange(min, max int) ValuePattern { return intRange{min: min, max: max} }

type stringPattern struct{ re *regexp.Regexp }

func (p stringPattern) Match(v any) bool {
	s, ok := v.(string)
	return ok && p.re.MatchString(s)
}
func (p stringPattern) String() string { return "/" + p.re.String() + "/" }

// StringPattern matches string parameters against a regular expression that
// must cover the whole value.
func StringPattern(expr string) (ValuePattern, error) {
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("suppression pattern %q: %w", expr, err)
	}
	return stringPattern{re: re}, nil
}

// Rule suppresses diagnostics of one id. A nil Location matches anywhere.
type Rule struct {
	Location *LocationPattern
	ID       string
	Values   []ValuePattern
}

// Match reports whether the rule's parameter patterns accept params.
// Patterns are applied positionally; parameters beyond the last pattern are
// unconstrained, and a pattern without a parameter never matches.
func (r Rule) Match(params []any) bool {
	if len(r.Values) > len(params) {
		return false
	}
	for i, p := range r.Values {
		if !p.Match(params[i]) {
			return false
		}
	}
	return true
}

type ruleKey struct {
	loc LocationPattern
	id  string
}

type cacheKey struct {
	loc Location
	pkg string
	id  string
}

// Suppressions is an indexed set of rules. Add must not be called
// concurrently with Suppressed.
type Suppressions struct {
	withLocation    map[ruleKey][]Rule
	withoutLocation map[string][]Rule

	mu    sync.RWMutex
	cache map[cacheKey][]Rule
}

// NewSuppressions returns a set holding rules.
func NewSuppressions(rules ...Rule) *Suppressions {
	s := &Suppressions{
		withLocation:    make(map[ruleKey][]Rule),
		withoutLocation: make(map[string][]Rule),
		cache:           make(map[cacheKey][]Rule),
	}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add registers a rule.
func (s *Suppressions) Add(r Rule) {
	if r.Location == nil {
		s.withoutLocation[r.ID] = append(s.withoutLocation[r.ID], r)
	} else {
		k := ruleKey{loc: *r.Location, id: r.ID}
		s.withLocation[k] = append(s.withLocation[k], r)
	}
	s.mu.Lock()
	s.cache = make(map[cacheKey][]Rule)
	s.mu.Unlock()
}

// Len returns the number of registered rules.
func (s *Suppressions) Len() int {
	n := 0
	for _, rs := range s.withLocation {
		n += len(rs)
	}
	for _, rs := range s.withoutLocation {
		n += len(rs)
	}
	return n
}

// Suppressed reports whether some rule silences d.
func (s *Suppressions) Suppressed(d Diagnostic) bool {
	for _, r := range s.rulesFor(d.Location, d.Type.ID) {
		if r.Match(d.Params) {
			return true
		}
	}
	return false
}

func (s *Suppressions) cached(k cacheKey, compute func() []Rule) []Rule {
	s.mu.RLock()
	rules, ok := s.cache[k]
	s.mu.RUnlock()
	if ok {
		return rules
	}
	rules = compute()
	s.mu.Lock()
	s.cache[k] = rules
	s.mu.Unlock()
	return rules
}

// rulesFor collects every rule whose location pattern covers loc.
func (s *Suppressions) rulesFor(loc Location, id string) []Rule {
	return s.cached(cacheKey{loc: loc, id: id}, func() []Rule {
		var out []Rule
		if loc.Kind != LocationNone {
			out = append(out, s.classRules(loc.Class, id)...)
		}
		switch loc.Kind {
		case LocationMethod, LocationMethodLocal:
			out = append(out, s.withLocation[ruleKey{InMethod(loc.Class, loc.Name), id}]...)
			out = append(out, s.withLocation[ruleKey{InMethodWithType(loc.Class, loc.Name, loc.Descriptor), id}]...)
		case LocationField, LocationRecordComponent:
			out = append(out, s.withLocation[ruleKey{InField(loc.Class, loc.Name), id}]...)
			out = append(out, s.withLocation[ruleKey{InFieldWithType(loc.Class, loc.Name, loc.Descriptor), id}]...)
		}
		return append(out, s.withoutLocation[id]...)
	})
}

func (s *Suppressions) classRules(class, id string) []Rule {
	out := append([]Rule(nil), s.withLocation[ruleKey{InClass(class), id}]...)
	pkg := ""
	if i := strings.LastIndexByte(class, '/'); i >= 0 {
		pkg = class[:i]
	}
	if pkg == "" {
		return append(out, s.withLocation[ruleKey{InPackage(""), id}]...)
	}
	return append(out, s.packageRules(pkg, id)...)
}

func (s *Suppressions) packageRules(pkg, id string) []Rule {
	if pkg == "" {
		return nil
	}
	return s.cached(cacheKey{pkg: pkg, id: id}, func() []Rule {
		out := append([]Rule(nil), s.withLocation[ruleKey{InPackage(pkg), id}]...)
		parent := ""
		if i := strings.LastIndexByte(pkg, '/'); i >= 0 {
			parent = pkg[:i]
		}
		return append(out, s.packageRules(parent, id)...)
	})
}
