package diagnostic

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseValue parses the textual form of a parameter pattern:
//
//	*            any value
//	int:N        exact int
//	range:A-B    int range, inclusive
//	re:EXPR      regular expression over a string
//	str:TEXT     exact string (the prefix may be omitted)
func ParseValue(s string) (ValuePattern, error) {
	switch {
	case s == "*":
		return Any, nil
	case strings.HasPrefix(s, "int:"):
		n, err := strconv.Atoi(s[len("int:"):])
		if err != nil {
			return nil, fmt.Errorf("suppression value %q: %w", s, err)
		}
		return IntValue(n), nil
	case strings.HasPrefix(s, "range:"):
		lo, hi, ok := strings.Cut(s[len("range:"):], "-")
		if !ok {
			return nil, fmt.Errorf("suppression value %q: want range:MIN-MAX", s)
		}
		min, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("suppression value %q: %w", s, err)
		}
		max, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("suppression value %q: %w", s, err)
		}
		return IntRange(min, max), nil
	case strings.HasPrefix(s, "re:"):
		return StringPattern(s[len("re:"):])
	case strings.HasPrefix(s, "str:"):
		return StringValue(s[len("str:"):]), nil
	default:
		return StringValue(s), nil
	}
}

// ParseLocation parses a location pattern. kind is one of package, class,
// method or field. Members are written "owner.name" or "owner.name:desc"
// with a slash separated owner.
func ParseLocation(kind, value string) (*LocationPattern, error) {
	var p LocationPattern
	switch kind {
	case "", "any":
		return nil, nil
	case "package":
		p = InPackage(value)
	case "class":
		p = InClass(value)
	case "method", "field":
		member, desc, typed := strings.Cut(value, ":")
		dot := strings.LastIndexByte(member, '.')
		if dot <= 0 || dot == len(member)-1 {
			return nil, fmt.Errorf("suppression location %q: want owner.name[:descriptor]", value)
		}
		owner, name := member[:dot], member[dot+1:]
		switch {
		case kind == "method" && typed:
			p = InMethodWithType(owner, name, desc)
		case kind == "method":
			p = InMethod(owner, name)
		case typed:
			p = InFieldWithType(owner, name, desc)
		default:
			p = InField(owner, name)
		}
	default:
		return nil, fmt.Errorf("unknown suppression location kind %q", kind)
	}
	return &p, nil
}

// ParseRule builds a rule from its textual parts.
func ParseRule(locKind, locValue, id string, values []string) (Rule, error) {
	if _, ok := Lookup(id); !ok {
		return Rule{}, fmt.Errorf("unknown diagnostic id %q", id)
	}
	loc, err := ParseLocation(locKind, locValue)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Location: loc, ID: id}
	for _, v := range values {
		vp, err := ParseValue(v)
		if err != nil {
			return Rule{}, err
		}
		r.Values = append(r.Values, vp)
	}
	return r, nil
}
