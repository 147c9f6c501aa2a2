package diagnostic

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
)

// LocationKind identifies where a diagnostic was raised.
type LocationKind uint8

const (
	LocationNone LocationKind = iota
	LocationClass
	LocationMethod
	LocationField
	LocationRecordComponent
	LocationMethodLocal
)

// Location is the site a diagnostic refers to. It is comparable.
type Location struct {
	Kind       LocationKind
	Class      string
	Name       string
	Descriptor string
	// Local and LocalName identify a local variable slot for LocationMethodLocal.
	Local     int
	LocalName string
}

// NoLocation is the zero location.
var NoLocation = Location{}

func ClassLocation(name string) Location {
	return Location{Kind: LocationClass, Class: name}
}

func MethodLocation(owner, name, desc string) Location {
	return Location{Kind: LocationMethod, Class: owner, Name: name, Descriptor: desc}
}

func FieldLocation(owner, name, desc string) Location {
	return Location{Kind: LocationField, Class: owner, Name: name, Descriptor: desc}
}

func RecordComponentLocation(owner, name, desc string) Location {
	return Location{Kind: LocationRecordComponent, Class: owner, Name: name, Descriptor: desc}
}

func LocalLocation(owner, method, desc string, index int, local string) Location {
	return Location{Kind: LocationMethodLocal, Class: owner, Name: method, Descriptor: desc, Local: index, LocalName: local}
}

// Package returns the package of the location's class, or "" for the
// default package.
func (l Location) Package() string {
	if i := strings.LastIndexByte(l.Class, '/'); i >= 0 {
		return l.Class[:i]
	}
	return ""
}

// IsMember reports whether the location names a member of a class.
func (l Location) IsMember() bool {
	return l.Kind >= LocationMethod
}

// Compare orders locations by class, then kind, then member, then local.
func (l Location) Compare(o Location) int {
	return cmp.Or(
		cmp.Compare(l.Class, o.Class),
		cmp.Compare(l.Kind, o.Kind),
		cmp.Compare(l.Name, o.Name),
		cmp.Compare(l.Descriptor, o.Descriptor),
		cmp.Compare(l.Local, o.Local),
		cmp.Compare(l.LocalName, o.LocalName),
	)
}

func (l Location) String() string {
	switch l.Kind {
	case LocationClass:
		return "at class " + l.Class
	case LocationMethod:
		return fmt.Sprintf("at method %s.%s:%s", l.Class, l.Name, l.Descriptor)
	case LocationField:
		return fmt.Sprintf("at field %s.%s:%s", l.Class, l.Name, l.Descriptor)
	case LocationRecordComponent:
		return fmt.Sprintf("at record field %s.%s:%s", l.Class, l.Name, l.Descriptor)
	case LocationMethodLocal:
		return fmt.Sprintf("at local variable %d(%s) in method %s.%s:%s", l.Local, l.LocalName, l.Class, l.Name, l.Descriptor)
	default:
		return ""
	}
}

type locationMember struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
}

type locationJSON struct {
	Class  string          `json:"class,omitempty"`
	Member *locationMember `json:"member,omitempty"`
}

// MarshalJSON renders {class, member?: {name, descriptor}}.
func (l Location) MarshalJSON() ([]byte, error) {
	out := locationJSON{Class: l.Class}
	if l.IsMember() {
		out.Member = &locationMember{Name: l.Name, Descriptor: l.Descriptor}
	}
	return json.Marshal(out)
}
