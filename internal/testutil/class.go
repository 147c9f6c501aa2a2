package testutil

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Class describes a class fixture in the YAML class format.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Access     []string
	Fields     []Member
	Methods    []Member
}

// Member is a field or method fixture. For methods, Calls, Reads and News
// become invokestatic, getstatic and new instructions, in that order.
type Member struct {
	Name       string
	Descriptor string
	Access     []string
	Calls      []string // owner.name:desc
	Reads      []string // owner.name:desc
	News       []string // internal names
}

// Entry returns the container entry name of the fixture.
func (c Class) Entry() string {
	return strings.ReplaceAll(c.Name, ".", "/") + ".class.yaml"
}

// YAML renders the fixture.
func (c Class) YAML() string {
	var b strings.Builder
	b.WriteString("name: " + strconv.Quote(c.Name) + "\n")
	if c.Super != "" {
		b.WriteString("super: " + strconv.Quote(c.Super) + "\n")
	}
	if len(c.Access) > 0 {
		b.WriteString("access: " + list(c.Access) + "\n")
	}
	if len(c.Interfaces) > 0 {
		b.WriteString("interfaces: " + list(c.Interfaces) + "\n")
	}
	if len(c.Fields) > 0 {
		b.WriteString("fields:\n")
		for _, f := range c.Fields {
			member(&b, f)
		}
	}
	if len(c.Methods) > 0 {
		b.WriteString("methods:\n")
		for _, m := range c.Methods {
			member(&b, m)
			insns := code(m)
			if len(insns) == 0 {
				continue
			}
			b.WriteString("    code:\n      insns:\n")
			for _, insn := range insns {
				b.WriteString("        - " + insn + "\n")
			}
		}
	}
	return b.String()
}

func member(b *strings.Builder, m Member) {
	b.WriteString("  - name: " + strconv.Quote(m.Name) + "\n")
	b.WriteString("    descriptor: " + strconv.Quote(m.Descriptor) + "\n")
	if len(m.Access) > 0 {
		b.WriteString("    access: " + list(m.Access) + "\n")
	}
}

func code(m Member) []string {
	if len(m.Calls)+len(m.Reads)+len(m.News) == 0 {
		return nil
	}
	var out []string
	for _, c := range m.Calls {
		out = append(out, "{op: invokestatic, method: "+strconv.Quote(c)+"}")
	}
	for _, r := range m.Reads {
		out = append(out, "{op: getstatic, field: "+strconv.Quote(r)+"}")
	}
	for _, n := range m.News {
		out = append(out, "{op: new, type: "+strconv.Quote(n)+"}")
	}
	return append(out, "{op: return}")
}

func list(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// WriteClasses writes each fixture under root as a class tree.
func WriteClasses(t *testing.T, root string, classes ...Class) {
	t.Helper()
	for _, c := range classes {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(c.Entry())), c.YAML())
	}
}

// JarFiles returns the fixtures keyed by entry name, ready for WriteJar.
func JarFiles(classes ...Class) map[string]string {
	out := make(map[string]string, len(classes))
	for _, c := range classes {
		out[c.Entry()] = c.YAML()
	}
	return out
}
