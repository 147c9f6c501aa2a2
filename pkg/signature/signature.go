// Package signature walks JVM generic signatures (JVMS 4.7.9.1) and reports
// every class type they mention.
package signature

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a signature does not follow the grammar.
var ErrMalformed = errors.New("malformed signature")

// ClassType is one class type signature. Name is the internal name of the
// outermost class; Inner holds the simple names of nested classes written
// after it, as in Outer<T>.Inner.
type ClassType struct {
	Name  string
	Inner []string
}

// Visit is called once per class type, type arguments included.
type Visit func(ClassType)

// Class walks a class signature: type parameters, superclass and interfaces.
func Class(sig string, visit Visit) error {
	p := &parser{s: sig, visit: visit}
	if err := p.typeParams(); err != nil {
		return p.wrap(err)
	}
	if err := p.classType(); err != nil {
		return p.wrap(err)
	}
	for !p.eof() {
		if err := p.classType(); err != nil {
			return p.wrap(err)
		}
	}
	return nil
}

// Method walks a method signature: type parameters, arguments, result and
// throws clauses.
func Method(sig string, visit Visit) error {
	p := &parser{s: sig, visit: visit}
	if err := p.typeParams(); err != nil {
		return p.wrap(err)
	}
	if err := p.expect('('); err != nil {
		return p.wrap(err)
	}
	for p.peek() != ')' {
		if p.eof() {
			return p.wrap(ErrMalformed)
		}
		if err := p.javaType(); err != nil {
			return p.wrap(err)
		}
	}
	p.pos++
	if p.peek() == 'V' {
		p.pos++
	} else if err := p.javaType(); err != nil {
		return p.wrap(err)
	}
	for !p.eof() {
		if err := p.expect('^'); err != nil {
			return p.wrap(err)
		}
		if err := p.refType(); err != nil {
			return p.wrap(err)
		}
	}
	return nil
}

// Type walks a field or local variable type signature.
func Type(sig string, visit Visit) error {
	p := &parser{s: sig, visit: visit}
	if err := p.refType(); err != nil {
		return p.wrap(err)
	}
	if !p.eof() {
		return p.wrap(ErrMalformed)
	}
	return nil
}

type parser struct {
	s     string
	pos   int
	visit Visit
}

func (p *parser) wrap(err error) error {
	return fmt.Errorf("%w at offset %d in %q", err, p.pos, p.s)
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return ErrMalformed
	}
	p.pos++
	return nil
}

// identifier reads up to, but not including, one of the stop bytes.
func (p *parser) identifier(stops string) (string, error) {
	start := p.pos
	for !p.eof() {
		c := p.s[p.pos]
		for i := 0; i < len(stops); i++ {
			if c == stops[i] {
				if p.pos == start {
					return "", ErrMalformed
				}
				return p.s[start:p.pos], nil
			}
		}
		p.pos++
	}
	return "", ErrMalformed
}

func (p *parser) typeParams() error {
	if p.peek() != '<' {
		return nil
	}
	p.pos++
	for p.peek() != '>' {
		if _, err := p.identifier(":"); err != nil {
			return err
		}
		// class bound, possibly empty
		if err := p.expect(':'); err != nil {
			return err
		}
		if c := p.peek(); c == 'L' || c == 'T' || c == '[' {
			if err := p.refType(); err != nil {
				return err
			}
		}
		for p.peek() == ':' {
			p.pos++
			if err := p.refType(); err != nil {
				return err
			}
		}
		if p.eof() {
			return ErrMalformed
		}
	}
	p.pos++
	return nil
}

func (p *parser) javaType() error {
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.pos++
		return nil
	default:
		return p.refType()
	}
}

func (p *parser) refType() error {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		p.pos++
		if _, err := p.identifier(";"); err != nil {
			return err
		}
		p.pos++
		return nil
	case '[':
		p.pos++
		return p.javaType()
	default:
		return ErrMalformed
	}
}

func (p *parser) classType() error {
	if err := p.expect('L'); err != nil {
		return err
	}
	name, err := p.identifier("<.;")
	if err != nil {
		return err
	}
	ct := ClassType{Name: name}
	for {
		if p.peek() == '<' {
			if err := p.typeArgs(); err != nil {
				return err
			}
		}
		switch p.peek() {
		case ';':
			p.pos++
			p.visit(ct)
			return nil
		case '.':
			p.pos++
			inner, err := p.identifier("<.;")
			if err != nil {
				return err
			}
			ct.Inner = append(ct.Inner, inner)
		default:
			return ErrMalformed
		}
	}
}

func (p *parser) typeArgs() error {
	p.pos++
	for p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.pos++
			continue
		case '+', '-':
			p.pos++
		case 0:
			return ErrMalformed
		}
		if err := p.refType(); err != nil {
			return err
		}
	}
	p.pos++
	return nil
}
