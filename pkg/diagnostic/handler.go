package diagnostic

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler receives diagnostics. Returning a non-nil error aborts the run
// that produced the diagnostic.
type Handler interface {
	Handle(d Diagnostic) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(d Diagnostic) error

func (f HandlerFunc) Handle(d Diagnostic) error { return f(d) }

// Discard drops every diagnostic.
var Discard Handler = HandlerFunc(func(Diagnostic) error { return nil })

// AbortError carries the diagnostic that made a fail-fast handler stop.
type AbortError struct {
	Diagnostic Diagnostic
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted on %s", e.Diagnostic)
}

// FailFast returns an error for the first Error-kind diagnostic and ignores
// warnings.
var FailFast Handler = HandlerFunc(func(d Diagnostic) error {
	if d.Kind() == Error {
		return &AbortError{Diagnostic: d}
	}
	return nil
})

// Counter counts delivered diagnostics by kind and filters suppressed ones
// before they reach the wrapped handler. Safe for concurrent use.
type Counter struct {
	next         Handler
	suppressions *Suppressions
	errors       atomic.Int64
	warnings     atomic.Int64
	suppressed   atomic.Int64
}

// NewCounter wraps next. A nil suppression set suppresses nothing.
func NewCounter(next Handler, s *Suppressions) *Counter {
	if next == nil {
		next = Discard
	}
	return &Counter{next: next, suppressions: s}
}

// Handle implements Handler.
func (c *Counter) Handle(d Diagnostic) error {
	if c.suppressions != nil && c.suppressions.Suppressed(d) {
		c.suppressed.Add(1)
		return nil
	}
	switch d.Kind() {
	case Error:
		c.errors.Add(1)
	case Warning:
		c.warnings.Add(1)
	}
	return c.next.Handle(d)
}

func (c *Counter) Errors() int     { return int(c.errors.Load()) }
func (c *Counter) Warnings() int   { return int(c.warnings.Load()) }
func (c *Counter) Suppressed() int { return int(c.suppressed.Load()) }

// Collector records every diagnostic it receives.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Handle implements Handler.
func (c *Collector) Handle(d Diagnostic) error {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
	return nil
}

// Diagnostics returns a copy of the collected diagnostics sorted by key, so
// runs with different scheduling compare equal.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Tee forwards each diagnostic to every handler, stopping at the first error.
func Tee(handlers ...Handler) Handler {
	return HandlerFunc(func(d Diagnostic) error {
		for _, h := range handlers {
			if err := h.Handle(d); err != nil {
				return err
			}
		}
		return nil
	})
}
