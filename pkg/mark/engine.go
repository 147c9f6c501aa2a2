// Package mark computes which classes, methods and fields are reachable from
// the roots tier and flags them included.
package mark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panbanda/relocate/internal/symtab"
	"github.com/panbanda/relocate/internal/taskqueue"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/classpath"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/extract"
	"github.com/panbanda/relocate/pkg/reference"
)

// ErrErrorsFound is returned by callers that treat any Error diagnostic as
// failure.
var ErrErrorsFound = errors.New("unresolvable references found")

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of mark workers. Non-positive selects the
// default.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger sets the logger for phase events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHandler sets the handler that receives unsuppressed diagnostics.
func WithHandler(h diagnostic.Handler) Option {
	return func(e *Engine) { e.handler = h }
}

// WithSuppressions filters diagnostics before they are counted.
func WithSuppressions(s *diagnostic.Suppressions) Option {
	return func(e *Engine) { e.suppressions = s }
}

// WithEnv sets the extraction environment used by Prepare. Its Report
// handler is replaced by the engine's.
func WithEnv(env extract.Env) Option {
	return func(e *Engine) { e.env = env }
}

// WithOverrideLinking toggles linking parent members to their overrides.
func WithOverrideLinking(on bool) Option {
	return func(e *Engine) { e.linkOverrides = on }
}

// WithTrace records the reference graph walked by Run.
func WithTrace(on bool) Option {
	return func(e *Engine) { e.traceOn = on }
}

// WithProgress is called once per dequeued reference.
func WithProgress(fn func()) Option {
	return func(e *Engine) { e.progress = fn }
}

// Engine marks reachable symbols. Each distinct reference is resolved at most
// once over the lifetime of the engine, so running it again is a no-op.
type Engine struct {
	roots     *classpath.ClassPath
	classpath *classpath.Combined
	prepared  []*classpath.ClassPath

	workers       int
	logger        *slog.Logger
	handler       diagnostic.Handler
	suppressions  *diagnostic.Suppressions
	env           extract.Env
	linkOverrides bool
	traceOn       bool
	progress      func()

	counter *diagnostic.Counter
	table   *symtab.Table
	queued  *symtab.Queued
	origins *origins
	trace   *Trace

	prepareOnce sync.Once
	prepareErr  error

	failMu sync.Mutex
	failed map[uint32]*diagnostic.Type

	dequeued atomic.Int64
	classes  atomic.Int64
	methods  atomic.Int64
	fields   atomic.Int64
}

// New returns an engine over the three tiers. embeds and refers may be nil.
func New(roots, embeds, refers *classpath.ClassPath, opts ...Option) *Engine {
	tiers := []*classpath.ClassPath{roots}
	prepared := []*classpath.ClassPath{roots}
	if embeds != nil {
		tiers = append(tiers, embeds)
		prepared = append(prepared, embeds)
	}
	if refers != nil {
		tiers = append(tiers, refers)
	}

	e := &Engine{
		roots:         roots,
		classpath:     classpath.NewCombined(tiers...),
		prepared:      prepared,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		env:           extract.DefaultEnv(),
		linkOverrides: true,
		table:         symtab.NewTable(),
		origins:       newOrigins(),
		failed:        make(map[uint32]*diagnostic.Type),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queued = symtab.NewQueued(e.table)
	e.counter = diagnostic.NewCounter(e.handler, e.suppressions)
	e.env.Report = e.counter
	if e.traceOn {
		e.trace = newTrace(e.table)
	}
	return e
}

// Run prepares the classes if needed, then marks everything reachable from
// the roots. Unresolvable references are reported after the queue drains,
// each once, at the smallest location that referenced it.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.Prepare(ctx); err != nil {
		return nil, err
	}

	before := e.dequeued.Load()
	q := taskqueue.New(e.workers)
	e.logger.Debug("mark started", "workers", q.Workers())

	for _, cf := range e.roots.Classes() {
		e.root(q, cf.Ref(), cf.Location())
		for _, m := range cf.Methods {
			e.root(q, m.Ref(), cf.Location())
		}
		for _, f := range cf.Fields {
			e.root(q, f.Ref(), cf.Location())
		}
	}

	if err := q.Run(ctx); err != nil {
		return nil, err
	}
	if err := e.report(); err != nil {
		return nil, err
	}

	res := e.result()
	res.Dequeued = int(e.dequeued.Load() - before)
	e.logger.Debug("mark finished", "dequeued", res.Dequeued, "errors", res.Errors, "warnings", res.Warnings)
	return res, nil
}

func (e *Engine) root(q *taskqueue.Queue, r reference.Reference, loc diagnostic.Location) {
	if e.trace != nil {
		e.trace.addRoot(e.table.Intern(r))
	}
	e.enqueue(q, r, loc)
}

// enqueue submits r unless it was queued before. Every call records loc as a
// candidate origin.
func (e *Engine) enqueue(q *taskqueue.Queue, r reference.Reference, loc diagnostic.Location) {
	id, first := e.queued.TryQueue(r)
	e.origins.observe(id, loc)
	if !first {
		return
	}
	q.Submit(func(ctx context.Context) error {
		return e.resolve(ctx, q, id, r)
	})
}

func (e *Engine) resolve(ctx context.Context, q *taskqueue.Queue, id uint32, r reference.Reference) error {
	e.dequeued.Add(1)
	if e.progress != nil {
		e.progress()
	}

	switch r := r.(type) {
	case reference.ClassRef:
		cf, err := e.classpath.FindClass(ctx, r.Name)
		if err != nil {
			return err
		}
		if cf == nil {
			e.fail(id, diagnostic.UnresolvableClass)
			return nil
		}
		e.include(q, id, cf)

	case reference.MethodRef:
		m, err := e.classpath.FindMethod(ctx, r)
		if errors.Is(err, classpath.ErrNoObject) {
			return nil
		}
		if err != nil {
			return err
		}
		if m == nil {
			e.fail(id, diagnostic.UnresolvableMethod)
			return nil
		}
		e.include(q, id, m)

	case reference.TypelessMethodRef, reference.PartialMethodRef:
		ms, err := e.classpath.FindMethods(ctx, r)
		if errors.Is(err, classpath.ErrNoObject) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(ms) == 0 {
			e.fail(id, diagnostic.UnresolvableMethod)
			return nil
		}
		for _, m := range ms {
			e.include(q, id, m)
		}

	case reference.FieldRef:
		fs, err := e.classpath.FindFields(ctx, r)
		if err != nil {
			return err
		}
		if len(fs) == 0 {
			e.fail(id, diagnostic.UnresolvableField)
			return nil
		}
		for _, f := range fs {
			e.include(q, id, f)
		}

	case reference.RecordComponentRef:
		rc, err := e.classpath.FindRecordComponent(ctx, r)
		if err != nil {
			return err
		}
		if rc == nil {
			e.fail(id, diagnostic.UnresolvableField)
			return nil
		}
		e.include(q, id, rc)

	default:
		return fmt.Errorf("unsupported reference %T", r)
	}
	return nil
}

// symbol is anything a reference resolves to.
type symbol interface {
	Ref() reference.Reference
	Location() diagnostic.Location
	MarkIncluded() bool
	AllReferences() []reference.Reference
}

type classSymbol struct{ *classfile.ClassFile }

func (s classSymbol) Ref() reference.Reference { return s.ClassFile.Ref() }

type methodSymbol struct{ *classfile.Method }

func (s methodSymbol) Ref() reference.Reference { return s.Method.Ref() }

type fieldSymbol struct{ *classfile.Field }

func (s fieldSymbol) Ref() reference.Reference { return s.Field.Ref() }

type componentSymbol struct{ *classfile.RecordComponent }

func (s componentSymbol) Ref() reference.Reference { return s.RecordComponent.Ref() }

func wrap(v any) symbol {
	switch v := v.(type) {
	case *classfile.ClassFile:
		return classSymbol{v}
	case *classfile.Method:
		return methodSymbol{v}
	case *classfile.Field:
		return fieldSymbol{v}
	case *classfile.RecordComponent:
		return componentSymbol{v}
	}
	panic(fmt.Sprintf("not a symbol: %T", v))
}

// include marks the resolved symbol. Only the call that flips the flag
// expands its references.
func (e *Engine) include(q *taskqueue.Queue, from uint32, v any) {
	sym := wrap(v)
	var self uint32
	if e.trace != nil {
		self = e.table.Intern(sym.Ref())
		if self != from {
			e.trace.addEdge(from, self)
		}
	}
	if !sym.MarkIncluded() {
		return
	}

	switch v.(type) {
	case *classfile.ClassFile:
		e.classes.Add(1)
	case *classfile.Method:
		e.methods.Add(1)
	case *classfile.Field:
		e.fields.Add(1)
	}

	loc := sym.Location()
	for _, r := range sym.AllReferences() {
		if e.trace != nil {
			e.trace.addEdge(self, e.table.Intern(r))
		}
		e.enqueue(q, r, loc)
	}
}

func (e *Engine) fail(id uint32, t *diagnostic.Type) {
	e.failMu.Lock()
	e.failed[id] = t
	e.failMu.Unlock()
}

// report emits the diagnostics for references that did not resolve, in a
// stable order. Reported entries are dropped so a later Run does not repeat
// them.
func (e *Engine) report() error {
	e.failMu.Lock()
	diags := make([]diagnostic.Diagnostic, 0, len(e.failed))
	for id, t := range e.failed {
		diags = append(diags, unresolvable(t, e.table.Ref(id), e.origins.get(id)))
	}
	clear(e.failed)
	e.failMu.Unlock()

	sort.Slice(diags, func(i, j int) bool { return diags[i].Key() < diags[j].Key() })
	for _, d := range diags {
		if err := e.counter.Handle(d); err != nil {
			return err
		}
	}
	return nil
}

func unresolvable(t *diagnostic.Type, r reference.Reference, loc diagnostic.Location) diagnostic.Diagnostic {
	switch r := r.(type) {
	case reference.ClassRef:
		return t.New(loc, r.Name)
	case reference.MethodRef:
		return t.New(loc, r.Owner, r.Name, r.Descriptor)
	case reference.FieldRef:
		return t.New(loc, r.Owner, r.Name, optional(r.Descriptor))
	case reference.RecordComponentRef:
		return t.New(loc, r.Owner, r.Name, r.Descriptor)
	case reference.TypelessMethodRef:
		return t.New(loc, r.Owner, r.Name, nil)
	case reference.PartialMethodRef:
		return t.New(loc, r.Owner, r.Name, nil)
	}
	panic(fmt.Sprintf("unexpected reference %T", r))
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Trace returns the recorded graph, or nil when tracing is off.
func (e *Engine) Trace() *Trace { return e.trace }
