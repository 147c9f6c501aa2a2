// Package classpath loads classes from containers and resolves symbols across
// the roots, embeds and refers tiers.
package classpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/panbanda/relocate/internal/fileproc"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/extract"
)

// Kind is the trust tier of a classpath.
type Kind int

const (
	// Embeddable classes are embedded into the output. They are loaded
	// eagerly with code and never resolve anything beyond what was loaded.
	Embeddable Kind = iota
	// Roots load like Embeddable; every class and member is a keep root.
	Roots
	// ReferencesOnly classes are external libraries consulted only for
	// resolution. They load lazily, without code.
	ReferencesOnly
)

func (k Kind) String() string {
	switch k {
	case Embeddable:
		return "embeds"
	case Roots:
		return "roots"
	case ReferencesOnly:
		return "refers"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Option configures a ClassPath.
type Option func(*ClassPath)

// WithWorkers bounds the goroutines used by Init.
func WithWorkers(n int) Option {
	return func(cp *ClassPath) { cp.workers = n }
}

// WithLogger sets the logger for load events.
func WithLogger(l *slog.Logger) Option {
	return func(cp *ClassPath) { cp.logger = l }
}

// WithProgress is called once per entry decoded by Init.
func WithProgress(fn fileproc.ProgressFunc) Option {
	return func(cp *ClassPath) { cp.progress = fn }
}

// ClassPath is one tier: an ordered list of containers and the classes loaded
// from them. A name maps to the class from the first container that has it.
type ClassPath struct {
	kind       Kind
	decoder    classfile.Decoder
	containers []Container

	workers  int
	logger   *slog.Logger
	progress fileproc.ProgressFunc

	mu      sync.RWMutex
	classes map[string]*classfile.ClassFile // nil value: known absent
	loads   singleflight.Group
}

// New returns a classpath over already opened containers.
func New(kind Kind, decoder classfile.Decoder, containers []Container, opts ...Option) *ClassPath {
	cp := &ClassPath{
		kind:       kind,
		decoder:    decoder,
		containers: containers,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		classes:    make(map[string]*classfile.ClassFile),
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// OpenPaths opens each path with Open and returns a classpath over them.
func OpenPaths(kind Kind, decoder classfile.Decoder, paths []string, opts ...Option) (*ClassPath, error) {
	containers := make([]Container, 0, len(paths))
	for _, p := range paths {
		c, err := Open(p)
		if err != nil {
			for _, opened := range containers {
				_ = opened.Close()
			}
			return nil, err
		}
		containers = append(containers, c)
	}
	return New(kind, decoder, containers, opts...), nil
}

func (cp *ClassPath) Kind() Kind { return cp.kind }

// Containers returns the containers in lookup order.
func (cp *ClassPath) Containers() []Container { return cp.containers }

// Close closes every container.
func (cp *ClassPath) Close() error {
	var errs []error
	for _, c := range cp.containers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Init preloads every class of an Embeddable or Roots classpath in parallel.
// module-info entries are skipped. It is a no-op for ReferencesOnly.
func (cp *ClassPath) Init(ctx context.Context) error {
	if cp.kind == ReferencesOnly {
		return nil
	}

	names, err := cp.classNames()
	if err != nil {
		return err
	}

	type loaded struct {
		name string
		cf   *classfile.ClassFile
	}
	results, errs := fileproc.ForEachWithContext(ctx, names, cp.workers,
		func(_ context.Context, name string) (loaded, error) {
			cf, err := cp.read(name)
			return loaded{name: name, cf: cf}, err
		}, cp.progress)

	cp.mu.Lock()
	for _, r := range results {
		if r.cf != nil {
			cp.classes[r.name] = r.cf
		}
	}
	cp.mu.Unlock()

	cp.logger.Debug("classpath loaded", "tier", cp.kind.String(), "classes", len(results))
	if errs.HasErrors() {
		return fmt.Errorf("load %s: %w", cp.kind, errs)
	}
	return nil
}

// classNames lists the class names across all containers, deduplicated.
func (cp *ClassPath) classNames() ([]string, error) {
	ext := cp.decoder.Extension()
	seen := make(map[string]struct{})
	var names []string
	for _, c := range cp.containers {
		entries, err := c.Entries()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name, ok := strings.CutSuffix(e, ext)
			if !ok || name == "module-info" || strings.HasPrefix(e, metaInf) {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// read loads and decodes name from the first container holding it. A class
// no container has yields nil and no error.
func (cp *ClassPath) read(name string) (*classfile.ClassFile, error) {
	entry := name + cp.decoder.Extension()
	for _, c := range cp.containers {
		data, err := c.Read(entry)
		if IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cf, err := cp.decoder.Decode(data, classfile.DecodeOptions{SkipCode: cp.kind == ReferencesOnly})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry, err)
		}
		if cf.Name != name {
			cp.logger.Debug("class name differs from entry", "entry", entry, "class", cf.Name)
		}
		if cp.kind == ReferencesOnly {
			extract.Library(cf)
		}
		return cf, nil
	}
	return nil, nil
}

// FindClass returns the class with the internal name, or nil when this tier
// does not have it. Only ReferencesOnly loads on demand; concurrent loads of
// one name share a single read and absent names are remembered.
func (cp *ClassPath) FindClass(ctx context.Context, name string) (*classfile.ClassFile, error) {
	cp.mu.RLock()
	cf, known := cp.classes[name]
	cp.mu.RUnlock()
	if known || cp.kind != ReferencesOnly {
		return cf, nil
	}

	ch := cp.loads.DoChan(name, func() (any, error) {
		cp.mu.RLock()
		cf, known := cp.classes[name]
		cp.mu.RUnlock()
		if known {
			return cf, nil
		}

		cf, err := cp.read(name)
		if err != nil {
			return nil, err
		}
		cp.mu.Lock()
		cp.classes[name] = cf
		cp.mu.Unlock()
		return cf, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load %s: %w", name, res.Err)
		}
		cf, _ := res.Val.(*classfile.ClassFile)
		return cf, nil
	}
}

// Classes returns the loaded classes sorted by name.
func (cp *ClassPath) Classes() []*classfile.ClassFile {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	out := make([]*classfile.ClassFile, 0, len(cp.classes))
	for _, cf := range cp.classes {
		if cf != nil {
			out = append(out, cf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
