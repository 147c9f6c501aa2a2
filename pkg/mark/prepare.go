package mark

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/relocate/internal/fileproc"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/extract"
)

// Prepare computes the references of every roots and embeds class in
// parallel and, unless disabled, links overridden parent members to their
// overrides. It runs once; Run calls it. External references are not added
// after Prepare returns.
func (e *Engine) Prepare(ctx context.Context) error {
	e.prepareOnce.Do(func() {
		e.prepareErr = e.prepare(ctx)
	})
	return e.prepareErr
}

func (e *Engine) prepare(ctx context.Context) error {
	var classes []*classfile.ClassFile
	for _, cp := range e.prepared {
		classes = append(classes, cp.Classes()...)
	}
	workers := e.workers
	if workers <= 0 {
		workers = fileproc.DefaultWorkers()
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithFirstError()
	for _, cf := range classes {
		p.Go(func(ctx context.Context) error {
			if cf.ReferencesComputed() {
				return nil
			}
			if err := extract.Compute(e.env, cf); err != nil {
				return fmt.Errorf("compute references of %s: %w", cf.Name, err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	e.logger.Debug("references computed", "classes", len(classes))

	if !e.linkOverrides {
		return nil
	}
	p = pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithFirstError()
	for _, cf := range classes {
		p.Go(func(ctx context.Context) error {
			return e.linkOverridesOf(ctx, cf)
		})
	}
	return p.Wait()
}

// linkOverridesOf makes the nearest parent declaration of each overridable
// member reference the member, so reaching the parent keeps the override.
// Constructors, static initializers and private methods never override.
func (e *Engine) linkOverridesOf(ctx context.Context, cf *classfile.ClassFile) error {
	for _, m := range cf.Methods {
		if m.IsInitializer() || m.IsPrivate() {
			continue
		}
		ref := m.Ref()
		err := e.nearestParents(ctx, cf, func(parent *classfile.ClassFile) bool {
			pm := parent.Method(m.Name, m.Descriptor)
			if pm == nil {
				return false
			}
			pm.AddExternalReference(ref)
			return true
		})
		if err != nil {
			return err
		}
	}
	for _, f := range cf.Fields {
		ref := f.Ref()
		err := e.nearestParents(ctx, cf, func(parent *classfile.ClassFile) bool {
			pf := parent.Field(f.Name, f.Descriptor)
			if pf == nil {
				return false
			}
			pf.AddExternalReference(ref)
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// nearestParents walks the supertypes of cf breadth first. When found
// returns true the walk does not continue above that parent; other branches
// go on. Supertypes missing from every tier are skipped.
func (e *Engine) nearestParents(ctx context.Context, cf *classfile.ClassFile, found func(*classfile.ClassFile) bool) error {
	seen := map[string]bool{cf.Name: true}
	queue := supertypes(cf)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		parent, err := e.classpath.FindClass(ctx, name)
		if err != nil {
			return err
		}
		if parent == nil || found(parent) {
			continue
		}
		queue = append(queue, supertypes(parent)...)
	}
	return nil
}

func supertypes(cf *classfile.ClassFile) []string {
	out := make([]string, 0, len(cf.Interfaces)+1)
	if cf.Super != "" {
		out = append(out, cf.Super)
	}
	return append(out, cf.Interfaces...)
}
