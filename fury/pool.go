package fury

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/graildata/fury/classes"
)

// Pool runs independent top-level EncodeMap/DecodeMap calls concurrently,
// the way file.RemoveAll in the teacher fans a directory listing out across
// an errgroup: one shared, read-only class registry, one *Fury per
// goroutine, never one Fury shared across goroutines (spec.md §5 requires a
// Fury's per-call state — the ref resolver and generics stack — not be
// touched concurrently).
type Pool struct {
	cfg     Config
	classes *classes.Resolver
}

// NewPool builds a Pool whose workers share one class registry, built once
// up front the same way New does for a single Fury.
func NewPool(cfg Config) *Pool {
	cr := classes.NewResolver(cfg.TrackingRef)
	classes.RegisterBuiltins(cr)
	return &Pool{cfg: cfg, classes: cr}
}

// Classes returns the Pool's shared class registry, so callers can
// Register additional types before submitting work.
func (p *Pool) Classes() *classes.Resolver {
	return p.classes
}

// EncodeAll runs fn concurrently once for each index i in [0, n), each
// against its own *Fury sharing this Pool's class registry, and returns the
// first error encountered (errgroup.WithContext's fail-fast semantics, same
// as file.RemoveAll in the teacher repo). Every call is started up front;
// the context handed to fn is canceled when ctx is canceled or when any
// call returns an error.
func (p *Pool) EncodeAll(ctx context.Context, n int, fn func(ctx context.Context, i int, f *Fury) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			f := newWithClasses(p.cfg, p.classes)
			return fn(gctx, i, f)
		})
	}
	return g.Wait()
}
