// Package compose expands reference arcs and applies "over" opinions to a
// decoded scene.
package compose

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/oy3o/usd"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

// ErrNoLoader is reported for references when Options.Loader is nil.
var ErrNoLoader = errors.New("compose: no loader configured")

// Loader reads the layer at a resolved file path.
type Loader interface {
	Load(ctx context.Context, path string) (*usd.Scene, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*usd.Scene, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*usd.Scene, error) { return f(ctx, path) }

type Options struct {
	// BaseDir resolves relative asset paths of prims with no Source.
	BaseDir string

	// Workers bounds the parallel loads of one pass. Zero means GOMAXPROCS.
	Workers int

	Loader Loader

	// Payloads also expands payload arcs like references.
	Payloads bool

	Diagnostics usd.Diagnostics
}

// entry is one cached layer. once makes lookup-then-load atomic per path.
type entry struct {
	once  sync.Once
	scene *usd.Scene
	err   error
}

// Expander resolves reference arcs. Its cache and processed set persist
// across calls, so expanding an already expanded scene loads nothing.
type Expander struct {
	opts      Options
	cache     *xsync.Map[string, *entry]
	loads     atomic.Int64
	processed map[*usd.Prim]bool
	// chains holds, per grafted prim, the arc keys that led to it.
	chains map[*usd.Prim][]string
}

func NewExpander(opts Options) *Expander {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Expander{
		opts:      opts,
		cache:     xsync.NewMap[string, *entry](),
		processed: make(map[*usd.Prim]bool),
		chains:    make(map[*usd.Prim][]string),
	}
}

// Loads returns the number of times the Loader was called.
func (x *Expander) Loads() int64 { return x.loads.Load() }

// arc is one reference found on a prim during a pass.
type arc struct {
	prim  *usd.Prim
	ref   usd.Reference
	path  string   // resolved asset path, "" for internal references
	key   string   // layer and prim path the arc brings in
	chain []string // keys of the arcs that grafted prim's ancestors
}

// Expand grafts the targets of reference arcs under their referencing prims,
// pass by pass, until a pass finds no unprocessed arc. Arcs inside subtrees
// grafted by the last pass are scanned too, so the result is fully expanded.
// An arc that would bring in a layer prim already grafted above it is a
// cycle and is skipped with a warning. scene is edited in place; the grafted
// subtrees share attrib storage with the cached layers. Load failures are
// reported as warnings.
func (x *Expander) Expand(ctx context.Context, scene *usd.Scene) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		arcs := x.scan(scene)
		if len(arcs) == 0 {
			return nil
		}
		x.loadAll(ctx, arcs)
		for _, a := range arcs {
			x.graft(scene, a)
		}
	}
}

// scan collects the arcs of prims not yet processed and marks them.
func (x *Expander) scan(scene *usd.Scene) []arc {
	var arcs []arc
	var visit func(p *usd.Prim, chain []string)
	visit = func(p *usd.Prim, chain []string) {
		if c, ok := x.chains[p]; ok {
			chain = c
		}
		if !x.processed[p] {
			x.processed[p] = true
			arcs = x.collectArcs(scene, p, chain, arcs)
		}
		for _, c := range p.Children {
			visit(c, chain)
		}
	}
	visit(scene.Root, nil)
	return arcs
}

func (x *Expander) collectArcs(scene *usd.Scene, p *usd.Prim, chain []string, arcs []arc) []arc {
	for _, name := range x.arcFields() {
		v, ok := p.Value(name)
		if !ok {
			continue
		}
		op, ok := v.References()
		if !ok {
			continue
		}
		if op.HasDeleted() {
			usd.Warnf(x.opts.Diagnostics, usd.WarnDeletedListOp, p.Path, "deleted %s ignored", name)
		}
		for _, ref := range op.Items() {
			a := arc{prim: p, ref: ref, path: x.resolve(p, ref.AssetPath), chain: chain}
			a.key = arcKey(scene, a)
			if slices.Contains(chain, a.key) {
				usd.Warnf(x.opts.Diagnostics, usd.WarnUnresolvedReference, p.Path, "reference cycle through %s skipped", a.key)
				continue
			}
			arcs = append(arcs, a)
		}
	}
	return arcs
}

// arcKey names the layer prim an arc brings in.
func arcKey(scene *usd.Scene, a arc) string {
	layer := a.path
	if layer == "" {
		layer = a.prim.Source
		if layer == "" {
			layer = scene.Source
		}
	}
	return layer + "<" + a.ref.PrimPath.String() + ">"
}

func (x *Expander) arcFields() []string {
	if x.opts.Payloads {
		return []string{"references", "payload"}
	}
	return []string{"references"}
}

// resolve makes asset relative to the directory of the file p came from.
func (x *Expander) resolve(p *usd.Prim, asset string) string {
	if asset == "" {
		return ""
	}
	asset = filepath.FromSlash(asset)
	if filepath.IsAbs(asset) {
		return filepath.Clean(asset)
	}
	base := x.opts.BaseDir
	if p.Source != "" {
		base = filepath.Dir(p.Source)
	}
	return filepath.Join(base, asset)
}

// loadAll loads the distinct uncached paths of arcs in parallel.
func (x *Expander) loadAll(ctx context.Context, arcs []arc) {
	seen := make(map[string]bool)
	var g errgroup.Group
	g.SetLimit(x.opts.Workers)
	for _, a := range arcs {
		if a.path == "" || seen[a.path] {
			continue
		}
		seen[a.path] = true
		if _, cached := x.cache.Load(a.path); cached {
			continue
		}
		g.Go(func() error {
			x.load(ctx, a.path)
			return nil
		})
	}
	_ = g.Wait()
}

// load fills the cache entry for path once. Only calls that reach the Loader
// count as loads.
func (x *Expander) load(ctx context.Context, path string) {
	e, _ := x.cache.LoadOrStore(path, &entry{})
	e.once.Do(func() {
		if err := ctx.Err(); err != nil {
			e.err = err
			return
		}
		if x.opts.Loader == nil {
			e.err = ErrNoLoader
			return
		}
		x.loads.Add(1)
		e.scene, e.err = x.opts.Loader.Load(ctx, path)
	})
}

func (x *Expander) layer(scene *usd.Scene, a arc) (*usd.Scene, error) {
	if a.path == "" {
		// Internal reference: the layer the prim was authored in.
		if a.prim.Source != "" && a.prim.Source != scene.Source {
			if e, ok := x.cache.Load(a.prim.Source); ok && e.scene != nil {
				return e.scene, nil
			}
		}
		return scene, nil
	}
	e, ok := x.cache.Load(a.path)
	if !ok {
		return nil, fmt.Errorf("%s not loaded", a.path)
	}
	return e.scene, e.err
}

func (x *Expander) graft(scene *usd.Scene, a arc) {
	layer, err := x.layer(scene, a)
	if err != nil {
		usd.Warnf(x.opts.Diagnostics, usd.WarnUnresolvedReference, a.prim.Path, "@%s@: %v", a.ref.AssetPath, err)
		return
	}
	targets, err := arcTargets(layer, a.ref)
	if err != nil {
		usd.Warnf(x.opts.Diagnostics, usd.WarnUnresolvedReference, a.prim.Path, "@%s@: %v", a.ref.AssetPath, err)
		return
	}
	for _, t := range targets {
		if t == a.prim || (layer == scene && a.prim.Path.HasPrefix(t.Path)) {
			usd.Warnf(x.opts.Diagnostics, usd.WarnUnresolvedReference, a.prim.Path, "reference to ancestor %v skipped", t.Path)
			continue
		}
		g := t.Graft(a.prim.Path)
		x.chains[g] = append(slices.Clip(a.chain), a.key)
		a.prim.AddChild(g)
	}
}

// arcTargets picks the prims a reference brings in: the named prim, else the
// layer's default prim, else all of its root prims.
func arcTargets(layer *usd.Scene, ref usd.Reference) ([]*usd.Prim, error) {
	if !ref.PrimPath.IsEmpty() {
		p := layer.FindPrim(ref.PrimPath)
		if p == nil || p.Path.IsRoot() {
			return nil, fmt.Errorf("no prim at %v", ref.PrimPath)
		}
		return []*usd.Prim{p}, nil
	}
	if p := layer.DefaultPrim(); p != nil {
		return []*usd.Prim{p}, nil
	}
	if len(layer.Root.Children) == 0 {
		return nil, errors.New("layer has no root prims")
	}
	return layer.Root.Children, nil
}
