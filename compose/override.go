package compose

import (
	"github.com/oy3o/usd"
)

// bookkeeping attribs stay on the over prim; they are arcs, not opinions.
var bookkeeping = map[string]bool{
	"references": true,
	"payload":    true,
}

// override is the folded opinion set of one over prim.
type override struct {
	over    *usd.Prim
	rel     usd.Path // path relative to the owning def prim
	attribs []usd.Attrib
}

// ApplyOverrides applies the over prims below every def prim to the matching
// prims of the same subtree. Targets are addressed by path suffix relative to
// the def prim; top-level overs address the prim at their own path. Overrides
// are evaluated bottom-up so the innermost opinion wins. Edited prims are copied on write: any subtree shared with another
// holder (a cached layer, a second reference) keeps its original values.
func ApplyOverrides(scene *usd.Scene, diag usd.Diagnostics) {
	scene.Root = applyTree(scene.Root, diag)
}

// applyTree returns p with the overrides of its subtree applied; p itself is
// returned when nothing changed.
func applyTree(p *usd.Prim, diag usd.Diagnostics) *usd.Prim {
	out := p
	for i, c := range p.Children {
		if c.Specifier == usd.SpecifierOver {
			continue
		}
		if nc := applyTree(c, diag); nc != c {
			if out == p {
				out = p.Instance()
			}
			out.Children[i] = nc
		}
	}
	if p.Specifier == usd.SpecifierOver {
		return out
	}
	for _, o := range collect(out, usd.Path{}) {
		target := findTarget(out, o.rel)
		if target == nil {
			usd.Warnf(diag, usd.WarnUnmatchedOverride, o.over.Path, "no prim matches %v below %v", o.rel, out.Path)
			continue
		}
		inst := target.Instance()
		for _, a := range o.attribs {
			inst.SetAttrib(a)
		}
		out = replaceNode(out, target, inst)
	}
	return out
}

// collect gathers the over prims reachable from parent through over-only
// chains, deepest first. An over nested in a same-named over folds onto it,
// its values replacing the outer ones.
func collect(parent *usd.Prim, rel usd.Path) []override {
	var out []override
	for _, c := range parent.Children {
		if c.Specifier != usd.SpecifierOver {
			continue
		}
		o := override{over: c, rel: rel.AppendChild(c.Name())}
		out = append(out, fold(c, &o)...)
		out = append(out, o)
	}
	return out
}

// fold merges c's attribs into o and returns the overrides found below c.
func fold(c *usd.Prim, o *override) []override {
	for _, a := range c.Attribs {
		if bookkeeping[a.Name] {
			continue
		}
		o.attribs = setAttrib(o.attribs, a)
	}
	var nested []override
	for _, g := range c.Children {
		if g.Specifier != usd.SpecifierOver {
			continue
		}
		if g.Name() == c.Name() {
			nested = append(nested, fold(g, o)...)
			continue
		}
		n := override{over: g, rel: o.rel.AppendChild(g.Name())}
		nested = append(nested, fold(g, &n)...)
		nested = append(nested, n)
	}
	return nested
}

func setAttrib(attrs []usd.Attrib, a usd.Attrib) []usd.Attrib {
	for i := range attrs {
		if attrs[i].Name == a.Name {
			attrs[i] = a
			return attrs
		}
	}
	return append(attrs, a)
}

// findTarget returns the first non-over prim below def, depth-first, whose
// path relative to def ends with rel. Below the pseudo-root the relative
// path must match exactly, so a top-level over only reaches the prim at its
// own path.
func findTarget(def *usd.Prim, rel usd.Path) *usd.Prim {
	anchored := def.Path.IsRoot()
	var found *usd.Prim
	def.Walk(func(p *usd.Prim) bool {
		if found != nil {
			return false
		}
		if p == def {
			return true
		}
		if p.Specifier == usd.SpecifierOver {
			return false
		}
		if r := p.Path.TrimPrefix(def.Path); r == rel || !anchored && r.HasSuffix(rel) {
			found = p
			return false
		}
		return true
	})
	return found
}

// replaceNode returns root with old swapped for replacement, instancing every
// prim on the way down.
func replaceNode(root, old, replacement *usd.Prim) *usd.Prim {
	if root == old {
		return replacement
	}
	for i, c := range root.Children {
		if !old.Path.HasPrefix(c.Path) {
			continue
		}
		if nc := replaceNode(c, old, replacement); nc != c {
			cp := root.Instance()
			cp.Children[i] = nc
			return cp
		}
	}
	return root
}
