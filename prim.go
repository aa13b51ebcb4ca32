package usd

import "slices"

// PrimType is the schema of a prim. Schemas outside this list decode as
// PrimUnknown with the authored name kept in Prim.CustomType.
type PrimType uint8

const (
	PrimUnknown PrimType = iota
	PrimXform
	PrimScope
	PrimMesh
	PrimPoints
	PrimBasisCurves
	PrimSphere
	PrimCube
	PrimCylinder
	PrimCone
	PrimCapsule
	PrimCamera
	PrimMaterial
	PrimShader
	PrimNodeGraph
	PrimGeomSubset
	PrimDistantLight
	PrimSphereLight
	PrimRectLight
	PrimDiskLight
	PrimDomeLight
	PrimCylinderLight
	PrimSkelRoot
	PrimSkeleton
	primTypeCount
)

var primTypeNames = [primTypeCount]string{
	PrimUnknown:       "",
	PrimXform:         "Xform",
	PrimScope:         "Scope",
	PrimMesh:          "Mesh",
	PrimPoints:        "Points",
	PrimBasisCurves:   "BasisCurves",
	PrimSphere:        "Sphere",
	PrimCube:          "Cube",
	PrimCylinder:      "Cylinder",
	PrimCone:          "Cone",
	PrimCapsule:       "Capsule",
	PrimCamera:        "Camera",
	PrimMaterial:      "Material",
	PrimShader:        "Shader",
	PrimNodeGraph:     "NodeGraph",
	PrimGeomSubset:    "GeomSubset",
	PrimDistantLight:  "DistantLight",
	PrimSphereLight:   "SphereLight",
	PrimRectLight:     "RectLight",
	PrimDiskLight:     "DiskLight",
	PrimDomeLight:     "DomeLight",
	PrimCylinderLight: "CylinderLight",
	PrimSkelRoot:      "SkelRoot",
	PrimSkeleton:      "Skeleton",
}

func (t PrimType) String() string {
	if t < primTypeCount {
		return primTypeNames[t]
	}
	return ""
}

// ParsePrimType maps a schema name to its PrimType, PrimUnknown if not listed.
func ParsePrimType(name string) PrimType {
	for t := PrimXform; t < primTypeCount; t++ {
		if primTypeNames[t] == name {
			return t
		}
	}
	return PrimUnknown
}

// Attrib is a named value on a prim: an attribute, a relationship (Rel set,
// Value a PathListOp of targets) or a prim metadata field.
type Attrib struct {
	Name     string
	TypeName string
	Value    Value
	Rel      bool
	Custom   bool
	Uniform  bool
	Metadata []Attrib
}

// Meta returns the attribute metadata field called name.
func (a Attrib) Meta(name string) (Value, bool) {
	for _, m := range a.Metadata {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// IsMetadata reports whether a is a prim metadata field rather than an
// attribute or relationship.
func (a Attrib) IsMetadata() bool { return !a.Rel && a.TypeName == "" }

// Prim is one node of the scene hierarchy.
//
// Prims reachable from a scene are treated as immutable once built: code that
// edits a prim works on a copy from Instance, and SetAttrib never writes into a
// slice that another prim may share.
type Prim struct {
	Path       Path
	Specifier  Specifier
	Type       PrimType
	CustomType string
	Attribs    []Attrib
	Children   []*Prim

	// Source is the file the prim was authored in, used to resolve relative
	// asset paths. Empty for in-memory input.
	Source string
}

// NewPrim returns a prim named name under parent.
func NewPrim(parent Path, name string, spec Specifier, typeName string) *Prim {
	p := &Prim{Path: parent.AppendChild(name), Specifier: spec}
	p.SetTypeName(typeName)
	return p
}

func (p *Prim) Name() string { return p.Path.Name() }

// TypeName is the authored schema name.
func (p *Prim) TypeName() string {
	if p.Type == PrimUnknown {
		return p.CustomType
	}
	return p.Type.String()
}

// SetTypeName sets Type and CustomType from an authored schema name.
func (p *Prim) SetTypeName(name string) {
	p.Type = ParsePrimType(name)
	p.CustomType = ""
	if p.Type == PrimUnknown {
		p.CustomType = name
	}
}

// Attrib finds an attrib by name.
func (p *Prim) Attrib(name string) (Attrib, bool) {
	for _, a := range p.Attribs {
		if a.Name == name {
			return a, true
		}
	}
	return Attrib{}, false
}

// Value is Attrib(name).Value.
func (p *Prim) Value(name string) (Value, bool) {
	a, ok := p.Attrib(name)
	return a.Value, ok
}

func (p *Prim) Child(name string) *Prim {
	for _, c := range p.Children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// AddChild appends c; c.Path must already be a child path of p.
func (p *Prim) AddChild(c *Prim) { p.Children = append(p.Children, c) }

// Walk visits p and its descendants depth-first in child order. Returning
// false from fn skips the visited prim's children.
func (p *Prim) Walk(fn func(*Prim) bool) {
	if !fn(p) {
		return
	}
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// Instance returns a shallow copy of p owning its own attrib and child lists.
// The attribs and children themselves are still shared with p.
func (p *Prim) Instance() *Prim {
	cp := *p
	cp.Attribs = slices.Clone(p.Attribs)
	cp.Children = slices.Clone(p.Children)
	return &cp
}

// ReplaceChild swaps old for replacement in p's child list. p must own its
// list (see Instance).
func (p *Prim) ReplaceChild(old, replacement *Prim) bool {
	i := slices.Index(p.Children, old)
	if i < 0 {
		return false
	}
	p.Children[i] = replacement
	return true
}

// SetAttrib replaces the same-named attrib or appends a. The attrib list is
// rebuilt rather than written through, so lists shared by grafted copies stay
// untouched.
func (p *Prim) SetAttrib(a Attrib) {
	attribs := make([]Attrib, 0, len(p.Attribs)+1)
	replaced := false
	for _, have := range p.Attribs {
		if have.Name == a.Name && !replaced {
			attribs = append(attribs, a)
			replaced = true
			continue
		}
		attribs = append(attribs, have)
	}
	if !replaced {
		attribs = append(attribs, a)
	}
	p.Attribs = attribs
}

// Graft returns a copy of the subtree rooted at p re-pathed so that its root
// becomes a child of parent. Attrib lists are shared with the original.
func (p *Prim) Graft(parent Path) *Prim {
	return p.graft(p.Path, parent.AppendChild(p.Name()))
}

// GraftAs is Graft with the grafted root renamed to name.
func (p *Prim) GraftAs(parent Path, name string) *Prim {
	return p.graft(p.Path, parent.AppendChild(name))
}

func (p *Prim) graft(from, to Path) *Prim {
	cp := *p
	cp.Path = p.Path.ReplacePrefix(from, to)
	cp.Children = make([]*Prim, len(p.Children))
	for i, c := range p.Children {
		cp.Children[i] = c.graft(from, to)
	}
	return &cp
}

// Count returns the number of prims in the subtree rooted at p.
func (p *Prim) Count() int {
	n := 0
	p.Walk(func(*Prim) bool {
		n++
		return true
	})
	return n
}
