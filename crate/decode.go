package crate

import (
	"errors"
	"fmt"
	"io"

	"github.com/oy3o/usd"
)

// Read decodes a crate file from r. diag may be nil.
func Read(r io.Reader, diag usd.Diagnostics) (*usd.Scene, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %w", usd.ErrAccess, err)
	}
	return Decode(buf.Bytes(), diag)
}

// Decode decodes an in-memory crate file. The returned scene does not alias
// data. diag may be nil.
func Decode(data []byte, diag usd.Diagnostics) (*usd.Scene, error) {
	r := NewReader(data)
	version, sections, err := readTOC(r)
	if err != nil {
		return nil, err
	}
	t := &tables{}
	if err := t.read(r, sections); err != nil {
		return nil, err
	}
	d := &decoder{tables: t, r: r, version: version, diag: diag}
	specs, err := d.readSpecFields()
	if err != nil {
		return nil, err
	}
	return assemble(specs, diag), nil
}

type namedValue struct {
	name  string
	value usd.Value
}

// specFields is one spec with its fields decoded.
type specFields struct {
	path   usd.Path
	typ    SpecType
	fields []namedValue
}

func (s *specFields) get(name string) (usd.Value, bool) {
	for _, f := range s.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return usd.Value{}, false
}

func (d *decoder) readSpecFields() ([]specFields, error) {
	out := make([]specFields, 0, len(d.specs))
	for _, s := range d.specs {
		path, err := d.Path(s.Path)
		if err != nil {
			return nil, err
		}
		set, err := d.fieldSet(s.FieldSet)
		if err != nil {
			return nil, err
		}
		sf := specFields{path: path, typ: s.Type, fields: make([]namedValue, 0, len(set))}
		for _, fi := range set {
			if int64(fi) >= int64(len(d.fields)) {
				return nil, fmt.Errorf("%w: field %d of %d", ErrIndex, fi, len(d.fields))
			}
			f := d.fields[fi]
			name, err := d.Token(f.Token)
			if err != nil {
				return nil, err
			}
			v, err := d.unpack(f.Rep)
			if errors.Is(err, ErrUnsupportedValue) {
				usd.Warnf(d.diag, usd.WarnUnsupported, path, "field %s: %v", name, err)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%v field %s: %w", path, name, err)
			}
			sf.fields = append(sf.fields, namedValue{name, v})
		}
		out = append(out, sf)
	}
	return out, nil
}

// assemble builds the prim hierarchy from decoded specs.
func assemble(specs []specFields, diag usd.Diagnostics) *usd.Scene {
	scene := usd.NewScene("")
	prims := map[usd.Path]*usd.Prim{usd.RootPath: scene.Root}
	var order []*specFields

	for i := range specs {
		s := &specs[i]
		switch s.typ {
		case SpecPseudoRoot:
			scene.Root.Attribs = metadataAttribs(s)
			order = append(order, s)
		case SpecPrim:
			if _, dup := prims[s.path]; dup || s.path.IsRoot() || s.path.IsProperty() {
				usd.Warnf(diag, usd.WarnUnsupported, s.path, "duplicate or malformed prim spec")
				continue
			}
			prims[s.path] = primFromSpec(s)
			order = append(order, s)
		}
	}

	// Attach prims and properties to their parents in spec order, then apply
	// the authored orderings.
	attached := make(map[usd.Path]bool, len(prims))
	for i := range specs {
		s := &specs[i]
		switch s.typ {
		case SpecPrim:
			p, ok := prims[s.path]
			if !ok || attached[s.path] {
				continue
			}
			attached[s.path] = true
			parent, ok := prims[s.path.Parent()]
			if !ok {
				usd.Warnf(diag, usd.WarnUnsupported, s.path, "prim outside the namespace hierarchy (variant?) skipped")
				continue
			}
			parent.AddChild(p)
		case SpecAttribute, SpecRelationship:
			owner, ok := prims[s.path.PrimPath()]
			if !ok || !s.path.IsProperty() {
				usd.Warnf(diag, usd.WarnUnsupported, s.path, "property outside the namespace hierarchy skipped")
				continue
			}
			owner.Attribs = append(owner.Attribs, propertyFromSpec(s, diag))
		case SpecPseudoRoot:
		default:
			usd.Warnf(diag, usd.WarnUnsupported, s.path, "%v spec skipped", s.typ)
		}
	}

	for _, s := range order {
		p := prims[s.path]
		if v, ok := s.get(fieldPrimChildren); ok {
			names, _ := v.Tokens()
			p.Children = orderBy(p.Children, (*usd.Prim).Name, names)
		}
		if v, ok := s.get(fieldProperties); ok {
			names, _ := v.Tokens()
			p.Attribs = orderBy(p.Attribs, func(a usd.Attrib) string {
				if a.IsMetadata() {
					return ""
				}
				return a.Name
			}, names)
		}
	}
	return scene
}

// orderBy moves the items named in names to the front in that order; the rest
// keep their relative order behind them. Items whose key is "" stay first.
func orderBy[T any](items []T, key func(T) string, names []string) []T {
	if len(names) == 0 || len(items) < 2 {
		return items
	}
	rank := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := rank[n]; !ok {
			rank[n] = i
		}
	}
	var fixed, listed, rest []T
	listed = make([]T, 0, len(items))
	slot := make([]int, 0, len(items))
	for _, it := range items {
		k := key(it)
		switch r, ok := rank[k]; {
		case k == "":
			fixed = append(fixed, it)
		case ok:
			listed = append(listed, it)
			slot = append(slot, r)
		default:
			rest = append(rest, it)
		}
	}
	sortByRank(listed, slot)
	out := make([]T, 0, len(items))
	out = append(out, fixed...)
	out = append(out, listed...)
	return append(out, rest...)
}

// sortByRank is a stable insertion sort of items by their parallel ranks.
func sortByRank[T any](items []T, ranks []int) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && ranks[j] < ranks[j-1]; j-- {
			items[j], items[j-1] = items[j-1], items[j]
			ranks[j], ranks[j-1] = ranks[j-1], ranks[j]
		}
	}
}

func metadataAttribs(s *specFields) []usd.Attrib {
	var out []usd.Attrib
	for _, f := range s.fields {
		switch f.name {
		case fieldPrimChildren, fieldProperties, fieldVariantChildren, fieldVariantSetKids:
			continue
		}
		out = append(out, usd.Attrib{Name: f.name, Value: f.value})
	}
	return out
}

func primFromSpec(s *specFields) *usd.Prim {
	p := &usd.Prim{Path: s.path, Specifier: usd.SpecifierOver}
	for _, f := range s.fields {
		switch f.name {
		case fieldSpecifier:
			if spec, ok := f.value.Data.(usd.Specifier); ok {
				p.Specifier = spec
			}
		case fieldTypeName:
			if name, ok := f.value.Token(); ok {
				p.SetTypeName(name)
			}
		case fieldPrimChildren, fieldProperties, fieldVariantChildren, fieldVariantSetKids:
		default:
			p.Attribs = append(p.Attribs, usd.Attrib{Name: f.name, Value: f.value})
		}
	}
	return p
}

func propertyFromSpec(s *specFields, diag usd.Diagnostics) usd.Attrib {
	a := usd.Attrib{Name: s.path.PropertyName(), Rel: s.typ == SpecRelationship}
	var samples *usd.TimeSamples
	for _, f := range s.fields {
		switch f.name {
		case fieldTypeName:
			a.TypeName, _ = f.value.Token()
		case fieldDefault:
			a.Value = f.value
		case fieldTargetPaths:
			if a.Rel {
				a.Value = f.value
			} else {
				a.Metadata = append(a.Metadata, usd.Attrib{Name: f.name, Value: f.value})
			}
		case fieldVariability:
			v, _ := f.value.Data.(usd.Variability)
			a.Uniform = v == usd.VariabilityUniform
		case fieldCustom:
			a.Custom, _ = f.value.Bool()
		case fieldTimeSamples:
			if ts, ok := f.value.Data.(usd.TimeSamples); ok {
				samples = &ts
			}
		default:
			a.Metadata = append(a.Metadata, usd.Attrib{Name: f.name, Value: f.value})
		}
	}
	if samples != nil && len(samples.Values) > 0 {
		if a.Value.IsZero() {
			a.Value = samples.Values[0]
		}
		if len(samples.Values) > 1 {
			usd.Warnf(diag, usd.WarnUnsupported, s.path, "%d time samples, using the first", len(samples.Values))
		}
	}
	if a.Rel {
		if a.Value.IsZero() {
			a.Value = usd.MakeValue(usd.KindPathListOp, usd.PathListOp{})
		}
		return a
	}
	if a.TypeName == "" && !a.Value.IsZero() {
		a.TypeName = usd.TypeName(a.Value.Kind, a.Value.Array)
	}
	if a.TypeName == "" {
		// Keep untyped attributes distinguishable from prim metadata.
		a.TypeName = "unknown"
	}
	return a
}
