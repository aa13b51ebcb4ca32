package usd

// Scene is one decoded layer, or the composed result of several.
type Scene struct {
	// Root is the pseudo-root at "/". Layer metadata (defaultPrim, upAxis,
	// metersPerUnit, doc) is stored as its attribs.
	Root *Prim

	// Source is the file the scene was read from, "" for in-memory input.
	Source string

	// Digest is the hex BLAKE3-256 of the source bytes when known.
	Digest string
}

// NewScene returns an empty scene whose root is attributed to source.
func NewScene(source string) *Scene {
	return &Scene{
		Root:   &Prim{Path: RootPath, Specifier: SpecifierDef, Source: source},
		Source: source,
	}
}

// Metadata returns a layer metadata field.
func (s *Scene) Metadata(name string) (Value, bool) { return s.Root.Value(name) }

// DefaultPrim returns the root child named by the defaultPrim metadata, or nil.
func (s *Scene) DefaultPrim() *Prim {
	v, ok := s.Metadata("defaultPrim")
	if !ok {
		return nil
	}
	name, ok := v.Token()
	if !ok || name == "" {
		return nil
	}
	return s.Root.Child(name)
}

// FindPrim resolves an absolute prim path, or returns nil.
func (s *Scene) FindPrim(path Path) *Prim {
	p := s.Root
	for _, name := range path.PrimPath().Elements() {
		if p = p.Child(name); p == nil {
			return nil
		}
	}
	return p
}

// Walk visits every prim below the root.
func (s *Scene) Walk(fn func(*Prim) bool) {
	for _, c := range s.Root.Children {
		c.Walk(fn)
	}
}

// SetSource attributes the scene and every prim in it to source.
func (s *Scene) SetSource(source string) {
	s.Source = source
	s.Root.Walk(func(p *Prim) bool {
		p.Source = source
		return true
	})
}
