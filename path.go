package usd

import (
	"fmt"
	"strings"
)

// Path addresses a prim, or a property of a prim, in the scene hierarchy.
// Absolute paths start at the pseudo-root "/"; relative paths (produced by
// TrimPrefix) have no leading slash. The zero Path is empty.
type Path struct {
	prim string
	prop string
}

// RootPath is the absolute path of the pseudo-root prim.
var RootPath = Path{prim: "/"}

// ParsePath parses "/A/B", "/A/B.prop", "A/B" or "/".
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	prim, prop := s, ""
	if i := strings.LastIndexByte(s, '.'); i >= 0 && !strings.Contains(s[i:], "/") {
		prim, prop = s[:i], s[i+1:]
		if prop == "" {
			return Path{}, fmt.Errorf("%w: empty property name in path %q", ErrParsing, s)
		}
		if prim == "" {
			return Path{}, fmt.Errorf("%w: property path %q has no prim", ErrParsing, s)
		}
	}
	if prim == "/" {
		return Path{prim: prim, prop: prop}, nil
	}
	body := strings.TrimPrefix(prim, "/")
	for _, elem := range strings.Split(body, "/") {
		if elem == "" {
			return Path{}, fmt.Errorf("%w: empty element in path %q", ErrParsing, s)
		}
	}
	return Path{prim: prim, prop: prop}, nil
}

// MustPath is ParsePath for literals known to be valid; it panics otherwise.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	if p.prop == "" {
		return p.prim
	}
	if p.prim == "/" {
		return "/." + p.prop
	}
	return p.prim + "." + p.prop
}

func (p Path) IsEmpty() bool        { return p.prim == "" && p.prop == "" }
func (p Path) IsRoot() bool         { return p.prim == "/" && p.prop == "" }
func (p Path) IsAbsolute() bool     { return strings.HasPrefix(p.prim, "/") }
func (p Path) IsProperty() bool     { return p.prop != "" }
func (p Path) PrimPath() Path       { return Path{prim: p.prim} }
func (p Path) PropertyName() string { return p.prop }

// Name returns the last element: the property name for property paths, the
// prim's own name otherwise, and "" for the root.
func (p Path) Name() string {
	if p.prop != "" {
		return p.prop
	}
	if p.prim == "/" {
		return ""
	}
	return p.prim[strings.LastIndexByte(p.prim, '/')+1:]
}

// Elements returns the prim-path elements, root excluded.
func (p Path) Elements() []string {
	body := strings.TrimPrefix(p.prim, "/")
	if body == "" {
		return nil
	}
	return strings.Split(body, "/")
}

// Depth is the number of prim elements below the root.
func (p Path) Depth() int {
	body := strings.TrimPrefix(p.prim, "/")
	if body == "" {
		return 0
	}
	return strings.Count(body, "/") + 1
}

// Parent returns the owning prim of a property path, the parent prim of a prim
// path, and the empty path for the root.
func (p Path) Parent() Path {
	if p.prop != "" {
		return Path{prim: p.prim}
	}
	if p.prim == "/" || p.prim == "" {
		return Path{}
	}
	i := strings.LastIndexByte(p.prim, '/')
	switch {
	case i < 0:
		return Path{}
	case i == 0:
		return RootPath
	default:
		return Path{prim: p.prim[:i]}
	}
}

// AppendChild returns the path of a child prim called name.
func (p Path) AppendChild(name string) Path {
	switch p.prim {
	case "":
		return Path{prim: name}
	case "/":
		return Path{prim: "/" + name}
	default:
		return Path{prim: p.prim + "/" + name}
	}
}

// AppendProperty returns the path of the property called name on prim p.
func (p Path) AppendProperty(name string) Path {
	return Path{prim: p.prim, prop: name}
}

// HasPrefix reports whether prefix names p itself or one of its ancestors,
// comparing whole elements.
func (p Path) HasPrefix(prefix Path) bool {
	if prefix.prop != "" {
		return p == prefix
	}
	if prefix.prim == "/" {
		return p.IsAbsolute()
	}
	if !strings.HasPrefix(p.prim, prefix.prim) {
		return false
	}
	rest := p.prim[len(prefix.prim):]
	return rest == "" || rest[0] == '/'
}

// TrimPrefix strips prefix from p and returns the relative remainder, e.g.
// "/World/A/B".TrimPrefix("/World") == "A/B". It returns p unchanged when
// prefix is not a prefix of p, and the empty path when they are equal.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		return p
	}
	if p.PrimPath() == prefix.PrimPath() {
		if p.prop == "" {
			return Path{}
		}
		return Path{prim: ".", prop: p.prop}
	}
	rest := p.prim[len(prefix.prim):]
	return Path{prim: strings.TrimPrefix(rest, "/"), prop: p.prop}
}

// HasSuffix reports whether the trailing elements of p equal the elements of the
// relative path suffix (and the property names match).
func (p Path) HasSuffix(suffix Path) bool {
	if suffix.prop != p.prop {
		return false
	}
	want := suffix.Elements()
	if suffix.prim == "." {
		want = nil
	}
	have := p.Elements()
	if len(want) > len(have) {
		return false
	}
	offset := len(have) - len(want)
	for i, elem := range want {
		if have[offset+i] != elem {
			return false
		}
	}
	return true
}

// ReplacePrefix re-roots p from old onto replacement. Paths outside old are
// returned unchanged.
func (p Path) ReplacePrefix(old, replacement Path) Path {
	if !p.HasPrefix(old) {
		return p
	}
	rel := p.TrimPrefix(old)
	out := replacement
	if rel.prim != "" && rel.prim != "." {
		for _, elem := range rel.Elements() {
			out = out.AppendChild(elem)
		}
	}
	if p.prop != "" {
		out = out.AppendProperty(p.prop)
	}
	return out
}

// MarshalText renders the path for YAML/CBOR/text encoders.
func (p Path) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses the textual form produced by MarshalText.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
