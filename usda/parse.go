// Package usda parses the text encoding of scene description layers into the
// same usd.Scene model the crate decoder produces.
package usda

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/oy3o/usd"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse parses a text layer. diag may be nil; it receives the constructs that
// are skipped rather than failing the parse (variant sets, extra time samples,
// attributes of unknown type).
func Parse(src []byte, diag usd.Diagnostics) (*usd.Scene, error) {
	src = bytes.TrimPrefix(src, utf8BOM)
	if !HasHeader(src) {
		return nil, fmt.Errorf("%w: missing #usda header", usd.ErrFormat)
	}
	toks, err := lex(string(src))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, diag: diag}
	scene := p.layer()
	if p.err != nil {
		return nil, p.err
	}
	return scene, nil
}

// HasHeader reports whether the first non-blank line of src is the "#usda"
// marker.
func HasHeader(src []byte) bool {
	src = bytes.TrimPrefix(src, utf8BOM)
	for len(src) > 0 {
		line := src
		if i := bytes.IndexByte(src, '\n'); i >= 0 {
			line, src = src[:i], src[i+1:]
		} else {
			src = nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return len(line) >= 5 && bytes.EqualFold(line[:5], []byte("#usda"))
	}
	return false
}

// parser is a recursive-descent parser over a token slice. Like crate.Reader
// it keeps the first error: once err is set every method returns zero values
// and loops see end of input.
type parser struct {
	toks []token
	pos  int
	err  error
	diag usd.Diagnostics
}

func (p *parser) peek() token {
	if p.err != nil {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

// peekAt looks n tokens past the current one.
func (p *parser) peekAt(n int) token {
	if p.err != nil || p.pos+n >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.peek()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) failf(t token, format string, args ...any) {
	if p.err != nil {
		return
	}
	if t.line == 0 && p.pos < len(p.toks) {
		t = p.toks[p.pos]
	}
	p.err = &SyntaxError{Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) isIdent(s string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == s
}

func (p *parser) accept(s string) bool {
	if p.isPunct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) {
	if !p.accept(s) {
		t := p.peek()
		p.failf(t, "expected %q, found %v", s, t)
	}
}

func (p *parser) ident() token {
	t := p.next()
	if t.kind != tokIdent {
		p.failf(t, "expected an identifier, found %v", t)
	}
	return t
}

func (p *parser) done() bool { return p.peek().kind == tokEOF }

func (p *parser) layer() *usd.Scene {
	scene := usd.NewScene("")
	if p.isPunct("(") {
		scene.Root.Attribs = p.metadata(usd.RootPath, nil)
	}
	for !p.done() {
		if prim := p.prim(usd.RootPath); prim != nil {
			scene.Root.AddChild(prim)
		}
	}
	return scene
}

// prim parses "specifier [type] name [(metadata)] { body }".
func (p *parser) prim(parent usd.Path) *usd.Prim {
	t := p.ident()
	spec, ok := usd.ParseSpecifier(t.text)
	if !ok {
		p.failf(t, "expected def, over or class, found %v", t)
		return nil
	}
	typeName := ""
	if p.peek().kind == tokIdent {
		typeName = p.next().text
	}
	nameTok := p.next()
	if nameTok.kind != tokString {
		p.failf(nameTok, "expected a prim name, found %v", nameTok)
		return nil
	}
	if nameTok.text == "" || strings.ContainsAny(nameTok.text, "/.<>[]{}") {
		p.failf(nameTok, "invalid prim name %q", nameTok.text)
		return nil
	}

	prim := usd.NewPrim(parent, nameTok.text, spec, typeName)
	if p.isPunct("(") {
		prim.Attribs = p.metadata(prim.Path, nil)
	}
	p.expect("{")
	for p.err == nil && !p.accept("}") {
		switch t := p.peek(); {
		case t.kind == tokEOF:
			p.failf(t, "unterminated prim %v", prim.Path)
		case t.kind == tokIdent && isSpecifier(t.text) && p.peekAt(1).kind != tokPunct:
			if child := p.prim(prim.Path); child != nil {
				prim.AddChild(child)
			}
		case p.isIdent("variantSet"):
			p.variantSet(prim.Path)
		case p.isIdent("reorder") && (p.peekAt(1).text == "nameChildren" || p.peekAt(1).text == "properties"):
			// Children and properties are kept in authored order.
			p.next()
			p.next()
			p.expect("=")
			p.literal()
		default:
			p.property(prim)
		}
	}
	if p.err != nil {
		return nil
	}
	return prim
}

func isSpecifier(s string) bool {
	_, ok := usd.ParseSpecifier(s)
	return ok
}

// variantSet skips a variantSet block. Variants are not composed.
func (p *parser) variantSet(owner usd.Path) {
	p.next()
	name := p.next()
	p.expect("=")
	if p.isPunct("{") {
		p.skipScope()
	} else {
		p.failf(p.peek(), "expected a variant set body")
	}
	usd.Warnf(p.diag, usd.WarnUnsupported, owner, "variantSet %q skipped", name.text)
}

// skipScope consumes a balanced (), [] or {} group starting at the current token.
func (p *parser) skipScope() {
	open := p.next()
	depth := 1
	for depth > 0 {
		t := p.next()
		switch {
		case t.kind == tokEOF:
			p.failf(open, "unbalanced %q", open.text)
			return
		case t.kind != tokPunct:
		case t.text == "(" || t.text == "[" || t.text == "{":
			depth++
		case t.text == ")" || t.text == "]" || t.text == "}":
			depth--
		}
	}
}

// metadata parses a parenthesized metadata list into attribs, merging into
// have. A bare leading string is the documentation field.
func (p *parser) metadata(owner usd.Path, have []usd.Attrib) []usd.Attrib {
	p.expect("(")
	attrs := have
	for p.err == nil && !p.accept(")") {
		if p.accept(";") {
			continue
		}
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			p.failf(t, "unterminated metadata")
			return attrs
		case t.kind == tokString:
			p.next()
			attrs = setAttrib(attrs, usd.Attrib{Name: "documentation", Value: usd.MakeValue(usd.KindString, t.text)})
			continue
		}
		verb := ""
		if t.kind == tokIdent && isListVerb(t.text) && p.peekAt(1).kind == tokIdent {
			verb = p.next().text
		}
		key := p.ident()
		p.expect("=")
		attrs = p.metadataValue(attrs, owner, key, metadataName(key.text), verb)
	}
	return attrs
}

func (p *parser) metadataValue(attrs []usd.Attrib, owner usd.Path, key token, name, verb string) []usd.Attrib {
	k, known := metadataKinds[name]
	if verb != "" && (!known || !k.IsListOp()) {
		p.failf(key, "%s is not a list edit target", key.text)
		return attrs
	}
	if !known {
		if p.isPunct("{") {
			p.skipScope()
			usd.Warnf(p.diag, usd.WarnUnsupported, owner, "metadata %s skipped", name)
			return attrs
		}
		lit := p.literal()
		v, ok := inferValue(lit)
		if !ok {
			usd.Warnf(p.diag, usd.WarnUnsupported, owner, "metadata %s = %v skipped", name, lit)
			return attrs
		}
		return setAttrib(attrs, usd.Attrib{Name: name, Value: v})
	}

	var v usd.Value
	switch k {
	case usd.KindReferenceListOp, usd.KindPayloadListOp:
		op := listOpOf[usd.Reference](attrs, name)
		applyListOp(&op, verb, p.references())
		v = usd.MakeValue(k, op)
	case usd.KindTokenListOp, usd.KindStringListOp:
		op := listOpOf[string](attrs, name)
		applyListOp(&op, verb, p.stringList(key))
		v = usd.MakeValue(k, op)
	case usd.KindPathListOp:
		op := listOpOf[usd.Path](attrs, name)
		applyListOp(&op, verb, p.targets(owner))
		v = usd.MakeValue(k, op)
	case usd.KindDictionary:
		v = usd.MakeValue(k, p.dictionary(owner))
	case usd.KindVariantSelectionMap:
		v = usd.MakeValue(k, p.variantSelections())
	case usd.KindStringVector:
		v = usd.MakeValue(k, p.assets())
	default:
		lit := p.literal()
		var err error
		if v, err = usd.ParseLiteral(k, false, lit); err != nil {
			p.failf(key, "%s: %v", key.text, err)
		}
	}
	if p.err != nil {
		return attrs
	}
	return setAttrib(attrs, usd.Attrib{Name: name, Value: v})
}

// literal parses one value: an atom, a quoted string, an asset path, a path,
// or a tuple or list of literals.
func (p *parser) literal() usd.Literal {
	t := p.next()
	switch t.kind {
	case tokIdent, tokNumber:
		return usd.Literal{Kind: usd.LitAtom, Text: t.text}
	case tokString:
		return usd.Literal{Kind: usd.LitString, Text: t.text}
	case tokAsset:
		return usd.Literal{Kind: usd.LitAsset, Text: t.text}
	case tokPath:
		return usd.Literal{Kind: usd.LitPath, Text: t.text}
	case tokPunct:
		switch t.text {
		case "(":
			return p.sequence(usd.LitTuple, ")")
		case "[":
			return p.sequence(usd.LitList, "]")
		}
	}
	p.failf(t, "expected a value, found %v", t)
	return usd.Literal{}
}

func (p *parser) sequence(kind usd.LiteralKind, closing string) usd.Literal {
	lit := usd.Literal{Kind: kind}
	for p.err == nil && !p.accept(closing) {
		lit.Items = append(lit.Items, p.literal())
		if !p.accept(",") {
			p.expect(closing)
			break
		}
	}
	return lit
}

func isNone(l usd.Literal) bool { return l.Kind == usd.LitAtom && l.Text == "None" }

// list parses None, a single item, or a bracketed list of items.
func list[T any](p *parser, item func() T) []T {
	if p.isIdent("None") {
		p.next()
		return nil
	}
	if !p.accept("[") {
		return []T{item()}
	}
	var out []T
	for p.err == nil && !p.accept("]") {
		out = append(out, item())
		if !p.accept(",") {
			p.expect("]")
			break
		}
	}
	return out
}

func (p *parser) stringList(key token) []string {
	return list(p, func() string {
		t := p.next()
		if t.kind != tokString && t.kind != tokIdent {
			p.failf(t, "%s: expected a string, found %v", key.text, t)
		}
		return t.text
	})
}

// targets parses relationship targets and connections. Relative paths are
// anchored at the owning prim.
func (p *parser) targets(owner usd.Path) []usd.Path {
	return list(p, func() usd.Path {
		t := p.next()
		if t.kind != tokPath {
			p.failf(t, "expected a path, found %v", t)
			return usd.Path{}
		}
		path, err := resolvePath(owner.PrimPath(), t.text)
		if err != nil {
			p.failf(t, "%v", err)
		}
		return path
	})
}

// references parses reference and payload items: "@asset@", "@asset@</Prim>"
// or "</Prim>", each optionally followed by a layer offset in parentheses.
func (p *parser) references() []usd.Reference {
	return list(p, func() usd.Reference {
		ref := usd.Reference{LayerOffset: usd.IdentityLayerOffset}
		start := p.peek()
		if start.kind == tokAsset {
			ref.AssetPath = p.next().text
		}
		if t := p.peek(); t.kind == tokPath {
			p.next()
			path, err := usd.ParsePath(t.text)
			if err != nil || (!path.IsEmpty() && !path.IsAbsolute()) {
				p.failf(t, "invalid reference prim path <%s>", t.text)
			}
			ref.PrimPath = path
		}
		if ref.AssetPath == "" && ref.PrimPath.IsEmpty() && start.kind != tokAsset {
			p.failf(start, "expected a reference, found %v", start)
			return ref
		}
		if p.isPunct("(") {
			ref.LayerOffset, ref.CustomData = p.layerOffset()
		}
		return ref
	})
}

// layerOffset parses "(offset = x; scale = y)", which may also carry the
// arc's customData.
func (p *parser) layerOffset() (usd.LayerOffset, usd.Dictionary) {
	lo := usd.IdentityLayerOffset
	var custom usd.Dictionary
	p.expect("(")
	for p.err == nil && !p.accept(")") {
		if p.accept(";") {
			continue
		}
		key := p.ident()
		p.expect("=")
		switch key.text {
		case "offset", "scale":
			v, err := usd.ParseLiteral(usd.KindDouble, false, p.literal())
			if err != nil {
				p.failf(key, "%s: %v", key.text, err)
				break
			}
			f, _ := v.Float64()
			if key.text == "offset" {
				lo.Offset = f
			} else {
				lo.Scale = f
			}
		case "customData":
			custom = p.dictionary(usd.Path{})
		default:
			p.failf(key, "unknown layer offset field %s", key.text)
		}
	}
	return lo, custom
}

// assets parses a subLayers list. Per-layer offsets are read and dropped.
func (p *parser) assets() []string {
	return list(p, func() string {
		t := p.next()
		if t.kind != tokAsset {
			p.failf(t, "expected an asset path, found %v", t)
		}
		if p.isPunct("(") {
			p.layerOffset()
		}
		return t.text
	})
}

// dictionary parses "{ type key = value ... }"; nested dictionaries use the
// type name "dictionary".
func (p *parser) dictionary(owner usd.Path) usd.Dictionary {
	d := usd.Dictionary{}
	p.expect("{")
	for p.err == nil && !p.accept("}") {
		if p.accept(";") {
			continue
		}
		typeTok := p.ident()
		typeName := typeTok.text
		if p.accept("[") {
			p.expect("]")
			typeName += "[]"
		}
		keyTok := p.next()
		if keyTok.kind != tokIdent && keyTok.kind != tokString {
			p.failf(keyTok, "expected a dictionary key, found %v", keyTok)
			break
		}
		p.expect("=")
		if typeName == "dictionary" {
			d[keyTok.text] = usd.MakeValue(usd.KindDictionary, p.dictionary(owner))
			continue
		}
		lit := p.literal()
		k, array, err := usd.LookupTypeName(typeName)
		if err != nil {
			usd.Warnf(p.diag, usd.WarnUnsupported, owner, "dictionary entry %s of type %s skipped", keyTok.text, typeName)
			continue
		}
		v, err := usd.ParseLiteral(k, array, lit)
		if err != nil {
			p.failf(keyTok, "%s: %v", keyTok.text, err)
			break
		}
		d[keyTok.text] = v
	}
	return d
}

// variantSelections parses "{ string set = "variant" ... }".
func (p *parser) variantSelections() usd.VariantSelectionMap {
	m := usd.VariantSelectionMap{}
	p.expect("{")
	for p.err == nil && !p.accept("}") {
		if p.accept(";") {
			continue
		}
		if t := p.ident(); t.text != "string" {
			p.failf(t, "variant selections are strings, found %s", t.text)
			break
		}
		key := p.next()
		p.expect("=")
		val := p.next()
		if val.kind != tokString {
			p.failf(val, "expected a variant name, found %v", val)
			break
		}
		m[key.text] = val.text
	}
	return m
}

// property parses an attribute or relationship declaration and merges it
// into prim. The ".connect" and ".timeSamples" forms add to an attribute
// declared on another line.
func (p *parser) property(prim *usd.Prim) {
	var a usd.Attrib
	verb := ""
qualifiers:
	for t := p.peek(); t.kind == tokIdent; t = p.peek() {
		switch {
		case t.text == "custom":
			a.Custom = true
		case t.text == "uniform":
			a.Uniform = true
		case t.text == "varying":
		case isListVerb(t.text):
			verb = t.text
		default:
			break qualifiers
		}
		p.next()
	}
	if p.isIdent("rel") {
		p.next()
		p.relationship(prim, a, verb)
		return
	}

	typeTok := p.ident()
	typeName := typeTok.text
	if p.accept("[") {
		p.expect("]")
		typeName += "[]"
	}
	nameTok := p.ident()
	if p.err != nil {
		return
	}
	name, suffix := nameTok.text, ""
	for _, s := range [...]string{"connect", "timeSamples"} {
		if base, ok := strings.CutSuffix(name, "."+s); ok {
			name, suffix = base, s
		}
	}
	if verb != "" && suffix != "connect" {
		p.failf(nameTok, "%s on attribute %s", verb, name)
		return
	}
	path := prim.Path.AppendProperty(name)

	k, array, err := usd.LookupTypeName(typeName)
	if err != nil {
		usd.Warnf(p.diag, usd.WarnUnsupported, path, "attribute of type %s skipped", typeName)
		if p.accept("=") {
			p.skipValue()
		}
		if p.isPunct("(") {
			p.skipScope()
		}
		return
	}

	have, _ := findAttrib(prim.Attribs, name)
	a.Name = name
	a.TypeName = typeName
	a.Custom = a.Custom || have.Custom
	a.Uniform = a.Uniform || have.Uniform
	a.Value = have.Value
	a.Metadata = have.Metadata

	switch suffix {
	case "connect":
		p.expect("=")
		op := listOpOf[usd.Path](a.Metadata, "connectionPaths")
		applyListOp(&op, verb, p.targets(path))
		a.Metadata = setAttrib(a.Metadata, usd.Attrib{Name: "connectionPaths", Value: usd.MakeValue(usd.KindPathListOp, op)})
	case "timeSamples":
		p.expect("=")
		first, n := p.timeSamples(path, k, array)
		if a.Value.IsZero() {
			a.Value = first
		}
		if n > 1 {
			usd.Warnf(p.diag, usd.WarnUnsupported, path, "%d time samples, using the first", n)
		}
	default:
		if p.accept("=") {
			a.Value = p.attributeValue(nameTok, k, array)
		}
	}
	if p.isPunct("(") {
		a.Metadata = p.metadata(path, a.Metadata)
	}
	if p.err == nil {
		prim.Attribs = setAttrib(prim.Attribs, a)
	}
}

func (p *parser) attributeValue(at token, k usd.Kind, array bool) usd.Value {
	lit := p.literal()
	if isNone(lit) {
		return usd.MakeValue(usd.KindValueBlock, usd.ValueBlock{})
	}
	v, err := usd.ParseLiteral(k, array, lit)
	if err != nil {
		p.failf(at, "%s: %v", at.text, err)
	}
	return v
}

// timeSamples parses "{ time: value, ... }" and returns the first sample and
// the sample count.
func (p *parser) timeSamples(path usd.Path, k usd.Kind, array bool) (usd.Value, int) {
	var first usd.Value
	n := 0
	p.expect("{")
	for p.err == nil && !p.accept("}") {
		t := p.next()
		if t.kind != tokNumber {
			p.failf(t, "expected a sample time, found %v", t)
			break
		}
		p.expect(":")
		v := p.attributeValue(t, k, array)
		if n == 0 {
			first = v
		}
		n++
		if !p.accept(",") {
			p.expect("}")
			break
		}
	}
	return first, n
}

// relationship parses "rel name [= targets] [(metadata)]". a carries the
// qualifiers already read.
func (p *parser) relationship(prim *usd.Prim, a usd.Attrib, verb string) {
	nameTok := p.ident()
	if p.err != nil {
		return
	}
	path := prim.Path.AppendProperty(nameTok.text)
	have, _ := findAttrib(prim.Attribs, nameTok.text)
	op, _ := have.Value.Data.(usd.PathListOp)
	if p.accept("=") {
		applyListOp(&op, verb, p.targets(path))
	}
	a.Name = nameTok.text
	a.Rel = true
	a.Custom = a.Custom || have.Custom
	a.Value = usd.MakeValue(usd.KindPathListOp, op)
	a.Metadata = have.Metadata
	if p.isPunct("(") {
		a.Metadata = p.metadata(path, a.Metadata)
	}
	if p.err == nil {
		prim.Attribs = setAttrib(prim.Attribs, a)
	}
}

// skipValue consumes one literal or a braced block.
func (p *parser) skipValue() {
	if p.isPunct("{") {
		p.skipScope()
		return
	}
	p.literal()
}

// resolvePath parses a target path; relative ones ("Child", "../Sibling",
// ".prop") are anchored at the prim path anchor.
func resolvePath(anchor usd.Path, text string) (usd.Path, error) {
	if strings.HasPrefix(text, "/") {
		return usd.ParsePath(text)
	}
	if strings.HasPrefix(text, ".") && !strings.HasPrefix(text, "./") && !strings.HasPrefix(text, "../") && text != "." && text != ".." {
		return usd.ParsePath(anchor.String() + text)
	}
	rel, err := usd.ParsePath(text)
	if err != nil {
		return usd.Path{}, err
	}
	cur := anchor
	for _, elem := range rel.Elements() {
		switch elem {
		case ".":
		case "..":
			cur = cur.Parent()
			if cur.IsEmpty() {
				return usd.Path{}, fmt.Errorf("%w: path <%s> escapes the root", usd.ErrParsing, text)
			}
		default:
			cur = cur.AppendChild(elem)
		}
	}
	if name := rel.PropertyName(); name != "" {
		cur = cur.AppendProperty(name)
	}
	return cur, nil
}
