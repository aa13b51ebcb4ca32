package crate

import (
	"fmt"
	"math"
	"slices"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/intcodec"
	"github.com/oy3o/usd/lz4block"
)

// Encode writes scene as a crate file. Every value in the scene must pass
// Value.Validate; kinds without a crate representation fail with
// ErrUnsupportedValue.
func Encode(scene *usd.Scene) ([]byte, error) {
	e := newEncoder()
	e.writeBootstrap()
	e.writeSpecs(scene.Root)
	e.writeSections()
	return e.w.Result()
}

// encoder interns tokens, strings, paths and fields while value data is
// written, then emits the structural sections that index into them.
type encoder struct {
	w *Writer

	tokens      []string
	tokenIndex  map[string]uint32
	strings     []uint32
	stringIndex map[string]uint32
	paths       []usd.Path
	pathParent  []uint32
	pathIndex   map[usd.Path]uint32
	fields      []field
	fieldIndex  map[field]uint32
	fieldSets   []uint32
	specs       []spec

	sections []sectionRecord
}

func newEncoder() *encoder {
	e := &encoder{
		w:           NewWriter(make([]byte, 0, 64*1024)),
		tokenIndex:  make(map[string]uint32),
		stringIndex: make(map[string]uint32),
		pathIndex:   make(map[usd.Path]uint32),
		fieldIndex:  make(map[field]uint32),
	}
	// Token 0 is the empty token, so a negated path element token is never
	// ambiguous. Path 0 is the root.
	e.TokenIndex("")
	e.pathIdx(usd.RootPath)
	return e
}

func (e *encoder) TokenIndex(s string) uint32 {
	if i, ok := e.tokenIndex[s]; ok {
		return i
	}
	i := uint32(len(e.tokens))
	e.tokens = append(e.tokens, s)
	e.tokenIndex[s] = i
	return i
}

func (e *encoder) StringIndex(s string) uint32 {
	if i, ok := e.stringIndex[s]; ok {
		return i
	}
	i := uint32(len(e.strings))
	e.strings = append(e.strings, e.TokenIndex(s))
	e.stringIndex[s] = i
	return i
}

// pathIdx interns p together with its ancestors.
func (e *encoder) pathIdx(p usd.Path) uint32 {
	if p.IsEmpty() {
		return emptyPathIndex
	}
	if i, ok := e.pathIndex[p]; ok {
		return i
	}
	if !p.IsAbsolute() {
		e.w.Fail(fmt.Errorf("%w: relative path %v", ErrUnsupportedValue, p))
		return emptyPathIndex
	}
	var parent uint32
	if !p.IsRoot() {
		parent = e.pathIdx(p.Parent())
		e.TokenIndex(p.Name())
	}
	i := uint32(len(e.paths))
	e.paths = append(e.paths, p)
	e.pathParent = append(e.pathParent, parent)
	e.pathIndex[p] = i
	return i
}

func (e *encoder) writeBootstrap() {
	boot := bootstrap{Version: [8]uint8{writeVersion.Major, writeVersion.Minor, writeVersion.Patch}}
	copy(boot.Ident[:], Magic)
	writeFixed(e.w, &boot)
}

// addField packs v and returns the index of the (name, rep) pair.
func (e *encoder) addField(name string, v usd.Value) uint32 {
	f := field{Token: e.TokenIndex(name), Rep: e.pack(v)}
	if i, ok := e.fieldIndex[f]; ok {
		return i
	}
	i := uint32(len(e.fields))
	e.fields = append(e.fields, f)
	e.fieldIndex[f] = i
	return i
}

type fieldList []namedValue

func (l *fieldList) add(name string, v usd.Value) { *l = append(*l, namedValue{name, v}) }

func (e *encoder) addSpec(path usd.Path, typ SpecType, fields fieldList) {
	start := uint32(len(e.fieldSets))
	for _, f := range fields {
		e.fieldSets = append(e.fieldSets, e.addField(f.name, f.value))
	}
	e.fieldSets = append(e.fieldSets, fieldSetEnd)
	e.specs = append(e.specs, spec{Path: e.pathIdx(path), FieldSet: start, Type: typ})
}

// writeSpecs emits p, its properties and then its children, depth-first.
func (e *encoder) writeSpecs(p *usd.Prim) {
	var fields fieldList
	typ := SpecPseudoRoot
	if !p.Path.IsRoot() {
		typ = SpecPrim
		fields.add(fieldSpecifier, usd.MakeValue(usd.KindSpecifier, p.Specifier))
		if name := p.TypeName(); name != "" {
			fields.add(fieldTypeName, usd.TokenValue(name))
		}
	}
	var props []string
	for _, a := range p.Attribs {
		if a.IsMetadata() {
			fields.add(a.Name, a.Value)
		} else {
			props = append(props, a.Name)
		}
	}
	if len(p.Children) > 0 {
		names := make([]string, len(p.Children))
		for i, c := range p.Children {
			names[i] = c.Name()
		}
		fields.add(fieldPrimChildren, usd.MakeValue(usd.KindTokenVector, names))
	}
	if len(props) > 0 {
		fields.add(fieldProperties, usd.MakeValue(usd.KindTokenVector, props))
	}
	e.addSpec(p.Path, typ, fields)

	for _, a := range p.Attribs {
		if !a.IsMetadata() {
			e.writeProperty(p.Path.AppendProperty(a.Name), a)
		}
	}
	for _, c := range p.Children {
		if e.w.Err() != nil {
			return
		}
		e.writeSpecs(c)
	}
}

func (e *encoder) writeProperty(path usd.Path, a usd.Attrib) {
	var fields fieldList
	typ := SpecAttribute
	if a.Rel {
		typ = SpecRelationship
		if !a.Value.IsZero() {
			fields.add(fieldTargetPaths, a.Value)
		}
	} else {
		fields.add(fieldTypeName, usd.TokenValue(a.TypeName))
		if !a.Value.IsZero() {
			fields.add(fieldDefault, a.Value)
		}
	}
	if a.Uniform {
		fields.add(fieldVariability, usd.MakeValue(usd.KindVariability, usd.VariabilityUniform))
	}
	if a.Custom {
		fields.add(fieldCustom, usd.MakeValue(usd.KindBool, true))
	}
	for _, m := range a.Metadata {
		fields.add(m.Name, m.Value)
	}
	e.addSpec(path, typ, fields)
}

// pack writes any out-of-line data for v at the current position and returns
// the ValueRep that locates it.
func (e *encoder) pack(v usd.Value) ValueRep {
	if e.w.Err() != nil {
		return 0
	}
	if err := v.Validate(); err != nil {
		e.w.Fail(fmt.Errorf("%w: %w", ErrUnsupportedValue, err))
		return 0
	}
	k := v.Kind
	if usd.HasCodec(k) {
		if v.Array {
			return e.packArray(v)
		}
		if payload, ok := usd.EncodeInline(v, e); ok {
			return makeRep(k, repInlined, payload)
		}
		pos := e.w.Count()
		raw, err := usd.EncodeRaw(v, e)
		e.w.Fail(err)
		e.w.WriteBytes(raw)
		return makeRep(k, 0, uint64(pos))
	}

	switch data := v.Data.(type) {
	case usd.Specifier:
		return makeRep(k, repInlined, uint64(data))
	case usd.Permission:
		return makeRep(k, repInlined, uint64(data))
	case usd.Variability:
		return makeRep(k, repInlined, uint64(data))
	case usd.ValueBlock:
		return makeRep(k, repInlined, 0)
	case usd.Dictionary:
		if len(data) == 0 {
			return makeRep(k, repInlined, 0)
		}
	}

	pos := e.w.Count()
	switch k {
	case usd.KindTokenVector:
		writeVector(e, v.Data.([]string), (*encoder).writeToken)
	case usd.KindStringVector:
		writeVector(e, v.Data.([]string), (*encoder).writeString)
	case usd.KindPathVector:
		writeVector(e, v.Data.([]usd.Path), (*encoder).writePath)
	case usd.KindDoubleVector:
		writeVector(e, v.Data.([]float64), (*encoder).writeDouble)
	case usd.KindLayerOffsetVector:
		writeVector(e, v.Data.([]usd.LayerOffset), (*encoder).writeLayerOffset)
	case usd.KindTokenListOp:
		writeListOp(e, v.Data.(usd.ListOp[string]), (*encoder).writeToken)
	case usd.KindStringListOp:
		writeListOp(e, v.Data.(usd.ListOp[string]), (*encoder).writeString)
	case usd.KindPathListOp:
		writeListOp(e, v.Data.(usd.ListOp[usd.Path]), (*encoder).writePath)
	case usd.KindReferenceListOp:
		writeListOp(e, v.Data.(usd.ListOp[usd.Reference]), (*encoder).writeReference)
	case usd.KindPayloadListOp:
		writeListOp(e, v.Data.(usd.ListOp[usd.Reference]), (*encoder).writePayload)
	case usd.KindIntListOp:
		writeListOp(e, v.Data.(usd.ListOp[int32]), (*encoder).writeInt32)
	case usd.KindInt64ListOp:
		writeListOp(e, v.Data.(usd.ListOp[int64]), (*encoder).writeInt64)
	case usd.KindUIntListOp:
		writeListOp(e, v.Data.(usd.ListOp[uint32]), (*encoder).writeUint32)
	case usd.KindUInt64ListOp:
		writeListOp(e, v.Data.(usd.ListOp[uint64]), (*encoder).writeUint64)
	case usd.KindPayload:
		e.writePayload(v.Data.(usd.Reference))
	case usd.KindDictionary:
		e.writeDictionary(v.Data.(usd.Dictionary))
	case usd.KindVariantSelectionMap:
		e.writeVariantSelection(v.Data.(usd.VariantSelectionMap))
	case usd.KindTimeSamples:
		e.writeTimeSamples(v.Data.(usd.TimeSamples))
	default:
		e.w.Fail(fmt.Errorf("%w: %v", ErrUnsupportedValue, k))
		return 0
	}
	return makeRep(k, 0, uint64(pos))
}

func (e *encoder) packArray(v usd.Value) ValueRep {
	k := v.Kind
	n := v.Len()
	if n == 0 {
		return makeRep(k, repArray, 0)
	}
	pos := uint64(e.w.Count())
	e.w.WriteUint64(uint64(n))
	if n >= minCompressedArraySize {
		compressed := true
		switch data := v.Data.(type) {
		case []int32:
			writeCompressedInts(e.w, data)
		case []uint32:
			writeCompressedInts(e.w, convert(data, func(x uint32) int32 { return int32(x) }))
		case []int64:
			writeCompressedInts(e.w, data)
		case []uint64:
			writeCompressedInts(e.w, convert(data, func(x uint64) int64 { return int64(x) }))
		case []usd.Half:
			compressed = writeCompressedFloats(e, k, data,
				func(h usd.Half) float64 { return float64(h.Float32()) },
				func(h usd.Half) uint64 { return uint64(h.Bits()) })
		case []float32:
			compressed = writeCompressedFloats(e, k, data,
				func(f float32) float64 { return float64(f) },
				func(f float32) uint64 { return uint64(math.Float32bits(f)) })
		case []float64:
			compressed = writeCompressedFloats(e, k, data,
				func(f float64) float64 { return f },
				math.Float64bits)
		default:
			compressed = false
		}
		if compressed {
			return makeRep(k, repArray|repCompressed, pos)
		}
	}
	raw, err := usd.EncodeRaw(v, e)
	e.w.Fail(err)
	e.w.WriteBytes(raw)
	return makeRep(k, repArray, pos)
}

func writeCompressedInts[T intcodec.Integer](w *Writer, values []T) {
	comp, err := lz4block.CompressContainer(intcodec.Encode(values))
	if err != nil {
		w.Fail(err)
		return
	}
	w.WriteUint64(uint64(len(comp)))
	w.WriteBytes(comp)
}

// writeCompressedFloats stores integral arrays as compressed ints ('i') and
// arrays with few distinct values as a lookup table plus indices ('t'). It
// writes nothing and returns false when neither encoding applies.
func writeCompressedFloats[T any](e *encoder, k usd.Kind, data []T, toFloat func(T) float64, bits func(T) uint64) bool {
	ints := make([]int32, len(data))
	integral := true
	for i, v := range data {
		f := toFloat(v)
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 || (f == 0 && math.Signbit(f)) {
			integral = false
			break
		}
		ints[i] = int32(f)
	}
	if integral {
		e.w.WriteInt8('i')
		writeCompressedInts(e.w, ints)
		return true
	}

	const maxLUT = 1024
	slot := make(map[uint64]int32)
	var lut []T
	indexes := ints
	for i, v := range data {
		b := bits(v)
		idx, ok := slot[b]
		if !ok {
			if len(lut) >= maxLUT || len(lut) >= len(data)/4 {
				return false
			}
			idx = int32(len(lut))
			slot[b] = idx
			lut = append(lut, v)
		}
		indexes[i] = idx
	}
	raw, err := usd.EncodeRaw(usd.MakeArray(k, lut), e)
	if err != nil {
		e.w.Fail(err)
		return true
	}
	e.w.WriteInt8('t')
	e.w.WriteUint32(uint32(len(lut)))
	e.w.WriteBytes(raw)
	writeCompressedInts(e.w, indexes)
	return true
}

func (e *encoder) writeToken(s string)  { e.w.WriteUint32(e.TokenIndex(s)) }
func (e *encoder) writeString(s string) { e.w.WriteUint32(e.StringIndex(s)) }
func (e *encoder) writePath(p usd.Path) { e.w.WriteUint32(e.pathIdx(p)) }
func (e *encoder) writeDouble(f float64) { e.w.WriteFloat64(f) }
func (e *encoder) writeInt32(v int32)    { e.w.WriteInt32(v) }
func (e *encoder) writeInt64(v int64)    { e.w.WriteInt64(v) }
func (e *encoder) writeUint32(v uint32)  { e.w.WriteUint32(v) }
func (e *encoder) writeUint64(v uint64)  { e.w.WriteUint64(v) }

func (e *encoder) writeLayerOffset(o usd.LayerOffset) {
	e.w.WriteFloat64(o.Offset)
	e.w.WriteFloat64(o.Scale)
}

func writeVector[T any](e *encoder, items []T, elem func(*encoder, T)) {
	e.w.WriteUint64(uint64(len(items)))
	for _, it := range items {
		elem(e, it)
	}
}

func writeListOp[T any](e *encoder, op usd.ListOp[T], elem func(*encoder, T)) {
	var header uint8
	if op.Explicit {
		header |= listOpExplicit
	}
	lists := []struct {
		bit   uint8
		items []T
	}{
		{listOpHasExplicit, op.ExplicitItems},
		{listOpHasAdded, op.AddedItems},
		{listOpHasPrepended, op.PrependedItems},
		{listOpHasAppended, op.AppendedItems},
		{listOpHasDeleted, op.DeletedItems},
		{listOpHasOrdered, op.OrderedItems},
	}
	for _, l := range lists {
		if len(l.items) > 0 {
			header |= l.bit
		}
	}
	e.w.WriteUint8(header)
	for _, l := range lists {
		if len(l.items) > 0 {
			writeVector(e, l.items, elem)
		}
	}
}

func (e *encoder) writeReference(ref usd.Reference) {
	e.writeString(ref.AssetPath)
	e.writePath(ref.PrimPath)
	e.writeLayerOffset(ref.LayerOffset)
	e.writeDictionary(ref.CustomData)
}

func (e *encoder) writePayload(ref usd.Reference) {
	e.writeString(ref.AssetPath)
	e.writePath(ref.PrimPath)
	e.writeLayerOffset(ref.LayerOffset)
}

// writeNested writes a forward offset, v's out-of-line data and then v's
// ValueRep, patching the offset to point at the ValueRep.
func (e *encoder) writeNested(v usd.Value) {
	offsetAt := e.w.Count()
	e.w.WriteInt64(0)
	rep := e.pack(v)
	e.w.PatchUint64(offsetAt, uint64(e.w.Count()-offsetAt))
	e.w.WriteUint64(uint64(rep))
}

func (e *encoder) writeDictionary(dict usd.Dictionary) {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.w.WriteUint64(uint64(len(keys)))
	for _, k := range keys {
		e.writeString(k)
		e.writeNested(dict[k])
	}
}

func (e *encoder) writeVariantSelection(m usd.VariantSelectionMap) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.w.WriteUint64(uint64(len(keys)))
	for _, k := range keys {
		e.writeString(k)
		e.writeString(m[k])
	}
}

func (e *encoder) writeTimeSamples(ts usd.TimeSamples) {
	if len(ts.Times) != len(ts.Values) {
		e.w.Fail(fmt.Errorf("%w: %d sample times but %d values", ErrUnsupportedValue, len(ts.Times), len(ts.Values)))
		return
	}
	e.writeNested(usd.MakeValue(usd.KindDoubleVector, ts.Times))

	offsetAt := e.w.Count()
	e.w.WriteInt64(0)
	reps := make([]ValueRep, len(ts.Values))
	for i, v := range ts.Values {
		reps[i] = e.pack(v)
	}
	e.w.PatchUint64(offsetAt, uint64(e.w.Count()-offsetAt))
	writeVector(e, reps, func(e *encoder, r ValueRep) { e.w.WriteUint64(uint64(r)) })
}

// --- Structural sections ---

func (e *encoder) section(name string, write func()) {
	start := e.w.Count()
	write()
	var rec sectionRecord
	copy(rec.Name[:], name)
	rec.Start = start
	rec.Size = e.w.Count() - start
	e.sections = append(e.sections, rec)
}

func uints(values []uint32) []int32 {
	return convert(values, func(v uint32) int32 { return int32(v) })
}

func (e *encoder) writeSections() {
	// Path element tokens must be interned before TOKENS is written.
	pathIndexes, elements, jumps := e.pathTree()

	e.section(sectionTokens, func() {
		var raw []byte
		for _, t := range e.tokens {
			raw = append(raw, t...)
			raw = append(raw, 0)
		}
		comp, err := lz4block.CompressContainer(raw)
		e.w.Fail(err)
		e.w.WriteUint64(uint64(len(e.tokens)))
		e.w.WriteUint64(uint64(len(raw)))
		e.w.WriteUint64(uint64(len(comp)))
		e.w.WriteBytes(comp)
	})
	e.section(sectionStrings, func() {
		writeVector(e, e.strings, (*encoder).writeUint32)
	})
	e.section(sectionFields, func() {
		tokens := make([]int32, len(e.fields))
		reps := make([]byte, 0, 8*len(e.fields))
		for i, f := range e.fields {
			tokens[i] = int32(f.Token)
			reps = e.w.order.AppendUint64(reps, uint64(f.Rep))
		}
		e.w.WriteUint64(uint64(len(e.fields)))
		writeCompressedInts(e.w, tokens)
		comp, err := lz4block.CompressContainer(reps)
		e.w.Fail(err)
		e.w.WriteUint64(uint64(len(comp)))
		e.w.WriteBytes(comp)
	})
	e.section(sectionFieldSets, func() {
		e.w.WriteUint64(uint64(len(e.fieldSets)))
		writeCompressedInts(e.w, uints(e.fieldSets))
	})
	e.section(sectionPaths, func() {
		e.w.WriteUint64(uint64(len(e.paths)))
		e.w.WriteUint64(uint64(len(pathIndexes)))
		writeCompressedInts(e.w, uints(pathIndexes))
		writeCompressedInts(e.w, elements)
		writeCompressedInts(e.w, jumps)
	})
	e.section(sectionSpecs, func() {
		paths := make([]int32, len(e.specs))
		sets := make([]int32, len(e.specs))
		types := make([]int32, len(e.specs))
		for i, s := range e.specs {
			paths[i], sets[i], types[i] = int32(s.Path), int32(s.FieldSet), int32(s.Type)
		}
		e.w.WriteUint64(uint64(len(e.specs)))
		writeCompressedInts(e.w, paths)
		writeCompressedInts(e.w, sets)
		writeCompressedInts(e.w, types)
	})

	tocOffset := e.w.Count()
	e.w.WriteUint64(uint64(len(e.sections)))
	for i := range e.sections {
		writeFixed(e.w, &e.sections[i])
	}
	e.w.PatchUint64(16, uint64(tocOffset))
}

// pathTree encodes the path table in pre-order, the inverse of buildPaths.
func (e *encoder) pathTree() (indexes []uint32, elements, jumps []int32) {
	children := make([][]uint32, len(e.paths))
	for i := 1; i < len(e.paths); i++ {
		parent := e.pathParent[i]
		children[parent] = append(children[parent], uint32(i))
	}
	var visit func(idx uint32, last bool)
	visit = func(idx uint32, last bool) {
		at := len(jumps)
		indexes = append(indexes, idx)
		elements = append(elements, e.elementToken(idx))
		jumps = append(jumps, 0)
		kids := children[idx]
		for j, c := range kids {
			visit(c, j == len(kids)-1)
		}
		switch hasChild := len(kids) > 0; {
		case hasChild && !last:
			jumps[at] = int32(len(jumps) - at)
		case hasChild:
			jumps[at] = -1
		case !last:
			jumps[at] = 0
		default:
			jumps[at] = -2
		}
	}
	visit(0, true)
	return indexes, elements, jumps
}

func (e *encoder) elementToken(idx uint32) int32 {
	p := e.paths[idx]
	switch {
	case p.IsRoot():
		return 0
	case p.IsProperty():
		return -int32(e.TokenIndex(p.PropertyName()))
	default:
		return int32(e.TokenIndex(p.Name()))
	}
}
