package crate

import (
	"fmt"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/lz4block"
	"github.com/x448/float16"
)

// decoder turns ValueReps into values. All reads go through the sticky Reader,
// so helpers only check for errors where they must stop early.
type decoder struct {
	*tables
	r       *Reader
	version Version
	diag    usd.Diagnostics
	depth   int
}

func (d *decoder) readCount() int {
	if d.version.AtLeast(Version{0, 7, 0}) {
		var n uint64
		d.r.ReadUint64(&n)
		return d.checkCount(n)
	}
	var n uint32
	d.r.ReadUint32(&n)
	return d.checkCount(uint64(n))
}

// checkCount rejects element counts that would need more than the rest of
// the file even at the best compression ratio.
func (d *decoder) checkCount(n uint64) int {
	if d.r.Err() == nil && n > 256*uint64(d.r.Available())+minCompressedArraySize {
		d.r.Fail(fmt.Errorf("%w: %d elements at offset %d", usd.ErrParsing, n, d.r.Tell()))
		return 0
	}
	return int(n)
}

func (d *decoder) readIndex() uint32 {
	var i uint32
	d.r.ReadUint32(&i)
	return i
}

func (d *decoder) readToken() string {
	s, err := d.Token(d.readIndex())
	d.r.Fail(err)
	return s
}

func (d *decoder) readString() string {
	s, err := d.String(d.readIndex())
	d.r.Fail(err)
	return s
}

func (d *decoder) readPath() usd.Path {
	p, err := d.Path(d.readIndex())
	d.r.Fail(err)
	return p
}

func (d *decoder) readDouble() float64 {
	var f float64
	d.r.ReadFloat64(&f)
	return f
}

func (d *decoder) readLayerOffset() usd.LayerOffset {
	return usd.LayerOffset{Offset: d.readDouble(), Scale: d.readDouble()}
}

func readInt32(d *decoder) int32 {
	var v int32
	d.r.ReadInt32(&v)
	return v
}

func readInt64(d *decoder) int64 {
	var v int64
	d.r.ReadInt64(&v)
	return v
}

func readUint32(d *decoder) uint32 {
	var v uint32
	d.r.ReadUint32(&v)
	return v
}

func readUint64(d *decoder) uint64 {
	var v uint64
	d.r.ReadUint64(&v)
	return v
}

// readVector reads a uint64 count followed by that many elements.
func readVector[T any](d *decoder, elem func(*decoder) T) []T {
	var n uint64
	d.r.ReadUint64(&n)
	if d.r.Err() != nil {
		return nil
	}
	if n > uint64(d.r.Available()) {
		d.r.Fail(fmt.Errorf("%w: vector of %d at offset %d", ErrTruncated, n, d.r.Tell()))
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := uint64(0); i < n && d.r.Err() == nil; i++ {
		out = append(out, elem(d))
	}
	return out
}

// List-op header bits.
const (
	listOpExplicit     = 1 << 0
	listOpHasExplicit  = 1 << 1
	listOpHasAdded     = 1 << 2
	listOpHasDeleted   = 1 << 3
	listOpHasOrdered   = 1 << 4
	listOpHasPrepended = 1 << 5
	listOpHasAppended  = 1 << 6
)

func readListOp[T any](d *decoder, elem func(*decoder) T) usd.ListOp[T] {
	var header uint8
	d.r.ReadUint8(&header)
	var op usd.ListOp[T]
	op.Explicit = header&listOpExplicit != 0
	if header&listOpHasExplicit != 0 {
		op.ExplicitItems = readVector(d, elem)
	}
	if header&listOpHasAdded != 0 {
		op.AddedItems = readVector(d, elem)
	}
	if header&listOpHasPrepended != 0 {
		op.PrependedItems = readVector(d, elem)
	}
	if header&listOpHasAppended != 0 {
		op.AppendedItems = readVector(d, elem)
	}
	if header&listOpHasDeleted != 0 {
		op.DeletedItems = readVector(d, elem)
	}
	if header&listOpHasOrdered != 0 {
		op.OrderedItems = readVector(d, elem)
	}
	return op
}

func readReference(d *decoder) usd.Reference {
	return usd.Reference{
		AssetPath:   d.readString(),
		PrimPath:    d.readPath(),
		LayerOffset: d.readLayerOffset(),
		CustomData:  d.readDictionary(),
	}
}

// Payloads carry a layer offset from 0.8.0 on.
func readPayload(d *decoder) usd.Reference {
	ref := usd.Reference{AssetPath: d.readString(), PrimPath: d.readPath(), LayerOffset: usd.IdentityLayerOffset}
	if d.version.AtLeast(Version{0, 8, 0}) {
		ref.LayerOffset = d.readLayerOffset()
	}
	return ref
}

// nested reads a forward offset relative to its own position, jumps there and
// reads a ValueRep. The reader is left just past the ValueRep.
func (d *decoder) nested() ValueRep {
	start := d.r.Tell()
	var offset int64
	d.r.ReadInt64(&offset)
	d.r.SeekTo(start + offset)
	var rep uint64
	d.r.ReadUint64(&rep)
	return ValueRep(rep)
}

// unpackAt unpacks rep and then restores the read position.
func (d *decoder) unpackAt(rep ValueRep) usd.Value {
	if d.r.Err() != nil {
		return usd.Value{}
	}
	resume := d.r.Tell()
	v, err := d.unpack(rep)
	d.r.Fail(err)
	d.r.SeekTo(resume)
	return v
}

func (d *decoder) readDictionary() usd.Dictionary {
	var n uint64
	d.r.ReadUint64(&n)
	if d.r.Err() != nil || n > uint64(d.r.Available()) {
		d.r.Fail(fmt.Errorf("%w: dictionary of %d entries", ErrTruncated, n))
		return nil
	}
	if n == 0 {
		return nil
	}
	dict := make(usd.Dictionary, n)
	for i := uint64(0); i < n && d.r.Err() == nil; i++ {
		key := d.readString()
		dict[key] = d.unpackAt(d.nested())
	}
	return dict
}

func readVariantSelection(d *decoder) usd.VariantSelectionMap {
	var n uint64
	d.r.ReadUint64(&n)
	if d.r.Err() != nil || n > uint64(d.r.Available()) {
		d.r.Fail(fmt.Errorf("%w: variant selection of %d entries", ErrTruncated, n))
		return nil
	}
	m := make(usd.VariantSelectionMap, n)
	for i := uint64(0); i < n && d.r.Err() == nil; i++ {
		set := d.readString()
		m[set] = d.readString()
	}
	return m
}

// readTimeSamples reads the times through one forward offset and the
// per-sample ValueReps through a second one.
func (d *decoder) readTimeSamples() usd.TimeSamples {
	var ts usd.TimeSamples
	times := d.unpackAt(d.nested())
	switch data := times.Data.(type) {
	case []float64:
		ts.Times = data
	default:
		if d.r.Err() == nil {
			d.r.Fail(fmt.Errorf("%w: time sample times stored as %v", usd.ErrParsing, times.Kind))
		}
		return ts
	}

	start := d.r.Tell()
	var offset int64
	d.r.ReadInt64(&offset)
	d.r.SeekTo(start + offset)
	reps := readVector(d, readUint64)
	if d.r.Err() == nil && len(reps) != len(ts.Times) {
		d.r.Fail(fmt.Errorf("%w: %d sample times but %d values", usd.ErrParsing, len(ts.Times), len(reps)))
		return ts
	}
	ts.Values = make([]usd.Value, 0, len(reps))
	for _, rep := range reps {
		ts.Values = append(ts.Values, d.unpackAt(ValueRep(rep)))
	}
	return ts
}

// unpack decodes the value rep points at.
func (d *decoder) unpack(rep ValueRep) (usd.Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxNesting {
		return usd.Value{}, fmt.Errorf("%w: values nested deeper than %d", usd.ErrParsing, maxNesting)
	}

	k := rep.Kind()
	if !k.Valid() {
		return usd.Value{}, fmt.Errorf("%w: unknown value type %d", usd.ErrParsing, uint8(k))
	}
	if usd.HasCodec(k) {
		switch {
		case rep.IsArray():
			return d.unpackArray(rep)
		case rep.IsInlined():
			return usd.DecodeInline(k, rep.Payload(), d)
		}
		d.r.SeekTo(int64(rep.Payload()))
		b := d.r.ReadBytes(usd.ElementSize(k))
		if err := d.r.Err(); err != nil {
			return usd.Value{}, err
		}
		return usd.DecodeRaw(k, b, false, 1, d)
	}
	if rep.IsArray() {
		return usd.Value{}, fmt.Errorf("%w: arrays of %v", ErrUnsupportedValue, k)
	}
	if rep.IsInlined() {
		return unpackInlined(k, rep.Payload())
	}

	d.r.SeekTo(int64(rep.Payload()))
	var data any
	switch k {
	case usd.KindTokenVector:
		data = readVector(d, (*decoder).readToken)
	case usd.KindStringVector:
		data = readVector(d, (*decoder).readString)
	case usd.KindPathVector:
		data = readVector(d, (*decoder).readPath)
	case usd.KindDoubleVector:
		data = readVector(d, (*decoder).readDouble)
	case usd.KindLayerOffsetVector:
		data = readVector(d, (*decoder).readLayerOffset)
	case usd.KindTokenListOp:
		data = readListOp(d, (*decoder).readToken)
	case usd.KindStringListOp:
		data = readListOp(d, (*decoder).readString)
	case usd.KindPathListOp:
		data = readListOp(d, (*decoder).readPath)
	case usd.KindReferenceListOp:
		data = readListOp(d, readReference)
	case usd.KindPayloadListOp:
		data = readListOp(d, readPayload)
	case usd.KindIntListOp:
		data = readListOp(d, readInt32)
	case usd.KindInt64ListOp:
		data = readListOp(d, readInt64)
	case usd.KindUIntListOp:
		data = readListOp(d, readUint32)
	case usd.KindUInt64ListOp:
		data = readListOp(d, readUint64)
	case usd.KindPayload:
		data = readPayload(d)
	case usd.KindDictionary:
		data = d.readDictionary()
	case usd.KindVariantSelectionMap:
		data = readVariantSelection(d)
	case usd.KindTimeSamples:
		data = d.readTimeSamples()
	default:
		return usd.Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, k)
	}
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	return usd.MakeValue(k, data), nil
}

func unpackInlined(k usd.Kind, payload uint64) (usd.Value, error) {
	switch k {
	case usd.KindSpecifier:
		return usd.MakeValue(k, usd.Specifier(payload)), nil
	case usd.KindPermission:
		return usd.MakeValue(k, usd.Permission(payload)), nil
	case usd.KindVariability:
		return usd.MakeValue(k, usd.Variability(payload)), nil
	case usd.KindValueBlock:
		return usd.MakeValue(k, usd.ValueBlock{}), nil
	case usd.KindDictionary:
		// Only the empty dictionary is inlined.
		return usd.MakeValue(k, usd.Dictionary{}), nil
	}
	return usd.Value{}, fmt.Errorf("%w: %v values cannot be inlined", usd.ErrParsing, k)
}

func (d *decoder) unpackArray(rep ValueRep) (usd.Value, error) {
	k := rep.Kind()
	if rep.Payload() == 0 {
		return usd.DecodeRaw(k, nil, true, 0, d)
	}
	d.r.SeekTo(int64(rep.Payload()))
	n := d.readCount()
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	if !rep.IsCompressed() {
		return d.rawArray(k, n)
	}
	switch {
	case k.IsInteger() && d.version.AtLeast(Version{0, 5, 0}):
		if n < minCompressedArraySize {
			return d.rawArray(k, n)
		}
		return d.compressedIntArray(k, n)
	case k.IsFloating() && d.version.AtLeast(Version{0, 6, 0}):
		if n < minCompressedArraySize {
			return d.rawArray(k, n)
		}
		// A code byte of 'i' or 't' can also be the low byte of a block
		// length, so the coded form is tried on a fork first.
		fork := *d
		fork.r = d.r.Fork()
		if v, err := fork.compressedFloatArray(k, n); err == nil {
			return v, nil
		}
	}
	return d.blockArray(k, n)
}

// blockArray reads the plain compressed layout: a uint64 compressed length
// and a block container holding the n raw elements.
func (d *decoder) blockArray(k usd.Kind, n int) (usd.Value, error) {
	var size uint64
	d.r.ReadUint64(&size)
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	if size > uint64(d.r.Available()) {
		return usd.Value{}, fmt.Errorf("%w: compressed %v array needs %d bytes, have %d", ErrTruncated, k, size, d.r.Available())
	}
	raw, err := lz4block.DecompressContainer(d.r.ReadBytes(int(size)), n*usd.ElementSize(k))
	if err != nil {
		return usd.Value{}, err
	}
	return usd.DecodeRaw(k, raw, true, n, d)
}

func (d *decoder) rawArray(k usd.Kind, n int) (usd.Value, error) {
	size := usd.ElementSize(k)
	if n > d.r.Available()/size {
		return usd.Value{}, fmt.Errorf("%w: %d x %v at offset %d", ErrTruncated, n, k, d.r.Tell())
	}
	b := d.r.ReadBytes(n * size)
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	return usd.DecodeRaw(k, b, true, n, d)
}

func convert[From, To any](in []From, fn func(From) To) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func (d *decoder) compressedIntArray(k usd.Kind, n int) (usd.Value, error) {
	var data any
	switch k {
	case usd.KindInt:
		data = readCompressedInts[int32](d.r, n)
	case usd.KindUInt:
		data = convert(readCompressedInts[int32](d.r, n), func(v int32) uint32 { return uint32(v) })
	case usd.KindInt64:
		data = readCompressedInts[int64](d.r, n)
	case usd.KindUInt64:
		data = convert(readCompressedInts[int64](d.r, n), func(v int64) uint64 { return uint64(v) })
	}
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	return usd.MakeArray(k, data), nil
}

// compressedFloatArray handles the two float encodings: 'i' stores integral
// values as compressed ints, 't' stores a lookup table plus compressed indices.
func (d *decoder) compressedFloatArray(k usd.Kind, n int) (usd.Value, error) {
	var code int8
	d.r.ReadInt8(&code)
	switch code {
	case 'i':
		ints := readCompressedInts[int32](d.r, n)
		if err := d.r.Err(); err != nil {
			return usd.Value{}, err
		}
		switch k {
		case usd.KindHalf:
			return usd.MakeArray(k, convert(ints, func(v int32) usd.Half { return float16.Fromfloat32(float32(v)) })), nil
		case usd.KindFloat:
			return usd.MakeArray(k, convert(ints, func(v int32) float32 { return float32(v) })), nil
		default:
			return usd.MakeArray(k, convert(ints, func(v int32) float64 { return float64(v) })), nil
		}
	case 't':
		var lutSize uint32
		d.r.ReadUint32(&lutSize)
		lut, err := d.rawArray(k, int(lutSize))
		if err != nil {
			return usd.Value{}, err
		}
		indexes := readCompressedUints(d.r, n)
		if err := d.r.Err(); err != nil {
			return usd.Value{}, err
		}
		var data any
		switch table := lut.Data.(type) {
		case []usd.Half:
			data, err = lookup(table, indexes)
		case []float32:
			data, err = lookup(table, indexes)
		case []float64:
			data, err = lookup(table, indexes)
		}
		if err != nil {
			return usd.Value{}, err
		}
		return usd.MakeArray(k, data), nil
	}
	if err := d.r.Err(); err != nil {
		return usd.Value{}, err
	}
	return usd.Value{}, fmt.Errorf("%w: unknown float array encoding %q", usd.ErrParsing, rune(code))
}

func lookup[T any](table []T, indexes []uint32) ([]T, error) {
	out := make([]T, len(indexes))
	for i, idx := range indexes {
		if int64(idx) >= int64(len(table)) {
			return nil, fmt.Errorf("%w: lookup index %d of %d", ErrIndex, idx, len(table))
		}
		out[i] = table[idx]
	}
	return out, nil
}
