package usd

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/x448/float16"
)

var le = binary.LittleEndian

// Tables resolves the index-encoded kinds (string, token, asset) during binary decoding.
type Tables interface {
	Token(index uint32) (string, error)
	String(index uint32) (string, error)
}

// Interner hands out indices for the index-encoded kinds during binary encoding.
type Interner interface {
	TokenIndex(s string) uint32
	StringIndex(s string) uint32
}

// kindCodec is one row of the type table. Every row carries both the binary
// and the text conversions so the two front-ends share a single dispatch.
type kindCodec interface {
	width() int
	goType() reflect.Type
	decodeRaw(b []byte, array bool, n int, t Tables) (any, error)
	encodeRaw(data any, array bool, in Interner) ([]byte, error)
	decodeInline(payload uint64, t Tables) (any, error)
	encodeInline(data any, in Interner) (uint64, bool)
	parseText(l Literal, array bool) (any, error)
}

// element implements kindCodec for a Go payload type T. inline and pack are
// nil for types that never live inside a ValueRep payload.
type element[T any] struct {
	size   int
	get    func(b []byte, t Tables) (T, error)
	put    func(b []byte, v T, in Interner)
	inline func(p uint64, t Tables) (T, error)
	pack   func(v T, in Interner) (uint64, bool)
	text   func(l Literal) (T, error)
}

func (e *element[T]) width() int           { return e.size }
func (e *element[T]) goType() reflect.Type { return reflect.TypeFor[T]() }

func (e *element[T]) decodeRaw(b []byte, array bool, n int, t Tables) (any, error) {
	if !array {
		if len(b) < e.size {
			return nil, fmt.Errorf("%w: %v needs %d bytes, have %d", ErrDecode, e.goType(), e.size, len(b))
		}
		return e.get(b, t)
	}
	if n < 0 || len(b)/e.size < n {
		return nil, fmt.Errorf("%w: %d x %v needs %d bytes, have %d", ErrDecode, n, e.goType(), n*e.size, len(b))
	}
	out := make([]T, n)
	for i := range out {
		v, err := e.get(b[i*e.size:], t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *element[T]) encodeRaw(data any, array bool, in Interner) ([]byte, error) {
	if !array {
		v, ok := data.(T)
		if !ok {
			return nil, fmt.Errorf("%w: have %T, want %v", ErrType, data, e.goType())
		}
		b := make([]byte, e.size)
		e.put(b, v, in)
		return b, nil
	}
	vs, ok := data.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: have %T, want []%v", ErrType, data, e.goType())
	}
	b := make([]byte, len(vs)*e.size)
	for i, v := range vs {
		e.put(b[i*e.size:], v, in)
	}
	return b, nil
}

func (e *element[T]) decodeInline(p uint64, t Tables) (any, error) {
	if e.inline == nil {
		return nil, fmt.Errorf("%w: %v values are never inlined", ErrDecode, e.goType())
	}
	return e.inline(p, t)
}

func (e *element[T]) encodeInline(data any, in Interner) (uint64, bool) {
	v, ok := data.(T)
	if !ok || e.pack == nil {
		return 0, false
	}
	return e.pack(v, in)
}

func (e *element[T]) parseText(l Literal, array bool) (any, error) {
	if !array {
		return e.text(l)
	}
	if l.Kind != LitList {
		return nil, literalError("an array", l)
	}
	out := make([]T, len(l.Items))
	for i, item := range l.Items {
		v, err := e.text(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lane is one scalar component of a vector, quaternion or matrix.
type lane[E any] struct {
	size     int
	get      func([]byte) E
	put      func([]byte, E)
	parse    func(Literal) (E, error)
	fromInt8 func(int8) E
	toInt8   func(E) (int8, bool)
}

func int8Exact(v float64) (int8, bool) {
	if v < math.MinInt8 || v > math.MaxInt8 || v != math.Trunc(v) {
		return 0, false
	}
	return int8(v), true
}

var (
	laneDouble = lane[float64]{
		size:     8,
		get:      func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) },
		put:      func(b []byte, v float64) { le.PutUint64(b, math.Float64bits(v)) },
		parse:    func(l Literal) (float64, error) { return litFloat(l, 64) },
		fromInt8: func(i int8) float64 { return float64(i) },
		toInt8:   int8Exact,
	}
	laneFloat = lane[float32]{
		size: 4,
		get:  func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) },
		put:  func(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) },
		parse: func(l Literal) (float32, error) {
			v, err := litFloat(l, 32)
			return float32(v), err
		},
		fromInt8: func(i int8) float32 { return float32(i) },
		toInt8:   func(v float32) (int8, bool) { return int8Exact(float64(v)) },
	}
	laneHalf = lane[Half]{
		size: 2,
		get:  func(b []byte) Half { return float16.Frombits(le.Uint16(b)) },
		put:  func(b []byte, v Half) { le.PutUint16(b, v.Bits()) },
		parse: func(l Literal) (Half, error) {
			v, err := litFloat(l, 32)
			return float16.Fromfloat32(float32(v)), err
		},
		fromInt8: func(i int8) Half { return float16.Fromfloat32(float32(i)) },
		toInt8:   func(v Half) (int8, bool) { return int8Exact(float64(v.Float32())) },
	}
	laneInt = lane[int32]{
		size: 4,
		get:  func(b []byte) int32 { return int32(le.Uint32(b)) },
		put:  func(b []byte, v int32) { le.PutUint32(b, uint32(v)) },
		parse: func(l Literal) (int32, error) {
			v, err := litInt(l, 32)
			return int32(v), err
		},
		fromInt8: func(i int8) int32 { return int32(i) },
		toInt8: func(v int32) (int8, bool) {
			return int8(v), v >= math.MinInt8 && v <= math.MaxInt8
		},
	}
)

// vector builds an n-lane element. Inlined vectors hold one int8 per lane in
// the low bytes of the payload, so only integral values in [-128, 127] inline:
// a 2-vector uses 2 bytes, a 3-vector 3 bytes and a 4-vector 4 bytes.
func vector[V any, E any](l lane[E], n int, build func([]E) V, split func(V) []E) *element[V] {
	return &element[V]{
		size: l.size * n,
		get: func(b []byte, _ Tables) (V, error) {
			lanes := make([]E, n)
			for i := range lanes {
				lanes[i] = l.get(b[i*l.size:])
			}
			return build(lanes), nil
		},
		put: func(b []byte, v V, _ Interner) {
			for i, x := range split(v) {
				l.put(b[i*l.size:], x)
			}
		},
		inline: func(p uint64, _ Tables) (V, error) {
			lanes := make([]E, n)
			for i := range lanes {
				lanes[i] = l.fromInt8(int8(p >> (8 * i)))
			}
			return build(lanes), nil
		},
		pack: func(v V, _ Interner) (uint64, bool) {
			var p uint64
			for i, x := range split(v) {
				b, ok := l.toInt8(x)
				if !ok {
					return 0, false
				}
				p |= uint64(uint8(b)) << (8 * i)
			}
			return p, true
		},
		text: func(lit Literal) (V, error) {
			var zero V
			items, err := litTuple(lit, n)
			if err != nil {
				return zero, err
			}
			lanes := make([]E, n)
			for i, item := range items {
				if lanes[i], err = l.parse(item); err != nil {
					return zero, err
				}
			}
			return build(lanes), nil
		},
	}
}

// quaternion stores (x, y, z, w) on disk but reads "(w, x, y, z)" as text.
// Quaternions are never inlined.
func quaternion[Q any, E any](l lane[E], build func([]E) Q, split func(Q) []E) *element[Q] {
	e := vector(l, 4, build, split)
	e.inline, e.pack = nil, nil
	e.text = func(lit Literal) (Q, error) {
		var zero Q
		items, err := litTuple(lit, 4)
		if err != nil {
			return zero, err
		}
		lanes := make([]E, 4)
		for i, item := range items {
			if lanes[(i+3)%4], err = l.parse(item); err != nil {
				return zero, err
			}
		}
		return build(lanes), nil
	}
	return e
}

// matrix builds an n x n double matrix. Inlined matrices are diagonal: the
// payload holds n int8 diagonal lanes and every other entry is zero.
func matrix[M any](n int, build func([]float64) M, split func(M) []float64) *element[M] {
	e := vector(laneDouble, n*n, build, split)
	e.inline = func(p uint64, _ Tables) (M, error) {
		lanes := make([]float64, n*n)
		for i := 0; i < n; i++ {
			lanes[i*n+i] = float64(int8(p >> (8 * i)))
		}
		return build(lanes), nil
	}
	e.pack = func(m M, _ Interner) (uint64, bool) {
		lanes := split(m)
		var p uint64
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				v := lanes[r*n+c]
				if r != c {
					if v != 0 {
						return 0, false
					}
					continue
				}
				b, ok := int8Exact(v)
				if !ok {
					return 0, false
				}
				p |= uint64(uint8(b)) << (8 * r)
			}
		}
		return p, true
	}
	e.text = func(lit Literal) (M, error) {
		var zero M
		rows, err := litTuple(lit, n)
		if err != nil {
			return zero, err
		}
		lanes := make([]float64, 0, n*n)
		for _, row := range rows {
			items, err := litTuple(row, n)
			if err != nil {
				return zero, err
			}
			for _, item := range items {
				v, err := litFloat(item, 64)
				if err != nil {
					return zero, err
				}
				lanes = append(lanes, v)
			}
		}
		return build(lanes), nil
	}
	return e
}

func quatParts[E any](imaginary [3]E, real E) []E {
	return []E{imaginary[0], imaginary[1], imaginary[2], real}
}

var kindTable = [kindCount]kindCodec{
	KindBool: &element[bool]{
		size:   1,
		get:    func(b []byte, _ Tables) (bool, error) { return b[0] != 0, nil },
		put:    func(b []byte, v bool, _ Interner) { b[0] = boolByte(v) },
		inline: func(p uint64, _ Tables) (bool, error) { return uint8(p) != 0, nil },
		pack:   func(v bool, _ Interner) (uint64, bool) { return uint64(boolByte(v)), true },
		text:   litBool,
	},
	KindUChar: &element[uint8]{
		size:   1,
		get:    func(b []byte, _ Tables) (uint8, error) { return b[0], nil },
		put:    func(b []byte, v uint8, _ Interner) { b[0] = v },
		inline: func(p uint64, _ Tables) (uint8, error) { return uint8(p), nil },
		pack:   func(v uint8, _ Interner) (uint64, bool) { return uint64(v), true },
		text: func(l Literal) (uint8, error) {
			v, err := litUint(l, 8)
			return uint8(v), err
		},
	},
	KindInt: &element[int32]{
		size:   4,
		get:    func(b []byte, _ Tables) (int32, error) { return laneInt.get(b), nil },
		put:    func(b []byte, v int32, _ Interner) { laneInt.put(b, v) },
		inline: func(p uint64, _ Tables) (int32, error) { return int32(uint32(p)), nil },
		pack:   func(v int32, _ Interner) (uint64, bool) { return uint64(uint32(v)), true },
		text:   laneInt.parse,
	},
	KindUInt: &element[uint32]{
		size:   4,
		get:    func(b []byte, _ Tables) (uint32, error) { return le.Uint32(b), nil },
		put:    func(b []byte, v uint32, _ Interner) { le.PutUint32(b, v) },
		inline: func(p uint64, _ Tables) (uint32, error) { return uint32(p), nil },
		pack:   func(v uint32, _ Interner) (uint64, bool) { return uint64(v), true },
		text: func(l Literal) (uint32, error) {
			v, err := litUint(l, 32)
			return uint32(v), err
		},
	},
	// 64-bit integers are written out of line; an inlined payload is read as
	// a sign-extended (int64) or zero-extended (uint64) 32-bit value.
	KindInt64: &element[int64]{
		size:   8,
		get:    func(b []byte, _ Tables) (int64, error) { return int64(le.Uint64(b)), nil },
		put:    func(b []byte, v int64, _ Interner) { le.PutUint64(b, uint64(v)) },
		inline: func(p uint64, _ Tables) (int64, error) { return int64(int32(uint32(p))), nil },
		text:   func(l Literal) (int64, error) { return litInt(l, 64) },
	},
	KindUInt64: &element[uint64]{
		size:   8,
		get:    func(b []byte, _ Tables) (uint64, error) { return le.Uint64(b), nil },
		put:    func(b []byte, v uint64, _ Interner) { le.PutUint64(b, v) },
		inline: func(p uint64, _ Tables) (uint64, error) { return uint64(uint32(p)), nil },
		text:   func(l Literal) (uint64, error) { return litUint(l, 64) },
	},
	KindHalf: &element[Half]{
		size:   2,
		get:    func(b []byte, _ Tables) (Half, error) { return laneHalf.get(b), nil },
		put:    func(b []byte, v Half, _ Interner) { laneHalf.put(b, v) },
		inline: func(p uint64, _ Tables) (Half, error) { return float16.Frombits(uint16(p)), nil },
		pack:   func(v Half, _ Interner) (uint64, bool) { return uint64(v.Bits()), true },
		text:   laneHalf.parse,
	},
	KindFloat: &element[float32]{
		size:   4,
		get:    func(b []byte, _ Tables) (float32, error) { return laneFloat.get(b), nil },
		put:    func(b []byte, v float32, _ Interner) { laneFloat.put(b, v) },
		inline: func(p uint64, _ Tables) (float32, error) { return math.Float32frombits(uint32(p)), nil },
		pack:   func(v float32, _ Interner) (uint64, bool) { return uint64(math.Float32bits(v)), true },
		text:   laneFloat.parse,
	},
	// Doubles inline as float32 bits when the conversion is exact.
	KindDouble: &element[float64]{
		size:   8,
		get:    func(b []byte, _ Tables) (float64, error) { return laneDouble.get(b), nil },
		put:    func(b []byte, v float64, _ Interner) { laneDouble.put(b, v) },
		inline: func(p uint64, _ Tables) (float64, error) { return float64(math.Float32frombits(uint32(p))), nil },
		pack:   packDouble,
		text:   laneDouble.parse,
	},
	KindTimeCode: &element[TimeCode]{
		size:   8,
		get:    func(b []byte, _ Tables) (TimeCode, error) { return TimeCode(laneDouble.get(b)), nil },
		put:    func(b []byte, v TimeCode, _ Interner) { laneDouble.put(b, float64(v)) },
		inline: func(p uint64, _ Tables) (TimeCode, error) { return TimeCode(math.Float32frombits(uint32(p))), nil },
		pack:   func(v TimeCode, in Interner) (uint64, bool) { return packDouble(float64(v), in) },
		text: func(l Literal) (TimeCode, error) {
			v, err := litFloat(l, 64)
			return TimeCode(v), err
		},
	},
	KindString: &element[string]{
		size:   4,
		get:    func(b []byte, t Tables) (string, error) { return t.String(le.Uint32(b)) },
		put:    func(b []byte, v string, in Interner) { le.PutUint32(b, in.StringIndex(v)) },
		inline: func(p uint64, t Tables) (string, error) { return t.String(uint32(p)) },
		pack:   func(v string, in Interner) (uint64, bool) { return uint64(in.StringIndex(v)), true },
		text:   litText,
	},
	KindToken: &element[string]{
		size:   4,
		get:    func(b []byte, t Tables) (string, error) { return t.Token(le.Uint32(b)) },
		put:    func(b []byte, v string, in Interner) { le.PutUint32(b, in.TokenIndex(v)) },
		inline: func(p uint64, t Tables) (string, error) { return t.Token(uint32(p)) },
		pack:   func(v string, in Interner) (uint64, bool) { return uint64(in.TokenIndex(v)), true },
		text:   litText,
	},
	KindAssetPath: &element[AssetPath]{
		size: 4,
		get: func(b []byte, t Tables) (AssetPath, error) {
			s, err := t.Token(le.Uint32(b))
			return AssetPath(s), err
		},
		put: func(b []byte, v AssetPath, in Interner) { le.PutUint32(b, in.TokenIndex(string(v))) },
		inline: func(p uint64, t Tables) (AssetPath, error) {
			s, err := t.Token(uint32(p))
			return AssetPath(s), err
		},
		pack: func(v AssetPath, in Interner) (uint64, bool) { return uint64(in.TokenIndex(string(v))), true },
		text: func(l Literal) (AssetPath, error) {
			if l.Kind != LitAsset && l.Kind != LitString {
				return "", literalError("an asset path", l)
			}
			return AssetPath(l.Text), nil
		},
	},

	KindVec2d: vector(laneDouble, 2, func(e []float64) Vec2d { return Vec2d(e) }, func(v Vec2d) []float64 { return v[:] }),
	KindVec2f: vector(laneFloat, 2, func(e []float32) Vec2f { return Vec2f(e) }, func(v Vec2f) []float32 { return v[:] }),
	KindVec2h: vector(laneHalf, 2, func(e []Half) Vec2h { return Vec2h(e) }, func(v Vec2h) []Half { return v[:] }),
	KindVec2i: vector(laneInt, 2, func(e []int32) Vec2i { return Vec2i(e) }, func(v Vec2i) []int32 { return v[:] }),
	KindVec3d: vector(laneDouble, 3, func(e []float64) Vec3d { return Vec3d(e) }, func(v Vec3d) []float64 { return v[:] }),
	KindVec3f: vector(laneFloat, 3, func(e []float32) Vec3f { return Vec3f(e) }, func(v Vec3f) []float32 { return v[:] }),
	KindVec3h: vector(laneHalf, 3, func(e []Half) Vec3h { return Vec3h(e) }, func(v Vec3h) []Half { return v[:] }),
	KindVec3i: vector(laneInt, 3, func(e []int32) Vec3i { return Vec3i(e) }, func(v Vec3i) []int32 { return v[:] }),
	KindVec4d: vector(laneDouble, 4, func(e []float64) Vec4d { return Vec4d(e) }, func(v Vec4d) []float64 { return v[:] }),
	KindVec4f: vector(laneFloat, 4, func(e []float32) Vec4f { return Vec4f(e) }, func(v Vec4f) []float32 { return v[:] }),
	KindVec4h: vector(laneHalf, 4, func(e []Half) Vec4h { return Vec4h(e) }, func(v Vec4h) []Half { return v[:] }),
	KindVec4i: vector(laneInt, 4, func(e []int32) Vec4i { return Vec4i(e) }, func(v Vec4i) []int32 { return v[:] }),

	KindQuatd: quaternion(laneDouble,
		func(e []float64) Quatd { return Quatd{Imaginary: [3]float64(e[:3]), Real: e[3]} },
		func(q Quatd) []float64 { return quatParts(q.Imaginary, q.Real) }),
	KindQuatf: quaternion(laneFloat,
		func(e []float32) Quatf { return Quatf{Imaginary: [3]float32(e[:3]), Real: e[3]} },
		func(q Quatf) []float32 { return quatParts(q.Imaginary, q.Real) }),
	KindQuath: quaternion(laneHalf,
		func(e []Half) Quath { return Quath{Imaginary: [3]Half(e[:3]), Real: e[3]} },
		func(q Quath) []Half { return quatParts(q.Imaginary, q.Real) }),

	KindMatrix2d: matrix(2,
		func(e []float64) Matrix2d { return Matrix2d{[2]float64(e[0:2]), [2]float64(e[2:4])} },
		func(m Matrix2d) []float64 { return append(m[0][:], m[1][:]...) }),
	KindMatrix3d: matrix(3,
		func(e []float64) Matrix3d {
			return Matrix3d{[3]float64(e[0:3]), [3]float64(e[3:6]), [3]float64(e[6:9])}
		},
		func(m Matrix3d) []float64 {
			out := make([]float64, 0, 9)
			for _, row := range m {
				out = append(out, row[:]...)
			}
			return out
		}),
	KindMatrix4d: matrix(4,
		func(e []float64) Matrix4d {
			return Matrix4d{[4]float64(e[0:4]), [4]float64(e[4:8]), [4]float64(e[8:12]), [4]float64(e[12:16])}
		},
		func(m Matrix4d) []float64 {
			out := make([]float64, 0, 16)
			for _, row := range m {
				out = append(out, row[:]...)
			}
			return out
		}),
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func packDouble(v float64, _ Interner) (uint64, bool) {
	f := float32(v)
	if float64(f) != v {
		return 0, false
	}
	return uint64(math.Float32bits(f)), true
}

func codecFor(k Kind) (kindCodec, error) {
	if k < kindCount && kindTable[k] != nil {
		return kindTable[k], nil
	}
	return nil, fmt.Errorf("%w: no value codec for kind %v", ErrType, k)
}

// HasCodec reports whether values of kind k go through the shared type table.
func HasCodec(k Kind) bool {
	_, err := codecFor(k)
	return err == nil
}

// ElementSize returns the on-disk width in bytes of one element of kind k, or 0.
func ElementSize(k Kind) int {
	c, err := codecFor(k)
	if err != nil {
		return 0
	}
	return c.width()
}

// DecodeRaw reinterprets little-endian bytes as a single value of kind k, or as
// n elements when array is set.
func DecodeRaw(k Kind, b []byte, array bool, n int, t Tables) (Value, error) {
	c, err := codecFor(k)
	if err != nil {
		return Value{}, err
	}
	data, err := c.decodeRaw(b, array, n, t)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: k, Array: array, Data: data}, nil
}

// DecodeInline recovers a scalar of kind k from the low bytes of a 48-bit
// ValueRep payload.
func DecodeInline(k Kind, payload uint64, t Tables) (Value, error) {
	c, err := codecFor(k)
	if err != nil {
		return Value{}, err
	}
	data, err := c.decodeInline(payload, t)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: k, Data: data}, nil
}

// EncodeRaw is the inverse of DecodeRaw.
func EncodeRaw(v Value, in Interner) ([]byte, error) {
	c, err := codecFor(v.Kind)
	if err != nil {
		return nil, err
	}
	return c.encodeRaw(v.Data, v.Array, in)
}

// EncodeInline packs a scalar into a ValueRep payload when its kind and value
// allow it.
func EncodeInline(v Value, in Interner) (uint64, bool) {
	if v.Array {
		return 0, false
	}
	c, err := codecFor(v.Kind)
	if err != nil {
		return 0, false
	}
	return c.encodeInline(v.Data, in)
}

// ParseLiteral converts a text literal into a value of kind k.
func ParseLiteral(k Kind, array bool, l Literal) (Value, error) {
	c, err := codecFor(k)
	if err != nil {
		return Value{}, err
	}
	data, err := c.parseText(l, array)
	if err != nil {
		return Value{}, fmt.Errorf("%v: %w", k, err)
	}
	return Value{Kind: k, Array: array, Data: data}, nil
}
