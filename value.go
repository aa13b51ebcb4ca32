package usd

import (
	"fmt"
	"reflect"
)

// Value is a typed payload. Kind and Array describe the shape of Data:
// table kinds hold the Go type listed in the type table (or a slice of it),
// structured kinds hold the types returned by structuredType.
type Value struct {
	Kind  Kind
	Array bool
	Data  any
}

// MakeValue wraps a scalar payload.
func MakeValue(k Kind, data any) Value { return Value{Kind: k, Data: data} }

// MakeArray wraps a slice payload.
func MakeArray(k Kind, data any) Value { return Value{Kind: k, Array: true, Data: data} }

// TokenValue is shorthand for a scalar token.
func TokenValue(s string) Value { return Value{Kind: KindToken, Data: s} }

// TokenArray is shorthand for a token[] value.
func TokenArray(s ...string) Value { return Value{Kind: KindToken, Array: true, Data: s} }

// IsZero reports whether v carries no payload.
func (v Value) IsZero() bool { return v.Kind == KindInvalid && v.Data == nil }

func (v Value) String() string {
	if v.Array {
		return fmt.Sprintf("%v[] %v", v.Kind, v.Data)
	}
	return fmt.Sprintf("%v %v", v.Kind, v.Data)
}

func structuredType(k Kind) reflect.Type {
	switch k {
	case KindDictionary:
		return reflect.TypeFor[Dictionary]()
	case KindTokenListOp, KindStringListOp:
		return reflect.TypeFor[ListOp[string]]()
	case KindPathListOp:
		return reflect.TypeFor[ListOp[Path]]()
	case KindReferenceListOp, KindPayloadListOp:
		return reflect.TypeFor[ListOp[Reference]]()
	case KindIntListOp:
		return reflect.TypeFor[ListOp[int32]]()
	case KindInt64ListOp:
		return reflect.TypeFor[ListOp[int64]]()
	case KindUIntListOp:
		return reflect.TypeFor[ListOp[uint32]]()
	case KindUInt64ListOp:
		return reflect.TypeFor[ListOp[uint64]]()
	case KindPathVector:
		return reflect.TypeFor[[]Path]()
	case KindTokenVector, KindStringVector:
		return reflect.TypeFor[[]string]()
	case KindDoubleVector:
		return reflect.TypeFor[[]float64]()
	case KindLayerOffsetVector:
		return reflect.TypeFor[[]LayerOffset]()
	case KindSpecifier:
		return reflect.TypeFor[Specifier]()
	case KindPermission:
		return reflect.TypeFor[Permission]()
	case KindVariability:
		return reflect.TypeFor[Variability]()
	case KindVariantSelectionMap:
		return reflect.TypeFor[VariantSelectionMap]()
	case KindTimeSamples:
		return reflect.TypeFor[TimeSamples]()
	case KindPayload:
		return reflect.TypeFor[Reference]()
	case KindValueBlock:
		return reflect.TypeFor[ValueBlock]()
	}
	return nil
}

// Validate checks that the payload's Go type matches Kind and Array.
func (v Value) Validate() error {
	want := structuredType(v.Kind)
	if c, err := codecFor(v.Kind); err == nil {
		want = c.goType()
		if v.Array {
			want = reflect.SliceOf(want)
		}
	} else if v.Array {
		return fmt.Errorf("%w: %v values cannot be arrays", ErrType, v.Kind)
	}
	if want == nil {
		return fmt.Errorf("%w: unsupported kind %v", ErrType, v.Kind)
	}
	if have := reflect.TypeOf(v.Data); have != want {
		return fmt.Errorf("%w: %v payload is %v, want %v", ErrType, v.Kind, have, want)
	}
	return nil
}

// Len returns the element count of array values and 1 for scalars.
func (v Value) Len() int {
	if !v.Array {
		return 1
	}
	rv := reflect.ValueOf(v.Data)
	if rv.Kind() != reflect.Slice {
		return 0
	}
	return rv.Len()
}

// Float3s returns any 3-component vector array widened or narrowed to float32.
func (v Value) Float3s() ([]Vec3f, bool) {
	if !v.Array {
		return nil, false
	}
	switch data := v.Data.(type) {
	case []Vec3f:
		return data, true
	case []Vec3d:
		out := make([]Vec3f, len(data))
		for i, p := range data {
			out[i] = Vec3f{float32(p[0]), float32(p[1]), float32(p[2])}
		}
		return out, true
	case []Vec3h:
		out := make([]Vec3f, len(data))
		for i, p := range data {
			out[i] = Vec3f{p[0].Float32(), p[1].Float32(), p[2].Float32()}
		}
		return out, true
	}
	return nil, false
}

// Float2s is Float3s for 2-component vector arrays.
func (v Value) Float2s() ([]Vec2f, bool) {
	if !v.Array {
		return nil, false
	}
	switch data := v.Data.(type) {
	case []Vec2f:
		return data, true
	case []Vec2d:
		out := make([]Vec2f, len(data))
		for i, p := range data {
			out[i] = Vec2f{float32(p[0]), float32(p[1])}
		}
		return out, true
	case []Vec2h:
		out := make([]Vec2f, len(data))
		for i, p := range data {
			out[i] = Vec2f{p[0].Float32(), p[1].Float32()}
		}
		return out, true
	}
	return nil, false
}

// Ints returns an integer array of any width as ints.
func (v Value) Ints() ([]int, bool) {
	if !v.Array {
		return nil, false
	}
	switch data := v.Data.(type) {
	case []int32:
		return widen(data), true
	case []uint32:
		return widen(data), true
	case []int64:
		return widen(data), true
	case []uint64:
		return widen(data), true
	case []uint8:
		return widen(data), true
	}
	return nil, false
}

func widen[T int32 | uint32 | int64 | uint64 | uint8](data []T) []int {
	out := make([]int, len(data))
	for i, x := range data {
		out[i] = int(x)
	}
	return out
}

// Tokens returns token and string arrays, including the token/string vector kinds.
func (v Value) Tokens() ([]string, bool) {
	data, ok := v.Data.([]string)
	return data, ok
}

// Token returns a scalar token or string.
func (v Value) Token() (string, bool) {
	if v.Array {
		return "", false
	}
	switch data := v.Data.(type) {
	case string:
		return data, true
	case AssetPath:
		return string(data), true
	}
	return "", false
}

// Bool returns a scalar bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.Data.(bool)
	return b, ok && !v.Array
}

// Float64 returns any numeric scalar as float64.
func (v Value) Float64() (float64, bool) {
	if v.Array {
		return 0, false
	}
	switch data := v.Data.(type) {
	case float64:
		return data, true
	case float32:
		return float64(data), true
	case Half:
		return float64(data.Float32()), true
	case TimeCode:
		return float64(data), true
	case int32:
		return float64(data), true
	case uint32:
		return float64(data), true
	case int64:
		return float64(data), true
	case uint64:
		return float64(data), true
	case uint8:
		return float64(data), true
	}
	return 0, false
}

// Vec3d returns any 3-component scalar vector as float64 lanes.
func (v Value) Vec3d() (Vec3d, bool) {
	if v.Array {
		return Vec3d{}, false
	}
	switch data := v.Data.(type) {
	case Vec3d:
		return data, true
	case Vec3f:
		return Vec3d{float64(data[0]), float64(data[1]), float64(data[2])}, true
	case Vec3h:
		return Vec3d{float64(data[0].Float32()), float64(data[1].Float32()), float64(data[2].Float32())}, true
	case Vec3i:
		return Vec3d{float64(data[0]), float64(data[1]), float64(data[2])}, true
	}
	return Vec3d{}, false
}

// Matrix4d returns a scalar 4x4 matrix.
func (v Value) Matrix4d() (Matrix4d, bool) {
	m, ok := v.Data.(Matrix4d)
	return m, ok && !v.Array
}

// References returns reference and payload list-ops.
func (v Value) References() (ReferenceListOp, bool) {
	switch data := v.Data.(type) {
	case ListOp[Reference]:
		return data, true
	case Reference:
		return ReferenceListOp{Explicit: true, ExplicitItems: []Reference{data}}, true
	}
	return ReferenceListOp{}, false
}
