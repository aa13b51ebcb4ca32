package usd

import (
	"fmt"

	"github.com/x448/float16"
)

// Half is an IEEE 754 binary16 value.
type Half = float16.Float16

type (
	Vec2d [2]float64
	Vec2f [2]float32
	Vec2h [2]Half
	Vec2i [2]int32
	Vec3d [3]float64
	Vec3f [3]float32
	Vec3h [3]Half
	Vec3i [3]int32
	Vec4d [4]float64
	Vec4f [4]float32
	Vec4h [4]Half
	Vec4i [4]int32
)

// Quaternions keep the imaginary part first, matching their in-file layout.
// The text form "(w, x, y, z)" lists the real part first.
type (
	Quatd struct {
		Imaginary [3]float64
		Real      float64
	}
	Quatf struct {
		Imaginary [3]float32
		Real      float32
	}
	Quath struct {
		Imaginary [3]Half
		Real      Half
	}
)

// Matrices are row-major, rows as written in the text form.
type (
	Matrix2d [2][2]float64
	Matrix3d [3][3]float64
	Matrix4d [4][4]float64
)

// Identity4d returns the 4x4 identity matrix.
func Identity4d() Matrix4d {
	return Matrix4d{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

type (
	TimeCode  float64
	AssetPath string
)

// Specifier is how a prim spec contributes to composition.
type Specifier uint8

const (
	SpecifierDef Specifier = iota
	SpecifierOver
	SpecifierClass
)

func (s Specifier) String() string {
	switch s {
	case SpecifierDef:
		return "def"
	case SpecifierOver:
		return "over"
	case SpecifierClass:
		return "class"
	}
	return fmt.Sprintf("specifier(%d)", uint8(s))
}

// ParseSpecifier accepts the text keywords def, over and class.
func ParseSpecifier(s string) (Specifier, bool) {
	switch s {
	case "def":
		return SpecifierDef, true
	case "over":
		return SpecifierOver, true
	case "class":
		return SpecifierClass, true
	}
	return 0, false
}

// Variability distinguishes time-varying attributes from uniform ones.
type Variability uint8

const (
	VariabilityVarying Variability = iota
	VariabilityUniform
)

// Permission is the spec access level; only recognized, never enforced.
type Permission uint8

const (
	PermissionPublic Permission = iota
	PermissionPrivate
)

// LayerOffset maps times of a referenced layer into the referencing one.
type LayerOffset struct {
	Offset float64
	Scale  float64
}

// IdentityLayerOffset is the offset of an arc with no retiming.
var IdentityLayerOffset = LayerOffset{Offset: 0, Scale: 1}

// Reference is one composition arc: an asset, an optional prim inside it and a
// time mapping. Payload arcs use the same shape.
type Reference struct {
	AssetPath   string
	PrimPath    Path
	LayerOffset LayerOffset
	CustomData  Dictionary
}

// ListOp is an edit to an ordered list as authored in a single layer.
type ListOp[T any] struct {
	Explicit       bool
	ExplicitItems  []T
	AddedItems     []T
	PrependedItems []T
	AppendedItems  []T
	DeletedItems   []T
	OrderedItems   []T
}

// Items returns the items the list-op contributes, in authoring order:
// the explicit list for explicit ops, otherwise prepended, added, appended.
func (l ListOp[T]) Items() []T {
	if l.Explicit {
		return l.ExplicitItems
	}
	items := make([]T, 0, len(l.PrependedItems)+len(l.AddedItems)+len(l.AppendedItems))
	items = append(items, l.PrependedItems...)
	items = append(items, l.AddedItems...)
	items = append(items, l.AppendedItems...)
	return items
}

// HasDeleted reports whether the op carries deletion items.
func (l ListOp[T]) HasDeleted() bool { return len(l.DeletedItems) > 0 }

type (
	ReferenceListOp = ListOp[Reference]
	PathListOp      = ListOp[Path]
	TokenListOp     = ListOp[string]
)

// Dictionary is a string-keyed bag of typed values (customData and friends).
type Dictionary map[string]Value

// VariantSelectionMap maps variant set names to the selected variant.
type VariantSelectionMap map[string]string

// ValueBlock marks an attribute whose value is explicitly blocked.
type ValueBlock struct{}

// TimeSamples holds time-sampled values; consumers here use the first sample.
type TimeSamples struct {
	Times  []float64
	Values []Value
}
