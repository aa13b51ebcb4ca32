package usd

import "fmt"

// Kind is the type tag of a Value. The numbering is the crate container's
// on-disk type enumeration, so a ValueRep's type byte converts directly.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindUChar
	KindInt
	KindUInt
	KindInt64
	KindUInt64
	KindHalf
	KindFloat
	KindDouble
	KindString
	KindToken
	KindAssetPath
	KindMatrix2d
	KindMatrix3d
	KindMatrix4d
	KindQuatd
	KindQuatf
	KindQuath
	KindVec2d
	KindVec2f
	KindVec2h
	KindVec2i
	KindVec3d
	KindVec3f
	KindVec3h
	KindVec3i
	KindVec4d
	KindVec4f
	KindVec4h
	KindVec4i
	KindDictionary
	KindTokenListOp
	KindStringListOp
	KindPathListOp
	KindReferenceListOp
	KindIntListOp
	KindInt64ListOp
	KindUIntListOp
	KindUInt64ListOp
	KindPathVector
	KindTokenVector
	KindSpecifier
	KindPermission
	KindVariability
	KindVariantSelectionMap
	KindTimeSamples
	KindPayload
	KindDoubleVector
	KindLayerOffsetVector
	KindStringVector
	KindValueBlock
	KindValue
	KindUnregisteredValue
	KindUnregisteredValueListOp
	KindPayloadListOp
	KindTimeCode
	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:                 "invalid",
	KindBool:                    "bool",
	KindUChar:                   "uchar",
	KindInt:                     "int",
	KindUInt:                    "uint",
	KindInt64:                   "int64",
	KindUInt64:                  "uint64",
	KindHalf:                    "half",
	KindFloat:                   "float",
	KindDouble:                  "double",
	KindString:                  "string",
	KindToken:                   "token",
	KindAssetPath:               "asset",
	KindMatrix2d:                "matrix2d",
	KindMatrix3d:                "matrix3d",
	KindMatrix4d:                "matrix4d",
	KindQuatd:                   "quatd",
	KindQuatf:                   "quatf",
	KindQuath:                   "quath",
	KindVec2d:                   "double2",
	KindVec2f:                   "float2",
	KindVec2h:                   "half2",
	KindVec2i:                   "int2",
	KindVec3d:                   "double3",
	KindVec3f:                   "float3",
	KindVec3h:                   "half3",
	KindVec3i:                   "int3",
	KindVec4d:                   "double4",
	KindVec4f:                   "float4",
	KindVec4h:                   "half4",
	KindVec4i:                   "int4",
	KindDictionary:              "dictionary",
	KindTokenListOp:             "tokenListOp",
	KindStringListOp:            "stringListOp",
	KindPathListOp:              "pathListOp",
	KindReferenceListOp:         "referenceListOp",
	KindIntListOp:               "intListOp",
	KindInt64ListOp:             "int64ListOp",
	KindUIntListOp:              "uintListOp",
	KindUInt64ListOp:            "uint64ListOp",
	KindPathVector:              "pathVector",
	KindTokenVector:             "tokenVector",
	KindSpecifier:               "specifier",
	KindPermission:              "permission",
	KindVariability:             "variability",
	KindVariantSelectionMap:     "variantSelectionMap",
	KindTimeSamples:             "timeSamples",
	KindPayload:                 "payload",
	KindDoubleVector:            "doubleVector",
	KindLayerOffsetVector:       "layerOffsetVector",
	KindStringVector:            "stringVector",
	KindValueBlock:              "valueBlock",
	KindValue:                   "value",
	KindUnregisteredValue:       "unregisteredValue",
	KindUnregisteredValueListOp: "unregisteredValueListOp",
	KindPayloadListOp:           "payloadListOp",
	KindTimeCode:                "timecode",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known type tag other than KindInvalid.
func (k Kind) Valid() bool { return k > KindInvalid && k < kindCount }

// Components returns the number of scalar lanes of vector, quaternion and
// matrix kinds, and 1 for scalars.
func (k Kind) Components() int {
	switch k {
	case KindVec2d, KindVec2f, KindVec2h, KindVec2i:
		return 2
	case KindVec3d, KindVec3f, KindVec3h, KindVec3i:
		return 3
	case KindVec4d, KindVec4f, KindVec4h, KindVec4i, KindQuatd, KindQuatf, KindQuath, KindMatrix2d:
		return 4
	case KindMatrix3d:
		return 9
	case KindMatrix4d:
		return 16
	}
	return 1
}

// IsInteger reports whether arrays of k are stored with the integer delta codec.
func (k Kind) IsInteger() bool {
	switch k {
	case KindInt, KindUInt, KindInt64, KindUInt64:
		return true
	}
	return false
}

// IsFloating reports whether k is a half, float or double scalar.
func (k Kind) IsFloating() bool {
	switch k {
	case KindHalf, KindFloat, KindDouble:
		return true
	}
	return false
}

// IsListOp reports whether k is one of the list-op kinds.
func (k Kind) IsListOp() bool {
	switch k {
	case KindTokenListOp, KindStringListOp, KindPathListOp, KindReferenceListOp,
		KindIntListOp, KindInt64ListOp, KindUIntListOp, KindUInt64ListOp,
		KindPayloadListOp, KindUnregisteredValueListOp:
		return true
	}
	return false
}
