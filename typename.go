package usd

import (
	"fmt"
	"strings"
)

// Role names are aliases of a value kind that only add meaning for consumers.
var roleKinds = map[string]Kind{
	"point3h":    KindVec3h,
	"point3f":    KindVec3f,
	"point3d":    KindVec3d,
	"normal3h":   KindVec3h,
	"normal3f":   KindVec3f,
	"normal3d":   KindVec3d,
	"vector3h":   KindVec3h,
	"vector3f":   KindVec3f,
	"vector3d":   KindVec3d,
	"color3h":    KindVec3h,
	"color3f":    KindVec3f,
	"color3d":    KindVec3d,
	"color4h":    KindVec4h,
	"color4f":    KindVec4f,
	"color4d":    KindVec4d,
	"texCoord2h": KindVec2h,
	"texCoord2f": KindVec2f,
	"texCoord2d": KindVec2d,
	"texCoord3h": KindVec3h,
	"texCoord3f": KindVec3f,
	"texCoord3d": KindVec3d,
	"frame4d":    KindMatrix4d,
}

// LookupTypeName resolves an attribute type name such as "point3f[]" into
// its value kind and array-ness.
func LookupTypeName(name string) (Kind, bool, error) {
	base, array := strings.CutSuffix(name, "[]")
	if k, ok := roleKinds[base]; ok {
		return k, array, nil
	}
	for k := KindBool; k < kindCount; k++ {
		if kindNames[k] == base && HasCodec(k) {
			return k, array, nil
		}
	}
	return KindInvalid, false, fmt.Errorf("%w: unknown type name %q", ErrType, name)
}

// TypeName returns the canonical type name of a table kind, "[]" appended for arrays.
func TypeName(k Kind, array bool) string {
	name := k.String()
	if array {
		name += "[]"
	}
	return name
}
