package usda

import (
	"strconv"

	"github.com/oy3o/usd"
)

// metadataKinds fixes the value kind of the metadata fields that matter to
// composition and mesh extraction. Fields not listed here are typed from the
// shape of their literal.
var metadataKinds = map[string]usd.Kind{
	// layer
	"defaultPrim":        usd.KindToken,
	"upAxis":             usd.KindToken,
	"metersPerUnit":      usd.KindDouble,
	"startTimeCode":      usd.KindDouble,
	"endTimeCode":        usd.KindDouble,
	"timeCodesPerSecond": usd.KindDouble,
	"framesPerSecond":    usd.KindDouble,
	"subLayers":          usd.KindStringVector,
	"customLayerData":    usd.KindDictionary,

	// prim
	"kind":            usd.KindToken,
	"active":          usd.KindBool,
	"instanceable":    usd.KindBool,
	"hidden":          usd.KindBool,
	"apiSchemas":      usd.KindTokenListOp,
	"references":      usd.KindReferenceListOp,
	"payload":         usd.KindPayloadListOp,
	"inherits":        usd.KindPathListOp,
	"specializes":     usd.KindPathListOp,
	"variants":        usd.KindVariantSelectionMap,
	"variantSetNames": usd.KindStringListOp,

	// any spec
	"documentation": usd.KindString,
	"comment":       usd.KindString,
	"displayName":   usd.KindString,
	"displayGroup":  usd.KindString,
	"customData":    usd.KindDictionary,
	"assetInfo":     usd.KindDictionary,

	// attribute
	"interpolation":   usd.KindToken,
	"elementSize":     usd.KindInt,
	"colorSpace":      usd.KindToken,
	"renderType":      usd.KindToken,
	"connectionPaths": usd.KindPathListOp,
}

// metadataAliases maps text keywords to the field names binary files use.
var metadataAliases = map[string]string{
	"doc":         "documentation",
	"variantSets": "variantSetNames",
}

func metadataName(keyword string) string {
	if name, ok := metadataAliases[keyword]; ok {
		return name
	}
	return keyword
}

func isListVerb(s string) bool {
	switch s {
	case "prepend", "append", "add", "delete", "reorder":
		return true
	}
	return false
}

// applyListOp stores items in the list of op selected by verb; "" is an
// explicit assignment.
func applyListOp[T any](op *usd.ListOp[T], verb string, items []T) {
	switch verb {
	case "":
		op.Explicit = true
		op.ExplicitItems = items
	case "prepend":
		op.PrependedItems = items
	case "append":
		op.AppendedItems = items
	case "add":
		op.AddedItems = items
	case "delete":
		op.DeletedItems = items
	case "reorder":
		op.OrderedItems = items
	}
}

// setAttrib replaces the same-named entry of attrs or appends a.
func setAttrib(attrs []usd.Attrib, a usd.Attrib) []usd.Attrib {
	for i := range attrs {
		if attrs[i].Name == a.Name {
			attrs[i] = a
			return attrs
		}
	}
	return append(attrs, a)
}

func findAttrib(attrs []usd.Attrib, name string) (usd.Attrib, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return usd.Attrib{}, false
}

// listOpOf returns the list-op already stored under name, so that several
// edits of one field ("prepend references" and "delete references") merge.
func listOpOf[T any](attrs []usd.Attrib, name string) usd.ListOp[T] {
	if a, ok := findAttrib(attrs, name); ok {
		if op, ok := a.Value.Data.(usd.ListOp[T]); ok {
			return op
		}
	}
	return usd.ListOp[T]{}
}

// inferValue types an unregistered metadata literal from its shape.
func inferValue(l usd.Literal) (usd.Value, bool) {
	switch l.Kind {
	case usd.LitString:
		return usd.MakeValue(usd.KindString, l.Text), true
	case usd.LitAsset:
		return usd.MakeValue(usd.KindAssetPath, usd.AssetPath(l.Text)), true
	case usd.LitAtom:
		switch l.Text {
		case "true":
			return usd.MakeValue(usd.KindBool, true), true
		case "false":
			return usd.MakeValue(usd.KindBool, false), true
		}
		if n, err := strconv.ParseInt(l.Text, 10, 64); err == nil {
			if int64(int32(n)) == n {
				return usd.MakeValue(usd.KindInt, int32(n)), true
			}
			return usd.MakeValue(usd.KindInt64, n), true
		}
		if f, err := strconv.ParseFloat(l.Text, 64); err == nil {
			return usd.MakeValue(usd.KindDouble, f), true
		}
		return usd.TokenValue(l.Text), true
	case usd.LitList:
		if allOf(l.Items, usd.LitString) {
			v, err := usd.ParseLiteral(usd.KindToken, true, l)
			return v, err == nil
		}
		if allOf(l.Items, usd.LitAtom) {
			v, err := usd.ParseLiteral(usd.KindDouble, true, l)
			return v, err == nil
		}
	case usd.LitTuple:
		vecs := [...]usd.Kind{2: usd.KindVec2d, 3: usd.KindVec3d, 4: usd.KindVec4d}
		if n := len(l.Items); n >= 2 && n <= 4 && allOf(l.Items, usd.LitAtom) {
			v, err := usd.ParseLiteral(vecs[n], false, l)
			return v, err == nil
		}
	}
	return usd.Value{}, false
}

func allOf(items []usd.Literal, kind usd.LiteralKind) bool {
	for _, it := range items {
		if it.Kind != kind {
			return false
		}
	}
	return true
}
