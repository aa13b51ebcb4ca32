package crate

import (
	"fmt"

	"github.com/oy3o/usd"
)

// Magic opens every crate file.
const Magic = "PXR-USDC"

const (
	bootstrapSize = 88

	// Arrays shorter than this are stored raw even when flagged compressed.
	minCompressedArraySize = 16

	// Dictionaries and time samples nest through forward offsets; this caps
	// how deep a corrupt file can send the decoder.
	maxNesting = 64
)

// Section names in the table of contents.
const (
	sectionTokens    = "TOKENS"
	sectionStrings   = "STRINGS"
	sectionFields    = "FIELDS"
	sectionFieldSets = "FIELDSETS"
	sectionPaths     = "PATHS"
	sectionSpecs     = "SPECS"
)

// Version is a crate file format version.
type Version struct {
	Major, Minor, Patch uint8
}

var (
	minVersion   = Version{0, 4, 0} // compressed structural sections
	writeVersion = Version{0, 8, 0}
)

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

type bootstrap struct {
	Ident     [8]byte
	Version   [8]uint8
	TOCOffset int64
	Reserved  [8]int64
}

type sectionRecord struct {
	Name  [16]byte
	Start int64
	Size  int64
}

func (s sectionRecord) name() string {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// ValueRep locates one value: flags and type in the high 16 bits, then a
// 48-bit payload that is either the value itself or its file offset.
type ValueRep uint64

const (
	repArray      ValueRep = 1 << 63
	repInlined    ValueRep = 1 << 62
	repCompressed ValueRep = 1 << 61
	payloadMask            = 1<<48 - 1
)

func makeRep(k usd.Kind, flags ValueRep, payload uint64) ValueRep {
	return flags | ValueRep(k)<<48 | ValueRep(payload&payloadMask)
}

func (r ValueRep) IsArray() bool      { return r&repArray != 0 }
func (r ValueRep) IsInlined() bool    { return r&repInlined != 0 }
func (r ValueRep) IsCompressed() bool { return r&repCompressed != 0 }
func (r ValueRep) Kind() usd.Kind     { return usd.Kind(r >> 48 & 0xff) }
func (r ValueRep) Payload() uint64    { return uint64(r) & payloadMask }

func (r ValueRep) String() string {
	return fmt.Sprintf("rep(%v array=%t inlined=%t compressed=%t payload=%#x)",
		r.Kind(), r.IsArray(), r.IsInlined(), r.IsCompressed(), r.Payload())
}

// SpecType is the kind of scene element a spec record describes.
type SpecType uint32

const (
	SpecUnknown SpecType = iota
	SpecAttribute
	SpecConnection
	SpecExpression
	SpecMapper
	SpecMapperArg
	SpecPrim
	SpecPseudoRoot
	SpecRelationship
	SpecRelationshipTarget
	SpecVariant
	SpecVariantSet
)

var specTypeNames = [...]string{
	"unknown", "attribute", "connection", "expression", "mapper", "mapperArg",
	"prim", "pseudoRoot", "relationship", "relationshipTarget", "variant", "variantSet",
}

func (t SpecType) String() string {
	if int(t) < len(specTypeNames) {
		return specTypeNames[t]
	}
	return fmt.Sprintf("spec(%d)", uint32(t))
}

// Field names the tree assembly interprets; every other field becomes a
// metadata attrib.
const (
	fieldSpecifier       = "specifier"
	fieldTypeName        = "typeName"
	fieldPrimChildren    = "primChildren"
	fieldProperties      = "properties"
	fieldDefault         = "default"
	fieldVariability     = "variability"
	fieldCustom          = "custom"
	fieldTimeSamples     = "timeSamples"
	fieldTargetPaths     = "targetPaths"
	fieldVariantChildren = "variantChildren"
	fieldVariantSetKids  = "variantSetChildren"
)

// emptyPathIndex stands for the empty path (for example a reference without
// a prim path), which has no node in the path tree.
const emptyPathIndex = ^uint32(0)

// fieldSetEnd terminates each field set in the FIELDSETS section.
const fieldSetEnd = ^uint32(0)
