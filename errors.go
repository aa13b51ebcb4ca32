package usd

import "errors"

var (
	// ErrFormat indicates the input is not a scene file this package understands:
	// a bad crate magic, an unsupported crate version, or a missing "#usda" marker.
	ErrFormat = errors.New("usd: format error")

	// ErrParsing indicates a structural problem inside an otherwise recognized file,
	// such as an inconsistent crate section or a text grammar violation.
	ErrParsing = errors.New("usd: parsing error")

	// ErrAccess indicates the file could not be opened or read.
	ErrAccess = errors.New("usd: access error")

	// ErrDecode indicates a corrupt compressed payload, an invalid back-reference
	// or an integer stream that does not match its declared length.
	ErrDecode = errors.New("usd: decode error")

	// ErrType indicates a value payload whose Go shape does not match its declared kind.
	ErrType = errors.New("usd: value does not match its type")
)
