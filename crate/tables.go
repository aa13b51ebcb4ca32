package crate

import (
	"bytes"
	"fmt"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/intcodec"
	"github.com/oy3o/usd/lz4block"
)

type field struct {
	Token uint32
	Rep   ValueRep
}

type spec struct {
	Path     uint32
	FieldSet uint32
	Type     SpecType
}

// tables holds the structural sections every value and spec refers into.
type tables struct {
	tokens    []string
	strings   []uint32 // token index of each string
	fields    []field
	fieldSets []uint32 // field indices, each set ended by fieldSetEnd
	paths     []usd.Path
	specs     []spec
}

func (t *tables) Token(i uint32) (string, error) {
	if int64(i) >= int64(len(t.tokens)) {
		return "", fmt.Errorf("%w: token %d of %d", ErrIndex, i, len(t.tokens))
	}
	return t.tokens[i], nil
}

func (t *tables) String(i uint32) (string, error) {
	if int64(i) >= int64(len(t.strings)) {
		return "", fmt.Errorf("%w: string %d of %d", ErrIndex, i, len(t.strings))
	}
	return t.Token(t.strings[i])
}

func (t *tables) Path(i uint32) (usd.Path, error) {
	if i == emptyPathIndex {
		return usd.Path{}, nil
	}
	if int64(i) >= int64(len(t.paths)) {
		return usd.Path{}, fmt.Errorf("%w: path %d of %d", ErrIndex, i, len(t.paths))
	}
	return t.paths[i], nil
}

// fieldSet returns the field indices of the set starting at start.
func (t *tables) fieldSet(start uint32) ([]uint32, error) {
	if int64(start) >= int64(len(t.fieldSets)) {
		return nil, fmt.Errorf("%w: field set %d of %d", ErrIndex, start, len(t.fieldSets))
	}
	set := t.fieldSets[start:]
	for i, f := range set {
		if f == fieldSetEnd {
			return set[:i], nil
		}
	}
	return set, nil
}

// readTOC reads the bootstrap and the table of contents.
func readTOC(r *Reader) (Version, map[string]sectionRecord, error) {
	var boot bootstrap
	if r.Size() < bootstrapSize {
		return Version{}, nil, fmt.Errorf("%w: %d bytes is too short for a crate file", usd.ErrFormat, r.Size())
	}
	readFixed(r, &boot)
	if r.Err() != nil {
		return Version{}, nil, r.Err()
	}
	if string(boot.Ident[:]) != Magic {
		return Version{}, nil, fmt.Errorf("%w: bad magic %q", usd.ErrFormat, boot.Ident[:])
	}
	version := Version{boot.Version[0], boot.Version[1], boot.Version[2]}
	if version.Major != 0 || !version.AtLeast(minVersion) {
		return version, nil, fmt.Errorf("%w: unsupported crate version %v", usd.ErrFormat, version)
	}

	r.SeekTo(boot.TOCOffset)
	var count uint64
	r.ReadUint64(&count)
	if r.Err() == nil && count > uint64(r.Available()/fixedSize[sectionRecord]()) {
		return version, nil, fmt.Errorf("%w: %d sections do not fit the file", usd.ErrParsing, count)
	}
	sections := make(map[string]sectionRecord, count)
	for i := uint64(0); i < count && r.Err() == nil; i++ {
		var rec sectionRecord
		readFixed(r, &rec)
		if rec.Start < 0 || rec.Size < 0 || rec.Start > int64(r.Size())-rec.Size {
			r.Fail(fmt.Errorf("%w: section %q [%d, +%d) outside the file", usd.ErrParsing, rec.name(), rec.Start, rec.Size))
		}
		sections[rec.name()] = rec
	}
	if err := r.Err(); err != nil {
		return version, nil, fmt.Errorf("reading table of contents: %w", err)
	}
	return version, sections, nil
}

// readCompressedInts reads a byte length, then a compressed buffer holding n
// delta-coded integers.
func readCompressedInts[T intcodec.Integer](r *Reader, n int) []T {
	var size uint64
	r.ReadUint64(&size)
	if r.Err() != nil {
		return nil
	}
	if size > uint64(r.Available()) {
		r.Fail(fmt.Errorf("%w: compressed integers need %d bytes, have %d", ErrTruncated, size, r.Available()))
		return nil
	}
	raw, err := lz4block.DecompressContainer(r.ReadBytes(int(size)), -1)
	if err != nil {
		r.Fail(err)
		return nil
	}
	out, err := intcodec.Decode[T](raw, n)
	if err != nil {
		r.Fail(err)
		return nil
	}
	return out
}

func readCompressedUints(r *Reader, n int) []uint32 {
	ints := readCompressedInts[int32](r, n)
	out := make([]uint32, len(ints))
	for i, v := range ints {
		out[i] = uint32(v)
	}
	return out
}

// count reads an element count and rejects counts the section could not
// possibly hold, so corrupt files cannot force huge allocations.
func count(r *Reader, sec sectionRecord) int {
	var n uint64
	r.ReadUint64(&n)
	if r.Err() == nil && n > uint64(sec.Size)*1024 {
		r.Fail(fmt.Errorf("%w: %d elements in a %d byte section", usd.ErrParsing, n, sec.Size))
		return 0
	}
	return int(n)
}

func (t *tables) read(r *Reader, sections map[string]sectionRecord) error {
	steps := []struct {
		name string
		read func(*Reader, sectionRecord)
	}{
		{sectionTokens, t.readTokens},
		{sectionStrings, t.readStrings},
		{sectionFields, t.readFields},
		{sectionFieldSets, t.readFieldSets},
		{sectionPaths, t.readPaths},
		{sectionSpecs, t.readSpecs},
	}
	for _, step := range steps {
		sec, ok := sections[step.name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSection, step.name)
		}
		r.SeekTo(sec.Start)
		step.read(r, sec)
		if r.Err() == nil && r.Tell() > sec.Start+sec.Size {
			r.Fail(fmt.Errorf("%w: read past the end of the section", usd.ErrParsing))
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", step.name, err)
		}
	}
	return nil
}

func (t *tables) readTokens(r *Reader, sec sectionRecord) {
	n := count(r, sec)
	var rawSize, compSize uint64
	r.ReadUint64(&rawSize)
	r.ReadUint64(&compSize)
	if r.Err() != nil {
		return
	}
	if compSize > uint64(r.Available()) || rawSize > 256*compSize+64 {
		r.Fail(fmt.Errorf("%w: token blob sizes %d/%d", usd.ErrParsing, rawSize, compSize))
		return
	}
	raw, err := lz4block.DecompressContainer(r.ReadBytes(int(compSize)), int(rawSize))
	if err != nil {
		r.Fail(err)
		return
	}
	parts := bytes.Split(bytes.TrimSuffix(raw, []byte{0}), []byte{0})
	if n == 0 {
		parts = nil
	}
	if len(parts) != n {
		r.Fail(fmt.Errorf("%w: %d tokens declared, %d stored", usd.ErrParsing, n, len(parts)))
		return
	}
	t.tokens = make([]string, n)
	for i, p := range parts {
		t.tokens[i] = string(p)
	}
}

func (t *tables) readStrings(r *Reader, sec sectionRecord) {
	n := count(r, sec)
	t.strings = make([]uint32, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		var idx uint32
		r.ReadUint32(&idx)
		t.strings = append(t.strings, idx)
	}
}

func (t *tables) readFields(r *Reader, sec sectionRecord) {
	n := count(r, sec)
	tokens := readCompressedUints(r, n)
	var size uint64
	r.ReadUint64(&size)
	if r.Err() != nil {
		return
	}
	if size > uint64(r.Available()) {
		r.Fail(fmt.Errorf("%w: value reps need %d bytes", ErrTruncated, size))
		return
	}
	raw, err := lz4block.DecompressContainer(r.ReadBytes(int(size)), 8*n)
	if err != nil {
		r.Fail(err)
		return
	}
	t.fields = make([]field, n)
	for i := range t.fields {
		t.fields[i] = field{Token: tokens[i], Rep: ValueRep(r.order.Uint64(raw[8*i:]))}
	}
}

func (t *tables) readFieldSets(r *Reader, sec sectionRecord) {
	t.fieldSets = readCompressedUints(r, count(r, sec))
}

func (t *tables) readPaths(r *Reader, sec sectionRecord) {
	numPaths := count(r, sec)
	numEncoded := count(r, sec)
	pathIndexes := readCompressedUints(r, numEncoded)
	elements := readCompressedInts[int32](r, numEncoded)
	jumps := readCompressedInts[int32](r, numEncoded)
	if r.Err() != nil {
		return
	}
	t.paths = make([]usd.Path, numPaths)
	if numEncoded > 0 {
		r.Fail(t.buildPaths(pathIndexes, elements, jumps))
	}
}

// buildPaths rebuilds the path table from its pre-order tree encoding. Each
// entry names its path index, its element token (negative for properties) and
// a jump: -2 leaf with no sibling, -1 child follows with no sibling, 0 sibling
// follows with no child, and n > 0 child follows with the sibling n entries on.
func (t *tables) buildPaths(pathIndexes []uint32, elements, jumps []int32) error {
	type frame struct {
		index  int
		parent usd.Path
	}
	stack := []frame{{index: 0}}
	visited := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur, parent := f.index, f.parent
		for {
			if cur < 0 || cur >= len(jumps) || visited >= len(jumps) {
				return fmt.Errorf("%w: path tree jumps to entry %d of %d", usd.ErrParsing, cur, len(jumps))
			}
			this := cur
			cur++
			visited++

			p := usd.RootPath
			if !parent.IsEmpty() {
				token := elements[this]
				property := token < 0
				if property {
					token = -token
				}
				name, err := t.Token(uint32(token))
				if err != nil {
					return err
				}
				if property {
					p = parent.AppendProperty(name)
				} else {
					p = parent.AppendChild(name)
				}
			}
			idx := pathIndexes[this]
			if int64(idx) >= int64(len(t.paths)) {
				return fmt.Errorf("%w: path %d of %d", ErrIndex, idx, len(t.paths))
			}
			t.paths[idx] = p

			jump := jumps[this]
			hasChild := jump > 0 || jump == -1
			hasSibling := jump >= 0
			if hasChild {
				if hasSibling {
					stack = append(stack, frame{index: this + int(jump), parent: parent})
				}
				parent = p
			}
			if !hasChild && !hasSibling {
				break
			}
		}
	}
	return nil
}

func (t *tables) readSpecs(r *Reader, sec sectionRecord) {
	n := count(r, sec)
	paths := readCompressedUints(r, n)
	fieldSets := readCompressedUints(r, n)
	types := readCompressedUints(r, n)
	if r.Err() != nil {
		return
	}
	t.specs = make([]spec, n)
	for i := range t.specs {
		t.specs[i] = spec{Path: paths[i], FieldSet: fieldSets[i], Type: SpecType(types[i])}
	}
}
