// Package stage opens scene files from disk: it sniffs the format, decodes
// the layer and runs the composition steps the caller asks for.
package stage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/compose"
	"github.com/oy3o/usd/crate"
	"github.com/oy3o/usd/usda"
	"github.com/zeebo/blake3"
)

// Format is the on-disk encoding of a layer.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCrate
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatCrate:
		return "usdc"
	case FormatText:
		return "usda"
	}
	return "unknown"
}

// headSize is enough to see the crate magic or a "#usda" line after a BOM
// and some blank lines.
const headSize = 64

// sniff reports the format of the stream behind r from its first bytes.
func sniff(r *peekReader) (Format, error) {
	head, err := r.Peek(headSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return FormatUnknown, fmt.Errorf("%w: %w", usd.ErrAccess, err)
	}
	switch {
	case bytes.HasPrefix(head, []byte(crate.Magic)):
		return FormatCrate, nil
	case usda.HasHeader(head):
		return FormatText, nil
	}
	return FormatUnknown, nil
}

// Sniff reports the format of a layer from its leading bytes.
func Sniff(head []byte) Format {
	f, _ := sniff(newPeekReader(bytes.NewReader(head)))
	return f
}

// Read decodes one layer from r. source names the layer for relative asset
// resolution and may be empty. The scene's Digest covers every byte of r.
func Read(r io.Reader, source string, diag usd.Diagnostics) (*usd.Scene, error) {
	h := blake3.New()
	pr := newPeekReader(io.TeeReader(r, h))
	format, err := sniff(pr)
	if err != nil {
		return nil, err
	}

	var scene *usd.Scene
	switch format {
	case FormatCrate:
		scene, err = crate.Read(pr, diag)
	case FormatText:
		var data []byte
		if data, err = io.ReadAll(pr); err != nil {
			return nil, fmt.Errorf("%w: %w", usd.ErrAccess, err)
		}
		scene, err = usda.Parse(data, diag)
	default:
		return nil, fmt.Errorf("%w: neither %s magic nor #usda header", usd.ErrFormat, crate.Magic)
	}
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, pr); err != nil {
		return nil, fmt.Errorf("%w: %w", usd.ErrAccess, err)
	}
	scene.SetSource(source)
	scene.Digest = hex.EncodeToString(h.Sum(nil))
	return scene, nil
}

// ReadFile decodes the layer at path. Files larger than maxBytes are
// refused; zero means no limit.
func ReadFile(path string, maxBytes int64, diag usd.Diagnostics) (*usd.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", usd.ErrAccess, err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		if fi, err := f.Stat(); err == nil && fi.Size() > maxBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", usd.ErrAccess, path, fi.Size(), maxBytes)
		}
		r = newLimitReader(f, maxBytes)
	}
	scene, err := Read(r, path, diag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scene, nil
}

// Loader reads referenced layers from disk for reference expansion.
type Loader struct {
	MaxBytes    int64
	Diagnostics usd.Diagnostics
}

func (l Loader) Load(_ context.Context, path string) (*usd.Scene, error) {
	return ReadFile(path, l.MaxBytes, l.Diagnostics)
}

type Options struct {
	// BaseDir resolves relative asset paths of in-memory prims. Prims read
	// from a file resolve against that file's directory.
	BaseDir string

	ExpandReferences bool
	ApplyOverrides   bool

	// Payloads also expands payload arcs. It only matters with
	// ExpandReferences.
	Payloads bool

	// Workers bounds parallel reference loads. Zero means GOMAXPROCS.
	Workers int

	// MaxBytes refuses larger files. Zero means no limit.
	MaxBytes int64

	Diagnostics usd.Diagnostics
}

// Stage is an opened layer with its composition applied.
type Stage struct {
	Scene *usd.Scene
	// Loads counts the referenced layers read during expansion.
	Loads int64
}

// Open reads the layer at path and composes it per opts. Read failures of
// the root layer are returned; failures of referenced layers are reported
// through opts.Diagnostics.
func Open(ctx context.Context, path string, opts Options) (*Stage, error) {
	scene, err := ReadFile(path, opts.MaxBytes, opts.Diagnostics)
	if err != nil {
		return nil, err
	}
	st := &Stage{Scene: scene}
	if opts.ExpandReferences {
		base := opts.BaseDir
		if base == "" {
			base = filepath.Dir(path)
		}
		x := compose.NewExpander(compose.Options{
			BaseDir:     base,
			Workers:     opts.Workers,
			Loader:      Loader{MaxBytes: opts.MaxBytes, Diagnostics: opts.Diagnostics},
			Payloads:    opts.Payloads,
			Diagnostics: opts.Diagnostics,
		})
		if err := x.Expand(ctx, scene); err != nil {
			return nil, err
		}
		st.Loads = x.Loads()
	}
	if opts.ApplyOverrides {
		compose.ApplyOverrides(scene, opts.Diagnostics)
	}
	return st, nil
}
