// Package mesh flattens the Mesh prims of a composed scene into world-space
// triangles.
package mesh

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/oy3o/usd"
)

// GroupPolicy chooses the group id stamped on each emitted triangle.
type GroupPolicy uint8

const (
	// GroupPerFace gives every source face its own id.
	GroupPerFace GroupPolicy = iota
	// GroupPerMesh gives all triangles of a source mesh one id.
	GroupPerMesh
)

// Triangle is one emitted triangle. V holds vertex ids returned by
// Sink.AddVertex; Normals and UVs are per corner and valid only when the
// matching Has flag is set.
type Triangle struct {
	V          [3]int       `cbor:"v"`
	Normals    [3]usd.Vec3f `cbor:"n"`
	UVs        [3]usd.Vec2f `cbor:"uv"`
	HasNormals bool         `cbor:"-"`
	HasUVs     bool         `cbor:"-"`
	Group      int          `cbor:"g"`
}

// Sink receives extracted geometry. A triangle the sink refuses is skipped
// with a warning.
type Sink interface {
	AddVertex(p usd.Vec3f) int
	AddTriangle(t Triangle) error
}

// MeshStarter is implemented by sinks that want to know where each source
// mesh begins.
type MeshStarter interface {
	BeginMesh(path usd.Path)
}

type Options struct {
	Groups      GroupPolicy
	Diagnostics usd.Diagnostics
}

var uvNames = []string{"primvars:st", "primvars:UVMap"}

// Extract walks scene from its root, accumulating transforms, and feeds the
// triangles of every defined Mesh prim to sink. Prims that are not defined
// (overs, classes) and inactive prims are skipped with their subtrees.
// Malformed meshes are reported through opts.Diagnostics and skipped.
func Extract(scene *usd.Scene, sink Sink, opts Options) error {
	if scene == nil || scene.Root == nil {
		return errors.New("mesh: nil scene")
	}
	x := extractor{sink: sink, opts: opts}
	x.walk(scene.Root, Identity())
	return nil
}

type extractor struct {
	sink   Sink
	opts   Options
	faces  int
	meshes int
}

func (x *extractor) walk(p *usd.Prim, parent Matrix4) {
	if p.Specifier != usd.SpecifierDef {
		return
	}
	if v, ok := p.Value("active"); ok {
		if active, ok := v.Bool(); ok && !active {
			return
		}
	}
	local, reset := LocalTransform(p, x.opts.Diagnostics)
	world := local
	if !reset {
		world = local.Mul(parent)
	}
	if p.Type == usd.PrimMesh {
		x.mesh(p, world)
	}
	for _, c := range p.Children {
		x.walk(c, world)
	}
}

func (x *extractor) warnf(p *usd.Prim, format string, args ...any) {
	usd.Warnf(x.opts.Diagnostics, usd.WarnMeshAttribute, p.Path, format, args...)
}

func (x *extractor) mesh(p *usd.Prim, world Matrix4) {
	points, ok := x.float3s(p, "points")
	if !ok {
		return
	}
	counts, ok := x.ints(p, "faceVertexCounts")
	if !ok {
		return
	}
	indices, ok := x.ints(p, "faceVertexIndices")
	if !ok {
		return
	}
	total := 0
	for _, n := range counts {
		if n < 0 {
			x.warnf(p, "negative face vertex count %d", n)
			return
		}
		total += n
	}
	if total != len(indices) {
		x.warnf(p, "faceVertexCounts sum to %d, faceVertexIndices has %d", total, len(indices))
		return
	}
	for _, i := range indices {
		if i < 0 || i >= len(points) {
			x.warnf(p, "face vertex index %d out of range [0,%d)", i, len(points))
			return
		}
	}

	normals := cornerValues(p, []string{"normals", "primvars:normals"}, len(points), indices, usd.Value.Float3s)
	uvs := cornerValues(p, uvNames, len(points), indices, usd.Value.Float2s)
	if normals != nil {
		nm := world.NormalMatrix()
		for i, n := range normals {
			normals[i] = normalize(nm.Direction(n))
		}
	}

	if s, ok := x.sink.(MeshStarter); ok {
		s.BeginMesh(p.Path)
	}
	ids := make([]int, len(points))
	for i, pt := range points {
		ids[i] = x.sink.AddVertex(world.Point(pt))
	}

	group := x.meshes
	x.meshes++
	start := 0
	for _, n := range counts {
		if x.opts.Groups == GroupPerFace {
			group = x.faces
		}
		x.faces++
		for k := 1; k+1 < n; k++ {
			corners := [3]int{start, start + k, start + k + 1}
			t := Triangle{Group: group}
			for c, fv := range corners {
				t.V[c] = ids[indices[fv]]
				if normals != nil {
					t.Normals[c] = normals[fv]
				}
				if uvs != nil {
					t.UVs[c] = uvs[fv]
				}
			}
			t.HasNormals, t.HasUVs = normals != nil, uvs != nil
			if err := x.sink.AddTriangle(t); err != nil {
				usd.Warnf(x.opts.Diagnostics, usd.WarnTriangleAppend, p.Path,
					"face %d triangle %d: %v", x.faces-1, k-1, err)
			}
		}
		start += n
	}
}

func (x *extractor) float3s(p *usd.Prim, name string) ([]usd.Vec3f, bool) {
	v, ok := p.Value(name)
	if !ok {
		x.warnf(p, "%s missing", name)
		return nil, false
	}
	out, ok := v.Float3s()
	if !ok {
		x.warnf(p, "%s is %v, not a 3-vector array", name, v.Kind)
	}
	return out, ok
}

func (x *extractor) ints(p *usd.Prim, name string) ([]int, bool) {
	v, ok := p.Value(name)
	if !ok {
		x.warnf(p, "%s missing", name)
		return nil, false
	}
	out, ok := v.Ints()
	if !ok {
		x.warnf(p, "%s is %v, not an int array", name, v.Kind)
	}
	return out, ok
}

// cornerValues returns the first of names that can be spread over the face
// corners: face-varying data (one element per face vertex index) is used as
// is, vertex data (one element per point) is looked up through indices. The
// result is a fresh slice, or nil when no attribute fits.
func cornerValues[T any](p *usd.Prim, names []string, points int, indices []int, get func(usd.Value) ([]T, bool)) []T {
	for _, name := range names {
		v, ok := p.Value(name)
		if !ok {
			continue
		}
		data, ok := get(v)
		if !ok {
			continue
		}
		switch len(data) {
		case len(indices):
			return append([]T(nil), data...)
		case points:
			out := make([]T, len(indices))
			for i, idx := range indices {
				out[i] = data[idx]
			}
			return out
		}
	}
	return nil
}

func normalize(v usd.Vec3f) usd.Vec3f {
	l := math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if l == 0 {
		return v
	}
	return usd.Vec3f{v[0] / l, v[1] / l, v[2] / l}
}
