package mesh

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/oy3o/usd"
)

var (
	ErrDegenerate  = errors.New("mesh: degenerate triangle")
	ErrNonManifold = errors.New("mesh: non-manifold edge")
)

// Submesh is the range of TriMesh data that came from one source mesh.
type Submesh struct {
	Path          string `cbor:"path"`
	FirstVertex   int    `cbor:"first_vertex"`
	FirstTriangle int    `cbor:"first_triangle"`
}

// TriMesh is an in-memory Sink. It refuses triangles that repeat a vertex,
// have zero area or non-finite corners, and triangles that would traverse an
// edge in a direction some earlier triangle already used.
type TriMesh struct {
	Vertices  []usd.Vec3f `cbor:"vertices"`
	Triangles []Triangle  `cbor:"triangles"`
	Submeshes []Submesh   `cbor:"submeshes"`

	edges map[[2]int]struct{}
}

func NewTriMesh() *TriMesh {
	return &TriMesh{edges: make(map[[2]int]struct{})}
}

func (m *TriMesh) BeginMesh(path usd.Path) {
	m.Submeshes = append(m.Submeshes, Submesh{
		Path:          path.String(),
		FirstVertex:   len(m.Vertices),
		FirstTriangle: len(m.Triangles),
	})
}

func (m *TriMesh) AddVertex(p usd.Vec3f) int {
	m.Vertices = append(m.Vertices, p)
	return len(m.Vertices) - 1
}

func (m *TriMesh) AddTriangle(t Triangle) error {
	for _, v := range t.V {
		if v < 0 || v >= len(m.Vertices) {
			return fmt.Errorf("mesh: vertex %d out of range", v)
		}
	}
	a, b, c := t.V[0], t.V[1], t.V[2]
	if a == b || b == c || a == c {
		return fmt.Errorf("%w: repeated vertex %v", ErrDegenerate, t.V)
	}
	if err := m.checkArea(a, b, c); err != nil {
		return err
	}
	if m.edges == nil {
		m.edges = make(map[[2]int]struct{})
	}
	edges := [3][2]int{{a, b}, {b, c}, {c, a}}
	for _, e := range edges {
		if _, used := m.edges[e]; used {
			return fmt.Errorf("%w: %d->%d", ErrNonManifold, e[0], e[1])
		}
	}
	for _, e := range edges {
		m.edges[e] = struct{}{}
	}
	m.Triangles = append(m.Triangles, t)
	return nil
}

func (m *TriMesh) checkArea(a, b, c int) error {
	pa, pb, pc := m.Vertices[a], m.Vertices[b], m.Vertices[c]
	for _, p := range [...]usd.Vec3f{pa, pb, pc} {
		for _, f := range p {
			if math32.IsNaN(f) || math32.IsInf(f, 0) {
				return fmt.Errorf("%w: non-finite corner %v", ErrDegenerate, p)
			}
		}
	}
	u := usd.Vec3f{pb[0] - pa[0], pb[1] - pa[1], pb[2] - pa[2]}
	v := usd.Vec3f{pc[0] - pa[0], pc[1] - pa[1], pc[2] - pa[2]}
	cross := usd.Vec3f{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
	if math32.Abs(cross[0])+math32.Abs(cross[1])+math32.Abs(cross[2]) == 0 {
		return fmt.Errorf("%w: zero area", ErrDegenerate)
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *TriMesh) Bounds() (lo, hi usd.Vec3f) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, p := range m.Vertices[1:] {
		for i := range 3 {
			lo[i] = math32.Min(lo[i], p[i])
			hi[i] = math32.Max(hi[i], p[i])
		}
	}
	return lo, hi
}
