package mesh

import (
	"math"

	"github.com/oy3o/usd"
)

// Matrix4 is an affine transform in the row-vector convention of USD files:
// a point p maps to p·M and the translation sits in the last row.
type Matrix4 usd.Matrix4d

// Identity returns the identity transform.
func Identity() Matrix4 { return Matrix4(usd.Identity4d()) }

// Translate returns a translation by t.
func Translate(t usd.Vec3d) Matrix4 {
	m := Identity()
	m[3][0], m[3][1], m[3][2] = t[0], t[1], t[2]
	return m
}

// Scale returns a scale by s along each axis.
func Scale(s usd.Vec3d) Matrix4 {
	m := Identity()
	m[0][0], m[1][1], m[2][2] = s[0], s[1], s[2]
	return m
}

// Rotate returns a rotation of deg degrees about axis 0, 1 or 2.
func Rotate(axis int, deg float64) Matrix4 {
	s, c := math.Sincos(deg * math.Pi / 180)
	m := Identity()
	i, j := (axis+1)%3, (axis+2)%3
	m[i][i], m[i][j] = c, s
	m[j][i], m[j][j] = -s, c
	return m
}

// Mul returns m·n: m applied first, then n.
func (m Matrix4) Mul(n Matrix4) Matrix4 {
	var out Matrix4
	for r := range 4 {
		for c := range 4 {
			var sum float64
			for k := range 4 {
				sum += m[r][k] * n[k][c]
			}
			out[r][c] = sum
		}
	}
	return out
}

func (m Matrix4) Transpose() Matrix4 {
	var out Matrix4
	for r := range 4 {
		for c := range 4 {
			out[c][r] = m[r][c]
		}
	}
	return out
}

// Inverse returns the inverse of m, or false when m is singular.
func (m Matrix4) Inverse() (Matrix4, bool) {
	// Gauss-Jordan elimination with partial pivoting on [m | I].
	a := m
	inv := Identity()
	for col := range 4 {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Identity(), false
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]
		d := a[col][col]
		for c := range 4 {
			a[col][c] /= d
			inv[col][c] /= d
		}
		for r := range 4 {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := range 4 {
				a[r][c] -= f * a[col][c]
				inv[r][c] -= f * inv[col][c]
			}
		}
	}
	return inv, true
}

// Point transforms a position.
func (m Matrix4) Point(p usd.Vec3f) usd.Vec3f {
	x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
	out := usd.Vec3f{
		float32(x*m[0][0] + y*m[1][0] + z*m[2][0] + m[3][0]),
		float32(x*m[0][1] + y*m[1][1] + z*m[2][1] + m[3][1]),
		float32(x*m[0][2] + y*m[1][2] + z*m[2][2] + m[3][2]),
	}
	if w := x*m[0][3] + y*m[1][3] + z*m[2][3] + m[3][3]; w != 1 && w != 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / w)
		}
	}
	return out
}

// Direction transforms a vector, ignoring translation.
func (m Matrix4) Direction(v usd.Vec3f) usd.Vec3f {
	x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
	return usd.Vec3f{
		float32(x*m[0][0] + y*m[1][0] + z*m[2][0]),
		float32(x*m[0][1] + y*m[1][1] + z*m[2][1]),
		float32(x*m[0][2] + y*m[1][2] + z*m[2][2]),
	}
}

// NormalMatrix returns the inverse-transpose of m, the transform that keeps
// normals perpendicular to transformed surfaces.
func (m Matrix4) NormalMatrix() Matrix4 {
	inv, ok := m.Inverse()
	if !ok {
		return m
	}
	return inv.Transpose()
}
