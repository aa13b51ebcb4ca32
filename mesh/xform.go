package mesh

import (
	"errors"
	"strings"

	"github.com/oy3o/usd"
)

const (
	invertPrefix    = "!invert!"
	resetXformStack = "!resetXformStack!"
)

// LocalTransform composes the xformOpOrder of p into one matrix. reset
// reports a !resetXformStack! entry: the prim ignores its parents' transform.
// Ops that cannot be evaluated are skipped with a warning.
func LocalTransform(p *usd.Prim, diag usd.Diagnostics) (m Matrix4, reset bool) {
	m = Identity()
	v, ok := p.Value("xformOpOrder")
	if !ok {
		return m, false
	}
	order, ok := v.Tokens()
	if !ok {
		usd.Warnf(diag, usd.WarnMeshAttribute, p.Path, "xformOpOrder is %v, not token[]", v.Kind)
		return m, false
	}
	for _, name := range order {
		if name == resetXformStack {
			m, reset = Identity(), true
			continue
		}
		op, err := evalOp(p, name)
		if err != nil {
			usd.Warnf(diag, usd.WarnMeshAttribute, p.Path, "%s: %v", name, err)
			continue
		}
		// Ops listed first are applied last: with row vectors each op goes
		// in front of what is already composed.
		m = op.Mul(m)
	}
	return m, reset
}

// evalOp returns the matrix of one xformOpOrder entry.
func evalOp(p *usd.Prim, name string) (Matrix4, error) {
	attr, invert := strings.CutPrefix(name, invertPrefix)
	kind, ok := opKind(attr)
	if !ok {
		return Identity(), errors.New("unsupported op")
	}
	v, ok := p.Value(attr)
	if !ok {
		return Identity(), errors.New("op attribute missing")
	}
	switch kind {
	case "translate":
		t, ok := v.Vec3d()
		if !ok {
			return Identity(), errors.New("translate is not a 3-vector")
		}
		if invert {
			t = usd.Vec3d{-t[0], -t[1], -t[2]}
		}
		return Translate(t), nil
	case "scale":
		s, ok := v.Vec3d()
		if !ok {
			// A scalar scale is uniform.
			f, fok := v.Float64()
			if !fok {
				return Identity(), errors.New("scale is not a 3-vector")
			}
			s = usd.Vec3d{f, f, f}
		}
		if invert {
			for i, c := range s {
				if c == 0 {
					s[i] = 1
				} else {
					s[i] = 1 / c
				}
			}
		}
		return Scale(s), nil
	case "transform":
		mat, ok := v.Matrix4d()
		if !ok {
			return Identity(), errors.New("transform is not a matrix4d")
		}
		m := Matrix4(mat)
		if invert {
			inv, ok := m.Inverse()
			if !ok {
				return Identity(), errors.New("singular transform cannot be inverted")
			}
			m = inv
		}
		return m, nil
	case "rotateX", "rotateY", "rotateZ":
		deg, ok := v.Float64()
		if !ok {
			return Identity(), errors.New("rotation angle is not a scalar")
		}
		r := Rotate(int(kind[len(kind)-1]-'X'), deg)
		if invert {
			r = r.Transpose()
		}
		return r, nil
	default:
		// rotateXYZ and the other three-axis orders.
		angles, ok := v.Vec3d()
		if !ok {
			return Identity(), errors.New("rotation angles are not a 3-vector")
		}
		r := Identity()
		for _, axis := range kind[len("rotate"):] {
			i := int(axis - 'X')
			r = r.Mul(Rotate(i, angles[i]))
		}
		if invert {
			r = r.Transpose()
		}
		return r, nil
	}
}

var rotateOrders = map[string]bool{
	"rotateXYZ": true, "rotateXZY": true, "rotateYXZ": true,
	"rotateYZX": true, "rotateZXY": true, "rotateZYX": true,
	"rotateX": true, "rotateY": true, "rotateZ": true,
}

// opKind extracts the op type from "xformOp:<type>[:<suffix>]".
func opKind(attr string) (string, bool) {
	rest, ok := strings.CutPrefix(attr, "xformOp:")
	if !ok {
		return "", false
	}
	kind, _, _ := strings.Cut(rest, ":")
	switch {
	case kind == "translate", kind == "scale", kind == "transform":
		return kind, true
	case rotateOrders[kind]:
		return kind, true
	}
	return "", false
}
