package usd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PrimTestSuite struct {
	suite.Suite
	scene *Scene
	world *Prim
	ball  *Prim
}

func TestPrimTestSuite(t *testing.T) {
	suite.Run(t, new(PrimTestSuite))
}

func (s *PrimTestSuite) SetupTest() {
	s.scene = NewScene("scene.usda")
	s.scene.Root.Attribs = []Attrib{{Name: "defaultPrim", Value: TokenValue("World")}}
	s.world = NewPrim(RootPath, "World", SpecifierDef, "Xform")
	s.ball = NewPrim(s.world.Path, "Ball", SpecifierDef, "Sphere")
	s.ball.Attribs = []Attrib{{Name: "radius", TypeName: "double", Value: MakeValue(KindDouble, 1.0)}}
	s.ball.AddChild(NewPrim(s.ball.Path, "Inner", SpecifierDef, "Scope"))
	s.world.AddChild(s.ball)
	s.scene.Root.AddChild(s.world)
}

func (s *PrimTestSuite) TestTypeNames() {
	s.Equal(PrimSphere, s.ball.Type)
	s.Equal("Sphere", s.ball.TypeName())

	custom := NewPrim(RootPath, "Look", SpecifierDef, "MyShape")
	s.Equal(PrimUnknown, custom.Type)
	s.Equal("MyShape", custom.TypeName())

	custom.SetTypeName("Mesh")
	s.Equal(PrimMesh, custom.Type)
	s.Empty(custom.CustomType)
}

func (s *PrimTestSuite) TestLookups() {
	s.Same(s.world, s.scene.DefaultPrim())
	s.Same(s.ball, s.scene.FindPrim(MustPath("/World/Ball")))
	s.Same(s.ball, s.scene.FindPrim(MustPath("/World/Ball.radius")))
	s.Same(s.scene.Root, s.scene.FindPrim(RootPath))
	s.Nil(s.scene.FindPrim(MustPath("/World/Cube")))

	v, ok := s.ball.Value("radius")
	s.Require().True(ok)
	s.Equal(MakeValue(KindDouble, 1.0), v)
	_, ok = s.ball.Attrib("height")
	s.False(ok)

	s.Equal(4, s.scene.Root.Count())
	var visited []string
	s.scene.Walk(func(p *Prim) bool {
		visited = append(visited, p.Path.String())
		return p != s.ball
	})
	s.Equal([]string{"/World", "/World/Ball"}, visited)
}

func (s *PrimTestSuite) TestDefaultPrimMissing() {
	s.scene.Root.Attribs = nil
	s.Nil(s.scene.DefaultPrim())
	s.scene.Root.Attribs = []Attrib{{Name: "defaultPrim", Value: TokenValue("Nope")}}
	s.Nil(s.scene.DefaultPrim())
}

func (s *PrimTestSuite) TestInstanceIsCopyOnWrite() {
	inst := s.ball.Instance()
	inst.SetAttrib(Attrib{Name: "radius", TypeName: "double", Value: MakeValue(KindDouble, 2.0)})
	inst.SetAttrib(Attrib{Name: "color", TypeName: "color3f", Value: MakeValue(KindVec3f, Vec3f{1, 0, 0})})
	inst.Children[0] = NewPrim(inst.Path, "Other", SpecifierDef, "")

	v, _ := s.ball.Value("radius")
	s.Equal(MakeValue(KindDouble, 1.0), v, "original keeps its attrib")
	s.Len(s.ball.Attribs, 1)
	s.Equal("Inner", s.ball.Children[0].Name())

	v, _ = inst.Value("radius")
	s.Equal(MakeValue(KindDouble, 2.0), v)
	s.Len(inst.Attribs, 2)

	s.Require().True(s.world.Instance().ReplaceChild(s.ball, inst))
	s.False(s.world.ReplaceChild(inst, s.ball))
}

func (s *PrimTestSuite) TestSetAttribDoesNotWriteThroughSharedList() {
	shared := make([]Attrib, 1, 4)
	shared[0] = Attrib{Name: "a", Value: TokenValue("x")}
	p := &Prim{Path: MustPath("/P"), Attribs: shared}
	q := &Prim{Path: MustPath("/Q"), Attribs: shared}

	p.SetAttrib(Attrib{Name: "b", Value: TokenValue("y")})
	q.SetAttrib(Attrib{Name: "c", Value: TokenValue("z")})
	s.Equal("b", p.Attribs[1].Name)
	s.Equal("c", q.Attribs[1].Name)
}

func (s *PrimTestSuite) TestGraft() {
	lib := MustPath("/Lib/Slot")
	g := s.ball.Graft(lib)
	s.Equal(MustPath("/Lib/Slot/Ball"), g.Path)
	s.Equal(MustPath("/Lib/Slot/Ball/Inner"), g.Children[0].Path)
	s.Equal(MustPath("/World/Ball/Inner"), s.ball.Children[0].Path, "source tree is untouched")
	s.Equal(s.ball.Attribs, g.Attribs)

	renamed := s.ball.GraftAs(lib, "Copy")
	s.Equal(MustPath("/Lib/Slot/Copy/Inner"), renamed.Children[0].Path)
}

func (s *PrimTestSuite) TestSetSource() {
	s.scene.SetSource("other.usda")
	s.Equal("other.usda", s.scene.Source)
	s.scene.Root.Walk(func(p *Prim) bool {
		s.Equal("other.usda", p.Source, p.Path.String())
		return true
	})
}

func TestAttribMetadata(t *testing.T) {
	a := Attrib{
		Name: "normals", TypeName: "normal3f[]",
		Metadata: []Attrib{{Name: "interpolation", Value: TokenValue("faceVarying")}},
	}
	v, ok := a.Meta("interpolation")
	require.True(t, ok)
	assert.Equal(t, TokenValue("faceVarying"), v)
	_, ok = a.Meta("elementSize")
	assert.False(t, ok)

	assert.False(t, a.IsMetadata())
	assert.True(t, Attrib{Name: "kind", Value: TokenValue("component")}.IsMetadata())
	assert.False(t, Attrib{Name: "material:binding", Rel: true}.IsMetadata())
}

func TestSpecifier(t *testing.T) {
	for _, name := range []string{"def", "over", "class"} {
		spec, ok := ParseSpecifier(name)
		require.True(t, ok, name)
		assert.Equal(t, name, spec.String())
	}
	_, ok := ParseSpecifier("define")
	assert.False(t, ok)
}
