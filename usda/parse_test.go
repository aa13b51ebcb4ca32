package usda

import (
	"testing"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/crate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const sampleLayer = `#usda 1.0
(
    "Test layer"
    defaultPrim = "World"
    upAxis = "Z"
    metersPerUnit = 0.01
    customLayerData = {
        string creator = "tests"
        dictionary nested = {
            int count = 3
        }
    }
)

def Xform "World" (
    kind = "assembly"
)
{
    double3 xformOp:translate = (1, 2, 3)
    uniform token[] xformOpOrder = ["xformOp:translate"]

    def Mesh "Quad" (
        prepend apiSchemas = ["MaterialBindingAPI"]
    )
    {
        int[] faceVertexCounts = [4]
        int[] faceVertexIndices = [0, 1, 2, 3]
        point3f[] points = [(0, 0, 0), (1, 0, 0), (1, 1, 0), (0, 1, 0)]
        texCoord2f[] primvars:st = [(0, 0), (1, 0), (1, 1), (0, 1)] (
            interpolation = "vertex"
        )
        rel material:binding = </World/Looks/Mat>
    }

    def Scope "Looks"
    {
        def Material "Mat"
        {
            token outputs:surface.connect = <Shader.outputs:surface>

            def Shader "Shader"
            {
                uniform token info:id = "UsdPreviewSurface"
                color3f inputs:diffuseColor = (0.8, 0.1, 0.1)
                token outputs:surface
            }
        }
    }
}

over "Patch" (
    active = false
)
{
    custom double radius = None
}
`

type ParseTestSuite struct {
	suite.Suite
	diag  *usd.Collector
	scene *usd.Scene
}

func TestParseSuite(t *testing.T) {
	suite.Run(t, new(ParseTestSuite))
}

func (s *ParseTestSuite) SetupTest() {
	s.diag = &usd.Collector{}
	scene, err := Parse([]byte(sampleLayer), s.diag)
	s.Require().NoError(err)
	s.scene = scene
}

func (s *ParseTestSuite) TestLayerMetadata() {
	doc, ok := s.scene.Metadata("documentation")
	s.Require().True(ok)
	s.Assert().Equal("Test layer", doc.Data)

	up, _ := s.scene.Metadata("upAxis")
	s.Assert().Equal(usd.TokenValue("Z"), up)
	mpu, _ := s.scene.Metadata("metersPerUnit")
	s.Assert().Equal(usd.MakeValue(usd.KindDouble, 0.01), mpu)

	custom, _ := s.scene.Metadata("customLayerData")
	s.Assert().Equal(usd.MakeValue(usd.KindDictionary, usd.Dictionary{
		"creator": usd.MakeValue(usd.KindString, "tests"),
		"nested": usd.MakeValue(usd.KindDictionary, usd.Dictionary{
			"count": usd.MakeValue(usd.KindInt, int32(3)),
		}),
	}), custom)

	world := s.scene.DefaultPrim()
	s.Require().NotNil(world)
	s.Assert().Equal(usd.PrimXform, world.Type)
	s.Assert().Empty(s.diag.Warnings())
}

func (s *ParseTestSuite) TestHierarchy() {
	var paths []string
	s.scene.Walk(func(p *usd.Prim) bool {
		paths = append(paths, p.Path.String())
		return true
	})
	s.Assert().Equal([]string{
		"/World",
		"/World/Quad",
		"/World/Looks",
		"/World/Looks/Mat",
		"/World/Looks/Mat/Shader",
		"/Patch",
	}, paths)

	patch := s.scene.FindPrim(usd.MustPath("/Patch"))
	s.Require().NotNil(patch)
	s.Assert().Equal(usd.SpecifierOver, patch.Specifier)
	s.Assert().Equal("", patch.TypeName())
	active, _ := patch.Value("active")
	s.Assert().Equal(usd.MakeValue(usd.KindBool, false), active)

	shader := s.scene.FindPrim(usd.MustPath("/World/Looks/Mat/Shader"))
	s.Require().NotNil(shader)
	s.Assert().Equal(usd.PrimShader, shader.Type)
}

func (s *ParseTestSuite) TestAttributes() {
	quad := s.scene.FindPrim(usd.MustPath("/World/Quad"))
	s.Require().NotNil(quad)

	points, ok := quad.Attrib("points")
	s.Require().True(ok)
	s.Assert().Equal("point3f[]", points.TypeName)
	s.Assert().Equal(usd.MakeArray(usd.KindVec3f, []usd.Vec3f{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}), points.Value)

	counts, _ := quad.Value("faceVertexCounts")
	s.Assert().Equal(usd.MakeArray(usd.KindInt, []int32{4}), counts)

	st, ok := quad.Attrib("primvars:st")
	s.Require().True(ok)
	interp, ok := st.Meta("interpolation")
	s.Require().True(ok)
	s.Assert().Equal(usd.TokenValue("vertex"), interp)

	schemas, _ := quad.Value("apiSchemas")
	s.Assert().Equal(usd.MakeValue(usd.KindTokenListOp, usd.TokenListOp{PrependedItems: []string{"MaterialBindingAPI"}}), schemas)

	world := s.scene.FindPrim(usd.MustPath("/World"))
	order, ok := world.Attrib("xformOpOrder")
	s.Require().True(ok)
	s.Assert().True(order.Uniform)
	s.Assert().Equal(usd.TokenArray("xformOp:translate"), order.Value)
	translate, _ := world.Value("xformOp:translate")
	s.Assert().Equal(usd.MakeValue(usd.KindVec3d, usd.Vec3d{1, 2, 3}), translate)

	radius, ok := s.scene.FindPrim(usd.MustPath("/Patch")).Attrib("radius")
	s.Require().True(ok)
	s.Assert().True(radius.Custom)
	s.Assert().Equal(usd.MakeValue(usd.KindValueBlock, usd.ValueBlock{}), radius.Value)

	diffuse, _ := s.scene.FindPrim(usd.MustPath("/World/Looks/Mat/Shader")).Value("inputs:diffuseColor")
	s.Assert().Equal(usd.MakeValue(usd.KindVec3f, usd.Vec3f{0.8, 0.1, 0.1}), diffuse)
}

func (s *ParseTestSuite) TestRelationshipsAndConnections() {
	binding, ok := s.scene.FindPrim(usd.MustPath("/World/Quad")).Attrib("material:binding")
	s.Require().True(ok)
	s.Assert().True(binding.Rel)
	s.Assert().Equal(usd.MakeValue(usd.KindPathListOp, usd.PathListOp{
		Explicit:      true,
		ExplicitItems: []usd.Path{usd.MustPath("/World/Looks/Mat")},
	}), binding.Value)

	surface, ok := s.scene.FindPrim(usd.MustPath("/World/Looks/Mat")).Attrib("outputs:surface")
	s.Require().True(ok)
	s.Assert().Equal("token", surface.TypeName)
	s.Assert().True(surface.Value.IsZero())
	conn, ok := surface.Meta("connectionPaths")
	s.Require().True(ok)
	s.Assert().Equal(usd.MakeValue(usd.KindPathListOp, usd.PathListOp{
		Explicit:      true,
		ExplicitItems: []usd.Path{usd.MustPath("/World/Looks/Mat/Shader.outputs:surface")},
	}), conn)
}

// TestCrateParity checks that the text and binary encodings of the same layer
// produce identical trees.
func (s *ParseTestSuite) TestCrateParity() {
	data, err := crate.Encode(s.scene)
	s.Require().NoError(err)

	diag := &usd.Collector{}
	decoded, err := crate.Decode(data, diag)
	s.Require().NoError(err)
	s.Assert().Empty(diag.Warnings())
	s.Assert().Equal(s.scene.Root, decoded.Root)
}

func (s *ParseTestSuite) TestReferences() {
	src := `#usda 1.0
def "A" (
    prepend references = [@./a.usda@</Asset> (offset = 10; scale = 2), </Local>]
    delete references = @./old.usda@
    payload = @heavy.usda@
    inherits = </_class_A>
)
{
}
`
	scene, err := Parse([]byte(src), nil)
	s.Require().NoError(err)
	a := scene.FindPrim(usd.MustPath("/A"))
	s.Require().NotNil(a)

	refs, _ := a.Value("references")
	s.Assert().Equal(usd.KindReferenceListOp, refs.Kind)
	s.Assert().Equal(usd.ReferenceListOp{
		PrependedItems: []usd.Reference{
			{AssetPath: "./a.usda", PrimPath: usd.MustPath("/Asset"), LayerOffset: usd.LayerOffset{Offset: 10, Scale: 2}},
			{PrimPath: usd.MustPath("/Local"), LayerOffset: usd.IdentityLayerOffset},
		},
		DeletedItems: []usd.Reference{
			{AssetPath: "./old.usda", LayerOffset: usd.IdentityLayerOffset},
		},
	}, refs.Data)

	payload, _ := a.Value("payload")
	s.Assert().Equal(usd.MakeValue(usd.KindPayloadListOp, usd.ReferenceListOp{
		Explicit:      true,
		ExplicitItems: []usd.Reference{{AssetPath: "heavy.usda", LayerOffset: usd.IdentityLayerOffset}},
	}), payload)

	inherits, _ := a.Value("inherits")
	s.Assert().Equal(usd.MakeValue(usd.KindPathListOp, usd.PathListOp{
		Explicit:      true,
		ExplicitItems: []usd.Path{usd.MustPath("/_class_A")},
	}), inherits)

	data, err := crate.Encode(scene)
	s.Require().NoError(err)
	decoded, err := crate.Decode(data, nil)
	s.Require().NoError(err)
	s.Assert().Equal(scene.Root, decoded.Root)
}

func (s *ParseTestSuite) TestSkippedConstructs() {
	src := `#usda 1.0
def Xform "A" (
    variants = {
        string lod = "high"
    }
    prepend variantSets = "lod"
)
{
    variantSet "lod" = {
        "high" {
            def Mesh "Hi" {}
        }
        "low" (doc = "cheap") {
            def Mesh "Lo" {}
        }
    }
    double radius.timeSamples = {
        0: 1,
        10: 2.5,
    }
    opaque weird = 3
    reorder nameChildren = ["B"]
    def "B" {}
}
`
	diag := &usd.Collector{}
	scene, err := Parse([]byte(src), diag)
	s.Require().NoError(err)
	a := scene.FindPrim(usd.MustPath("/A"))
	s.Require().NotNil(a)
	s.Assert().Len(a.Children, 1, "variant prims are not part of the namespace")

	sel, _ := a.Value("variants")
	s.Assert().Equal(usd.MakeValue(usd.KindVariantSelectionMap, usd.VariantSelectionMap{"lod": "high"}), sel)
	names, _ := a.Value("variantSetNames")
	s.Assert().Equal(usd.MakeValue(usd.KindStringListOp, usd.ListOp[string]{PrependedItems: []string{"lod"}}), names)

	radius, ok := a.Attrib("radius")
	s.Require().True(ok)
	s.Assert().Equal(usd.MakeValue(usd.KindDouble, 1.0), radius.Value)
	_, ok = a.Attrib("weird")
	s.Assert().False(ok)

	// variantSet, extra time samples, unknown type
	s.Assert().Equal(3, diag.Count(usd.WarnUnsupported))
}

func (s *ParseTestSuite) TestRelationshipForms() {
	src := `#usda 1.0
def "A"
{
    rel empty
    rel none = None
    prepend rel proxy = <../B>
    delete rel proxy = [<C>, <.attr>]
    custom rel list = [</A>, </B>]
}
def "B" {}
`
	scene, err := Parse([]byte(src), nil)
	s.Require().NoError(err)
	a := scene.FindPrim(usd.MustPath("/A"))

	empty, _ := a.Value("empty")
	s.Assert().Equal(usd.MakeValue(usd.KindPathListOp, usd.PathListOp{}), empty)
	none, _ := a.Value("none")
	s.Assert().Equal(usd.MakeValue(usd.KindPathListOp, usd.PathListOp{Explicit: true}), none)

	proxy, _ := a.Value("proxy")
	s.Assert().Equal(usd.PathListOp{
		PrependedItems: []usd.Path{usd.MustPath("/B")},
		DeletedItems:   []usd.Path{usd.MustPath("/A/C"), usd.MustPath("/A.attr")},
	}, proxy.Data)

	listed, ok := a.Attrib("list")
	s.Require().True(ok)
	s.Assert().True(listed.Custom)
	s.Assert().Len(a.Attribs, 4)
}

func TestHasHeader(t *testing.T) {
	assert.True(t, HasHeader([]byte("#usda 1.0\n")))
	assert.True(t, HasHeader([]byte("\xEF\xBB\xBF\n\n  #USDA 1.0")))
	assert.False(t, HasHeader([]byte("def \"A\" {}")))
	assert.False(t, HasHeader([]byte("PXR-USDC")))
	assert.False(t, HasHeader(nil))

	_, err := Parse([]byte("def \"A\" {}"), nil)
	assert.ErrorIs(t, err, usd.ErrFormat)
}

func TestSyntaxErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
	}{
		{"UnterminatedPrim", "#usda 1.0\ndef \"A\" {\n", 3},
		{"BadPrimName", "#usda 1.0\ndef Xform World {}", 2},
		{"BadValue", "#usda 1.0\ndef \"A\" {\n  int x = \"one\"\n}", 3},
		{"UnterminatedString", "#usda 1.0\n(\n  doc = \"abc\n)", 3},
		{"UnknownSpecifier", "#usda 1.0\nmake \"A\" {}", 2},
		{"ListEditOnScalar", "#usda 1.0\ndef \"A\" (\n  prepend kind = \"x\"\n) {}", 3},
		{"UnbalancedVariantSet", "#usda 1.0\ndef \"A\" {\n variantSet \"v\" = {\n", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, usd.ErrParsing)
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, tc.line, syn.Line)
		})
	}
}

func TestLex(t *testing.T) {
	toks, err := lex(`def "a" 'b' """c
d""" @x.usda@ @@@y@z@@@ </A/B.c> -1.5e-3 -inf xformOp:rotateXYZ.connect ( ) # comment
[ ]`)
	require.NoError(t, err)

	type kt struct {
		kind tokenKind
		text string
	}
	var got []kt
	for _, tok := range toks {
		got = append(got, kt{tok.kind, tok.text})
	}
	assert.Equal(t, []kt{
		{tokIdent, "def"},
		{tokString, "a"},
		{tokString, "b"},
		{tokString, "c\nd"},
		{tokAsset, "x.usda"},
		{tokAsset, "y@z"},
		{tokPath, "/A/B.c"},
		{tokNumber, "-1.5e-3"},
		{tokNumber, "-inf"},
		{tokIdent, "xformOp:rotateXYZ.connect"},
		{tokPunct, "("},
		{tokPunct, ")"},
		{tokPunct, "["},
		{tokPunct, "]"},
		{tokEOF, ""},
	}, got)
	assert.Equal(t, 3, toks[len(toks)-2].line)

	_, err = lex(`"a\"b\\c\n"`)
	require.NoError(t, err)
	toks, _ = lex(`"a\"b\\c\n"`)
	assert.Equal(t, "a\"b\\c\n", toks[0].text)

	_, err = lex("def $")
	assert.ErrorIs(t, err, usd.ErrParsing)
}

func TestResolvePath(t *testing.T) {
	anchor := usd.MustPath("/World/Looks/Mat")
	cases := map[string]string{
		"/Abs/Path":              "/Abs/Path",
		"Shader.outputs:surface": "/World/Looks/Mat/Shader.outputs:surface",
		"../Other":               "/World/Looks/Other",
		"../../Geo/Mesh":         "/World/Geo/Mesh",
		"./Child":                "/World/Looks/Mat/Child",
		".inputs:file":           "/World/Looks/Mat.inputs:file",
	}
	for in, want := range cases {
		got, err := resolvePath(anchor, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := resolvePath(usd.MustPath("/A"), "../../X")
	assert.ErrorIs(t, err, usd.ErrParsing)
}

func BenchmarkParse(b *testing.B) {
	src := []byte(sampleLayer)
	for b.Loop() {
		if _, err := Parse(src, nil); err != nil {
			b.Fatal(err)
		}
	}
}
