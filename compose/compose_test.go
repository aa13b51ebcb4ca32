package compose

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/usda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// memLoader serves parsed usda layers from memory and counts the loads.
type memLoader struct {
	mu     sync.Mutex
	files  map[string]string
	counts map[string]int
	delay  time.Duration
}

func newMemLoader(files map[string]string) *memLoader {
	return &memLoader{files: files, counts: make(map[string]int)}
}

func (m *memLoader) Load(_ context.Context, path string) (*usd.Scene, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.counts[path]++
	src, ok := m.files[path]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", usd.ErrAccess, path)
	}
	scene, err := usda.Parse([]byte(src), nil)
	if err != nil {
		return nil, err
	}
	scene.SetSource(path)
	return scene, nil
}

func parse(t require.TestingT, src string) *usd.Scene {
	scene, err := usda.Parse([]byte(src), nil)
	require.NoError(t, err)
	return scene
}

func lib(name string) string { return filepath.Join("lib", name) }

const ballLayer = `#usda 1.0
(
    defaultPrim = "Ball"
)
def Sphere "Ball"
{
    double radius = 1
    def Xform "Inner" {}
}
def Xform "Other"
{
}
`

type ExpandTestSuite struct {
	suite.Suite
	diag   *usd.Collector
	loader *memLoader
}

func TestExpandSuite(t *testing.T) {
	suite.Run(t, new(ExpandTestSuite))
}

func (s *ExpandTestSuite) SetupTest() {
	s.diag = &usd.Collector{}
	s.loader = newMemLoader(map[string]string{
		lib("ball.usda"): ballLayer,
	})
}

func (s *ExpandTestSuite) expander() *Expander {
	return NewExpander(Options{BaseDir: "lib", Loader: s.loader, Diagnostics: s.diag})
}

func (s *ExpandTestSuite) TestGraftsDefaultPrim() {
	scene := parse(s.T(), `#usda 1.0
def Xform "World"
{
    def "Ref" (
        references = @ball.usda@
    )
    {
    }
}
`)
	x := s.expander()
	s.Require().NoError(x.Expand(context.Background(), scene))

	ball := scene.FindPrim(usd.MustPath("/World/Ref/Ball"))
	s.Require().NotNil(ball)
	s.Assert().Equal(usd.PrimSphere, ball.Type)
	s.Assert().Equal(lib("ball.usda"), ball.Source)
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/World/Ref/Ball/Inner")))
	s.Assert().Nil(scene.FindPrim(usd.MustPath("/World/Ref/Other")), "only the default prim is brought in")
	s.Assert().EqualValues(1, x.Loads())
	s.Assert().Empty(s.diag.Warnings())
}

func (s *ExpandTestSuite) TestExpandTwiceLoadsNothing() {
	scene := parse(s.T(), `#usda 1.0
def "A" (references = @ball.usda@) {}
def "B" (references = [@ball.usda@, @ball.usda@</Other>]) {}
`)
	x := s.expander()
	ctx := context.Background()
	s.Require().NoError(x.Expand(ctx, scene))
	s.Assert().EqualValues(1, x.Loads(), "one load per distinct path")
	before := scene.Root.Count()

	s.Require().NoError(x.Expand(ctx, scene))
	s.Assert().EqualValues(1, x.Loads())
	s.Assert().Equal(before, scene.Root.Count(), "nothing grafted twice")
	s.Assert().Equal(1, s.loader.counts[lib("ball.usda")])

	b := scene.FindPrim(usd.MustPath("/B"))
	s.Require().NotNil(b)
	s.Require().Len(b.Children, 2)
	s.Assert().Equal("Ball", b.Children[0].Name())
	s.Assert().Equal("Other", b.Children[1].Name())
}

func (s *ExpandTestSuite) TestNestedReferencesResolveAgainstSource() {
	s.loader.files[lib("set.usda")] = `#usda 1.0
def Xform "Set" (
    prepend references = @props/chair.usda@
)
{
}
`
	s.loader.files[filepath.Join("lib", "props", "chair.usda")] = `#usda 1.0
def Mesh "Chair" {}
`
	scene := parse(s.T(), `#usda 1.0
def "Room" (references = @set.usda@) {}
`)
	x := s.expander()
	s.Require().NoError(x.Expand(context.Background(), scene))

	chair := scene.FindPrim(usd.MustPath("/Room/Set/Chair"))
	s.Require().NotNil(chair)
	s.Assert().Equal(filepath.Join("lib", "props", "chair.usda"), chair.Source)
	s.Assert().EqualValues(2, x.Loads())
}

func (s *ExpandTestSuite) TestCycleTerminates() {
	s.loader.files[lib("a.usda")] = `#usda 1.0
def "A" (references = @b.usda@) {}
`
	s.loader.files[lib("b.usda")] = `#usda 1.0
def "B" (references = @a.usda@) {}
`
	scene := parse(s.T(), `#usda 1.0
def "Root" (references = @a.usda@) {}
`)
	x := s.expander()
	ctx := context.Background()
	s.Require().NoError(x.Expand(ctx, scene))
	s.Assert().EqualValues(2, x.Loads())

	s.Require().NoError(x.Expand(ctx, scene))
	s.Assert().EqualValues(2, x.Loads())
	b := scene.FindPrim(usd.MustPath("/Root/A/B"))
	s.Require().NotNil(b)
	s.Assert().Empty(b.Children, "a stops at its second appearance")
	s.Assert().Equal(1, s.diag.Count(usd.WarnUnresolvedReference))
}

func (s *ExpandTestSuite) TestArcsGraftedByTheLastPassExpand() {
	s.loader.files[lib("outer.usda")] = `#usda 1.0
def "Outer" (references = @inner.usda@) {}
`
	s.loader.files[lib("inner.usda")] = `#usda 1.0
def "Inner" (references = @leaf.usda@) {}
`
	s.loader.files[lib("leaf.usda")] = `#usda 1.0
def "Leaf" {}
`
	// Every layer loads in the first pass, so later passes only graft
	// cached layers whose own arcs still need expanding.
	scene := parse(s.T(), `#usda 1.0
def "A" (references = @outer.usda@) {}
def "B" (references = @inner.usda@) {}
def "C" (references = @leaf.usda@) {}
`)
	x := s.expander()
	s.Require().NoError(x.Expand(context.Background(), scene))
	s.Assert().EqualValues(3, x.Loads())
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/A/Outer/Inner/Leaf")))
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/B/Inner/Leaf")))
	s.Assert().Empty(s.diag.Warnings())
}

func (s *ExpandTestSuite) TestFailuresBecomeWarnings() {
	scene := parse(s.T(), `#usda 1.0
def "Missing" (references = @nowhere.usda@) {}
def "BadPrim" (references = @ball.usda@</Nope>) {}
def "Deleted" (
    prepend references = @ball.usda@
    delete references = @old.usda@
)
{
}
`)
	x := s.expander()
	s.Require().NoError(x.Expand(context.Background(), scene))

	s.Assert().Equal(2, s.diag.Count(usd.WarnUnresolvedReference))
	s.Assert().Equal(1, s.diag.Count(usd.WarnDeletedListOp))
	s.Assert().Empty(scene.FindPrim(usd.MustPath("/Missing")).Children)
	s.Assert().Empty(scene.FindPrim(usd.MustPath("/BadPrim")).Children)
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/Deleted/Ball")))
	s.Assert().Zero(s.loader.counts[lib("old.usda")], "deleted arcs are never loaded")
}

func (s *ExpandTestSuite) TestInternalReference() {
	scene := parse(s.T(), `#usda 1.0
class Xform "Proto"
{
    def Cube "Box" {}
}
def "Instance" (references = </Proto>) {}
`)
	x := s.expander()
	s.Require().NoError(x.Expand(context.Background(), scene))
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/Instance/Proto/Box")))
	s.Assert().Zero(x.Loads())
}

func (s *ExpandTestSuite) TestParallelLoadsOncePerPath() {
	files := make(map[string]string)
	src := "#usda 1.0\n"
	for i := range 16 {
		name := fmt.Sprintf("part%d.usda", i)
		files[lib(name)] = fmt.Sprintf("#usda 1.0\ndef \"P%d\" {}\n", i)
		// Each path is referenced twice.
		src += fmt.Sprintf("def \"A%d\" (references = @%s@) {}\n", i, name)
		src += fmt.Sprintf("def \"B%d\" (references = @%s@) {}\n", i, name)
	}
	s.loader = newMemLoader(files)
	s.loader.delay = time.Millisecond

	scene := parse(s.T(), src)
	x := NewExpander(Options{BaseDir: "lib", Workers: 4, Loader: s.loader, Diagnostics: s.diag})
	s.Require().NoError(x.Expand(context.Background(), scene))
	s.Assert().EqualValues(16, x.Loads())
	for path, n := range s.loader.counts {
		s.Assert().Equal(1, n, path)
	}
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/B15/P15")))
}

func (s *ExpandTestSuite) TestNoLoader() {
	scene := parse(s.T(), `#usda 1.0
def "A" (references = @ball.usda@) {}
`)
	x := NewExpander(Options{Diagnostics: s.diag})
	s.Require().NoError(x.Expand(context.Background(), scene))
	warnings := s.diag.Warnings()
	s.Require().Len(warnings, 1)
	s.Assert().Contains(warnings[0].Message, ErrNoLoader.Error())
	s.Assert().Zero(x.Loads(), "nothing was loaded")
}

func (s *ExpandTestSuite) TestCanceledLoadsAreNotCounted() {
	scene := parse(s.T(), `#usda 1.0
def "A" (references = @ball.usda@) {}
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x := s.expander()
	x.loadAll(ctx, x.scan(scene))
	s.Assert().Zero(x.Loads())
	s.Assert().Zero(s.loader.counts[lib("ball.usda")])
}

func (s *ExpandTestSuite) TestCanceled() {
	scene := parse(s.T(), `#usda 1.0
def "A" (references = @ball.usda@) {}
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.expander().Expand(ctx, scene)
	s.Assert().True(errors.Is(err, context.Canceled))
}

func (s *ExpandTestSuite) TestPayloads() {
	src := `#usda 1.0
def "A" (payload = @ball.usda@) {}
`
	scene := parse(s.T(), src)
	s.Require().NoError(s.expander().Expand(context.Background(), scene))
	s.Assert().Nil(scene.FindPrim(usd.MustPath("/A/Ball")), "payloads are left alone by default")

	scene = parse(s.T(), src)
	x := NewExpander(Options{BaseDir: "lib", Loader: s.loader, Payloads: true})
	s.Require().NoError(x.Expand(context.Background(), scene))
	s.Assert().NotNil(scene.FindPrim(usd.MustPath("/A/Ball")))
}

// --- Overrides ---

func radius(t *testing.T, scene *usd.Scene, path string) float64 {
	p := scene.FindPrim(usd.MustPath(path))
	require.NotNil(t, p, path)
	v, ok := p.Value("radius")
	require.True(t, ok, path)
	f, ok := v.Float64()
	require.True(t, ok, path)
	return f
}

func TestInnermostOverrideWins(t *testing.T) {
	scene := parse(t, `#usda 1.0
def Xform "D"
{
    def Sphere "G"
    {
        double radius = 1
    }
    over "G"
    {
        double radius = 2
        over "G"
        {
            double radius = 3
        }
    }
}
`)
	diag := &usd.Collector{}
	ApplyOverrides(scene, diag)
	assert.Equal(t, 3.0, radius(t, scene, "/D/G"))
	assert.Empty(t, diag.Warnings())
}

func TestOverrideIsCopyOnWrite(t *testing.T) {
	loader := newMemLoader(map[string]string{lib("ball.usda"): ballLayer})
	scene := parse(t, `#usda 1.0
def Xform "World"
{
    def "A" (references = @ball.usda@) {}
    def "B" (references = @ball.usda@) {}
    over "A"
    {
        over "Ball"
        {
            double radius = 5
            custom token note = "edited"
        }
    }
}
`)
	x := NewExpander(Options{BaseDir: "lib", Loader: loader})
	require.NoError(t, x.Expand(context.Background(), scene))
	original := scene.FindPrim(usd.MustPath("/World/A/Ball"))
	before := scene.Root

	diag := &usd.Collector{}
	ApplyOverrides(scene, diag)
	assert.Empty(t, diag.Warnings())

	assert.Equal(t, 5.0, radius(t, scene, "/World/A/Ball"))
	assert.Equal(t, 1.0, radius(t, scene, "/World/B/Ball"), "the second reference is untouched")
	note, ok := scene.FindPrim(usd.MustPath("/World/A/Ball")).Value("note")
	assert.True(t, ok)
	assert.Equal(t, usd.TokenValue("edited"), note)

	// The pre-override tree and the cached layer keep their values.
	v, _ := original.Value("radius")
	assert.Equal(t, usd.MakeValue(usd.KindDouble, 1.0), v)
	assert.NotSame(t, before, scene.Root)
	assert.Same(t, before.Child("World").Child("B"), scene.Root.Child("World").Child("B"))
	cached, err := loader.Load(context.Background(), lib("ball.usda"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, radius(t, cached, "/Ball"))
}

func TestOverrideSkipsBookkeeping(t *testing.T) {
	scene := parse(t, `#usda 1.0
def "D"
{
    def "G" {}
    over "G" (
        references = @x.usda@
        active = false
    )
    {
    }
}
`)
	ApplyOverrides(scene, nil)
	g := scene.FindPrim(usd.MustPath("/D/G"))
	_, hasRefs := g.Value("references")
	assert.False(t, hasRefs)
	active, ok := g.Value("active")
	assert.True(t, ok)
	assert.Equal(t, usd.MakeValue(usd.KindBool, false), active)
}

func TestUnmatchedOverrideWarns(t *testing.T) {
	scene := parse(t, `#usda 1.0
def "D"
{
    over "Ghost"
    {
        double radius = 2
    }
}
`)
	before := scene.Root
	diag := &usd.Collector{}
	ApplyOverrides(scene, diag)
	assert.Equal(t, 1, diag.Count(usd.WarnUnmatchedOverride))
	assert.Same(t, before, scene.Root, "an unmatched override changes nothing")
}

func TestOverrideBySuffixAndDeepestFirst(t *testing.T) {
	scene := parse(t, `#usda 1.0
def "D"
{
    def "Car"
    {
        def "Wheel" { double radius = 1 }
    }
    over "Wheel" { double radius = 4 }
    over "Car"
    {
        over "Wheel" { double radius = 2 }
    }
}
`)
	ApplyOverrides(scene, nil)
	// Siblings apply in authored order and nested overs before their parent,
	// so "Car/Wheel" is the last opinion applied to the wheel.
	assert.Equal(t, 2.0, radius(t, scene, "/D/Car/Wheel"))
}

func TestTopLevelOverIsAnchored(t *testing.T) {
	scene := parse(t, `#usda 1.0
def "World"
{
    def Sphere "Ball" { double radius = 1 }
}
def Sphere "Ball" { double radius = 1 }
over "Ball" { double radius = 9 }
over "Ghost" { double radius = 2 }
`)
	diag := &usd.Collector{}
	ApplyOverrides(scene, diag)
	assert.Equal(t, 9.0, radius(t, scene, "/Ball"))
	assert.Equal(t, 1.0, radius(t, scene, "/World/Ball"), "a top-level over does not match by suffix")
	assert.Equal(t, 1, diag.Count(usd.WarnUnmatchedOverride))
}
