package usd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		depth   int
		prop    bool
		wantErr bool
	}{
		{in: "/", name: "", depth: 0},
		{in: "/World", name: "World", depth: 1},
		{in: "/World/Ball.radius", name: "radius", depth: 2, prop: true},
		{in: "/.doc", name: "doc", depth: 0, prop: true},
		{in: "A/B", name: "B", depth: 2},
		{in: "/A//B", wantErr: true},
		{in: "/A.", wantErr: true},
		{in: ".x", wantErr: true},
		{in: "/A/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParsing)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in, p.String())
			assert.Equal(t, tt.name, p.Name())
			assert.Equal(t, tt.depth, p.Depth())
			assert.Equal(t, tt.prop, p.IsProperty())
		})
	}

	p, err := ParsePath("")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.Panics(t, func() { MustPath("//") })
}

func TestPathNavigation(t *testing.T) {
	ball := MustPath("/World/Ball")

	assert.Equal(t, MustPath("/World"), ball.Parent())
	assert.Equal(t, RootPath, MustPath("/World").Parent())
	assert.True(t, RootPath.Parent().IsEmpty())
	assert.Equal(t, ball, MustPath("/World/Ball.radius").Parent())
	assert.Equal(t, MustPath("A"), MustPath("A/B").Parent().PrimPath())

	assert.Equal(t, ball, RootPath.AppendChild("World").AppendChild("Ball"))
	assert.Equal(t, MustPath("A"), Path{}.AppendChild("A"))
	assert.Equal(t, "/World/Ball.radius", ball.AppendProperty("radius").String())
	assert.Equal(t, []string{"World", "Ball"}, ball.Elements())
	assert.Nil(t, RootPath.Elements())
}

func TestPathPrefixes(t *testing.T) {
	world := MustPath("/World")
	ball := MustPath("/World/Ball/Inner")

	assert.True(t, ball.HasPrefix(world))
	assert.True(t, ball.HasPrefix(RootPath))
	assert.True(t, world.HasPrefix(world))
	assert.False(t, MustPath("/WorldX/A").HasPrefix(world), "prefixes compare whole elements")
	assert.False(t, MustPath("A/B").HasPrefix(RootPath))

	assert.Equal(t, MustPath("Ball/Inner"), ball.TrimPrefix(world))
	assert.Equal(t, MustPath("World/Ball/Inner"), ball.TrimPrefix(RootPath))
	assert.True(t, world.TrimPrefix(world).IsEmpty())
	assert.Equal(t, ball, ball.TrimPrefix(MustPath("/Other")))
	assert.Equal(t, "radius", MustPath("/World.radius").TrimPrefix(world).PropertyName())

	assert.True(t, ball.HasSuffix(MustPath("Inner")))
	assert.True(t, ball.HasSuffix(MustPath("Ball/Inner")))
	assert.False(t, ball.HasSuffix(MustPath("all/Inner")))
	assert.False(t, ball.HasSuffix(MustPath("X/World/Ball/Inner")))
	assert.False(t, ball.HasSuffix(MustPath("Inner.radius")))
	assert.True(t, MustPath("/A/B.r").HasSuffix(MustPath("B.r")))

	assert.Equal(t, MustPath("/Lib/Ball/Inner"), ball.ReplacePrefix(world, MustPath("/Lib")))
	assert.Equal(t, MustPath("/Lib.x"), MustPath("/World.x").ReplacePrefix(world, MustPath("/Lib")))
	assert.Equal(t, MustPath("/Other"), MustPath("/Other").ReplacePrefix(world, MustPath("/Lib")))
}

func TestPathText(t *testing.T) {
	var p Path
	require.NoError(t, p.UnmarshalText([]byte("/A/B.c")))
	assert.Equal(t, MustPath("/A/B.c"), p)
	text, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "/A/B.c", string(text))
	assert.Error(t, p.UnmarshalText([]byte("/A//B")))
}
