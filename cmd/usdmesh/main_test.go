package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/crate"
	"github.com/oy3o/usd/mesh"
)

const tileLayer = `#usda 1.0
(
    defaultPrim = "Tile"
)

def Mesh "Tile" {
    point3f[] points = [(0, 0, 0), (1, 0, 0), (1, 1, 0), (0, 1, 0)]
    int[] faceVertexCounts = [4]
    int[] faceVertexIndices = [0, 1, 2, 3]
}
`

const floorLayer = `#usda 1.0

def Xform "Floor" {
    def "A" (
        references = @tile.usda@
    ) {
        uniform token[] xformOpOrder = ["xformOp:translate"]
        double3 xformOp:translate = (2, 0, 0)
    }

    def "B" (
        references = @tile.usda@
    ) {
    }

    def Mesh "Broken" {
        point3f[] points = [(0, 0, 0)]
    }
}
`

func writeScene(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tile.usda"), []byte(tileLayer), 0o644))
	path = filepath.Join(dir, "floor.usda")
	require.NoError(t, os.WriteFile(path, []byte(floorLayer), 0o644))
	return dir, path
}

func TestRunSummary(t *testing.T) {
	dir, path := writeScene(t)
	out := filepath.Join(dir, "floor.cbor")
	conv := filepath.Join(dir, "floor.usdc")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--groups", "mesh", "-o", out, "--convert", conv, path}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var s summary
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &s))
	assert.Equal(t, path, s.File)
	assert.Len(t, s.Digest, 64)
	assert.Equal(t, int64(1), s.Loads)
	assert.Equal(t, 2, s.Meshes)
	assert.Equal(t, 8, s.Vertices)
	assert.Equal(t, 4, s.Triangles)
	assert.Equal(t, map[string]int{"mesh-attribute": 1}, s.Warnings)
	require.NotNil(t, s.Bounds)
	assert.Equal(t, []float32{0, 0, 0}, s.Bounds.Min)
	assert.Equal(t, []float32{3, 1, 0}, s.Bounds.Max)
	assert.Contains(t, stderr.String(), "Broken")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var tm mesh.TriMesh
	require.NoError(t, cbor.Unmarshal(data, &tm))
	assert.Len(t, tm.Vertices, 8)
	require.Len(t, tm.Triangles, 4)
	assert.Equal(t, 1, tm.Triangles[3].Group)
	assert.Equal(t, "/Floor/B/Tile", tm.Submeshes[1].Path)

	data, err = os.ReadFile(conv)
	require.NoError(t, err)
	scene, err := crate.Decode(data, nil)
	require.NoError(t, err)
	assert.NotNil(t, scene.FindPrim(usd.MustPath("/Floor/A/Tile")))
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	dir, path := writeScene(t)
	cfgPath := filepath.Join(dir, "usdmesh.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("expand_references: true\ngroup_policy: mesh\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath, "--no-references", "--log-level", "error", path}, &stdout, &stderr)
	require.NoError(t, err)

	var s summary
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &s))
	assert.Zero(t, s.Loads)
	assert.Zero(t, s.Meshes)
	assert.Nil(t, s.Bounds)
	assert.Empty(t, stderr.String(), "warnings are below the error level")
}

func TestRunErrors(t *testing.T) {
	_, path := writeScene(t)
	var stdout, stderr bytes.Buffer

	assert.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{"--groups", "vertex", path}, &stdout, &stderr))
	assert.ErrorIs(t, run(context.Background(), []string{filepath.Join(t.TempDir(), "none.usda")}, &stdout, &stderr), usd.ErrAccess)
	assert.Empty(t, stdout.String())
}
