package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/mesh"
	"github.com/oy3o/usd/stage"
)

// encMode writes Core Deterministic CBOR: the same mesh always produces the
// same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("usdmesh: CBOR encoder initialization failed: " + err.Error())
	}
}

func writeMesh(path string, tm *mesh.TriMesh) error {
	data, err := encMode.Marshal(tm)
	if err != nil {
		return fmt.Errorf("encode mesh: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write mesh: %w", err)
	}
	return nil
}

type summary struct {
	File      string         `yaml:"file"`
	Digest    string         `yaml:"digest"`
	Prims     int            `yaml:"prims"`
	Loads     int64          `yaml:"loads"`
	Meshes    int            `yaml:"meshes"`
	Vertices  int            `yaml:"vertices"`
	Triangles int            `yaml:"triangles"`
	Bounds    *bounds        `yaml:"bounds,omitempty"`
	Warnings  map[string]int `yaml:"warnings,omitempty"`
}

type bounds struct {
	Min []float32 `yaml:"min,flow"`
	Max []float32 `yaml:"max,flow"`
}

func newSummary(path string, st *stage.Stage, tm *mesh.TriMesh, c *usd.Collector) summary {
	s := summary{
		File:      path,
		Digest:    st.Scene.Digest,
		Prims:     st.Scene.Root.Count() - 1,
		Loads:     st.Loads,
		Meshes:    len(tm.Submeshes),
		Vertices:  len(tm.Vertices),
		Triangles: len(tm.Triangles),
	}
	if len(tm.Vertices) > 0 {
		lo, hi := tm.Bounds()
		s.Bounds = &bounds{Min: lo[:], Max: hi[:]}
	}
	for _, w := range c.Warnings() {
		if s.Warnings == nil {
			s.Warnings = make(map[string]int)
		}
		s.Warnings[w.Kind.String()]++
	}
	return s
}

func writeSummary(w io.Writer, s summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
