package usd

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	var c Collector
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := WarnUnresolvedReference
			if i%2 == 1 {
				kind = WarnMeshAttribute
			}
			Warnf(&c, kind, MustPath("/A"), "warning %d", i)
		}()
	}
	wg.Wait()

	assert.Len(t, c.Warnings(), 8)
	assert.Equal(t, 4, c.Count(WarnUnresolvedReference))
	assert.Equal(t, 4, c.Count(WarnMeshAttribute))
	assert.Zero(t, c.Count(WarnUnsupported))

	got := c.Warnings()
	got[0].Message = "changed"
	assert.NotEqual(t, "changed", c.Warnings()[0].Message, "Warnings returns a copy")
}

func TestWarnfNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Warnf(nil, WarnUnsupported, RootPath, "dropped")
		Discard.Warn(Warning{})
	})
}

func TestLogDiagnosticsAndTee(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var c Collector
	d := Tee{&c, nil, LogDiagnostics{Logger: logger}}

	Warnf(d, WarnUnmatchedOverride, MustPath("/World/Over"), "no prim matches %s", "Ball")

	assert.Equal(t, 1, c.Count(WarnUnmatchedOverride))
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="no prim matches Ball"`)
	assert.Contains(t, out, "kind=unmatched-override")
	assert.Contains(t, out, "path=/World/Over")
}

func TestWarningString(t *testing.T) {
	w := Warning{Kind: WarnTriangleAppend, Path: MustPath("/M"), Message: "non-manifold"}
	assert.Contains(t, w.String(), "triangle-append")
	assert.Contains(t, w.String(), "/M")
	assert.Equal(t, "warning(99)", WarningKind(99).String())
}
