package usd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WarningKind classifies a non-fatal anomaly.
type WarningKind uint8

const (
	WarnUnresolvedReference WarningKind = iota + 1
	WarnUnmatchedOverride
	WarnDeletedListOp
	WarnMeshAttribute
	WarnTriangleAppend
	WarnUnsupported
)

func (k WarningKind) String() string {
	switch k {
	case WarnUnresolvedReference:
		return "unresolved-reference"
	case WarnUnmatchedOverride:
		return "unmatched-override"
	case WarnDeletedListOp:
		return "deleted-list-op"
	case WarnMeshAttribute:
		return "mesh-attribute"
	case WarnTriangleAppend:
		return "triangle-append"
	case WarnUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("warning(%d)", uint8(k))
}

// Warning is an anomaly that was skipped rather than failing the whole read.
type Warning struct {
	Kind    WarningKind
	Path    Path
	Message string
}

func (w Warning) String() string {
	if w.Path.IsEmpty() {
		return w.Kind.String() + ": " + w.Message
	}
	return w.Kind.String() + ": " + w.Path.String() + ": " + w.Message
}

// Diagnostics receives warnings. Implementations must accept concurrent calls.
type Diagnostics interface {
	Warn(Warning)
}

// Warnf formats and reports a warning; a nil d discards it.
func Warnf(d Diagnostics, kind WarningKind, path Path, format string, args ...any) {
	if d == nil {
		return
	}
	d.Warn(Warning{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Collector accumulates warnings in arrival order.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
}

func (c *Collector) Warn(w Warning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
}

// Warnings returns a copy of everything collected so far.
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// Count returns how many warnings of kind were collected.
func (c *Collector) Count(kind WarningKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// LogDiagnostics forwards warnings to a structured logger.
type LogDiagnostics struct {
	Logger *slog.Logger
}

func (d LogDiagnostics) Warn(w Warning) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, w.Message,
		slog.String("kind", w.Kind.String()),
		slog.String("path", w.Path.String()))
}

// Tee fans each warning out to all sinks.
type Tee []Diagnostics

func (t Tee) Warn(w Warning) {
	for _, d := range t {
		if d != nil {
			d.Warn(w)
		}
	}
}

type discard struct{}

func (discard) Warn(Warning) {}

// Discard drops every warning.
var Discard Diagnostics = discard{}
