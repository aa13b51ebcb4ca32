// usdmesh reads a usda or usdc layer, composes its references and overrides,
// and flattens its meshes into one triangle mesh.
//
// It prints a YAML summary of what it found. --output writes the triangle
// mesh as CBOR; --convert writes the composed scene back out as a crate file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/config"
	"github.com/oy3o/usd/crate"
	"github.com/oy3o/usd/mesh"
	"github.com/oy3o/usd/stage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	config       string
	baseDir      string
	noReferences bool
	noOverrides  bool
	payloads     bool
	workers      int
	groups       string
	output       string
	convert      string
	logLevel     string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var f flags
	fs := pflag.NewFlagSet("usdmesh", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "YAML config file")
	fs.StringVar(&f.baseDir, "base-dir", "", "directory for relative asset paths of in-memory prims")
	fs.BoolVar(&f.noReferences, "no-references", false, "do not expand references")
	fs.BoolVar(&f.noOverrides, "no-overrides", false, "do not apply over prims")
	fs.BoolVar(&f.payloads, "payloads", false, "also expand payloads")
	fs.IntVar(&f.workers, "workers", 0, "parallel reference loads (0: GOMAXPROCS)")
	fs.StringVar(&f.groups, "groups", "", "triangle group policy: face or mesh")
	fs.StringVarP(&f.output, "output", "o", "", "write the triangle mesh as CBOR to this file")
	fs.StringVar(&f.convert, "convert", "", "write the composed scene as a usdc file")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: usdmesh [flags] FILE\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one FILE argument")
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(fs, f)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	groups, _ := cfg.Groups()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	collector := &usd.Collector{}
	diag := usd.Tee{collector, usd.LogDiagnostics{Logger: logger}}

	logger.Debug("opening", "path", path, "references", cfg.ExpandReferences, "overrides", cfg.ApplyOverrides)
	st, err := stage.Open(ctx, path, cfg.StageOptions(diag))
	if err != nil {
		return err
	}

	tm := mesh.NewTriMesh()
	if err := mesh.Extract(st.Scene, tm, mesh.Options{Groups: groups, Diagnostics: diag}); err != nil {
		return err
	}

	if f.output != "" {
		if err := writeMesh(f.output, tm); err != nil {
			return err
		}
		logger.Info("wrote mesh", "path", f.output, "triangles", len(tm.Triangles))
	}
	if f.convert != "" {
		data, err := crate.Encode(st.Scene)
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		if err := os.WriteFile(f.convert, data, 0o644); err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		logger.Info("wrote crate", "path", f.convert, "bytes", len(data))
	}

	return writeSummary(stdout, newSummary(path, st, tm, collector))
}

// loadConfig reads --config when given and applies the flags that were set
// on top of it.
func loadConfig(fs *pflag.FlagSet, f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}
	if fs.Changed("base-dir") {
		cfg.BaseDir = f.baseDir
	}
	if f.noReferences {
		cfg.ExpandReferences = false
	}
	if f.noOverrides {
		cfg.ApplyOverrides = false
	}
	if f.payloads {
		cfg.ExpandPayloads = true
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fs.Changed("groups") {
		cfg.GroupPolicy = f.groups
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
