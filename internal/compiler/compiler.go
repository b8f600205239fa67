// Package compiler is the build collaborator: it turns a source tree into a
// binary for one platform. The default implementation drives cargo.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keithhendry/dotty/internal/backend"
	"github.com/keithhendry/dotty/internal/platform"
)

// Request describes one build.
type Request struct {
	// Source is the directory holding the (already stamped) manifest.
	Source   string
	Manifest string
	Platform platform.Platform
	Version  string
	// Binary is the name of the executable the build produces.
	Binary string
	// TargetDir receives compiler output. Defaults to Source/target.
	TargetDir string
}

// Compiler produces a binary for a platform.
type Compiler interface {
	// Build returns the path of the produced binary.
	Build(ctx context.Context, req Request) (string, error)
}

// Options configures the cargo compiler.
type Options struct {
	// Tool is the build driver. Defaults to "cargo".
	Tool string

	// Cross lists platforms built with the "cross" driver instead of Tool,
	// for targets the host toolchain cannot link.
	Cross map[platform.Platform]bool

	// Locked passes --locked so Cargo.lock must already be up to date. Build
	// tasks restamp the local package entry in Cargo.lock for this.
	Locked bool

	// Env holds extra environment variables for the build.
	Env map[string]string
}

// Cargo implements Compiler with cargo (or cross).
type Cargo struct {
	opts   Options
	runner backend.CommandRunner
}

// NewCargo creates a cargo-backed compiler.
func NewCargo(opts Options, runner backend.CommandRunner) *Cargo {
	if opts.Tool == "" {
		opts.Tool = "cargo"
	}
	if runner == nil {
		runner = backend.NewExecRunner()
	}
	return &Cargo{opts: opts, runner: runner}
}

// Args returns the driver and arguments for req.
func (c *Cargo) Args(req Request) (string, []string) {
	tool := c.opts.Tool
	if c.opts.Cross[req.Platform] {
		tool = "cross"
	}
	manifest := req.Manifest
	if manifest == "" {
		manifest = "Cargo.toml"
	}
	args := []string{
		"build", "--release",
		"--target", req.Platform.Target(),
		"--manifest-path", filepath.Join(req.Source, manifest),
		"--target-dir", c.targetDir(req),
	}
	if c.opts.Locked {
		args = append(args, "--locked")
	}
	return tool, args
}

// Build implements Compiler.
func (c *Cargo) Build(ctx context.Context, req Request) (string, error) {
	if !req.Platform.Supported() {
		return "", fmt.Errorf("unsupported platform %s", req.Platform)
	}
	if req.Binary == "" {
		return "", fmt.Errorf("binary name is required")
	}

	tool, args := c.Args(req)
	if _, err := c.runner.Run(ctx, backend.Command{Dir: req.Source, Name: tool, Args: args, Env: c.opts.Env}); err != nil {
		return "", fmt.Errorf("compile %s: %w", req.Platform, err)
	}

	binary := filepath.Join(c.targetDir(req), req.Platform.Target(), "release", req.Binary)
	if _, err := os.Stat(binary); err != nil {
		return "", fmt.Errorf("compiler reported success but %s is missing: %w", binary, err)
	}
	return binary, nil
}

func (c *Cargo) targetDir(req Request) string {
	if req.TargetDir != "" {
		return req.TargetDir
	}
	return filepath.Join(req.Source, "target")
}
