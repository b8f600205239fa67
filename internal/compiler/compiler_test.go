package compiler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/keithhendry/dotty/internal/backend"
	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/platform"
)

// fakeCargo pretends to be cargo: it writes the binary where cargo would.
type fakeCargo struct {
	calls []backend.Command
	fail  error
	write bool
}

func (f *fakeCargo) Run(ctx context.Context, c backend.Command) (string, error) {
	f.calls = append(f.calls, c)
	if f.fail != nil {
		return "", f.fail
	}
	if f.write {
		var targetDir, triple string
		for i, a := range c.Args {
			switch a {
			case "--target-dir":
				targetDir = c.Args[i+1]
			case "--target":
				triple = c.Args[i+1]
			}
		}
		dir := filepath.Join(targetDir, triple, "release")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		return "", os.WriteFile(filepath.Join(dir, "dotty"), []byte("bin"), 0755)
	}
	return "", nil
}

func TestCargoArgs(t *testing.T) {
	c := compiler.NewCargo(compiler.Options{Locked: true, Cross: map[platform.Platform]bool{platform.LinuxARM64: true}}, &fakeCargo{})

	tool, args := c.Args(compiler.Request{Source: "/w/src", Platform: platform.DarwinARM64, Binary: "dotty", TargetDir: "/w/target"})
	if tool != "cargo" {
		t.Errorf("tool = %q, want cargo", tool)
	}
	want := []string{"build", "--release", "--target", "aarch64-apple-darwin", "--manifest-path", "/w/src/Cargo.toml", "--target-dir", "/w/target", "--locked"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	tool, _ = c.Args(compiler.Request{Source: "/w/src", Platform: platform.LinuxARM64})
	if tool != "cross" {
		t.Errorf("tool = %q, want cross for linux-arm64", tool)
	}
}

func TestCargoBuild(t *testing.T) {
	runner := &fakeCargo{write: true}
	src := t.TempDir()
	c := compiler.NewCargo(compiler.Options{}, runner)

	bin, err := c.Build(context.Background(), compiler.Request{Source: src, Platform: platform.LinuxAMD64, Binary: "dotty", Version: "2.5.0"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := filepath.Join(src, "target", "x86_64-unknown-linux-gnu", "release", "dotty")
	if bin != want {
		t.Errorf("Build() = %q, want %q", bin, want)
	}
	if runner.calls[0].Dir != src {
		t.Errorf("build ran in %q, want %q", runner.calls[0].Dir, src)
	}
}

func TestCargoBuildFailure(t *testing.T) {
	runner := &fakeCargo{fail: errors.New("linker `cc` not found")}
	c := compiler.NewCargo(compiler.Options{}, runner)

	_, err := c.Build(context.Background(), compiler.Request{Source: t.TempDir(), Platform: platform.DarwinAMD64, Binary: "dotty"})
	if err == nil || !strings.Contains(err.Error(), "linker") {
		t.Errorf("Build() error = %v, want linker failure", err)
	}
}

func TestCargoBuildMissingOutput(t *testing.T) {
	c := compiler.NewCargo(compiler.Options{}, &fakeCargo{})
	if _, err := c.Build(context.Background(), compiler.Request{Source: t.TempDir(), Platform: platform.DarwinAMD64, Binary: "dotty"}); err == nil {
		t.Error("expected error when binary is missing after build")
	}
}

func TestCargoRejectsUnsupported(t *testing.T) {
	c := compiler.NewCargo(compiler.Options{}, &fakeCargo{})
	_, err := c.Build(context.Background(), compiler.Request{Platform: platform.Platform{OS: "plan9", Arch: "386"}, Binary: "dotty"})
	if err == nil {
		t.Error("expected error for unsupported platform")
	}
}
