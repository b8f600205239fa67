// Package build runs the per-platform build matrix. Every task works in its
// own copy of the source tree and writes exactly one archive into the
// artifact store; tasks never see each other.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/manifest"
	"github.com/keithhendry/dotty/internal/platform"
	"github.com/keithhendry/dotty/internal/relerr"
)

// Steps of a build task, as reported in BuildError.Step.
const (
	StepWorkspace = "workspace"
	StepStamp     = "stamp"
	StepCompile   = "compile"
	StepPackage   = "package"
	StepRegister  = "register"
)

// Outcome is the terminal result of one build task. Exactly one of Artifact
// and Err is set.
type Outcome struct {
	Platform platform.Platform
	Artifact *artifact.Artifact
	Err      error
	Duration time.Duration
}

// OK reports whether the task produced an artifact.
func (o Outcome) OK() bool { return o.Err == nil && o.Artifact != nil }

// Task builds the release binary for one platform.
type Task struct {
	Platform platform.Platform
	Version  string
	Binary   string
	// Source is the project root holding Manifest.
	Source   string
	Manifest string
	// Workdir is the task's private scratch directory.
	Workdir string
	// Exclude lists directories never copied into the workspace, such as
	// the dist directory when it lives inside Source.
	Exclude []string

	Compiler compiler.Compiler
	Store    *artifact.Store
	Logger   *slog.Logger
}

// Run executes the task steps in order and returns the registered artifact.
func (t *Task) Run(ctx context.Context) (*artifact.Artifact, error) {
	logger := t.Logger
	if logger == nil {
		logger = logging.New("build")
	}
	logger = logger.With("platform", t.Platform.String(), "version", t.Version)

	fail := func(step string, err error) (*artifact.Artifact, error) {
		logger.Error("build step failed", "step", step, "error", err)
		return nil, &relerr.BuildError{Platform: t.Platform.String(), Step: step, Err: err}
	}

	src := filepath.Join(t.Workdir, "src")
	if err := os.RemoveAll(t.Workdir); err != nil {
		return fail(StepWorkspace, err)
	}
	if err := copyTree(t.Source, src, append([]string{t.Workdir}, t.Exclude...)...); err != nil {
		return fail(StepWorkspace, err)
	}

	manifestName := t.Manifest
	if manifestName == "" {
		manifestName = "Cargo.toml"
	}
	manifestPath := filepath.Join(src, manifestName)
	if err := manifest.Stamp(manifestPath, t.Version); err != nil {
		return fail(StepStamp, err)
	}
	if err := stampLock(manifestPath, t.Version); err != nil {
		return fail(StepStamp, err)
	}
	logger.Debug("manifest stamped", "manifest", manifestName)

	if err := ctx.Err(); err != nil {
		return fail(StepCompile, err)
	}
	binary, err := t.Compiler.Build(ctx, compiler.Request{
		Source:    src,
		Manifest:  manifestName,
		Platform:  t.Platform,
		Version:   t.Version,
		Binary:    t.Binary,
		TargetDir: filepath.Join(t.Workdir, "target"),
	})
	if err != nil {
		return fail(StepCompile, err)
	}

	if err := artifact.Package(binary, t.Binary, t.Store.Path(t.Platform)); err != nil {
		return fail(StepPackage, err)
	}

	a, err := t.Store.Register(t.Platform)
	if err != nil {
		return fail(StepRegister, err)
	}
	logger.Info("artifact registered", "archive", a.Name, "sha256", a.SHA256, "size", a.Size)
	return &a, nil
}

// stampLock brings a Cargo.lock beside the manifest in line with the stamped
// version, so cargo --locked accepts it. No lockfile is not an error.
func stampLock(manifestPath, version string) error {
	lockPath := filepath.Join(filepath.Dir(manifestPath), "Cargo.lock")
	if _, err := os.Stat(lockPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	name, err := manifest.Name(data)
	if err != nil {
		return err
	}
	return manifest.StampLock(lockPath, name, version)
}

func (t *Task) String() string {
	return fmt.Sprintf("build %s@%s", t.Platform, t.Version)
}
