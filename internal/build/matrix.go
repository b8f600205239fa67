package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/platform"
	"github.com/keithhendry/dotty/internal/relerr"
)

// Matrix fans a build out over platforms.
type Matrix struct {
	Binary   string
	Version  string
	Source   string
	Manifest string
	// Workdir holds one scratch directory per platform.
	Workdir     string
	Parallelism int
	// Exclude lists directories kept out of every workspace copy. Workdir is
	// always excluded.
	Exclude []string

	Compiler compiler.Compiler
	Store    *artifact.Store
	Logger   *slog.Logger

	// OnOutcome, when set, is called as each task finishes. It may be called
	// from several goroutines at once.
	OnOutcome func(Outcome)
}

// Run builds every platform and blocks until all of them have reported. The
// returned slice is index-aligned with platforms. A failed task never stops
// its siblings, and Run itself never fails: failures live in the outcomes.
func (m *Matrix) Run(ctx context.Context, platforms []platform.Platform) []Outcome {
	logger := m.Logger
	if logger == nil {
		logger = logging.New("build")
	}

	outcomes := make([]Outcome, len(platforms))
	exclude := append([]string{m.Workdir}, m.Exclude...)

	// No WithContext: one task failing must not cancel the others.
	var g errgroup.Group
	if m.Parallelism > 0 {
		g.SetLimit(m.Parallelism)
	}

	for i, p := range platforms {
		task := &Task{
			Platform: p,
			Version:  m.Version,
			Binary:   m.Binary,
			Source:   m.Source,
			Manifest: m.Manifest,
			Workdir:  filepath.Join(m.Workdir, p.String()),
			Exclude:  exclude,
			Compiler: m.Compiler,
			Store:    m.Store,
			Logger:   logger,
		}
		g.Go(func() error {
			outcomes[i] = runTask(ctx, task)
			if m.OnOutcome != nil {
				m.OnOutcome(outcomes[i])
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

func runTask(ctx context.Context, task *Task) (out Outcome) {
	start := time.Now()
	out.Platform = task.Platform
	defer func() {
		if r := recover(); r != nil {
			out.Artifact = nil
			out.Err = &relerr.BuildError{
				Platform: task.Platform.String(),
				Err:      fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
			}
		}
		out.Duration = time.Since(start)
	}()

	out.Artifact, out.Err = task.Run(ctx)
	return out
}
