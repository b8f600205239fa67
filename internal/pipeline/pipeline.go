// Package pipeline runs a release end to end as an explicit state machine:
// resolve the version, tag, build every platform, join and publish, then
// update the Homebrew formula.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/build"
	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/notes"
	"github.com/keithhendry/dotty/internal/release"
	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/tagger"
	"github.com/keithhendry/dotty/internal/vcs"
	"github.com/keithhendry/dotty/internal/version"
)

// Stage names used in StageError.
const (
	StageTrigger   = "trigger"
	StageResolve   = "resolve"
	StageTag       = "tag"
	StageAggregate = "aggregate"
	StageRelease   = "release"
	StageFormula   = "formula"
)

// Options wires a pipeline to its configuration and collaborators.
type Options struct {
	Config   *config.Config
	VCS      vcs.VCS
	Compiler compiler.Compiler
	// Tap receives the formula pull request. Nil skips the formula stage.
	Tap   formula.Repository
	Notes *notes.Generator
	// Observers receive every run event in order.
	Observers []Observer
	// DryRun resolves the version and reports the plan without side effects.
	DryRun bool
	// Workdir holds per-platform build workspaces. Defaults to <dist>/.work.
	Workdir string
	Logger  *slog.Logger
}

// Plan is what a run would do once the version is known.
type Plan struct {
	Version  string
	Tag      string
	Source   version.Source
	Archives []string
	Branch   string
	// TagExists is set when a real run would stop with a duplicate tag.
	TagExists bool
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	Trigger    Trigger
	DryRun     bool
	State      State
	History    []Step
	Resolution *version.Resolution
	Plan       *Plan
	Tag        *tagger.Tag
	Builds     []build.Outcome
	Release    *release.Published
	Formula    *formula.Result
	// Err is the error that stopped the run. A formula failure does not
	// stop the run and is reported in FormulaErr instead.
	Err        error
	FormulaErr error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Released reports whether the run published a release.
func (r *Report) Released() bool { return r.Release != nil }

// Pipeline runs releases.
type Pipeline struct {
	opts   Options
	cfg    *config.Config
	logger *slog.Logger
}

// New validates opts and creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		opts.Config = config.Get()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	if opts.VCS == nil {
		return nil, errors.New("pipeline needs a VCS collaborator")
	}
	if opts.Compiler == nil && !opts.DryRun {
		return nil, errors.New("pipeline needs a compiler")
	}
	if opts.Notes == nil {
		opts.Notes = notes.NewGenerator()
	}
	if opts.Workdir == "" {
		opts.Workdir = filepath.Join(opts.Config.Dist, ".work")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("pipeline")
	}
	return &Pipeline{opts: opts, cfg: opts.Config, logger: logger}, nil
}

// run is the state of a single invocation.
type run struct {
	*Pipeline
	id      string
	machine *Machine
	report  *Report
	logger  *slog.Logger
}

// Run executes one release. It always returns a report; report.Err is set
// when the run did not publish a release.
func (p *Pipeline) Run(ctx context.Context, trig Trigger) *Report {
	id := uuid.NewString()
	r := &run{
		Pipeline: p,
		id:       id,
		machine:  NewMachine(),
		report:   &Report{RunID: id, Trigger: trig, DryRun: p.opts.DryRun, StartedAt: time.Now()},
		logger:   p.logger.With("run_id", id),
	}
	r.emit(&RunStartedEvent{RunID: id, Trigger: trig, DryRun: p.opts.DryRun, At: r.report.StartedAt})
	r.logger.Info("release run started", "trigger", trig.String(), "dry_run", p.opts.DryRun)

	r.execute(ctx, trig)

	r.report.State = r.machine.State()
	r.report.History = r.machine.History()
	r.report.FinishedAt = time.Now()
	r.emit(&RunFinishedEvent{RunID: id, State: r.report.State, Err: r.report.Err, At: r.report.FinishedAt})

	switch {
	case r.report.Err != nil:
		r.logger.Error("release run failed", "state", r.report.State, "error", r.report.Err)
	case r.report.FormulaErr != nil:
		r.logger.Warn("release published but formula update failed", "error", r.report.FormulaErr)
	default:
		r.logger.Info("release run finished", "state", r.report.State, "duration", r.report.FinishedAt.Sub(r.report.StartedAt))
	}
	return r.report
}

func (r *run) execute(ctx context.Context, trig Trigger) {
	cfg := r.cfg

	if err := trig.Check(cfg.Trigger.Label); err != nil {
		r.fail(StatePending, StateSkipped, StageTrigger, err)
		return
	}
	r.transition(StatePending, StateResolving)

	// Resolving
	bump, err := trig.Bump(cfg.Trigger.Label)
	if err != nil {
		r.fail(StateResolving, StateResolveFailed, StageResolve, &relerr.VersionResolutionError{Msg: err.Error()})
		return
	}
	resolver := version.NewResolver(r.opts.VCS, cfg.TagPrefix)
	res, err := resolver.Resolve(ctx, version.Request{Override: trig.Override, Bump: bump})
	if err != nil {
		r.fail(StateResolving, StateResolveFailed, StageResolve, err)
		return
	}
	r.report.Resolution = res
	ver := res.Version.String()
	tagName := res.Tag(cfg.TagPrefix)
	r.logger = r.logger.With("version", ver)
	r.emit(&VersionResolvedEvent{RunID: r.id, Version: ver, Tag: tagName, Source: string(res.Source), At: time.Now()})

	if r.opts.DryRun {
		r.report.Plan = r.plan(ctx, res, tagName)
		r.transition(StateResolving, StatePlanned)
		return
	}
	r.transition(StateResolving, StateTagging)

	// Tagging
	store, err := artifact.NewStore(cfg.DistFor(ver), cfg.Binary, ver)
	if err != nil {
		r.fail(StateTagging, StateTagFailed, StageTag, err)
		return
	}
	tag, err := tagger.NewPublisher(r.opts.VCS).Publish(ctx, tagName, fmt.Sprintf("%s %s", cfg.Binary, ver))
	if err != nil {
		r.fail(StateTagging, StateTagFailed, StageTag, err)
		return
	}
	r.report.Tag = tag
	r.transition(StateTagging, StateBuilding)

	// Building
	matrix := &build.Matrix{
		Binary:      cfg.Binary,
		Version:     ver,
		Source:      cfg.Source,
		Manifest:    cfg.Manifest,
		Workdir:     filepath.Join(r.opts.Workdir, ver),
		Parallelism: cfg.Parallelism,
		Exclude:     []string{cfg.Dist, r.opts.Workdir},
		Compiler:    r.opts.Compiler,
		Store:       store,
		Logger:      logging.New("build").With("run_id", r.id),
		OnOutcome:   r.buildFinished,
	}
	r.report.Builds = matrix.Run(ctx, cfg.Platforms)
	if err := os.RemoveAll(matrix.Workdir); err != nil {
		r.logger.Warn("could not remove build workspaces", "dir", matrix.Workdir, "error", err)
	}
	r.transition(StateBuilding, StateAggregating)

	// Aggregating
	agg := release.NewAggregator(r.opts.VCS, store, r.opts.Notes)
	arts, err := agg.Collect(cfg.Platforms, r.report.Builds)
	if err != nil {
		r.fail(StateAggregating, StateAggregateFailed, StageAggregate, err)
		return
	}
	r.transition(StateAggregating, StateReleasing)

	// Releasing
	published, err := agg.Release(ctx, release.Request{
		Version:     res.Version,
		Tag:         tagName,
		PreviousTag: res.LatestTag,
		Commits:     res.Commits,
	}, arts)
	if err != nil {
		r.fail(StateReleasing, StateReleaseFailed, StageRelease, err)
		return
	}
	r.report.Release = published
	r.emit(&ReleasePublishedEvent{RunID: r.id, Tag: tagName, URL: published.Release.URL, Assets: assetNames(arts), At: time.Now()})

	if r.opts.Tap == nil || cfg.Formula.Repository == "" {
		r.logger.Info("formula update disabled")
		r.transition(StateReleasing, StateDone)
		return
	}
	r.transition(StateReleasing, StateUpdatingFormula)

	// UpdatingFormula: failure here never invalidates the release.
	updater := formula.NewUpdater(r.opts.Tap, formula.SettingsFrom(cfg))
	result, err := updater.Update(ctx, ver, tagName, arts)
	if err != nil {
		r.report.FormulaErr = &relerr.StageError{Stage: StageFormula, Err: err}
		r.transition(StateUpdatingFormula, StateFormulaFailed)
		return
	}
	r.report.Formula = result
	ev := &FormulaUpdatedEvent{RunID: r.id, Branch: result.Branch, Reused: result.Reused, UpToDate: result.UpToDate, At: time.Now()}
	if result.PullRequest != nil {
		ev.URL = result.PullRequest.URL
	}
	r.emit(ev)
	r.transition(StateUpdatingFormula, StateDone)
}

func (r *run) plan(ctx context.Context, res *version.Resolution, tagName string) *Plan {
	ver := res.Version.String()
	pl := &Plan{Version: ver, Tag: tagName, Source: res.Source}
	if local, remote, err := r.opts.VCS.TagExists(ctx, tagName); err != nil {
		r.logger.Warn("could not check tag", "tag", tagName, "error", err)
	} else {
		pl.TagExists = local || remote
	}
	for _, p := range r.cfg.Platforms {
		pl.Archives = append(pl.Archives, artifact.ArchiveName(r.cfg.Binary, ver, p))
	}
	if r.cfg.Formula.Repository != "" {
		pl.Branch = formula.Branch(r.cfg.Binary, ver)
	}
	return pl
}

func (r *run) buildFinished(o build.Outcome) {
	ev := &BuildFinishedEvent{RunID: r.id, Platform: o.Platform, Err: o.Err, Duration: o.Duration, At: time.Now()}
	if o.Artifact != nil {
		ev.Archive, ev.SHA256 = o.Artifact.Name, o.Artifact.SHA256
	}
	r.emit(ev)
}

func (r *run) fail(from, to State, stage string, err error) {
	r.report.Err = &relerr.StageError{Stage: stage, Err: err}
	r.transition(from, to)
}

func (r *run) transition(from, to State) {
	step, err := r.machine.Transition(from, to)
	if err != nil {
		// Only reachable through a programming error in execute.
		panic(err)
	}
	r.logger.Debug("state transition", "from", from, "to", to)
	r.emit(&StateTransitionedEvent{RunID: r.id, From: step.From, To: step.To, At: step.At})
}

// emit delivers e to every observer. Build events arrive from several
// goroutines, so observers must be safe for concurrent use.
func (r *run) emit(e Event) {
	for _, o := range r.opts.Observers {
		if err := o.Observe(e); err != nil {
			r.logger.Warn("observer failed", "event", e.EventName(), "error", err)
		}
	}
}

func assetNames(arts []artifact.Artifact) []string {
	names := make([]string, len(arts))
	for i, a := range arts {
		names[i] = a.Name
	}
	return names
}
