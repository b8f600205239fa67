// Package releaser provides a public API for the dotty release pipeline.
//
// It resolves the next version, tags the repository, builds every configured
// platform in parallel, publishes one release with all archives attached and
// opens the Homebrew formula pull request.
//
// Basic usage:
//
//	result, err := releaser.Release(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Released", result.Tag, result.ReleaseURL)
//
// With options:
//
//	result, err := releaser.ReleaseWith(ctx,
//	    releaser.WithConfigFile("release.yaml"),
//	    releaser.WithOverride("2.5.0"),
//	)
package releaser

import (
	"context"
	"errors"
	"fmt"

	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/internal/version"
)

// Result summarises a release run.
type Result struct {
	RunID   string
	State   string
	Version string
	Tag     string
	// Source is how the version was chosen: override, label or history.
	Source     string
	ReleaseURL string
	Archives   []string
	// FormulaPR is the tap pull request URL, if one was opened or reused.
	FormulaPR string
	// FormulaWarning is set when the release went out but the formula
	// update failed.
	FormulaWarning error
	// Plan is set for dry runs.
	Plan     *pipeline.Plan
	ExitCode int
}

// Release runs the pipeline once. The returned error is the run error; the
// result is populated as far as the run got, even on failure.
func Release(ctx context.Context, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	deps, err := wire(opts)
	if err != nil {
		return &Result{ExitCode: pipeline.ExitCode(err)}, err
	}
	defer deps.close()

	p, err := pipeline.New(deps.pipelineOptions(opts))
	if err != nil {
		return &Result{ExitCode: pipeline.ExitCode(err)}, err
	}

	report := p.Run(ctx, opts.Trigger)
	return fromReport(report), report.Err
}

// NextVersion resolves the version the next release would get, without side
// effects.
func NextVersion(ctx context.Context, opts *Options) (*version.Resolution, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	if err := opts.Trigger.Check(cfg.Trigger.Label); err != nil {
		return nil, err
	}
	bump, err := opts.Trigger.Bump(cfg.Trigger.Label)
	if err != nil {
		return nil, err
	}
	return version.NewResolver(opts.vcs(cfg), cfg.TagPrefix).
		Resolve(ctx, version.Request{Override: opts.Trigger.Override, Bump: bump})
}

// Formula renders the Homebrew formula for archives already in the dist
// directory for v.
func Formula(opts *Options, v string) ([]byte, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	parsed, err := version.ParseOverride(v)
	if err != nil {
		return nil, err
	}
	ver := parsed.String()
	arts, err := locateArchives(cfg, ver)
	if err != nil {
		return nil, err
	}
	return formula.NewUpdater(nil, formula.SettingsFrom(cfg)).Build(ver, version.TagName(cfg.TagPrefix, parsed), arts)
}

func fromReport(r *pipeline.Report) *Result {
	res := &Result{
		RunID:    r.RunID,
		State:    string(r.State),
		Plan:     r.Plan,
		ExitCode: r.ExitCode(),
	}
	if r.Resolution != nil {
		res.Version = r.Resolution.Version.String()
		res.Source = string(r.Resolution.Source)
		if r.Plan != nil {
			res.Tag = r.Plan.Tag
		}
	}
	if r.Tag != nil {
		res.Tag = r.Tag.Name
	}
	if r.Release != nil {
		res.ReleaseURL = r.Release.Release.URL
		for _, a := range r.Release.Artifacts {
			res.Archives = append(res.Archives, a.Name)
		}
	}
	if r.Formula != nil && r.Formula.PullRequest != nil {
		res.FormulaPR = r.Formula.PullRequest.URL
	}
	res.FormulaWarning = r.FormulaErr
	return res
}

// IsConfigError reports whether err came from loading the configuration.
func IsConfigError(err error) bool { return errors.Is(err, config.ErrInvalid) }

func (r *Result) String() string {
	switch {
	case r.Plan != nil:
		return fmt.Sprintf("would release %s as %s", r.Version, r.Tag)
	case r.ReleaseURL != "":
		return fmt.Sprintf("released %s at %s", r.Tag, r.ReleaseURL)
	default:
		return fmt.Sprintf("run %s ended in %s", r.RunID, r.State)
	}
}
