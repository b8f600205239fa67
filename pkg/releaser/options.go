package releaser

import (
	"context"

	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/internal/vcs"
)

// Options configures a release run.
type Options struct {
	// Config is used as is when set. Otherwise ConfigFile is loaded.
	Config *config.Config

	// ConfigFile is the release.yaml to load. A missing file falls back to
	// defaults plus environment.
	ConfigFile string

	// Trigger is the event that started the run. Defaults to a manual
	// trigger without override.
	Trigger pipeline.Trigger

	// DryRun resolves the version and reports the plan only.
	DryRun bool

	// Collaborators. Nil values are built from the configuration.
	VCS      vcs.VCS
	Compiler compiler.Compiler
	Tap      formula.Repository

	// NoLedger disables the run ledger even when configured.
	NoLedger bool

	Observers []pipeline.Observer
}

// DefaultOptions returns a new Options with default values.
func DefaultOptions() *Options {
	return &Options{
		ConfigFile: config.DefaultConfigFile,
		Trigger:    pipeline.Manual(""),
	}
}

// Option is a functional option for configuring a release.
type Option func(*Options)

// WithConfig uses cfg instead of loading a file.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithConfigFile sets the release.yaml to load.
func WithConfigFile(path string) Option {
	return func(o *Options) {
		o.ConfigFile = path
	}
}

// WithOverride pins the release version.
func WithOverride(v string) Option {
	return func(o *Options) {
		o.Trigger.Override = v
	}
}

// WithTrigger replaces the trigger.
func WithTrigger(t pipeline.Trigger) Option {
	return func(o *Options) {
		o.Trigger = t
	}
}

// WithDryRun reports the plan without side effects.
func WithDryRun() Option {
	return func(o *Options) {
		o.DryRun = true
	}
}

// WithVCS replaces the git/gh collaborator.
func WithVCS(v vcs.VCS) Option {
	return func(o *Options) {
		o.VCS = v
	}
}

// WithCompiler replaces the cargo collaborator.
func WithCompiler(c compiler.Compiler) Option {
	return func(o *Options) {
		o.Compiler = c
	}
}

// WithTap replaces the Homebrew tap collaborator.
func WithTap(t formula.Repository) Option {
	return func(o *Options) {
		o.Tap = t
	}
}

// WithoutLedger disables run recording.
func WithoutLedger() Option {
	return func(o *Options) {
		o.NoLedger = true
	}
}

// WithObserver adds a run event observer.
func WithObserver(obs pipeline.Observer) Option {
	return func(o *Options) {
		o.Observers = append(o.Observers, obs)
	}
}

// ApplyOptions applies functional options to Options.
func ApplyOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ReleaseWith runs a release with functional options.
//
// Example:
//
//	result, err := releaser.ReleaseWith(ctx,
//	    releaser.WithOverride("2.5.0"),
//	    releaser.WithDryRun(),
//	)
func ReleaseWith(ctx context.Context, opts ...Option) (*Result, error) {
	return Release(ctx, ApplyOptions(opts...))
}
