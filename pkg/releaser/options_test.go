package releaser_test

import (
	"testing"

	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/pipeline"
	releasetesting "github.com/keithhendry/dotty/internal/testing"
	"github.com/keithhendry/dotty/pkg/releaser"
)

func TestDefaultOptions(t *testing.T) {
	opts := releaser.DefaultOptions()

	if opts.ConfigFile != config.DefaultConfigFile {
		t.Errorf("expected default ConfigFile %q, got %s", config.DefaultConfigFile, opts.ConfigFile)
	}
	if opts.Trigger.Kind != pipeline.KindManual || opts.Trigger.Override != "" {
		t.Errorf("expected manual trigger without override, got %+v", opts.Trigger)
	}
	if opts.DryRun {
		t.Error("DryRun should be false by default")
	}
	if opts.NoLedger {
		t.Error("NoLedger should be false by default")
	}
}

func TestWithOverride(t *testing.T) {
	opts := releaser.ApplyOptions(releaser.WithOverride("2.5.0"))

	if opts.Trigger.Override != "2.5.0" {
		t.Errorf("expected override 2.5.0, got %s", opts.Trigger.Override)
	}
}

func TestWithTriggerThenOverride(t *testing.T) {
	opts := releaser.ApplyOptions(
		releaser.WithTrigger(pipeline.Merge("release")),
		releaser.WithOverride("3.0.0"),
	)

	if opts.Trigger.Kind != pipeline.KindMerge || opts.Trigger.Override != "3.0.0" {
		t.Errorf("unexpected trigger %+v", opts.Trigger)
	}
}

func TestCollaboratorOptions(t *testing.T) {
	v := releasetesting.NewFakeVCS()
	c := releasetesting.NewFakeCompiler()
	tap := releasetesting.NewFakeTap()
	cfg := config.NewConfig()

	opts := releaser.ApplyOptions(
		releaser.WithConfig(cfg),
		releaser.WithConfigFile("other.yaml"),
		releaser.WithVCS(v),
		releaser.WithCompiler(c),
		releaser.WithTap(tap),
		releaser.WithDryRun(),
		releaser.WithoutLedger(),
	)

	if opts.Config != cfg || opts.ConfigFile != "other.yaml" {
		t.Error("config options not applied")
	}
	if opts.VCS != v || opts.Compiler != c || opts.Tap != tap {
		t.Error("collaborator options not applied")
	}
	if !opts.DryRun || !opts.NoLedger {
		t.Error("flag options not applied")
	}
}

func TestMultipleObservers(t *testing.T) {
	noop := pipeline.ObserverFunc(func(pipeline.Event) error { return nil })
	opts := releaser.ApplyOptions(releaser.WithObserver(noop), releaser.WithObserver(noop))

	if len(opts.Observers) != 2 {
		t.Errorf("expected 2 observers, got %d", len(opts.Observers))
	}
}
