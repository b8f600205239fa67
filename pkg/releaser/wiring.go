package releaser

import (
	"errors"
	"fmt"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/backend"
	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/notes"
	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/internal/store"
	"github.com/keithhendry/dotty/internal/vcs"
)

const notesSystemPrompt = "You write concise, accurate release notes for a command-line tool. Never invent changes."

// deps are the collaborators of one run.
type deps struct {
	cfg      *config.Config
	vcs      vcs.VCS
	compiler compiler.Compiler
	tap      formula.Repository
	notes    *notes.Generator
	registry *backend.Registry
	ledger   *store.Ledger
}

func (o *Options) config() (*config.Config, error) {
	if o.Config != nil {
		if err := o.Config.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		return o.Config, nil
	}
	return config.LoadFile(config.Path(o.ConfigFile), true)
}

func (o *Options) vcs(cfg *config.Config) vcs.VCS {
	if o.VCS != nil {
		return o.VCS
	}
	return vcs.NewGit(cfg.Source, cfg.Repository.Remote, cfg.Repository.Slug(), nil)
}

func wire(o *Options) (*deps, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, vcs: o.vcs(cfg), compiler: o.Compiler, tap: o.Tap, registry: backend.NewRegistry()}

	if d.compiler == nil {
		d.compiler = compiler.NewCargo(compiler.Options{Locked: true}, nil)
	}
	if d.tap == nil && cfg.Formula.Repository != "" {
		d.tap = formula.NewGitHubTap(cfg.Formula.Repository, "", nil)
	}

	var genOpts []notes.Option
	if cfg.Notes.Backend == "openai" {
		llm, err := backend.NewOpenAIBackend(backend.OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			DefaultModel: cfg.Notes.Model,
			System:       notesSystemPrompt,
			Temperature:  0.2,
		})
		if err != nil {
			// Notes fall back to the plain commit log.
			logging.New("releaser").Warn("release-note summariser unavailable", "error", err)
		} else {
			d.registry.RegisterLLM(llm.Name(), llm)
		}
	}
	if llm, ok := d.registry.GetLLM(cfg.Notes.Backend); ok {
		logging.New("releaser").Debug("summarising release notes", "backend", llm.Name(), "available", d.registry.ListLLMBackends())
		genOpts = append(genOpts, notes.WithSummariser(llm, cfg.Notes.Model, cfg.Notes.MaxTokens))
	}
	d.notes = notes.NewGenerator(genOpts...)

	if cfg.Ledger != "" && !o.NoLedger && !o.DryRun {
		l, err := store.Open(cfg.Ledger)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		d.ledger = l
	}
	return d, nil
}

func (d *deps) pipelineOptions(o *Options) pipeline.Options {
	observers := append([]pipeline.Observer(nil), o.Observers...)
	if d.ledger != nil {
		observers = append(observers, d.ledger)
	}
	return pipeline.Options{
		Config:    d.cfg,
		VCS:       d.vcs,
		Compiler:  d.compiler,
		Tap:       d.tap,
		Notes:     d.notes,
		Observers: observers,
		DryRun:    o.DryRun,
	}
}

func (d *deps) close() {
	var errs []error
	if d.ledger != nil {
		errs = append(errs, d.ledger.Close())
	}
	errs = append(errs, d.registry.Close())
	if err := errors.Join(errs...); err != nil {
		logging.New("releaser").Warn("closing collaborators", "error", err)
	}
}

// locateArchives finds every configured platform's archive for ver in the
// dist directory.
func locateArchives(cfg *config.Config, ver string) ([]artifact.Artifact, error) {
	st, err := artifact.NewStore(cfg.DistFor(ver), cfg.Binary, ver)
	if err != nil {
		return nil, err
	}
	arts := make([]artifact.Artifact, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		a, err := st.Locate(p)
		if err != nil {
			return nil, err
		}
		arts = append(arts, a)
	}
	return arts, nil
}
