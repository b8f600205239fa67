// Package release joins the build matrix and publishes the release.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/build"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/notes"
	"github.com/keithhendry/dotty/internal/platform"
	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/vcs"
)

// ErrAlreadyReleased is returned when the hosting service already has a
// release for the tag.
var ErrAlreadyReleased = errors.New("release already exists")

// Request is one release to publish.
type Request struct {
	Version     *semver.Version
	Tag         string
	PreviousTag string
	// Commits feed the notes. When nil they are read from history since
	// PreviousTag.
	Commits []vcs.Commit
}

// Published is a release that went out.
type Published struct {
	Release   *vcs.Release
	Artifacts []artifact.Artifact
	Notes     string
}

// Aggregator validates the artifact set and publishes it.
type Aggregator struct {
	vcs    vcs.VCS
	store  *artifact.Store
	notes  *notes.Generator
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. A nil generator writes plain notes.
func NewAggregator(v vcs.VCS, store *artifact.Store, gen *notes.Generator) *Aggregator {
	if gen == nil {
		gen = notes.NewGenerator()
	}
	return &Aggregator{vcs: v, store: store, notes: gen, logger: logging.New("release")}
}

// Collect checks that every platform has exactly one successful outcome and
// takes its archive out of the store. Artifacts are returned in platform
// order.
func (a *Aggregator) Collect(platforms []platform.Platform, outcomes []build.Outcome) ([]artifact.Artifact, error) {
	byPlatform := make(map[platform.Platform][]build.Outcome, len(outcomes))
	for _, o := range outcomes {
		byPlatform[o.Platform] = append(byPlatform[o.Platform], o)
	}

	incomplete := &relerr.IncompleteArtifactSetError{Expected: len(platforms), Failed: map[string]error{}}
	ok := make([]platform.Platform, 0, len(platforms))
	for _, p := range platforms {
		got := byPlatform[p]
		switch {
		case len(got) == 0:
			incomplete.Missing = append(incomplete.Missing, p.String())
		case len(got) > 1:
			incomplete.Failed[p.String()] = fmt.Errorf("%d outcomes reported", len(got))
		case !got[0].OK():
			err := got[0].Err
			if err == nil {
				err = errors.New("no artifact produced")
			}
			incomplete.Failed[p.String()] = err
		default:
			ok = append(ok, p)
		}
	}
	if len(incomplete.Missing) > 0 || len(incomplete.Failed) > 0 {
		return nil, incomplete
	}

	arts := make([]artifact.Artifact, 0, len(ok))
	for _, p := range ok {
		art, err := a.store.Consume(p)
		if err != nil {
			incomplete.Failed[p.String()] = err
			continue
		}
		arts = append(arts, art)
	}
	if len(incomplete.Failed) > 0 {
		return nil, incomplete
	}
	return arts, nil
}

// Release creates the hosted release for a collected artifact set. Nothing is
// created when the tag already has a release. A rejected creation discards
// the run's archives.
func (a *Aggregator) Release(ctx context.Context, req Request, arts []artifact.Artifact) (*Published, error) {
	logger := a.logger.With("tag", req.Tag)

	existing, err := a.vcs.FindRelease(ctx, req.Tag)
	switch {
	case err == nil && existing != nil:
		return nil, &relerr.PublishError{Tag: req.Tag, Err: fmt.Errorf("%w at %s", ErrAlreadyReleased, existing.URL)}
	case err != nil && !errors.Is(err, vcs.ErrReleaseNotFound):
		return nil, &relerr.PublishError{Tag: req.Tag, Err: fmt.Errorf("checking for existing release: %w", err)}
	}

	commits := req.Commits
	if commits == nil {
		commits, err = a.vcs.Log(ctx, req.PreviousTag)
		if err != nil {
			logger.Warn("could not read history for notes", "error", err)
		}
	}

	names := make([]string, len(arts))
	assets := make([]vcs.Asset, len(arts))
	for i, art := range arts {
		names[i] = art.Name
		assets[i] = vcs.Asset{Name: art.Name, Path: art.Path}
	}

	body := a.notes.Generate(ctx, notes.Input{
		Version:     req.Version.String(),
		Tag:         req.Tag,
		PreviousTag: req.PreviousTag,
		Commits:     commits,
		Archives:    names,
	})

	rel, err := a.vcs.CreateRelease(ctx, vcs.ReleaseSpec{
		Tag:        req.Tag,
		Title:      req.Tag,
		Notes:      body,
		Assets:     assets,
		Latest:     req.Version.Prerelease() == "",
		Prerelease: req.Version.Prerelease() != "",
	})
	if err != nil {
		if derr := a.store.Discard(); derr != nil {
			logger.Error("failed to discard archives", "error", derr)
		}
		return nil, &relerr.PublishError{Tag: req.Tag, Err: err}
	}

	logger.Info("release published", "url", rel.URL, "assets", len(arts))
	return &Published{Release: rel, Artifacts: arts, Notes: body}, nil
}
