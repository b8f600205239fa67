// Package version resolves the next release version from tags and history,
// or validates an explicit override.
//
// The latest version is always read from the repository's tags at resolution
// time. Nothing is cached between runs.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/vcs"
)

// Source records which rule produced a resolved version.
type Source string

const (
	SourceOverride Source = "override"
	SourceLabel    Source = "label"
	SourceHistory  Source = "history"
)

// Repository is what the resolver needs from version control.
type Repository interface {
	ListTags(ctx context.Context) ([]string, error)
	Log(ctx context.Context, since string) ([]vcs.Commit, error)
}

// Request carries the optional inputs of a resolution.
type Request struct {
	// Override is used verbatim when non-blank.
	Override string
	// Bump forces an increment, bypassing history. Ignored when Override is set.
	Bump Bump
}

// Resolution is the outcome of a successful resolution.
type Resolution struct {
	Version   *semver.Version
	Latest    *semver.Version
	LatestTag string
	Source    Source
	Bump      Bump
	// Commits are the commits since LatestTag, newest first. Only populated
	// when history was read.
	Commits []vcs.Commit
}

// Tag returns the tag name for the resolved version.
func (r *Resolution) Tag(prefix string) string { return TagName(prefix, r.Version) }

// Resolver computes the next release version.
type Resolver struct {
	repo   Repository
	prefix string
	logger *slog.Logger
}

// NewResolver creates a resolver reading tags that carry prefix.
func NewResolver(repo Repository, prefix string) *Resolver {
	return &Resolver{repo: repo, prefix: prefix, logger: logging.New("version")}
}

// TagName formats the tag for v.
func TagName(prefix string, v *semver.Version) string { return prefix + v.String() }

// Latest returns the greatest semver tag carrying the resolver's prefix. The
// returned version is nil when the repository has no such tag.
func (r *Resolver) Latest(ctx context.Context) (*semver.Version, string, error) {
	tags, err := r.repo.ListTags(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list tags: %w", err)
	}
	return LatestTag(tags, r.prefix)
}

// LatestTag picks the greatest strict semver among tags carrying prefix.
func LatestTag(tags []string, prefix string) (*semver.Version, string, error) {
	var (
		latest    *semver.Version
		latestTag string
	)
	for _, tag := range tags {
		raw, ok := strings.CutPrefix(strings.TrimSpace(tag), prefix)
		if !ok {
			continue
		}
		v, err := semver.StrictNewVersion(raw)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest, latestTag = v, tag
		}
	}
	return latest, latestTag, nil
}

// Resolve applies the precedence rule: override, then forced bump, then
// history inference.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	latest, latestTag, err := r.Latest(ctx)
	if err != nil {
		return nil, &relerr.VersionResolutionError{Override: req.Override, Msg: "reading tags", Err: err}
	}

	res := &Resolution{Latest: latest, LatestTag: latestTag}

	if override := strings.TrimSpace(req.Override); override != "" {
		v, err := ParseOverride(override)
		if err != nil {
			return nil, err
		}
		if latest != nil && !v.GreaterThan(latest) {
			return nil, &relerr.VersionResolutionError{
				Override: override,
				Latest:   latest.String(),
				Msg:      fmt.Sprintf("must be greater than latest tag %s", latestTag),
			}
		}
		res.Version, res.Source = v, SourceOverride
		r.logger.Info("using version override", "version", v.String(), "latest", latestTag)
		return res, nil
	}

	if req.Bump != BumpNone {
		res.Version, res.Source, res.Bump = Apply(latest, req.Bump), SourceLabel, req.Bump
		r.logger.Info("using forced bump", "bump", req.Bump.String(), "version", res.Version.String())
		return res, nil
	}

	commits, err := r.repo.Log(ctx, latestTag)
	if err != nil {
		return nil, &relerr.VersionResolutionError{Msg: "reading history", Err: err}
	}
	since := latestTag
	if since == "" {
		since = "the beginning of history"
	}
	if len(commits) == 0 {
		return nil, &relerr.VersionResolutionError{Latest: versionString(latest), Msg: "no commits since " + since}
	}
	bump := Infer(commits)
	if bump == BumpNone {
		return nil, &relerr.VersionResolutionError{
			Latest: versionString(latest),
			Msg:    fmt.Sprintf("no releasable commits among %d since %s", len(commits), since),
		}
	}

	res.Version, res.Source, res.Bump, res.Commits = Apply(latest, bump), SourceHistory, bump, commits
	r.logger.Info("inferred version from history", "bump", bump.String(), "commits", len(commits), "version", res.Version.String())
	return res, nil
}

// ParseOverride parses a strict MAJOR.MINOR.PATCH version with optional
// pre-release and build metadata. A leading "v" is rejected.
func ParseOverride(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, &relerr.VersionResolutionError{Override: s, Msg: "not a strict semantic version", Err: err}
	}
	return v, nil
}

// Apply increments base by bump. A nil base is treated as 0.0.0.
func Apply(base *semver.Version, bump Bump) *semver.Version {
	if base == nil {
		base = semver.New(0, 0, 0, "", "")
	}
	var next semver.Version
	switch bump {
	case BumpMajor:
		next = base.IncMajor()
	case BumpMinor:
		next = base.IncMinor()
	case BumpPatch:
		next = base.IncPatch()
	default:
		return base
	}
	return &next
}

func versionString(v *semver.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
