package version_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/vcs"
	"github.com/keithhendry/dotty/internal/version"
)

type fakeRepo struct {
	tags    []string
	commits []vcs.Commit
	since   string
	logErr  error
}

func (f *fakeRepo) ListTags(ctx context.Context) ([]string, error) { return f.tags, nil }

func (f *fakeRepo) Log(ctx context.Context, since string) ([]vcs.Commit, error) {
	f.since = since
	return f.commits, f.logErr
}

func commits(subjects ...string) []vcs.Commit {
	out := make([]vcs.Commit, len(subjects))
	for i, s := range subjects {
		out[i] = vcs.Commit{Hash: fmt.Sprintf("%040d", i), Subject: s}
	}
	return out
}

func TestResolveFromHistory(t *testing.T) {
	tests := []struct {
		name    string
		tags    []string
		commits []vcs.Commit
		want    string
	}{
		{"patch", []string{"v1.2.3"}, commits("fix: handle symlinks"), "1.2.4"},
		{"perf is patch", []string{"v1.2.3"}, commits("perf(git): faster status"), "1.2.4"},
		{"minor", []string{"v1.2.3"}, commits("fix: a", "feat(restore): overwrite flag"), "1.3.0"},
		{"major bang", []string{"v1.2.3"}, commits("feat!: new layout", "fix: b"), "2.0.0"},
		{"major footer", []string{"v1.2.3"}, []vcs.Commit{{Subject: "refactor: config", Body: "BREAKING CHANGE: yaml schema"}}, "2.0.0"},
		{"no tags", nil, commits("feat: initial"), "0.1.0"},
		{"ignores foreign tags", []string{"v1.0.0", "nightly", "v2.0", "x3.0.0"}, commits("fix: a"), "1.0.1"},
		{"highest tag wins", []string{"v1.10.0", "v1.9.0", "v1.2.0"}, commits("fix: a"), "1.10.1"},
		{"prerelease latest", []string{"v1.0.0", "v2.0.0-rc.1"}, commits("fix: a"), "2.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{tags: tt.tags, commits: tt.commits}
			res, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := res.Version.String(); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
			if res.Source != version.SourceHistory {
				t.Errorf("Source = %s, want history", res.Source)
			}
			if res.Latest != nil && !res.Version.GreaterThan(res.Latest) {
				t.Errorf("resolved %s is not greater than latest %s", res.Version, res.Latest)
			}
		})
	}
}

func TestResolveReadsHistorySinceLatestTag(t *testing.T) {
	repo := &fakeRepo{tags: []string{"v0.9.0", "v1.0.0"}, commits: commits("fix: a")}
	if _, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{}); err != nil {
		t.Fatal(err)
	}
	if repo.since != "v1.0.0" {
		t.Errorf("Log since = %q, want v1.0.0", repo.since)
	}
}

func TestResolveAmbiguousHistory(t *testing.T) {
	tests := []struct {
		name    string
		commits []vcs.Commit
	}{
		{"empty", nil},
		{"no releasable", commits("chore: bump deps", "docs: readme", "Merge branch 'main'")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{tags: []string{"v1.0.0"}, commits: tt.commits}
			_, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{})
			if !errors.Is(err, relerr.ErrVersionResolution) {
				t.Errorf("Resolve() error = %v, want VersionResolutionError", err)
			}
		})
	}
}

func TestResolveHistoryError(t *testing.T) {
	cause := errors.New("not a git repository")
	repo := &fakeRepo{logErr: cause}
	_, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{})
	if !errors.Is(err, relerr.ErrVersionResolution) || !errors.Is(err, cause) {
		t.Errorf("Resolve() error = %v, want wrapped resolution error", err)
	}
}

func TestResolveOverride(t *testing.T) {
	repo := &fakeRepo{tags: []string{"v2.4.9"}, commits: commits("chore: nothing")}
	res, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{Override: " 2.5.0 "})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.String() != "2.5.0" || res.Source != version.SourceOverride {
		t.Errorf("Resolve() = %s (%s), want 2.5.0 (override)", res.Version, res.Source)
	}
	if res.Tag("v") != "v2.5.0" {
		t.Errorf("Tag() = %q", res.Tag("v"))
	}
	if repo.since != "" {
		t.Error("override must bypass history inference")
	}
}

func TestResolveOverrideRejected(t *testing.T) {
	tests := []struct {
		name     string
		override string
	}{
		{"leading v", "v2.5.0"},
		{"partial", "2.5"},
		{"garbage", "two point five"},
		{"equal to latest", "2.4.9"},
		{"lower than latest", "1.0.0"},
		{"prerelease of latest", "2.4.9-rc.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{tags: []string{"v2.4.9"}}
			_, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{Override: tt.override})
			var vre *relerr.VersionResolutionError
			if !errors.As(err, &vre) {
				t.Fatalf("Resolve(%q) error = %v, want VersionResolutionError", tt.override, err)
			}
		})
	}
}

func TestResolveOverrideWithMetadata(t *testing.T) {
	repo := &fakeRepo{tags: []string{"v2.4.9"}}
	res, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{Override: "2.5.0-rc.1+build.7"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Version.Prerelease() != "rc.1" || res.Version.Metadata() != "build.7" {
		t.Errorf("unexpected version %s", res.Version)
	}
}

func TestPrecedence(t *testing.T) {
	repo := &fakeRepo{tags: []string{"v1.0.0"}, commits: commits("fix: a")}
	r := version.NewResolver(repo, "v")
	ctx := context.Background()

	res, err := r.Resolve(ctx, version.Request{Override: "3.0.0", Bump: version.BumpMinor})
	if err != nil || res.Version.String() != "3.0.0" || res.Source != version.SourceOverride {
		t.Errorf("override must beat label bump: %v %v", res, err)
	}

	res, err = r.Resolve(ctx, version.Request{Override: "   ", Bump: version.BumpMinor})
	if err != nil || res.Version.String() != "1.1.0" || res.Source != version.SourceLabel {
		t.Errorf("blank override is absent, label bump must beat history: %v %v", res, err)
	}

	res, err = r.Resolve(ctx, version.Request{})
	if err != nil || res.Version.String() != "1.0.1" || res.Source != version.SourceHistory {
		t.Errorf("history used when nothing else given: %v %v", res, err)
	}
}

// TestResolvedAlwaysGreater walks a grid of tag sets and histories and checks
// that every success is strictly greater than the latest tag.
func TestResolvedAlwaysGreater(t *testing.T) {
	tagSets := [][]string{nil, {"v0.0.1"}, {"v1.0.0", "v1.0.1-alpha"}, {"v9.9.9", "v10.0.0-rc.2"}}
	histories := [][]vcs.Commit{
		nil,
		commits("chore: x"),
		commits("fix: x"),
		commits("feat: x"),
		commits("feat!: x"),
		commits("docs: x", "fix(cli): y"),
	}
	for _, tags := range tagSets {
		for _, history := range histories {
			repo := &fakeRepo{tags: tags, commits: history}
			res, err := version.NewResolver(repo, "v").Resolve(context.Background(), version.Request{})
			if err != nil {
				if !errors.Is(err, relerr.ErrVersionResolution) {
					t.Errorf("tags=%v: unexpected error type %v", tags, err)
				}
				continue
			}
			latest, _, _ := version.LatestTag(tags, "v")
			if latest != nil && !res.Version.GreaterThan(latest) {
				t.Errorf("tags=%v: %s not greater than %s", tags, res.Version, latest)
			}
		}
	}
}

func TestApplyNilBase(t *testing.T) {
	if got := version.Apply(nil, version.BumpPatch); !got.Equal(semver.MustParse("0.0.1")) {
		t.Errorf("Apply(nil, patch) = %s", got)
	}
}

func TestParseBump(t *testing.T) {
	if b, ok := version.ParseBump("Minor"); !ok || b != version.BumpMinor {
		t.Errorf("ParseBump(Minor) = %v, %v", b, ok)
	}
	if _, ok := version.ParseBump("huge"); ok {
		t.Error("ParseBump(huge) should fail")
	}
}
