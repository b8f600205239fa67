// Package testing provides in-memory collaborators and assertion helpers for
// release pipeline tests. Import it as releasetesting.
package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keithhendry/dotty/internal/compiler"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/manifest"
	"github.com/keithhendry/dotty/internal/platform"
	"github.com/keithhendry/dotty/internal/vcs"
)

// FakeVCS is an in-memory repository with a remote and a release host.
// History is linear; tags point at commits in it.
type FakeVCS struct {
	mu sync.Mutex

	commits []vcs.Commit // newest first
	local   map[string]string
	remote  map[string]string

	releases map[string]*vcs.Release

	// Injected failures.
	PushErr          error
	CreateReleaseErr error
	FindReleaseErr   error

	CreateReleaseCalls int
	Pushed             []string
}

// NewFakeVCS returns an empty repository.
func NewFakeVCS() *FakeVCS {
	return &FakeVCS{
		local:    map[string]string{},
		remote:   map[string]string{},
		releases: map[string]*vcs.Release{},
	}
}

// Commit appends a commit on top of HEAD and returns its hash.
func (f *FakeVCS) Commit(subject string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := fmt.Sprintf("%040x", len(f.commits)+1)
	f.commits = append([]vcs.Commit{{Hash: hash, Subject: subject, Author: "dev"}}, f.commits...)
	return hash
}

// TagHead tags HEAD both locally and on the remote, as an earlier release
// would have.
func (f *FakeVCS) TagHead(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head := f.head()
	f.local[name] = head
	f.remote[name] = head
}

// Release returns the release for tag, or nil.
func (f *FakeVCS) Release(tag string) *vcs.Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[tag]
}

// ReleaseCount returns how many releases exist.
func (f *FakeVCS) ReleaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.releases)
}

// RemoteTag reports whether name has been pushed.
func (f *FakeVCS) RemoteTag(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.remote[name]
	return ok
}

// LocalTag reports whether name exists locally.
func (f *FakeVCS) LocalTag(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.local[name]
	return ok
}

func (f *FakeVCS) head() string {
	if len(f.commits) == 0 {
		return ""
	}
	return f.commits[0].Hash
}

func (f *FakeVCS) ListTags(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var tags []string
	for _, m := range []map[string]string{f.local, f.remote} {
		for t := range m {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (f *FakeVCS) TagExists(ctx context.Context, name string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, local := f.local[name]
	_, remote := f.remote[name]
	return local, remote, nil
}

func (f *FakeVCS) HeadCommit(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commits) == 0 {
		return "", fmt.Errorf("no commits")
	}
	return f.head(), nil
}

func (f *FakeVCS) CreateTag(ctx context.Context, name, commit, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.local[name]; ok {
		return vcs.ErrTagExists
	}
	f.local[name] = commit
	return nil
}

func (f *FakeVCS) DeleteTag(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.local, name)
	return nil
}

func (f *FakeVCS) Push(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PushErr != nil {
		return f.PushErr
	}
	commit, ok := f.local[ref]
	if !ok {
		return fmt.Errorf("src refspec %s does not match any", ref)
	}
	f.remote[ref] = commit
	f.Pushed = append(f.Pushed, ref)
	return nil
}

func (f *FakeVCS) Log(ctx context.Context, since string) ([]vcs.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stop := ""
	if since != "" {
		c, ok := f.local[since]
		if !ok {
			c, ok = f.remote[since]
		}
		if !ok {
			return nil, fmt.Errorf("unknown revision %s", since)
		}
		stop = c
	}
	var out []vcs.Commit
	for _, c := range f.commits {
		if c.Hash == stop {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeVCS) FindRelease(ctx context.Context, tag string) (*vcs.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FindReleaseErr != nil {
		return nil, f.FindReleaseErr
	}
	r, ok := f.releases[tag]
	if !ok {
		return nil, vcs.ErrReleaseNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *FakeVCS) CreateRelease(ctx context.Context, spec vcs.ReleaseSpec) (*vcs.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateReleaseCalls++
	if f.CreateReleaseErr != nil {
		return nil, f.CreateReleaseErr
	}
	if _, ok := f.remote[spec.Tag]; !ok {
		return nil, fmt.Errorf("tag %s has not been pushed", spec.Tag)
	}
	if _, ok := f.releases[spec.Tag]; ok {
		return nil, fmt.Errorf("a release with tag %s already exists", spec.Tag)
	}
	rel := &vcs.Release{
		Tag:        spec.Tag,
		Title:      spec.Title,
		Notes:      spec.Notes,
		URL:        "https://github.com/keithhendry/dotty/releases/tag/" + spec.Tag,
		Prerelease: spec.Prerelease,
		CreatedAt:  time.Now(),
	}
	for _, a := range spec.Assets {
		if _, err := os.Stat(a.Path); err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.Name, err)
		}
		rel.Assets = append(rel.Assets, a.Name)
	}
	f.releases[spec.Tag] = rel
	cp := *rel
	return &cp, nil
}

// FakeCompiler writes a small fake binary where cargo would put it.
type FakeCompiler struct {
	mu sync.Mutex

	// Fail makes the build for a platform return the error.
	Fail map[platform.Platform]error
	// Panic makes the build for a platform panic.
	Panic map[platform.Platform]bool
	// Delay holds every build for the duration before producing output.
	Delay time.Duration

	// Stamped records the manifest version each build saw.
	Stamped map[platform.Platform]string
	Calls   int
}

// NewFakeCompiler returns a compiler that succeeds for every platform.
func NewFakeCompiler() *FakeCompiler {
	return &FakeCompiler{
		Fail:    map[platform.Platform]error{},
		Panic:   map[platform.Platform]bool{},
		Stamped: map[platform.Platform]string{},
	}
}

// Build implements compiler.Compiler.
func (c *FakeCompiler) Build(ctx context.Context, req compiler.Request) (string, error) {
	c.mu.Lock()
	c.Calls++
	fail, panics := c.Fail[req.Platform], c.Panic[req.Platform]
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if panics {
		panic("compiler crashed on " + req.Platform.String())
	}
	if fail != nil {
		return "", fail
	}

	data, err := os.ReadFile(filepath.Join(req.Source, manifestName(req)))
	if err != nil {
		return "", err
	}
	stamped, err := manifest.Version(data)
	if err != nil {
		return "", err
	}
	// Like cargo --locked, refuse a lockfile that disagrees with the manifest.
	lockPath := filepath.Join(req.Source, filepath.Dir(manifestName(req)), "Cargo.lock")
	if lock, err := os.ReadFile(lockPath); err == nil {
		name, err := manifest.Name(data)
		if err != nil {
			return "", err
		}
		if locked, err := manifest.LockedVersion(lock, name); err != nil || locked != stamped {
			return "", fmt.Errorf("the lock file %s needs to be updated but --locked was passed to prevent this", lockPath)
		}
	}
	c.mu.Lock()
	c.Stamped[req.Platform] = stamped
	c.mu.Unlock()

	dir := filepath.Join(req.TargetDir, req.Platform.Target(), "release")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	bin := filepath.Join(dir, req.Binary)
	body := fmt.Sprintf("#!/bin/sh\necho %s %s %s\n", req.Binary, stamped, req.Platform)
	return bin, os.WriteFile(bin, []byte(body), 0755)
}

func manifestName(req compiler.Request) string {
	if req.Manifest == "" {
		return "Cargo.toml"
	}
	return req.Manifest
}

// FakeTap is an in-memory Homebrew tap.
type FakeTap struct {
	mu sync.Mutex

	PRs    map[string]*formula.PullRequest
	Opened []formula.Change

	OpenErr error
	FindErr error
	PushErr error
	// Pushed records changes pushed onto already open pull requests.
	Pushed []formula.Change
}

// NewFakeTap returns a tap with no pull requests.
func NewFakeTap() *FakeTap {
	return &FakeTap{PRs: map[string]*formula.PullRequest{}}
}

func (t *FakeTap) FindPullRequest(ctx context.Context, branch string) (*formula.PullRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FindErr != nil {
		return nil, t.FindErr
	}
	return t.PRs[branch], nil
}

func (t *FakeTap) OpenPullRequest(ctx context.Context, change formula.Change) (*formula.PullRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	n := len(t.Opened) + 1
	pr := &formula.PullRequest{
		Number:    n,
		URL:       fmt.Sprintf("https://github.com/keithhendry/homebrew-tap/pull/%d", n),
		Branch:    change.Branch,
		State:     "OPEN",
		AutoMerge: change.AutoMerge,
	}
	t.PRs[change.Branch] = pr
	t.Opened = append(t.Opened, change)
	return pr, nil
}

func (t *FakeTap) PushChange(ctx context.Context, change formula.Change) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PushErr != nil {
		return t.PushErr
	}
	t.Pushed = append(t.Pushed, change)
	return nil
}

// NewSourceTree writes a minimal cargo project into a temp dir and returns
// its path.
func NewSourceTree(t *testing.T, version string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"Cargo.toml": strings.Join([]string{
			"[package]",
			`name = "dotty"`,
			fmt.Sprintf("version = %q", version),
			`edition = "2021"`,
			"",
			"[dependencies]",
			`clap = { version = "4", features = ["derive"] }`,
			"",
		}, "\n"),
		"Cargo.lock": strings.Join([]string{
			"version = 4",
			"",
			"[[package]]",
			`name = "clap"`,
			`version = "4.5.4"`,
			`source = "registry+https://github.com/rust-lang/crates.io-index"`,
			"",
			"[[package]]",
			`name = "dotty"`,
			fmt.Sprintf("version = %q", version),
			`dependencies = [`,
			` "clap",`,
			`]`,
			"",
		}, "\n"),
		"src/main.rs": "fn main() {}\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
