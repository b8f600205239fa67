package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keithhendry/dotty/internal/backend"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Git implements VCS with the git and gh command-line tools.
type Git struct {
	// Dir is the repository working tree.
	Dir string
	// Remote is the remote tags are pushed to. Empty keeps everything local.
	Remote string
	// Repo is the "owner/name" slug used for hosted releases.
	Repo string

	runner backend.CommandRunner
}

// NewGit creates a git/gh backed VCS.
func NewGit(dir, remote, repo string, runner backend.CommandRunner) *Git {
	if runner == nil {
		runner = backend.NewExecRunner()
	}
	return &Git{Dir: dir, Remote: remote, Repo: repo, runner: runner}
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	return g.runner.Run(ctx, backend.Command{Dir: g.Dir, Name: "git", Args: args})
}

func (g *Git) gh(ctx context.Context, args ...string) (string, error) {
	if g.Repo != "" {
		args = append(args, "--repo", g.Repo)
	}
	return g.runner.Run(ctx, backend.Command{Dir: g.Dir, Name: "gh", Args: args})
}

// ListTags returns local tags merged with the remote's, so a tag pushed by
// another machine is seen even when it was never fetched.
func (g *Git) ListTags(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "tag", "--list")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tags []string
	for _, t := range lines(out) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}

	if g.Remote == "" {
		return tags, nil
	}
	remote, err := g.remoteTags(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, t := range remote {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func (g *Git) remoteTags(ctx context.Context, name string) ([]string, error) {
	args := []string{"ls-remote", "--tags", "--refs", g.Remote}
	if name != "" {
		args = append(args, "refs/tags/"+name)
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		tags = append(tags, strings.TrimPrefix(fields[1], "refs/tags/"))
	}
	return tags, nil
}

// TagExists implements Tags.
func (g *Git) TagExists(ctx context.Context, name string) (bool, bool, error) {
	out, err := g.git(ctx, "tag", "--list", name)
	if err != nil {
		return false, false, err
	}
	local := strings.TrimSpace(out) == name

	if g.Remote == "" {
		return local, false, nil
	}
	remote, err := g.remoteTags(ctx, name)
	if err != nil {
		return local, false, err
	}
	return local, len(remote) > 0, nil
}

// HeadCommit implements Tags.
func (g *Git) HeadCommit(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CreateTag implements Tags with an annotated tag.
func (g *Git) CreateTag(ctx context.Context, name, commit, message string) error {
	local, _, err := g.TagExists(ctx, name)
	if err != nil {
		return err
	}
	if local {
		return fmt.Errorf("%s: %w", name, ErrTagExists)
	}
	_, err = g.git(ctx, "tag", "--annotate", name, commit, "--message", message)
	return err
}

// DeleteTag implements Tags. Only the local tag is removed.
func (g *Git) DeleteTag(ctx context.Context, name string) error {
	_, err := g.git(ctx, "tag", "--delete", name)
	return err
}

// Push implements Tags.
func (g *Git) Push(ctx context.Context, ref string) error {
	if g.Remote == "" {
		return nil
	}
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/tags/" + ref
	}
	_, err := g.git(ctx, "push", g.Remote, ref)
	return err
}

// Log implements History.
func (g *Git) Log(ctx context.Context, since string) ([]Commit, error) {
	args := []string{"log", "--format=%H" + fieldSep + "%an" + fieldSep + "%s" + fieldSep + "%b" + recordSep}
	if since != "" {
		args = append(args, since+"..HEAD")
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

func parseLog(out string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSep, 4)
		if len(parts) < 3 {
			continue
		}
		c := Commit{Hash: parts[0], Author: parts[1], Subject: parts[2]}
		if len(parts) == 4 {
			c.Body = strings.TrimSpace(parts[3])
		}
		commits = append(commits, c)
	}
	return commits
}

type ghRelease struct {
	TagName      string    `json:"tagName"`
	Name         string    `json:"name"`
	Body         string    `json:"body"`
	URL          string    `json:"url"`
	IsPrerelease bool      `json:"isPrerelease"`
	CreatedAt    time.Time `json:"createdAt"`
	Assets       []struct {
		Name string `json:"name"`
	} `json:"assets"`
}

// FindRelease implements Releases.
func (g *Git) FindRelease(ctx context.Context, tag string) (*Release, error) {
	out, err := g.gh(ctx, "release", "view", tag, "--json", "tagName,name,body,url,isPrerelease,createdAt,assets")
	if err != nil {
		if strings.Contains(err.Error(), "release not found") {
			return nil, fmt.Errorf("%s: %w", tag, ErrReleaseNotFound)
		}
		return nil, err
	}
	var raw ghRelease
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse gh release view: %w", err)
	}
	rel := &Release{
		Tag:        raw.TagName,
		Title:      raw.Name,
		Notes:      raw.Body,
		URL:        raw.URL,
		Prerelease: raw.IsPrerelease,
		CreatedAt:  raw.CreatedAt,
	}
	for _, a := range raw.Assets {
		rel.Assets = append(rel.Assets, a.Name)
	}
	return rel, nil
}

// CreateRelease implements Releases. The tag must already be pushed.
func (g *Git) CreateRelease(ctx context.Context, spec ReleaseSpec) (*Release, error) {
	notes, err := os.CreateTemp("", "release-notes-*.md")
	if err != nil {
		return nil, fmt.Errorf("write notes: %w", err)
	}
	defer os.Remove(notes.Name())
	if _, err := notes.WriteString(spec.Notes); err != nil {
		notes.Close()
		return nil, fmt.Errorf("write notes: %w", err)
	}
	if err := notes.Close(); err != nil {
		return nil, fmt.Errorf("write notes: %w", err)
	}

	args := []string{"release", "create", spec.Tag}
	for _, a := range spec.Assets {
		path := a.Path
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		args = append(args, path)
	}
	args = append(args, "--title", spec.Title, "--notes-file", notes.Name(), "--verify-tag")
	if spec.Prerelease {
		args = append(args, "--prerelease")
	} else if spec.Latest {
		args = append(args, "--latest")
	}

	if _, err := g.gh(ctx, args...); err != nil {
		return nil, err
	}
	return g.FindRelease(ctx, spec.Tag)
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
