package formula

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keithhendry/dotty/internal/backend"
)

// ErrUpToDate is returned by OpenPullRequest when the tap already carries
// the exact formula content.
var ErrUpToDate = errors.New("formula already up to date")

// PullRequest is an open pull request on the tap repository.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Branch string `json:"headRefName"`
	State  string `json:"state"`
	// AutoMerge reports whether auto-merge was enabled by this run.
	AutoMerge bool `json:"-"`
}

// Change is a formula revision to propose.
type Change struct {
	Branch        string
	Base          string
	Path          string
	Content       []byte
	CommitMessage string
	Title         string
	Body          string
	AutoMerge     bool
}

// Repository is the tap collaborator.
type Repository interface {
	// FindPullRequest returns the open pull request for branch, or nil.
	FindPullRequest(ctx context.Context, branch string) (*PullRequest, error)
	OpenPullRequest(ctx context.Context, change Change) (*PullRequest, error)
	// PushChange rewrites the change's branch without opening a pull
	// request. It returns ErrUpToDate when Base already carries the formula.
	PushChange(ctx context.Context, change Change) error
}

// GitHubTap implements Repository with git and the gh CLI.
type GitHubTap struct {
	slug    string
	workdir string
	runner  backend.CommandRunner
}

// NewGitHubTap creates a tap client for the "owner/name" repository.
// Clones are made under workdir; an empty workdir uses a temp directory.
func NewGitHubTap(slug, workdir string, runner backend.CommandRunner) *GitHubTap {
	if runner == nil {
		runner = backend.NewExecRunner()
	}
	return &GitHubTap{slug: slug, workdir: workdir, runner: runner}
}

// FindPullRequest implements Repository.
func (g *GitHubTap) FindPullRequest(ctx context.Context, branch string) (*PullRequest, error) {
	out, err := g.gh(ctx, "", "pr", "list", "--head", branch, "--state", "open", "--json", "number,url,headRefName,state")
	if err != nil {
		return nil, err
	}
	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("decode gh pr list: %w", err)
	}
	for i := range prs {
		if prs[i].Branch == branch {
			return &prs[i], nil
		}
	}
	return nil, nil
}

// OpenPullRequest implements Repository. It clones the tap, commits the
// formula on a fresh branch from Base, pushes it and opens the pull request.
func (g *GitHubTap) OpenPullRequest(ctx context.Context, change Change) (*PullRequest, error) {
	root, err := os.MkdirTemp(g.workdir, "tap-*")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	defer os.RemoveAll(root)
	dir := filepath.Join(root, "tap")

	if err := g.push(ctx, dir, change); err != nil {
		return nil, err
	}

	url, err := g.gh(ctx, dir, "pr", "create",
		"--base", change.Base,
		"--head", change.Branch,
		"--title", change.Title,
		"--body", change.Body,
	)
	if err != nil {
		return nil, fmt.Errorf("open pull request: %w", err)
	}
	pr := &PullRequest{URL: lastLine(url), Branch: change.Branch, State: "OPEN"}

	if change.AutoMerge {
		if _, err := g.gh(ctx, dir, "pr", "merge", pr.URL, "--auto", "--squash"); err != nil {
			return pr, fmt.Errorf("enable auto-merge on %s: %w", pr.URL, err)
		}
		pr.AutoMerge = true
	}
	return pr, nil
}

// PushChange implements Repository.
func (g *GitHubTap) PushChange(ctx context.Context, change Change) error {
	root, err := os.MkdirTemp(g.workdir, "tap-*")
	if err != nil {
		return fmt.Errorf("create clone dir: %w", err)
	}
	defer os.RemoveAll(root)
	return g.push(ctx, filepath.Join(root, "tap"), change)
}

// push clones Base into dir and force-pushes one commit carrying the formula
// to the change's branch.
func (g *GitHubTap) push(ctx context.Context, dir string, change Change) error {
	if _, err := g.gh(ctx, "", "repo", "clone", g.slug, dir, "--", "--depth=1", "--branch", change.Base); err != nil {
		return fmt.Errorf("clone tap: %w", err)
	}
	if _, err := g.git(ctx, dir, "checkout", "-B", change.Branch); err != nil {
		return err
	}

	target := filepath.Join(dir, filepath.FromSlash(change.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create formula dir: %w", err)
	}
	if err := os.WriteFile(target, change.Content, 0644); err != nil {
		return fmt.Errorf("write formula: %w", err)
	}

	if _, err := g.git(ctx, dir, "add", "--", change.Path); err != nil {
		return err
	}
	status, err := g.git(ctx, dir, "status", "--porcelain", "--", change.Path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return ErrUpToDate
	}
	if _, err := g.git(ctx, dir, "commit", "--message", change.CommitMessage); err != nil {
		return err
	}
	// The branch name is derived from the version, so a leftover branch from
	// an earlier attempt is safe to replace.
	if _, err := g.git(ctx, dir, "push", "--force", "origin", change.Branch); err != nil {
		return err
	}
	return nil
}

func (g *GitHubTap) git(ctx context.Context, dir string, args ...string) (string, error) {
	return g.runner.Run(ctx, backend.Command{Dir: dir, Name: "git", Args: args})
}

func (g *GitHubTap) gh(ctx context.Context, dir string, args ...string) (string, error) {
	if args[0] != "repo" {
		args = append(args, "--repo", g.slug)
	}
	return g.runner.Run(ctx, backend.Command{Dir: dir, Name: "gh", Args: args})
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
