package formula

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/relerr"
)

// Settings are the formula inputs that do not change between releases.
type Settings struct {
	Binary      string
	Owner       string
	Repo        string
	Path        string
	Base        string
	AutoMerge   bool
	Description string
	Homepage    string
	License     string
	URLTemplate string
}

// SettingsFrom extracts formula settings from the release configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Binary:      cfg.Binary,
		Owner:       cfg.Repository.Owner,
		Repo:        cfg.Repository.Name,
		Path:        cfg.Formula.Path,
		Base:        cfg.Formula.BaseBranch,
		AutoMerge:   cfg.Formula.AutoMerge,
		Description: cfg.Formula.Description,
		Homepage:    cfg.Formula.Homepage,
		License:     cfg.Formula.License,
		URLTemplate: cfg.Formula.URLTemplate,
	}
}

// Branch returns the tap branch used for version.
func Branch(binary, version string) string {
	return binary + "-" + strings.TrimPrefix(version, "v")
}

// Result describes what the updater did.
type Result struct {
	Branch      string
	PullRequest *PullRequest
	// Reused is set when an open pull request for the branch already existed.
	Reused   bool
	UpToDate bool
	Formula  []byte
}

// Updater renders the formula and proposes it to the tap.
type Updater struct {
	repo     Repository
	settings Settings
	logger   *slog.Logger
}

// NewUpdater creates an Updater.
func NewUpdater(repo Repository, settings Settings) *Updater {
	return &Updater{repo: repo, settings: settings, logger: logging.New("formula")}
}

// Build renders the formula for the given release artifacts.
func (u *Updater) Build(version, tag string, arts []artifact.Artifact) ([]byte, error) {
	downloads, err := Downloads(u.settings.URLTemplate, URLData{
		Owner:   u.settings.Owner,
		Repo:    u.settings.Repo,
		Tag:     tag,
		Version: version,
	}, arts)
	if err != nil {
		return nil, err
	}
	return Render(Spec{
		Binary:      u.settings.Binary,
		Version:     version,
		Description: u.settings.Description,
		Homepage:    u.settings.Homepage,
		License:     u.settings.License,
		Downloads:   downloads,
	})
}

// Update opens (or reuses) the pull request moving the tap to version.
// Every failure is a FormulaUpdateError.
func (u *Updater) Update(ctx context.Context, version, tag string, arts []artifact.Artifact) (*Result, error) {
	branch := Branch(u.settings.Binary, version)
	logger := u.logger.With("branch", branch, "version", version)
	fail := func(err error) (*Result, error) {
		logger.Error("formula update failed", "error", err)
		return nil, &relerr.FormulaUpdateError{Branch: branch, Err: err}
	}

	content, err := u.Build(version, tag, arts)
	if err != nil {
		return fail(err)
	}
	res := &Result{Branch: branch, Formula: content}

	change := Change{
		Branch:        branch,
		Base:          u.settings.Base,
		Path:          u.settings.Path,
		Content:       content,
		CommitMessage: fmt.Sprintf("%s %s", u.settings.Binary, version),
		Title:         fmt.Sprintf("%s %s", u.settings.Binary, version),
		Body:          pullRequestBody(tag, arts),
		AutoMerge:     u.settings.AutoMerge,
	}

	existing, err := u.repo.FindPullRequest(ctx, branch)
	if err != nil {
		return fail(fmt.Errorf("look up pull request: %w", err))
	}
	if existing != nil {
		// The open pull request may carry an earlier render; replace it.
		switch err := u.repo.PushChange(ctx, change); {
		case errors.Is(err, ErrUpToDate):
			res.UpToDate = true
		case err != nil:
			return fail(fmt.Errorf("refresh %s: %w", existing.URL, err))
		}
		logger.Info("pull request already open, branch refreshed", "url", existing.URL)
		res.PullRequest, res.Reused = existing, true
		return res, nil
	}

	pr, err := u.repo.OpenPullRequest(ctx, change)
	switch {
	case errors.Is(err, ErrUpToDate):
		logger.Info("tap already carries this formula")
		res.UpToDate = true
		return res, nil
	case err != nil:
		return fail(err)
	}

	logger.Info("pull request opened", "url", pr.URL, "auto_merge", pr.AutoMerge)
	res.PullRequest = pr
	return res, nil
}

func pullRequestBody(tag string, arts []artifact.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Update formula to %s.\n\n| Archive | SHA-256 |\n|---|---|\n", tag)
	for _, a := range arts {
		fmt.Fprintf(&b, "| `%s` | `%s` |\n", a.Name, a.SHA256)
	}
	return b.String()
}
