package formula_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/backend"
	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/formula"
	"github.com/keithhendry/dotty/internal/platform"
	"github.com/keithhendry/dotty/internal/relerr"
	releasetesting "github.com/keithhendry/dotty/internal/testing"
)

func arts() []artifact.Artifact {
	return []artifact.Artifact{
		{Platform: platform.LinuxAMD64, Name: "dotty-2.5.0-linux-amd64.tar.gz", SHA256: "cc"},
		{Platform: platform.DarwinAMD64, Name: "dotty-2.5.0-darwin-amd64.tar.gz", SHA256: "bb"},
		{Platform: platform.DarwinARM64, Name: "dotty-2.5.0-darwin-arm64.tar.gz", SHA256: "aa"},
	}
}

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"dotty":     "Dotty",
		"dotty-cli": "DottyCli",
		"my_tool.x": "MyToolX",
	}
	for in, want := range tests {
		if got := formula.ClassName(in); got != want {
			t.Errorf("ClassName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	got, err := formula.DownloadURL(config.DefaultURLTemplate, formula.URLData{
		Owner: "keithhendry", Repo: "dotty", Tag: "v2.5.0", Archive: "dotty-2.5.0-darwin-arm64.tar.gz",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "https://github.com/keithhendry/dotty/releases/download/v2.5.0/dotty-2.5.0-darwin-arm64.tar.gz"
	if got != want {
		t.Errorf("DownloadURL() = %q, want %q", got, want)
	}

	if _, err := formula.DownloadURL("{{.Nope}}", formula.URLData{}); err == nil {
		t.Error("expected error for unknown template field")
	}
}

func TestRender(t *testing.T) {
	u := formula.NewUpdater(releasetesting.NewFakeTap(), formula.Settings{
		Binary:      "dotty",
		Owner:       "keithhendry",
		Repo:        "dotty",
		Description: "Dotfile manager",
		Homepage:    "https://github.com/keithhendry/dotty",
		License:     "MIT",
		URLTemplate: config.DefaultURLTemplate,
	})
	got, err := u.Build("2.5.0", "v2.5.0", arts())
	if err != nil {
		t.Fatal(err)
	}

	base := "https://github.com/keithhendry/dotty/releases/download/v2.5.0/"
	want := `class Dotty < Formula
  desc "Dotfile manager"
  homepage "https://github.com/keithhendry/dotty"
  version "2.5.0"
  license "MIT"

  on_macos do
    on_arm do
      url "` + base + `dotty-2.5.0-darwin-arm64.tar.gz"
      sha256 "aa"
    end
    on_intel do
      url "` + base + `dotty-2.5.0-darwin-amd64.tar.gz"
      sha256 "bb"
    end
  end

  on_linux do
    on_intel do
      url "` + base + `dotty-2.5.0-linux-amd64.tar.gz"
      sha256 "cc"
    end
  end

  def install
    bin.install "dotty"
  end

  test do
    system "#{bin}/dotty", "--version"
  end
end
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("formula mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderRejectsIncompleteDownload(t *testing.T) {
	_, err := formula.Render(formula.Spec{
		Binary:    "dotty",
		Version:   "2.5.0",
		Downloads: []formula.Download{{Platform: platform.LinuxAMD64, URL: "https://x"}},
	})
	if err == nil {
		t.Error("expected error for download without sha256")
	}
}

func settings() formula.Settings {
	cfg := config.NewConfig()
	return formula.SettingsFrom(cfg)
}

func TestUpdateOpensPullRequest(t *testing.T) {
	tap := releasetesting.NewFakeTap()
	u := formula.NewUpdater(tap, settings())

	res, err := u.Update(context.Background(), "2.5.0", "v2.5.0", arts())
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Branch != "dotty-2.5.0" || res.PullRequest == nil || res.Reused {
		t.Errorf("unexpected result %+v", res)
	}
	if len(tap.Opened) != 1 {
		t.Fatalf("opened %d pull requests, want 1", len(tap.Opened))
	}
	change := tap.Opened[0]
	if change.Path != config.DefaultFormulaPath || change.Base != "main" || !change.AutoMerge {
		t.Errorf("unexpected change %+v", change)
	}
	for _, a := range arts() {
		if !strings.Contains(string(change.Content), a.Name) || !strings.Contains(change.Body, a.Name) {
			t.Errorf("pull request does not reference %s", a.Name)
		}
	}
}

func TestUpdateReusesOpenPullRequest(t *testing.T) {
	tap := releasetesting.NewFakeTap()
	tap.PRs["dotty-2.5.0"] = &formula.PullRequest{Number: 7, URL: "https://github.com/keithhendry/homebrew-tap/pull/7", Branch: "dotty-2.5.0"}
	u := formula.NewUpdater(tap, settings())

	res, err := u.Update(context.Background(), "2.5.0", "v2.5.0", arts())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reused || res.PullRequest.Number != 7 {
		t.Errorf("expected reuse of #7, got %+v", res)
	}
	if len(tap.Opened) != 0 {
		t.Error("a duplicate pull request was opened")
	}
	if len(tap.Pushed) != 1 {
		t.Fatalf("pushed %d changes onto the open pull request, want 1", len(tap.Pushed))
	}
	if diff := cmp.Diff(string(res.Formula), string(tap.Pushed[0].Content)); diff != "" {
		t.Errorf("open pull request not refreshed with the new formula (-want +got):\n%s", diff)
	}
}

func TestUpdateReuseRefreshFailure(t *testing.T) {
	tap := releasetesting.NewFakeTap()
	tap.PRs["dotty-2.5.0"] = &formula.PullRequest{Number: 7, URL: "https://github.com/keithhendry/homebrew-tap/pull/7", Branch: "dotty-2.5.0"}
	tap.PushErr = errors.New("remote rejected")
	u := formula.NewUpdater(tap, settings())

	_, err := u.Update(context.Background(), "2.5.0", "v2.5.0", arts())
	if !errors.Is(err, relerr.ErrFormulaUpdate) || !errors.Is(err, tap.PushErr) {
		t.Errorf("expected FormulaUpdateError wrapping the push error, got %v", err)
	}
}

func TestUpdateFailureIsTyped(t *testing.T) {
	tap := releasetesting.NewFakeTap()
	tap.OpenErr = errors.New("HTTP 403: Resource not accessible by integration")
	u := formula.NewUpdater(tap, settings())

	_, err := u.Update(context.Background(), "2.5.0", "v2.5.0", arts())

	var fe *relerr.FormulaUpdateError
	if !errors.As(err, &fe) || fe.Branch != "dotty-2.5.0" {
		t.Fatalf("expected FormulaUpdateError, got %v", err)
	}
	if !errors.Is(err, tap.OpenErr) {
		t.Error("collaborator error not preserved")
	}
}

// recordingRunner answers gh and git calls with canned output.
type recordingRunner struct {
	calls  []backend.Command
	output map[string]string
	fail   map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, c backend.Command) (string, error) {
	r.calls = append(r.calls, c)
	key := c.Name + " " + c.Args[0]
	if len(c.Args) > 1 {
		key += " " + c.Args[1]
	}
	return r.output[key], r.fail[key]
}

func (r *recordingRunner) find(prefix string) *backend.Command {
	for i := range r.calls {
		line := r.calls[i].Name + " " + strings.Join(r.calls[i].Args, " ")
		if strings.HasPrefix(line, prefix) {
			return &r.calls[i]
		}
	}
	return nil
}

func TestGitHubTapOpenPullRequest(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{
		"git status --porcelain": "M  Formula/dotty.rb\n",
		"gh pr create": "Creating pull request\nhttps://github.com/keithhendry/homebrew-tap/pull/3\n",
	}}
	tap := formula.NewGitHubTap("keithhendry/homebrew-tap", t.TempDir(), runner)

	pr, err := tap.OpenPullRequest(context.Background(), formula.Change{
		Branch: "dotty-2.5.0", Base: "main", Path: "Formula/dotty.rb",
		Content: []byte("class Dotty < Formula\nend\n"), CommitMessage: "dotty 2.5.0",
		Title: "dotty 2.5.0", Body: "body", AutoMerge: true,
	})
	if err != nil {
		t.Fatalf("OpenPullRequest() error = %v", err)
	}
	if pr.URL != "https://github.com/keithhendry/homebrew-tap/pull/3" || !pr.AutoMerge {
		t.Errorf("unexpected pull request %+v", pr)
	}

	for _, prefix := range []string{
		"gh repo clone keithhendry/homebrew-tap",
		"git checkout -B dotty-2.5.0",
		"git push --force origin dotty-2.5.0",
		"gh pr create --base main --head dotty-2.5.0",
		"gh pr merge https://github.com/keithhendry/homebrew-tap/pull/3 --auto --squash --repo keithhendry/homebrew-tap",
	} {
		if runner.find(prefix) == nil {
			t.Errorf("missing command %q", prefix)
		}
	}

	checkout := runner.find("git checkout")
	if _, err := os.Stat(checkout.Dir); !os.IsNotExist(err) {
		t.Errorf("clone dir %s not cleaned up", checkout.Dir)
	}
	if filepath.Base(checkout.Dir) != "tap" {
		t.Errorf("git ran in %s", checkout.Dir)
	}
}

func TestGitHubTapUpToDate(t *testing.T) {
	runner := &recordingRunner{}
	tap := formula.NewGitHubTap("keithhendry/homebrew-tap", t.TempDir(), runner)

	_, err := tap.OpenPullRequest(context.Background(), formula.Change{Branch: "dotty-2.5.0", Base: "main", Path: "Formula/dotty.rb"})
	if !errors.Is(err, formula.ErrUpToDate) {
		t.Errorf("expected ErrUpToDate, got %v", err)
	}
	if runner.find("gh pr create") != nil {
		t.Error("pull request opened with no change")
	}
}

func TestGitHubTapPushChange(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{
		"git status --porcelain": "M  Formula/dotty.rb\n",
	}}
	tap := formula.NewGitHubTap("keithhendry/homebrew-tap", t.TempDir(), runner)

	err := tap.PushChange(context.Background(), formula.Change{
		Branch: "dotty-2.5.0", Base: "main", Path: "Formula/dotty.rb",
		Content: []byte("class Dotty < Formula\nend\n"), CommitMessage: "dotty 2.5.0",
	})
	if err != nil {
		t.Fatalf("PushChange() error = %v", err)
	}
	if runner.find("git push --force origin dotty-2.5.0") == nil {
		t.Error("branch not force-pushed")
	}
	if runner.find("gh pr create") != nil {
		t.Error("PushChange must not open a pull request")
	}
}

func TestGitHubTapFindPullRequest(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{
		"gh pr list": `[{"number":4,"url":"https://github.com/keithhendry/homebrew-tap/pull/4","headRefName":"dotty-2.5.0","state":"OPEN"}]`,
	}}
	tap := formula.NewGitHubTap("keithhendry/homebrew-tap", "", runner)

	pr, err := tap.FindPullRequest(context.Background(), "dotty-2.5.0")
	if err != nil {
		t.Fatal(err)
	}
	if pr == nil || pr.Number != 4 {
		t.Errorf("FindPullRequest() = %+v", pr)
	}

	runner.output["gh pr list"] = "[]"
	pr, err = tap.FindPullRequest(context.Background(), "dotty-2.5.0")
	if err != nil || pr != nil {
		t.Errorf("FindPullRequest() = %+v, %v; want nil, nil", pr, err)
	}
}
