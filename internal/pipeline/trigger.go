package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/version"
)

// Kind is how a run was started.
type Kind string

const (
	KindManual Kind = "manual"
	KindMerge  Kind = "merge"
)

// ParseKind parses a trigger kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindManual, "":
		return KindManual, nil
	case KindMerge:
		return KindMerge, nil
	default:
		return "", fmt.Errorf("unknown trigger %q (want manual or merge)", s)
	}
}

// Trigger is the event that asked for a release.
type Trigger struct {
	Kind     Kind
	Override string
	// Labels are the labels of the merged pull request.
	Labels []string
	// Merged is false for a pull request closed without merging.
	Merged      bool
	PullRequest int
	Ref         string
}

// Manual returns a manual trigger with an optional version override.
func Manual(override string) Trigger {
	return Trigger{Kind: KindManual, Override: override}
}

// Merge returns a trigger for a merged pull request carrying labels.
func Merge(labels ...string) Trigger {
	return Trigger{Kind: KindMerge, Labels: labels, Merged: true}
}

// Check returns ErrNotTriggered when a merge event should not start a
// release: the pull request was not merged or lacks the designated label.
// Manual triggers always pass.
func (t Trigger) Check(label string) error {
	if t.Kind != KindMerge {
		return nil
	}
	if !t.Merged {
		return fmt.Errorf("%w: pull request #%d closed without merging", relerr.ErrNotTriggered, t.PullRequest)
	}
	if label == "" || t.HasLabel(label) || t.bumpLabel(label) != "" {
		return nil
	}
	return fmt.Errorf("%w: merge is not labelled %q", relerr.ErrNotTriggered, label)
}

// HasLabel reports whether the trigger carries name, ignoring case.
func (t Trigger) HasLabel(name string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(strings.TrimSpace(l), name) {
			return true
		}
	}
	return false
}

// Bump returns the increment forced by "<label>:major|minor|patch" labels on
// a merge, e.g. "release:minor". With several bump labels the largest wins.
func (t Trigger) Bump(label string) (version.Bump, error) {
	if t.Kind != KindMerge || label == "" {
		return version.BumpNone, nil
	}
	prefix := strings.ToLower(label) + ":"
	bump := version.BumpNone
	for _, l := range t.Labels {
		name, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(l)), prefix)
		if !ok {
			continue
		}
		b, ok := version.ParseBump(name)
		if !ok {
			return version.BumpNone, fmt.Errorf("label %q is not a release bump (want major, minor or patch)", l)
		}
		if b > bump {
			bump = b
		}
	}
	return bump, nil
}

func (t Trigger) bumpLabel(label string) string {
	if label == "" {
		return ""
	}
	prefix := strings.ToLower(label) + ":"
	for _, l := range t.Labels {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(l)), prefix) {
			return l
		}
	}
	return ""
}

// githubEvent is the subset of a GitHub Actions event payload we read.
type githubEvent struct {
	Action string `json:"action"`
	Ref    string `json:"ref"`
	Inputs struct {
		Version string `json:"version"`
	} `json:"inputs"`
	PullRequest *struct {
		Number int  `json:"number"`
		Merged bool `json:"merged"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// FromGitHubEvent decodes the event payload GitHub Actions writes to
// GITHUB_EVENT_PATH. A pull_request payload becomes a merge trigger; any
// other payload (workflow_dispatch, push) is manual, using inputs.version as
// the override.
func FromGitHubEvent(path string) (Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Trigger{}, fmt.Errorf("read event payload: %w", err)
	}
	var ev githubEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Trigger{}, fmt.Errorf("decode event payload: %w", err)
	}

	if pr := ev.PullRequest; pr != nil {
		t := Trigger{Kind: KindMerge, Merged: pr.Merged, PullRequest: pr.Number, Ref: pr.Base.Ref}
		for _, l := range pr.Labels {
			t.Labels = append(t.Labels, l.Name)
		}
		return t, nil
	}
	return Trigger{Kind: KindManual, Override: strings.TrimSpace(ev.Inputs.Version), Ref: ev.Ref}, nil
}

func (t Trigger) String() string {
	switch {
	case t.Kind == KindMerge && t.PullRequest > 0:
		return fmt.Sprintf("merge of #%d", t.PullRequest)
	case t.Kind == KindMerge:
		return "merge"
	case t.Override != "":
		return "manual (" + t.Override + ")"
	default:
		return "manual"
	}
}
