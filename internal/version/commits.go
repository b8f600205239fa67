package version

import (
	"regexp"
	"strings"

	"github.com/keithhendry/dotty/internal/vcs"
)

// Bump is a semantic-version increment.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// ParseBump parses "major", "minor" or "patch".
func ParseBump(s string) (Bump, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major":
		return BumpMajor, true
	case "minor":
		return BumpMinor, true
	case "patch":
		return BumpPatch, true
	default:
		return BumpNone, false
	}
}

// Conventional is a parsed conventional-commit header.
type Conventional struct {
	Type        string
	Scope       string
	Breaking    bool
	Description string
}

var headerRE = regexp.MustCompile(`^([a-zA-Z]+)(?:\(([^)]*)\))?(!)?:\s*(.+)$`)

// ParseCommit parses the conventional-commit header of c. ok is false when the
// subject does not follow the convention.
func ParseCommit(c vcs.Commit) (Conventional, bool) {
	m := headerRE.FindStringSubmatch(strings.TrimSpace(c.Subject))
	if m == nil {
		return Conventional{}, false
	}
	conv := Conventional{
		Type:        strings.ToLower(m[1]),
		Scope:       m[2],
		Breaking:    m[3] == "!",
		Description: strings.TrimSpace(m[4]),
	}
	if hasBreakingFooter(c.Body) {
		conv.Breaking = true
	}
	return conv, true
}

func hasBreakingFooter(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "BREAKING CHANGE:") || strings.HasPrefix(line, "BREAKING-CHANGE:") {
			return true
		}
	}
	return false
}

// Classify returns the increment a single commit asks for.
func Classify(c vcs.Commit) Bump {
	conv, ok := ParseCommit(c)
	if !ok {
		return BumpNone
	}
	if conv.Breaking {
		return BumpMajor
	}
	switch conv.Type {
	case "feat":
		return BumpMinor
	case "fix", "perf":
		return BumpPatch
	default:
		return BumpNone
	}
}

// Infer returns the highest increment requested by commits.
func Infer(commits []vcs.Commit) Bump {
	bump := BumpNone
	for _, c := range commits {
		if b := Classify(c); b > bump {
			bump = b
			if bump == BumpMajor {
				break
			}
		}
	}
	return bump
}
