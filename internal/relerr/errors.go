// Package relerr defines the error taxonomy shared by every release stage.
//
// Each stage reports a typed error that carries its context (version, tag,
// platform) and the underlying collaborator error. The typed errors unwrap to
// a sentinel kind so callers can branch with errors.Is without depending on
// the concrete type.
package relerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrVersionResolution     = errors.New("version resolution failed")
	ErrDuplicateTag          = errors.New("tag already exists")
	ErrBuild                 = errors.New("build failed")
	ErrIncompleteArtifactSet = errors.New("incomplete artifact set")
	ErrPublish               = errors.New("publish failed")
	ErrFormulaUpdate         = errors.New("formula update failed")
	ErrNotTriggered          = errors.New("pipeline not triggered")
)

// VersionResolutionError reports an ambiguous history or a bad override.
type VersionResolutionError struct {
	Override string
	Latest   string
	Msg      string
	Err      error
}

func (e *VersionResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(ErrVersionResolution.Error())
	if e.Override != "" {
		fmt.Fprintf(&b, " (override %q)", e.Override)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *VersionResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrVersionResolution}
	}
	return []error{ErrVersionResolution, e.Err}
}

// DuplicateTagError is returned when the target tag is already present.
type DuplicateTagError struct {
	Tag    string
	Remote bool
}

func (e *DuplicateTagError) Error() string {
	where := "locally"
	if e.Remote {
		where = "on remote"
	}
	return fmt.Sprintf("%s: %s exists %s", ErrDuplicateTag, e.Tag, where)
}

func (e *DuplicateTagError) Unwrap() error { return ErrDuplicateTag }

// BuildError is the failure of a single platform build.
type BuildError struct {
	Platform string
	Step     string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("build %s: %v", e.Platform, e.Err)
	}
	return fmt.Sprintf("build %s: %s: %v", e.Platform, e.Step, e.Err)
}

func (e *BuildError) Unwrap() []error { return []error{ErrBuild, e.Err} }

// IncompleteArtifactSetError is raised by the release join when any configured
// platform lacks a successful artifact.
type IncompleteArtifactSetError struct {
	Expected int
	Missing  []string
	Failed   map[string]error
}

func (e *IncompleteArtifactSetError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Failed) > 0 {
		names := make([]string, 0, len(e.Failed))
		for p := range e.Failed {
			names = append(names, p)
		}
		sort.Strings(names)
		parts = append(parts, "failed "+strings.Join(names, ", "))
	}
	return fmt.Sprintf("%s (%d expected): %s", ErrIncompleteArtifactSet, e.Expected, strings.Join(parts, "; "))
}

func (e *IncompleteArtifactSetError) Unwrap() error { return ErrIncompleteArtifactSet }

// PublishError wraps a rejected release creation.
type PublishError struct {
	Tag string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrPublish, e.Tag, e.Err)
}

func (e *PublishError) Unwrap() []error { return []error{ErrPublish, e.Err} }

// FormulaUpdateError wraps a failure to open the downstream formula PR.
type FormulaUpdateError struct {
	Branch string
	Err    error
}

func (e *FormulaUpdateError) Error() string {
	return fmt.Sprintf("%s on branch %s: %v", ErrFormulaUpdate, e.Branch, e.Err)
}

func (e *FormulaUpdateError) Unwrap() []error { return []error{ErrFormulaUpdate, e.Err} }

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }
