// Package vcs is the version-control collaborator used by the release
// pipeline: tags, history, pushes and hosted releases.
package vcs

import (
	"context"
	"errors"
	"time"
)

// ErrTagExists is returned by CreateTag when the tag name is already taken.
var ErrTagExists = errors.New("tag already exists")

// ErrReleaseNotFound is returned by FindRelease when no release exists for a tag.
var ErrReleaseNotFound = errors.New("release not found")

// Commit is a single entry of repository history.
type Commit struct {
	Hash    string
	Subject string
	Body    string
	Author  string
}

// Asset is a file attached to a hosted release.
type Asset struct {
	Name string
	Path string
}

// ReleaseSpec describes a release to create.
type ReleaseSpec struct {
	Tag    string
	Title  string
	Notes  string
	Assets []Asset
	// Latest marks the release as the authoritative one for the repository.
	Latest     bool
	Prerelease bool
}

// Release is a published release as reported by the hosting service.
type Release struct {
	Tag        string
	Title      string
	Notes      string
	URL        string
	Assets     []string
	Prerelease bool
	CreatedAt  time.Time
}

// Tags reads and writes repository tags.
type Tags interface {
	ListTags(ctx context.Context) ([]string, error)
	// TagExists reports whether name exists locally and on the remote.
	TagExists(ctx context.Context, name string) (local, remote bool, err error)
	HeadCommit(ctx context.Context) (string, error)
	CreateTag(ctx context.Context, name, commit, message string) error
	DeleteTag(ctx context.Context, name string) error
	Push(ctx context.Context, ref string) error
}

// History reads commit history.
type History interface {
	// Log returns commits reachable from HEAD but not from since, newest first.
	// An empty since returns the full history.
	Log(ctx context.Context, since string) ([]Commit, error)
}

// Releases reads and creates hosted releases.
type Releases interface {
	FindRelease(ctx context.Context, tag string) (*Release, error)
	CreateRelease(ctx context.Context, spec ReleaseSpec) (*Release, error)
}

// VCS is the full collaborator surface.
type VCS interface {
	Tags
	History
	Releases
}
