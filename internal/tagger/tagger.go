// Package tagger publishes the release tag. A pushed tag is the only signal
// downstream stages act on, so publishing is guarded against duplicates.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/vcs"
)

// Tag is a pushed release tag.
type Tag struct {
	Name   string
	Commit string
}

// Publisher creates and pushes release tags.
type Publisher struct {
	tags   vcs.Tags
	logger *slog.Logger
}

// NewPublisher creates a Publisher over the given tag collaborator.
func NewPublisher(tags vcs.Tags) *Publisher {
	return &Publisher{tags: tags, logger: logging.New("tagger")}
}

// Publish tags the current HEAD as name and pushes it. If the tag exists
// locally or on the remote it returns a DuplicateTagError without mutating
// anything. A failed push removes the local tag again.
func (p *Publisher) Publish(ctx context.Context, name, message string) (*Tag, error) {
	local, remote, err := p.tags.TagExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking tag %s: %w", name, err)
	}
	if local || remote {
		return nil, &relerr.DuplicateTagError{Tag: name, Remote: remote}
	}

	commit, err := p.tags.HeadCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	if err := p.tags.CreateTag(ctx, name, commit, message); err != nil {
		if errors.Is(err, vcs.ErrTagExists) {
			return nil, &relerr.DuplicateTagError{Tag: name}
		}
		return nil, fmt.Errorf("creating tag %s: %w", name, err)
	}

	if err := p.tags.Push(ctx, name); err != nil {
		if derr := p.tags.DeleteTag(ctx, name); derr != nil {
			p.logger.Error("failed to roll back local tag", "tag", name, "error", derr)
		}
		return nil, fmt.Errorf("pushing tag %s: %w", name, err)
	}

	p.logger.Info("tag published", "tag", name, "commit", commit)
	return &Tag{Name: name, Commit: commit}, nil
}
