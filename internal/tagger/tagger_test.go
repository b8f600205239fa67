package tagger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/keithhendry/dotty/internal/relerr"
	"github.com/keithhendry/dotty/internal/tagger"
	"github.com/keithhendry/dotty/internal/vcs"
)

type fakeTags struct {
	local   map[string]string
	remote  map[string]string
	pushErr error
	creates int
	deletes int
}

func newFakeTags() *fakeTags {
	return &fakeTags{local: map[string]string{}, remote: map[string]string{}}
}

func (f *fakeTags) ListTags(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeTags) TagExists(ctx context.Context, name string) (bool, bool, error) {
	_, l := f.local[name]
	_, r := f.remote[name]
	return l, r, nil
}

func (f *fakeTags) HeadCommit(ctx context.Context) (string, error) { return "deadbeef", nil }

func (f *fakeTags) CreateTag(ctx context.Context, name, commit, message string) error {
	if _, ok := f.local[name]; ok {
		return vcs.ErrTagExists
	}
	f.creates++
	f.local[name] = commit
	return nil
}

func (f *fakeTags) DeleteTag(ctx context.Context, name string) error {
	f.deletes++
	delete(f.local, name)
	return nil
}

func (f *fakeTags) Push(ctx context.Context, ref string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.remote[ref] = f.local[ref]
	return nil
}

func TestPublish(t *testing.T) {
	tags := newFakeTags()
	tag, err := tagger.NewPublisher(tags).Publish(context.Background(), "v2.5.0", "Release v2.5.0")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if tag.Name != "v2.5.0" || tag.Commit != "deadbeef" {
		t.Errorf("Publish() = %+v", tag)
	}
	if tags.remote["v2.5.0"] != "deadbeef" {
		t.Error("tag was not pushed")
	}
}

func TestPublishTwiceIsDuplicate(t *testing.T) {
	tags := newFakeTags()
	p := tagger.NewPublisher(tags)
	ctx := context.Background()

	if _, err := p.Publish(ctx, "v2.5.0", "first"); err != nil {
		t.Fatal(err)
	}
	_, err := p.Publish(ctx, "v2.5.0", "second")
	if !errors.Is(err, relerr.ErrDuplicateTag) {
		t.Fatalf("second Publish() error = %v, want DuplicateTag", err)
	}
	if tags.creates != 1 {
		t.Errorf("second Publish() mutated tags: %d creates", tags.creates)
	}
}

func TestPublishRemoteOnlyDuplicate(t *testing.T) {
	tags := newFakeTags()
	tags.remote["v2.5.0"] = "cafe"

	_, err := tagger.NewPublisher(tags).Publish(context.Background(), "v2.5.0", "m")
	var dup *relerr.DuplicateTagError
	if !errors.As(err, &dup) || !dup.Remote {
		t.Fatalf("Publish() error = %v, want remote DuplicateTagError", err)
	}
	if tags.creates != 0 {
		t.Error("no tag should be created")
	}
}

func TestPublishPushFailureRollsBack(t *testing.T) {
	tags := newFakeTags()
	tags.pushErr = errors.New("permission denied")

	_, err := tagger.NewPublisher(tags).Publish(context.Background(), "v2.5.0", "m")
	if err == nil || errors.Is(err, relerr.ErrDuplicateTag) {
		t.Fatalf("Publish() error = %v, want push failure", err)
	}
	if _, ok := tags.local["v2.5.0"]; ok {
		t.Error("local tag should be rolled back after failed push")
	}
	if tags.deletes != 1 {
		t.Errorf("expected one delete, got %d", tags.deletes)
	}
}
