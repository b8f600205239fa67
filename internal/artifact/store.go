package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/keithhendry/dotty/internal/platform"
)

var (
	ErrAlreadyRegistered = errors.New("artifact already registered")
	ErrNotFound          = errors.New("artifact not found")
	ErrConsumed          = errors.New("artifact already consumed")
)

// Store is the directory the build matrix writes archives into. Each
// platform's archive lives at a path derived from (binary, version, platform)
// alone, so readers need nothing beyond the platform to find it.
type Store struct {
	dir     string
	binary  string
	version string

	mu         sync.Mutex
	registered map[platform.Platform]Artifact
	consumed   map[platform.Platform]bool
}

// NewStore creates the store directory for one release.
func NewStore(dir, binary, version string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{
		dir:        dir,
		binary:     binary,
		version:    version,
		registered: make(map[platform.Platform]Artifact),
		consumed:   make(map[platform.Platform]bool),
	}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the archive for p is written.
func (s *Store) Path(p platform.Platform) string {
	return filepath.Join(s.dir, ArchiveName(s.binary, s.version, p))
}

// Register records the archive already written at Path(p). Registering a
// platform twice is an error.
func (s *Store) Register(p platform.Platform) (Artifact, error) {
	a, err := s.describe(p)
	if err != nil {
		return Artifact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registered[p]; ok {
		return Artifact{}, fmt.Errorf("%s: %w", p, ErrAlreadyRegistered)
	}
	s.registered[p] = a
	return a, nil
}

// Locate finds the archive for p on disk without consulting the registry.
func (s *Store) Locate(p platform.Platform) (Artifact, error) {
	return s.describe(p)
}

// Consume hands the archive for p to its single consumer. It must have been
// registered, still be on disk with the registered digest, and not consumed
// before.
func (s *Store) Consume(p platform.Platform) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registered[p]
	if !ok {
		return Artifact{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if s.consumed[p] {
		return Artifact{}, fmt.Errorf("%s: %w", p, ErrConsumed)
	}
	onDisk, err := s.describe(p)
	if err != nil {
		return Artifact{}, err
	}
	if onDisk.SHA256 != reg.SHA256 {
		return Artifact{}, fmt.Errorf("%s: archive changed after registration", p)
	}
	s.consumed[p] = true
	return onDisk, nil
}

// Discard deletes every archive the store knows about.
func (s *Store) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for p := range s.registered {
		if err := os.Remove(s.Path(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.registered = make(map[platform.Platform]Artifact)
	s.consumed = make(map[platform.Platform]bool)
	return errors.Join(errs...)
}

func (s *Store) describe(p platform.Platform) (Artifact, error) {
	path := s.Path(p)
	sum, size, err := Digest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
		}
		return Artifact{}, fmt.Errorf("digest %s: %w", path, err)
	}
	return Artifact{
		Platform: p,
		Name:     filepath.Base(path),
		Path:     path,
		SHA256:   sum,
		Size:     size,
	}, nil
}
