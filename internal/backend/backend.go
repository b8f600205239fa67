// Package backend defines the process and language-model backends the release
// collaborators are built on. Command execution goes through CommandRunner so
// git, gh and cargo invocations can be replaced in tests.
package backend

import (
	"context"
	"sort"
)

// LLMBackend is the interface for language model backends used to summarise
// release notes.
type LLMBackend interface {
	// Generate produces a completion for the given prompt.
	// model specifies which model to use (interpretation is backend-specific).
	// maxTokens limits the response length (0 means use backend default).
	Generate(ctx context.Context, prompt string, model string, maxTokens int) (string, error)

	// Name returns a human-readable name for the backend.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Command is a single external program invocation.
type Command struct {
	// Dir is the working directory. Empty means the current directory.
	Dir  string
	Name string
	Args []string
	// Env holds extra variables appended to the parent environment.
	Env map[string]string
}

// CommandRunner executes external programs.
type CommandRunner interface {
	// Run executes cmd and returns its standard output. A non-zero exit is an
	// error that includes the trimmed standard error.
	Run(ctx context.Context, cmd Command) (string, error)
}

// Registry manages available LLM backends and allows lookup by name.
type Registry struct {
	llmBackends map[string]LLMBackend
	defaultLLM  string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		llmBackends: make(map[string]LLMBackend),
	}
}

// RegisterLLM adds an LLM backend to the registry.
func (r *Registry) RegisterLLM(name string, backend LLMBackend) {
	r.llmBackends[name] = backend
	if r.defaultLLM == "" {
		r.defaultLLM = name
	}
}

// GetLLM returns an LLM backend by name, or the default if name is empty.
func (r *Registry) GetLLM(name string) (LLMBackend, bool) {
	if name == "" {
		name = r.defaultLLM
	}
	b, ok := r.llmBackends[name]
	return b, ok
}

// Close releases all backend resources.
func (r *Registry) Close() error {
	for _, b := range r.llmBackends {
		if err := b.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ListLLMBackends returns names of all registered LLM backends, sorted.
func (r *Registry) ListLLMBackends() []string {
	names := make([]string, 0, len(r.llmBackends))
	for name := range r.llmBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
