package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/keithhendry/dotty/internal/config"
)

func TestBackendRegistry(t *testing.T) {
	registry := NewRegistry()

	registry.RegisterLLM("mock", &mockLLMBackend{})

	retrieved, ok := registry.GetLLM("mock")
	if !ok || retrieved == nil {
		t.Error("failed to retrieve registered backend")
	}

	notFound, ok := registry.GetLLM("nonexistent")
	if ok || notFound != nil {
		t.Error("expected not found for non-existent backend")
	}
}

func TestDefaultLLM(t *testing.T) {
	registry := NewRegistry()

	registry.RegisterLLM("mock1", &mockLLMBackend{name: "mock1"})

	retrieved, ok := registry.GetLLM("")
	if !ok || retrieved.Name() != "mock1" {
		t.Fatalf("expected mock1 as default, got %v", retrieved)
	}

	registry.RegisterLLM("mock2", &mockLLMBackend{name: "mock2"})

	retrieved, _ = registry.GetLLM("")
	if retrieved.Name() != "mock1" {
		t.Errorf("first registered backend should stay default, got %s", retrieved.Name())
	}

	if diff := cmp.Diff([]string{"mock1", "mock2"}, registry.ListLLMBackends()); diff != "" {
		t.Errorf("ListLLMBackends() mismatch (-want +got):\n%s", diff)
	}
}

type mockLLMBackend struct {
	name string
}

func (m *mockLLMBackend) Generate(ctx context.Context, prompt, model string, maxTokens int) (string, error) {
	return "mock response", nil
}

func (m *mockLLMBackend) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

func (m *mockLLMBackend) Close() error { return nil }

func TestExecRunner(t *testing.T) {
	out, err := NewExecRunner().Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "hello\n" {
		t.Errorf("Run() = %q, want %q", out, "hello\n")
	}
}

func TestExecRunnerErrorIncludesStderr(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo nope >&2; exit 3"}})
	if err == nil {
		t.Fatal("expected error for failing command")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestExecRunnerEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	out, err := NewExecRunner().Run(context.Background(), Command{
		Dir:  dir,
		Name: "sh",
		Args: []string{"-c", "echo $RELEASE_TAG; pwd"},
		Env:  map[string]string{"RELEASE_TAG": "v2.5.0"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasPrefix(out, "v2.5.0\n") || !strings.Contains(out, dir) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOpenAIBackendGenerate(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  summary  "}}]}`))
	}))
	defer srv.Close()

	config.Reset()
	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, DefaultModel: "m", System: "be brief"})
	if err != nil {
		t.Fatalf("NewOpenAIBackend() error = %v", err)
	}

	out, err := b.Generate(context.Background(), "notes", "", 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "summary" {
		t.Errorf("Generate() = %q, want %q", out, "summary")
	}
	if got.Model != "m" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestOpenAIBackendTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"half"}}]}`))
	}))
	defer srv.Close()

	config.Reset()
	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Generate(context.Background(), "notes", "m", 10); !errors.Is(err, ErrTruncated) {
		t.Errorf("Generate() error = %v, want ErrTruncated", err)
	}
}

func TestOpenAIBackendRequiresKey(t *testing.T) {
	config.Reset()
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIBackend(OpenAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
	config.Reset()
}
