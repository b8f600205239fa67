// Package config provides centralized configuration management for dotty-release.
// It merges a release.yaml file over built-in defaults and then applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/keithhendry/dotty/internal/platform"
)

// Config holds all configuration settings for a release pipeline run.
type Config struct {
	// Build settings
	Binary      string              `yaml:"binary"`
	Source      string              `yaml:"source"`
	Manifest    string              `yaml:"manifest"`
	Dist        string              `yaml:"dist"`
	Parallelism int                 `yaml:"parallelism"`
	Platforms   []platform.Platform `yaml:"platforms"`

	// Versioning settings
	TagPrefix string `yaml:"tag_prefix"`

	Repository Repository `yaml:"repository"`
	Trigger    Trigger    `yaml:"trigger"`
	Notes      Notes      `yaml:"notes"`
	Formula    Formula    `yaml:"formula"`

	// Ledger is the sqlite database recording pipeline runs. Empty disables it.
	Ledger string `yaml:"ledger"`

	// Environment-only settings
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"-"`
	OpenAIModel   string `yaml:"-"`
	Verbose       bool   `yaml:"-"`
	LogFormat     string `yaml:"-"`
}

// Repository identifies the source repository being released.
type Repository struct {
	Owner         string `yaml:"owner"`
	Name          string `yaml:"name"`
	Remote        string `yaml:"remote"`
	DefaultBranch string `yaml:"default_branch"`
}

// Slug returns "owner/name".
func (r Repository) Slug() string { return r.Owner + "/" + r.Name }

// Trigger configures which merge events start a release.
type Trigger struct {
	Label string `yaml:"label"`
}

// Notes configures release-note generation.
type Notes struct {
	// Backend names the LLM backend used to summarise notes. Empty keeps the
	// plain commit-log notes.
	Backend   string `yaml:"backend"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Formula configures the downstream Homebrew formula update.
type Formula struct {
	Repository  string `yaml:"repository"`
	Path        string `yaml:"path"`
	BaseBranch  string `yaml:"base_branch"`
	AutoMerge   bool   `yaml:"auto_merge"`
	Description string `yaml:"description"`
	Homepage    string `yaml:"homepage"`
	License     string `yaml:"license"`
	// URLTemplate is a text/template rendered with .Owner, .Repo, .Tag,
	// .Version and .Archive to produce each download URL.
	URLTemplate string `yaml:"url_template"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Default values
const (
	DefaultConfigFile    = "release.yaml"
	DefaultBinary        = "dotty"
	DefaultSource        = "."
	DefaultManifest      = "Cargo.toml"
	DefaultDist          = "dist"
	DefaultParallelism   = 4
	DefaultTagPrefix     = "v"
	DefaultRemote        = "origin"
	DefaultBranch        = "main"
	DefaultTriggerLabel  = "release"
	DefaultNotesTokens   = 800
	DefaultFormulaPath   = "Formula/dotty.rb"
	DefaultURLTemplate   = "https://github.com/{{.Owner}}/{{.Repo}}/releases/download/{{.Tag}}/{{.Archive}}"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultLedger        = ".dotty-release/ledger.db"
	DefaultLogFormat     = "text"
)

// DefaultPlatforms is the build matrix used when the config file names none.
var DefaultPlatforms = []platform.Platform{
	platform.DarwinARM64,
	platform.DarwinAMD64,
	platform.LinuxAMD64,
}

// Get returns the global configuration, loading from environment if not already loaded
func Get() *Config {
	configOnce.Do(func() {
		globalConfig = NewConfig()
		applyEnv(globalConfig)
	})
	return globalConfig
}

// Reset clears the global configuration, forcing reload on next Get()
// This is primarily useful for testing
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
}

// NewConfig creates a configuration populated with defaults only.
func NewConfig() *Config {
	return &Config{
		Binary:      DefaultBinary,
		Source:      DefaultSource,
		Manifest:    DefaultManifest,
		Dist:        DefaultDist,
		Parallelism: DefaultParallelism,
		Platforms:   append([]platform.Platform(nil), DefaultPlatforms...),
		TagPrefix:   DefaultTagPrefix,
		Repository: Repository{
			Owner:         "keithhendry",
			Name:          "dotty",
			Remote:        DefaultRemote,
			DefaultBranch: DefaultBranch,
		},
		Trigger: Trigger{Label: DefaultTriggerLabel},
		Notes:   Notes{MaxTokens: DefaultNotesTokens},
		Formula: Formula{
			Repository:  "keithhendry/homebrew-tap",
			Path:        DefaultFormulaPath,
			BaseBranch:  DefaultBranch,
			AutoMerge:   true,
			Description: "Dotfile manager backed by a git repository",
			Homepage:    "https://github.com/keithhendry/dotty",
			License:     "MIT",
			URLTemplate: DefaultURLTemplate,
		},
		Ledger:        DefaultLedger,
		OpenAIBaseURL: DefaultOpenAIBaseURL,
		OpenAIModel:   DefaultOpenAIModel,
		LogFormat:     DefaultLogFormat,
	}
}

// WithRepository sets the source repository coordinates.
func (c *Config) WithRepository(owner, name string) *Config {
	c.Repository.Owner = owner
	c.Repository.Name = name
	return c
}

// WithPlatforms replaces the build matrix.
func (c *Config) WithPlatforms(ps ...platform.Platform) *Config {
	c.Platforms = append([]platform.Platform(nil), ps...)
	return c
}

// WithBuild configures binary name, source directory and output directory.
func (c *Config) WithBuild(binary, source, dist string) *Config {
	if binary != "" {
		c.Binary = binary
	}
	if source != "" {
		c.Source = source
	}
	if dist != "" {
		c.Dist = dist
	}
	return c
}

// WithParallelism bounds the number of concurrent builds.
func (c *Config) WithParallelism(n int) *Config {
	if n > 0 {
		c.Parallelism = n
	}
	return c
}

// WithFormula configures the tap repository and formula path.
func (c *Config) WithFormula(repository, path string) *Config {
	if repository != "" {
		c.Formula.Repository = repository
	}
	if path != "" {
		c.Formula.Path = path
	}
	return c
}

// WithOpenAI configures OpenAI settings
func (c *Config) WithOpenAI(apiKey, baseURL, model string) *Config {
	c.OpenAIAPIKey = apiKey
	if baseURL != "" {
		c.OpenAIBaseURL = baseURL
	}
	if model != "" {
		c.OpenAIModel = model
	}
	return c
}

// WithLedger sets the ledger path. An empty path disables the ledger.
func (c *Config) WithLedger(path string) *Config {
	c.Ledger = path
	return c
}

// WithDebug enables verbose logging.
func (c *Config) WithDebug(verbose bool) *Config {
	c.Verbose = verbose
	return c
}

// DistFor returns the directory holding the archives of one version.
func (c *Config) DistFor(version string) string {
	return filepath.Join(c.Dist, version)
}

// Validate checks that the configuration can drive a release.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("binary name is required")
	}
	if strings.ContainsAny(c.Binary, "/\\ ") {
		return fmt.Errorf("binary name %q must not contain path separators or spaces", c.Binary)
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	seen := make(map[platform.Platform]bool, len(c.Platforms))
	for _, p := range c.Platforms {
		if !p.Supported() {
			return fmt.Errorf("unsupported platform %q", p)
		}
		if seen[p] {
			return fmt.Errorf("platform %s listed twice", p)
		}
		seen[p] = true
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be > 0, got %d", c.Parallelism)
	}
	if c.Repository.Owner == "" || c.Repository.Name == "" {
		return fmt.Errorf("repository owner and name are required")
	}
	if c.Manifest == "" {
		return fmt.Errorf("manifest path is required")
	}
	if c.Formula.Repository != "" {
		if owner, name, ok := strings.Cut(c.Formula.Repository, "/"); !ok || owner == "" || name == "" {
			return fmt.Errorf("formula repository %q must be owner/name", c.Formula.Repository)
		}
		if c.Formula.Path == "" {
			return fmt.Errorf("formula path is required")
		}
		if c.Formula.URLTemplate == "" {
			return fmt.Errorf("formula url_template is required")
		}
	}
	switch c.Notes.Backend {
	case "", "openai":
	default:
		return fmt.Errorf("unknown notes backend %q", c.Notes.Backend)
	}
	return nil
}

// applyEnv overlays environment variables on c.
func applyEnv(c *Config) {
	c.Parallelism = getEnvInt("DOTTY_RELEASE_PARALLELISM", c.Parallelism)
	c.Ledger = getEnv("DOTTY_RELEASE_LEDGER", c.Ledger)
	c.Verbose = getEnvBool("DOTTY_RELEASE_VERBOSE", c.Verbose)
	c.LogFormat = getEnv("DOTTY_RELEASE_LOG_FORMAT", c.LogFormat)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	if c.Notes.Model == "" {
		c.Notes.Model = c.OpenAIModel
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
