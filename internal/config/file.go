package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every error LoadFile returns, so callers can tell a bad
// configuration from a failed run.
var ErrInvalid = errors.New("invalid configuration")

// Path returns the config file location, honouring DOTTY_RELEASE_CONFIG.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return getEnv("DOTTY_RELEASE_CONFIG", DefaultConfigFile)
}

// LoadFile reads a release.yaml over the defaults and applies environment
// overrides. A missing file is not an error when optional is true; the
// defaults plus environment are returned instead.
func LoadFile(path string, optional bool) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}
	return cfg, nil
}

// decode strictly decodes a single YAML document into cfg. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}
