// Package config provides YAML and TOML configuration loading with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a file with environment variable expansion.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		_, err = toml.Decode(expandedData, target)
	} else {
		err = yaml.Unmarshal([]byte(expandedData), target)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return validate(target)
}

// LoadWithDefaults loads filename when it exists. A missing file keeps the
// values already in target, which are validated as they are.
func LoadWithDefaults[T any](filename string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return validate(target)
	}
	return Load(filename, target)
}

func validate(target any) error {
	if validator, ok := target.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
