// Package config loads the optional onefile.yaml configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/zytedata/onefile/internal/model"
)

// DefaultFile is picked up from the working directory when no path is given.
const DefaultFile = "onefile.yaml"

// Environment variables consulted for settings the config file leaves empty.
const (
	EnvOutDir   = "ONEFILE_OUT_DIR"
	EnvPattern  = "ONEFILE_PATTERN"
	EnvLogLevel = "LOG_LEVEL"
)

// Config holds the settings that can live in a config file.
type Config struct {
	OutDir    string `yaml:"outDir"`
	JUnitName string `yaml:"junitName"`
	HTMLName  string `yaml:"htmlName"`
	Pattern   string `yaml:"pattern"`
	LogLevel  string `yaml:"logLevel"`
}

// ValidationError represents an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads the config file at path. An empty path loads DefaultFile if it exists
// and returns an empty config otherwise; an explicit path must exist.
func Load(fs afero.Fs, path string) (*Config, error) {
	if path == "" {
		exists, err := afero.Exists(fs, DefaultFile)
		if err != nil {
			return nil, fmt.Errorf("failed to check for %s: %w", DefaultFile, err)
		}
		if !exists {
			return &Config{}, nil
		}
		path = DefaultFile
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills the fields left empty by the config file from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fill := func(field *string, key string) {
		if *field != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*field = strings.TrimSpace(v)
		}
	}

	fill(&c.OutDir, EnvOutDir)
	fill(&c.Pattern, EnvPattern)
	fill(&c.LogLevel, EnvLogLevel)
}

// OutputName returns the configured output file name for format, or "" for the adapter default.
func (c *Config) OutputName(format model.Format) string {
	switch format {
	case model.FormatJUnit:
		return c.JUnitName
	case model.FormatHTML:
		return c.HTMLName
	default:
		return ""
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	names := []struct{ field, value string }{
		{"junitName", c.JUnitName},
		{"htmlName", c.HTMLName},
	}
	for _, n := range names {
		if strings.ContainsAny(n.value, `/\`) {
			return &ValidationError{Field: n.field, Message: "must be a file name without directories"}
		}
	}

	if c.Pattern != "" {
		if _, err := glob.Compile(c.Pattern, '/'); err != nil {
			return &ValidationError{Field: "pattern", Message: fmt.Sprintf("invalid glob %q: %v", c.Pattern, err)}
		}
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			return &ValidationError{Field: "logLevel", Message: err.Error()}
		}
	}

	return nil
}
