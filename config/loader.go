package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source loads a RootConfig from some backend. The broker only ships a
// FileSource (load-once-at-startup, per the broker's config model — no
// hot-reload), but the interface leaves room for another source without
// touching anything that consumes a *RootConfig.
type Source interface {
	Load() (*RootConfig, error)
	Name() string
}

// FileSource reads and parses a single YAML file.
type FileSource struct {
	path string
}

// NewFileSource returns a Source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns a human-readable identifier for this source.
func (f *FileSource) Name() string {
	return "file:" + f.path
}

// Load reads and unmarshals the config file.
func (f *FileSource) Load() (*RootConfig, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", f.path, err)
	}

	var cfg RootConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", f.path, err)
	}
	return &cfg, nil
}

// Hash returns the SHA-256 hex digest of the file's raw bytes. Nothing in
// the broker uses it for change detection — this broker does not reload.
func (f *FileSource) Hash() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("config: hashing %s: %w", f.path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

var _ Source = (*FileSource)(nil)
