// Package config holds the settings mapbufctl and services built on
// pkg/mapbuffer load once at startup: which codec and format version new
// buffers get by default, and how strict a Reader should be about
// checksums.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
)

const (
	DefaultConfigFileName = "mapbuffer.json"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidOnDisk  = errors.New("invalid config file")
)

// Config holds the defaults applied when a caller does not pass explicit
// BuildOptions/ReaderOptions of its own.
type Config struct {
	Version int `json:"version"`

	// BaseDir names the directory of on-disk buffers this config applies
	// to. Validate requires it to be set; nothing in this package resolves
	// paths against it.
	BaseDir string `json:"base_dir"`

	// DefaultCodecTag names the compression codec new buffers use, one of
	// "none", "gzip", "zstd", "00br", "lzma".
	DefaultCodecTag string `json:"default_codec"`

	// DefaultVersion selects the on-disk format version (0 or 1) new
	// buffers use.
	DefaultVersion uint8 `json:"default_version"`

	// StrictReads makes every Reader opened through this config validate
	// a version-1 checksum before serving data.
	StrictReads bool `json:"strict_reads"`

	// BuildParallelism bounds concurrent value encoding during Build.
	BuildParallelism int `json:"build_parallelism"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values rooted
// at baseDir.
func NewDefaultConfig(baseDir string) *Config {
	return &Config{
		Version:          CurrentConfigVersion,
		BaseDir:          baseDir,
		DefaultCodecTag:  "none",
		DefaultVersion:   0,
		StrictReads:      false,
		BuildParallelism: 4,
	}
}

// Validate checks if the configuration is well-formed.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.BaseDir == "" {
		return fmt.Errorf("%w: base directory not specified", ErrInvalidConfig)
	}

	if !codec.Recognized(codec.EncodeTag(c.DefaultCodecTag)) {
		return fmt.Errorf("%w: unrecognized default codec %q", ErrInvalidConfig, c.DefaultCodecTag)
	}

	if c.DefaultVersion != 0 && c.DefaultVersion != 1 {
		return fmt.Errorf("%w: unsupported default version %d", ErrInvalidConfig, c.DefaultVersion)
	}

	if c.BuildParallelism <= 0 {
		return fmt.Errorf("%w: build parallelism must be positive", ErrInvalidConfig)
	}

	return nil
}

// CodecTag returns DefaultCodecTag as a codec.Tag.
func (c *Config) CodecTag() codec.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return codec.EncodeTag(c.DefaultCodecTag)
}

// Load reads a Config previously written by Save from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOnDisk, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to dir, replacing any existing file
// atomically via a temp file and rename.
func (c *Config) Save(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFileName)
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies fn under the config's write lock.
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
