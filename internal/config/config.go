// Package config loads and validates Context Fabric's YAML configuration in
// layers: built-in defaults, then a single config.yaml file, then
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Context Fabric configuration, matching the five
// sections named in spec §6: storage, ttl, embedding, context, codeIndex.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	TTL       TTLConfig       `yaml:"ttl" json:"ttl"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Context   ContextConfig   `yaml:"context" json:"context"`
	CodeIndex CodeIndexConfig `yaml:"codeIndex" json:"codeIndex"`
}

// StorageConfig configures on-disk layout (spec §6 "Persistent state layout").
type StorageConfig struct {
	// RootDir is the root directory for all persisted state. Overridden by
	// the CONTEXT_FABRIC_DIR environment variable.
	RootDir string `yaml:"rootDir" json:"rootDir"`
}

// TTLConfig configures tier-1 TTL defaults (spec §4.2).
type TTLConfig struct {
	// DefaultSeconds is used when a store call omits an explicit ttl.
	DefaultSeconds int `yaml:"defaultSeconds" json:"defaultSeconds"`
	// CleanupInterval controls how often the L1 sweep runs.
	CleanupInterval time.Duration `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// EmbeddingConfig configures the embedding service (spec §4.1).
type EmbeddingConfig struct {
	Dimensions   int           `yaml:"dimensions" json:"dimensions"`
	CacheSize    int           `yaml:"cacheSize" json:"cacheSize"`
	CallDeadline time.Duration `yaml:"callDeadline" json:"callDeadline"`
	// ModelPath names a local ONNX model file. No ONNX runtime is wired into
	// this build, so every value, empty or not, is served by the built-in
	// deterministic fallback runner (see internal/embed).
	ModelPath string `yaml:"modelPath" json:"modelPath"`
	// CachePath overrides the model cache directory; overridden by the
	// embedding-model cache path environment variable from spec §6.
	CachePath string `yaml:"cachePath" json:"cachePath"`
}

// ContextConfig configures the hybrid recall pipeline, decay scheduler, and
// getContextWindow defaults (spec §4.4, §4.6, §4.7, §4.9).
type ContextConfig struct {
	DecayDays          int     `yaml:"decayDays" json:"decayDays"`
	DecayThreshold     float64 `yaml:"decayThreshold" json:"decayThreshold"`
	DecayPeriod        time.Duration `yaml:"decayPeriod" json:"decayPeriod"`
	RRFConstant        int     `yaml:"rrfConstant" json:"rrfConstant"`
	DefaultLimit       int     `yaml:"defaultLimit" json:"defaultLimit"`
	DefaultThreshold   float64 `yaml:"defaultThreshold" json:"defaultThreshold"`
	L1Capacity         int     `yaml:"l1Capacity" json:"l1Capacity"`
	MaxWorkingMemories int     `yaml:"maxWorkingMemories" json:"maxWorkingMemories"`
	MaxRelevantMemories int    `yaml:"maxRelevantMemories" json:"maxRelevantMemories"`
	MaxPatterns        int     `yaml:"maxPatterns" json:"maxPatterns"`
	MaxGhostMessages   int     `yaml:"maxGhostMessages" json:"maxGhostMessages"`
	MaxSuggestions     int     `yaml:"maxSuggestions" json:"maxSuggestions"`
}

// CodeIndexConfig configures the code index (spec §4.8).
type CodeIndexConfig struct {
	Exclude          []string      `yaml:"exclude" json:"exclude"`
	MaxFileSizeBytes int64         `yaml:"maxFileSizeBytes" json:"maxFileSizeBytes"`
	MaxFiles         int           `yaml:"maxFiles" json:"maxFiles"`
	ChunkLines       int           `yaml:"chunkLines" json:"chunkLines"`
	ChunkOverlap     int           `yaml:"chunkOverlap" json:"chunkOverlap"`
	SemanticThreshold float64      `yaml:"semanticThreshold" json:"semanticThreshold"`
	DebounceInterval time.Duration `yaml:"debounceInterval" json:"debounceInterval"`
	Watch            bool          `yaml:"watch" json:"watch"`
}

var defaultCodeExcludes = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
}

// Default returns a Config populated with the defaults named throughout spec §4.
func Default() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			RootDir: defaultRootDir(),
		},
		TTL: TTLConfig{
			DefaultSeconds:  3600,
			CleanupInterval: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Dimensions:   384,
			CacheSize:    10000,
			CallDeadline: 30 * time.Second,
		},
		Context: ContextConfig{
			DecayDays:           14,
			DecayThreshold:      0.2,
			DecayPeriod:         time.Hour,
			RRFConstant:         60,
			DefaultLimit:        10,
			DefaultThreshold:    0.7,
			L1Capacity:          1000,
			MaxWorkingMemories:  10,
			MaxRelevantMemories: 10,
			MaxPatterns:         5,
			MaxGhostMessages:    5,
			MaxSuggestions:      5,
		},
		CodeIndex: CodeIndexConfig{
			Exclude:           append([]string{}, defaultCodeExcludes...),
			MaxFileSizeBytes:  1 << 20,
			MaxFiles:          10000,
			ChunkLines:        150,
			ChunkOverlap:      10,
			SemanticThreshold: 0.5,
			DebounceInterval:  500 * time.Millisecond,
			Watch:             true,
		},
	}
}

func defaultRootDir() string {
	if dir := os.Getenv("CONTEXT_FABRIC_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".context-fabric")
	}
	return filepath.Join(home, ".context-fabric")
}

// Load builds configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. YAML file at dir/config.yaml, if present
//  3. Environment variable overrides (spec §6)
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies the environment variables recognized in spec §6.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONTEXT_FABRIC_DIR"); v != "" {
		cfg.Storage.RootDir = v
	}
	if v := os.Getenv("L1_DEFAULT_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TTL.DefaultSeconds = n
		}
	}
	if v := os.Getenv("L3_DECAY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.DecayDays = n
		}
	}
	if v := os.Getenv("CONTEXT_FABRIC_EMBED_CACHE_PATH"); v != "" {
		cfg.Embedding.CachePath = v
	}
}

// Validate checks invariants that the rest of the engine relies on holding.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.TTL.DefaultSeconds <= 0 {
		return fmt.Errorf("ttl.defaultSeconds must be positive, got %d", c.TTL.DefaultSeconds)
	}
	if c.Context.DecayThreshold < 0 || c.Context.DecayThreshold > 1 {
		return fmt.Errorf("context.decayThreshold must be in [0,1], got %f", c.Context.DecayThreshold)
	}
	if c.Context.L1Capacity <= 0 {
		return fmt.Errorf("context.l1Capacity must be positive, got %d", c.Context.L1Capacity)
	}
	if c.CodeIndex.ChunkLines <= 0 {
		return fmt.Errorf("codeIndex.chunkLines must be positive, got %d", c.CodeIndex.ChunkLines)
	}
	return nil
}
