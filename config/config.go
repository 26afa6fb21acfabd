// Package config loads particles settings from YAML files and environment
// variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--backend, --precision)
//  2. Environment variables (PARTICLES_*)
//  3. Config file (particles.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	s, err := cfg.NewSession()
//
// Environment Variables:
//
// Compute:
//   - PARTICLES_BACKEND="auto", "software" or "wgpu"
//   - PARTICLES_PRECISION="single" or "double"
//   - PARTICLES_WORKGROUP_SIZE=64
//
// Kernels:
//   - PARTICLES_SPIRV_CACHE_DIR="~/.cache/particles/spirv"
//
// Logging:
//   - PARTICLES_LOG_LEVEL="info"
//   - PARTICLES_LOG_FORMAT="text" or "json"
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
)

// Backend names accepted by ComputeConfig.Backend.
const (
	BackendAuto     = "auto"
	BackendSoftware = compute.BackendSoftware
	BackendWGPU     = compute.BackendWGPU
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all particles settings.
//
// Use LoadFromFile to build one from defaults, a YAML file and the
// environment, then Validate before use.
type Config struct {
	Compute ComputeConfig `yaml:"compute"`
	Kernels KernelsConfig `yaml:"kernels"`
	Logging LoggingConfig `yaml:"logging"`
}

// ComputeConfig selects the backend and device precision.
type ComputeConfig struct {
	// Backend is "auto", "software" or "wgpu". Auto prefers wgpu and falls
	// back to software when no adapter is present.
	Backend string `yaml:"backend"`

	// Precision is the device float precision, "single" or "double".
	Precision string `yaml:"precision"`

	// WorkgroupSize is the workgroup width of compiled kernels.
	WorkgroupSize int `yaml:"workgroup_size"`
}

// KernelsConfig controls kernel compilation.
type KernelsConfig struct {
	// SPIRVCacheDir persists compiled SPIR-V between runs. Empty keeps the
	// cache in memory.
	SPIRVCacheDir string `yaml:"spirv_cache_dir"`
}

// LoggingConfig controls the slog handler built by NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDefaults returns the built-in configuration.
func LoadDefaults() *Config {
	return &Config{
		Compute: ComputeConfig{
			Backend:       BackendAuto,
			Precision:     "single",
			WorkgroupSize: compute.DefaultWorkgroupSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv returns the defaults overridden by PARTICLES_* variables.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	applyEnvVars(cfg)
	return cfg
}

// LoadFromFile loads defaults, then the YAML file at configPath, then the
// environment. A missing file is not an error.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvVars(cfg)
	return cfg, nil
}

func applyEnvVars(cfg *Config) {
	cfg.Compute.Backend = getEnv("PARTICLES_BACKEND", cfg.Compute.Backend)
	cfg.Compute.Precision = getEnv("PARTICLES_PRECISION", cfg.Compute.Precision)
	cfg.Compute.WorkgroupSize = getEnvInt("PARTICLES_WORKGROUP_SIZE", cfg.Compute.WorkgroupSize)
	cfg.Kernels.SPIRVCacheDir = getEnv("PARTICLES_SPIRV_CACHE_DIR", cfg.Kernels.SPIRVCacheDir)
	cfg.Logging.Level = getEnv("PARTICLES_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("PARTICLES_LOG_FORMAT", cfg.Logging.Format)
}

// FindConfigFile returns the first existing config file among the usual
// locations, or "" when there is none.
func FindConfigFile() string {
	var candidates []string

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".particles", "config.yaml"))
	}
	candidates = append(candidates, "particles.yaml", "config.yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "particles", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Compute.Backend) {
	case BackendAuto, BackendSoftware, BackendWGPU:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Compute.Backend)
	}
	if _, err := c.Precision(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Compute.WorkgroupSize <= 0 || c.Compute.WorkgroupSize > 1024 {
		return fmt.Errorf("%w: invalid workgroup size: %d", ErrInvalidConfig, c.Compute.WorkgroupSize)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Backend: %s, Precision: %s, WorkgroupSize: %d, SPIRVCache: %q, Log: %s/%s}",
		c.Compute.Backend, c.Compute.Precision, c.Compute.WorkgroupSize,
		c.Kernels.SPIRVCacheDir, c.Logging.Level, c.Logging.Format,
	)
}

// Precision parses Compute.Precision.
func (c *Config) Precision() (particles.Precision, error) {
	return particles.ParsePrecision(c.Compute.Precision)
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w in the configured format and
// level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewSession opens the configured backend and returns a session that owns
// its context.
func (c *Config) NewSession() (*particles.Session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	precision, _ := c.Precision()

	ctx, err := c.openBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", particles.ErrNoBackend, err)
	}
	if ls, ok := ctx.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(particles.Logger())
	}
	s, err := particles.NewSession(ctx,
		particles.WithPrecision(precision),
		particles.WithOwnedContext(),
	)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return s, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
