package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/release-packager/internal/config/validate"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/open-edge-platform/release-packager/internal/utils/security"
	"github.com/open-edge-platform/release-packager/internal/utils/slice"
)

// GlobalConfig holds tool-level settings shared by every packaging run
type GlobalConfig struct {
	Workers   int    `yaml:"workers" json:"workers"`       // Concurrent profile variants (1-64, default: 4)
	WorkDir   string `yaml:"work_dir" json:"work_dir"`     // Staging root, one directory per kind/profile/variant (default: ./build/work)
	OutputDir string `yaml:"output_dir" json:"output_dir"` // Final artifacts root (default: ./build/dist)
	TempDir   string `yaml:"temp_dir" json:"temp_dir"`     // Scratch space for unpacking inputs (empty = system default)

	Toolchains ToolchainConfig `yaml:"toolchains" json:"toolchains"`
	Logging    LoggingConfig   `yaml:"logging" json:"logging"`
}

// ToolchainConfig locates the external tools. Profiles may override them.
type ToolchainConfig struct {
	JavaHome    string `yaml:"java_home,omitempty" json:"java_home,omitempty"`       // JDK providing jlink, jdeps and jpackage (default: $JAVA_HOME)
	GraalVMHome string `yaml:"graalvm_home,omitempty" json:"graalvm_home,omitempty"` // GraalVM providing native-image and gu (default: $GRAALVM_HOME)
	Upx         string `yaml:"upx,omitempty" json:"upx,omitempty"`                   // Path of the upx executable used to compress native binaries
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers:   4,
		WorkDir:   "./build/work",
		OutputDir: "./build/dist",
		TempDir:   "",

		Toolchains: ToolchainConfig{
			JavaHome:    os.Getenv("JAVA_HOME"),
			GraalVMHome: os.Getenv("GRAALVM_HOME"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig loads configuration from the specified path
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	log := logger.Logger()
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}

		jsonData, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("converting config to JSON for validation: %w", err)
		}
		if err := validate.ValidateConfigJSON(jsonData); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// SaveGlobalConfigWithComments writes the configuration with descriptive
// comments. Used by the config init command.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# release-packager - Global Configuration\n")
	b.WriteString("# Tool-level settings shared by every packaging run.\n")
	b.WriteString("# Distribution-specific settings belong in release-packager.yml.\n\n")

	fmt.Fprintf(&b, "workers: %d\n", gc.Workers)
	b.WriteString("# Number of profile variants built at the same time (1-64, default: 4)\n")
	b.WriteString("# Every variant stages into its own directory, so builds never share state\n\n")

	fmt.Fprintf(&b, "work_dir: %q\n", gc.WorkDir)
	b.WriteString("# Staging root (default: ./build/work)\n")
	b.WriteString("# Layout: <work_dir>/<kind>/<profile>[/<variant>], recreated on every build\n\n")

	fmt.Fprintf(&b, "output_dir: %q\n", gc.OutputDir)
	b.WriteString("# Final archives, images and packages (default: ./build/dist)\n")
	b.WriteString("# Layout: <output_dir>/<kind>/<profile>\n\n")

	fmt.Fprintf(&b, "temp_dir: %q\n", gc.TempDir)
	b.WriteString("# Scratch space for unpacking inputs; empty uses the system default\n\n")

	b.WriteString("# External toolchains, looked up by path and never on PATH\n")
	b.WriteString("toolchains:\n")
	fmt.Fprintf(&b, "  java_home: %q\n", gc.Toolchains.JavaHome)
	b.WriteString("  # JDK providing jlink, jdeps and jpackage (default: $JAVA_HOME)\n")
	fmt.Fprintf(&b, "  graalvm_home: %q\n", gc.Toolchains.GraalVMHome)
	b.WriteString("  # GraalVM providing native-image and gu (default: $GRAALVM_HOME)\n")
	fmt.Fprintf(&b, "  upx: %q\n", gc.Toolchains.Upx)
	b.WriteString("  # upx executable for compressing native images (optional)\n\n")

	b.WriteString("# Logging configuration\n")
	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # Log verbosity level (default: info)\n")
	b.WriteString("  # - debug: every executed command and copied file\n")
	b.WriteString("  # - info:  profile progress and produced artifacts\n")
	b.WriteString("  # - warn:  skipped inputs and unsupported platforms\n")
	b.WriteString("  # - error: failures only\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Tee logs to this file in addition to stderr (overwritten on each run)\n")
	}

	return b.String()
}

// Validate checks the configuration for consistency and applies constraints
func (gc *GlobalConfig) Validate() error {
	if gc.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0, got %d", gc.Workers)
	}
	if gc.Workers > 64 {
		return fmt.Errorf("workers cannot exceed 64, got %d", gc.Workers)
	}

	if gc.WorkDir == "" {
		return fmt.Errorf("WorkDir cannot be empty")
	}
	if gc.OutputDir == "" {
		return fmt.Errorf("OutputDir cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}

	gc.Logging.File = strings.TrimSpace(gc.Logging.File)
	return nil
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"release-packager-config.yml",
		".release-packager-config.yml",
		"release-packager-config.yaml",
		".release-packager-config.yaml",
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".release-packager", "config.yml"),
			filepath.Join(homeDir, ".release-packager", "config.yaml"),
			filepath.Join(homeDir, ".config", "release-packager", "config.yml"),
			filepath.Join(homeDir, ".config", "release-packager", "config.yaml"),
		)
	}

	paths = append(paths,
		"/etc/release-packager/config.yml",
		"/etc/release-packager/config.yaml",
	)

	return paths
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func Workers() int {
	return Global().Workers
}

func WorkDir() (string, error) {
	workDir, err := filepath.Abs(Global().WorkDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve work directory: %w", err)
	}
	return workDir, nil
}

func OutputDir() (string, error) {
	outputDir, err := filepath.Abs(Global().OutputDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return outputDir, nil
}

func TempDir() string {
	tempDir := Global().TempDir
	if tempDir == "" {
		return os.TempDir()
	}
	return tempDir
}

// EnsureTempDir creates and returns a subdirectory of the temp directory.
func EnsureTempDir(subdir string) (string, error) {
	tempDir := filepath.Join(TempDir(), subdir)
	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return "", fmt.Errorf("creating temp directory %s: %w", tempDir, err)
	}
	return tempDir, nil
}
