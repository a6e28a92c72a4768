package oci

import (
	"fmt"
	"os"

	"github.com/go-ini/ini"
)

// Config is the per-repository configuration stored as an ini file in the
// control directory. Unknown sections and keys are preserved for forward
// compatibility.
type Config struct {
	configPath string
	ini        *ini.File
}

// HashConfig is the hash algorithm configuration.
type HashConfig struct {
	Default string
}

// PerformanceConfig is the performance-related configuration.
type PerformanceConfig struct {
	HashWorkers int    // concurrent hash workers (default: 4)
	HashBuffer  string // streaming hash buffer size (default: "2M")
}

// LoadConfig loads the config file, creating it with defaults when missing.
// toolVersion is recorded on creation and compared on load; a mismatch is
// reported, never fatal.
func LoadConfig(configPath, toolVersion string) (*Config, error) {
	cfg := &Config{configPath: configPath}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(toolVersion); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	cfg.ini = iniFile
	return cfg, nil
}

func (c *Config) setDefaults(toolVersion string) error {
	ociSection, err := c.ini.NewSection("oci")
	if err != nil {
		return fmt.Errorf("failed to create oci section: %w", err)
	}
	if _, err := ociSection.NewKey("version", toolVersion); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}

	hashSection, err := c.ini.NewSection("filehash")
	if err != nil {
		return fmt.Errorf("failed to create filehash section: %w", err)
	}
	if _, err := hashSection.NewKey("default", "sha256"); err != nil {
		return fmt.Errorf("failed to set default hash algorithm: %w", err)
	}

	perfSection, err := c.ini.NewSection("performance")
	if err != nil {
		return fmt.Errorf("failed to create performance section: %w", err)
	}
	if _, err := perfSection.NewKey("hash_workers", fmt.Sprintf("%d", DefaultHashWorkers)); err != nil {
		return fmt.Errorf("failed to set default hash workers: %w", err)
	}
	if _, err := perfSection.NewKey("hash_buffer", "2M"); err != nil {
		return fmt.Errorf("failed to set default hash buffer: %w", err)
	}

	return nil
}

// Version returns the tool version recorded in the config, or "" if absent.
func (c *Config) Version() string {
	if c.ini.HasSection("oci") {
		section := c.ini.Section("oci")
		if section.HasKey("version") {
			return section.Key("version").String()
		}
	}
	return ""
}

// GetHashConfig returns the hash configuration.
func (c *Config) GetHashConfig() *HashConfig {
	hashConfig := &HashConfig{
		Default: "sha256", // fallback default
	}

	if c.ini.HasSection("filehash") {
		section := c.ini.Section("filehash")
		if section.HasKey("default") {
			hashConfig.Default = section.Key("default").String()
		}
	}

	return hashConfig
}

// GetPerformanceConfig returns the performance configuration.
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	performanceConfig := &PerformanceConfig{
		HashWorkers: DefaultHashWorkers,
		HashBuffer:  "2M",
	}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("hash_workers") {
			if workers, err := section.Key("hash_workers").Int(); err == nil && workers > 0 {
				performanceConfig.HashWorkers = workers
			}
		}
		if section.HasKey("hash_buffer") {
			if bufferSize := section.Key("hash_buffer").String(); bufferSize != "" {
				performanceConfig.HashBuffer = bufferSize
			}
		}
	}

	return performanceConfig
}

// HashBufferBytes resolves the configured hash buffer size.
func (c *Config) HashBufferBytes() int {
	size, err := ParseHumanSize(c.GetPerformanceConfig().HashBuffer)
	if err != nil {
		return DefaultHashBuffer
	}
	return size
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	return c.ini.SaveTo(c.configPath)
}

// ValidateHashAlgorithm validates that a hash algorithm name is supported.
func ValidateHashAlgorithm(algorithm string) error {
	_, err := GetHashAlgorithm(algorithm)
	return err
}
