package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoaccel/pkg/bdev/malloc"
)

const configHeader = `# dittoaccel configuration file
#
# Environment variables override any value, e.g.
#   DITTOACCEL_LOGGING_LEVEL=DEBUG
#
# Validate with: dittoaccel config validate
# JSON schema:   dittoaccel config schema

`

// SampleConfig returns the defaults plus one 64MiB malloc device.
func SampleConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Bdevs.Malloc = []MallocConfig{{
		Config: malloc.Config{Name: "Malloc0", BlockSize: DefaultBlockSize},
		Size:   64 << 20,
	}}
	ApplyDefaults(cfg)
	return cfg
}

// InitConfig writes the sample configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(SampleConfig()); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
