// Package config loads the dittoaccel daemon configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (DITTOACCEL_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/accel/cryptodev"
	"github.com/marmos91/dittoaccel/pkg/accel/dma"
	"github.com/marmos91/dittoaccel/pkg/accel/software"
	"github.com/marmos91/dittoaccel/pkg/bdev/badger"
	"github.com/marmos91/dittoaccel/pkg/bdev/crypto"
	"github.com/marmos91/dittoaccel/pkg/bdev/malloc"
	"github.com/marmos91/dittoaccel/pkg/bdev/s3"
	"github.com/marmos91/dittoaccel/pkg/controlplane/api"
)

// EnvPrefix prefixes every environment override, e.g.
// DITTOACCEL_LOGGING_LEVEL=DEBUG.
const EnvPrefix = "DITTOACCEL"

// Config is the daemon configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	API     api.APIConfig `mapstructure:"api" yaml:"api"`
	Accel   AccelConfig   `mapstructure:"accel" yaml:"accel"`
	Bdevs   BdevsConfig   `mapstructure:"bdevs" yaml:"bdevs"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR (normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector. Default: localhost:4317
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is 0.0 to 1.0. Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL. Default: http://localhost:4040
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus endpoint. Disabled means no
// metrics are collected at all.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port defaults to 9090 when enabled.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AccelConfig configures the acceleration framework.
type AccelConfig struct {
	// MaxTasksPerChannel is the task pool size of every channel.
	// Default: 2048
	MaxTasksPerChannel int `mapstructure:"max_tasks_per_channel" validate:"omitempty,min=1" yaml:"max_tasks_per_channel"`

	// OpcodeOverrides maps opcode names to the module that must serve
	// them, e.g. {"crc32c": "software"}. Applied before start.
	OpcodeOverrides map[string]string `mapstructure:"opcode_overrides" yaml:"opcode_overrides,omitempty"`

	Modules ModulesConfig `mapstructure:"modules" yaml:"modules"`

	// CryptoKeys are created after start, in order.
	CryptoKeys []CryptoKeyConfig `mapstructure:"crypto_keys" validate:"dive" yaml:"crypto_keys,omitempty"`

	// ReplayFile is a JSON configuration dump. Its entries are replayed
	// in addition to the settings above, and the daemon rewrites it on
	// shutdown. "accelctl config dump" produces the same format.
	ReplayFile string `mapstructure:"replay_file" yaml:"replay_file,omitempty"`
}

// ModulesConfig configures the backend modules. Software is always
// registered.
type ModulesConfig struct {
	Software  software.Config `mapstructure:"software" yaml:"software"`
	DMA       DMAConfig       `mapstructure:"dma" yaml:"dma"`
	Cryptodev CryptodevConfig `mapstructure:"cryptodev" yaml:"cryptodev"`
}

// DMAConfig enables the memory-offload engine.
type DMAConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	dma.Config `mapstructure:",squash" yaml:",inline"`
}

// CryptodevConfig enables the crypto device.
type CryptodevConfig struct {
	Enabled          bool `mapstructure:"enabled" yaml:"enabled"`
	cryptodev.Config `mapstructure:",squash" yaml:",inline"`
}

// CryptoKeyConfig describes a key to create at startup. Key and Key2 are
// hex encoded.
type CryptoKeyConfig struct {
	Name   string `mapstructure:"name" validate:"required" yaml:"name"`
	Cipher string `mapstructure:"cipher" validate:"required,oneof=AES_CBC AES_XTS" yaml:"cipher"`
	Key    string `mapstructure:"key" validate:"required,hexadecimal" yaml:"key"`
	Key2   string `mapstructure:"key2" validate:"omitempty,hexadecimal" yaml:"key2,omitempty"`
	Driver string `mapstructure:"driver" yaml:"driver,omitempty"`

	// Module creates the key. Empty selects the encrypt module.
	Module string `mapstructure:"module" yaml:"module,omitempty"`
}

// Params converts the entry to keyring parameters.
func (k CryptoKeyConfig) Params() accel.CryptoKeyParams {
	return accel.CryptoKeyParams{Name: k.Name, Cipher: k.Cipher, Key: k.Key, Key2: k.Key2, Driver: k.Driver}
}

// BdevsConfig lists the block devices created at startup. Base devices
// are created before crypto devices.
type BdevsConfig struct {
	Malloc []MallocConfig   `mapstructure:"malloc" validate:"dive" yaml:"malloc,omitempty"`
	Badger []BadgerConfig   `mapstructure:"badger" validate:"dive" yaml:"badger,omitempty"`
	S3     []S3Config       `mapstructure:"s3" validate:"dive" yaml:"s3,omitempty"`
	Crypto []crypto.Options `mapstructure:"crypto" validate:"dive" yaml:"crypto,omitempty"`
}

// MallocConfig is a malloc device. Size, when set, overrides num_blocks.
type MallocConfig struct {
	malloc.Config `mapstructure:",squash" yaml:",inline"`
	Size          ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// BadgerConfig is a badger device. Size, when set, overrides num_blocks.
type BadgerConfig struct {
	badger.Config `mapstructure:",squash" yaml:",inline"`
	Size          ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// S3Config is an S3 device. Size, when set, overrides num_blocks.
type S3Config struct {
	s3.Config `mapstructure:",squash" yaml:",inline"`
	Size      ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// Load reads configPath (or the default location when empty), applies
// defaults and validates. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load with user-facing errors when the file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittoaccel config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittoaccel <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittoaccel config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML. The file may hold key material, so it is
// created owner read/write only.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reports whether a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook accepts "64MiB", "1 GB" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseByteSize(v)
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook accepts "30s", "5m" or integer nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir is $XDG_CONFIG_HOME/dittoaccel, ~/.config/dittoaccel, or
// "." when no home directory is known.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dittoaccel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittoaccel")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether the default file exists.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory.
func GetConfigDir() string {
	return getConfigDir()
}
