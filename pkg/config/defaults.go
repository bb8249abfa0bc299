package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/accel/cryptodev"
	"github.com/marmos91/dittoaccel/pkg/accel/dma"
)

// DefaultBlockSize is used by backing devices that do not set one.
const DefaultBlockSize = 512

// ApplyDefaults replaces zero values with defaults. Explicit values are
// kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
	applyAccelDefaults(&cfg.Accel)
	applyBdevDefaults(&cfg.Bdevs)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAccelDefaults(cfg *AccelConfig) {
	if cfg.MaxTasksPerChannel == 0 {
		cfg.MaxTasksPerChannel = accel.MaxTasksPerChannel
	}

	d := dma.DefaultConfig()
	m := &cfg.Modules.DMA
	if m.Workers == 0 {
		m.Workers = d.Workers
	}
	if m.RingSize == 0 {
		m.RingSize = d.RingSize
	}
	if m.MaxChannels == 0 {
		m.MaxChannels = d.MaxChannels
	}

	c := cryptodev.DefaultConfig()
	cd := &cfg.Modules.Cryptodev
	if cd.Driver == "" {
		cd.Driver = c.Driver
	}
	if cd.Workers == 0 {
		cd.Workers = c.Workers
	}
	if cd.QueueDepth == 0 {
		cd.QueueDepth = c.QueueDepth
	}
}

// geometry fills a zero block size and derives the block count from size.
func geometry(blockSize *uint32, numBlocks *uint64, size ByteSize) {
	if *blockSize == 0 {
		*blockSize = DefaultBlockSize
	}
	if size > 0 {
		*numBlocks = uint64(size) / uint64(*blockSize)
	}
}

func applyBdevDefaults(cfg *BdevsConfig) {
	for i := range cfg.Malloc {
		b := &cfg.Malloc[i]
		geometry(&b.BlockSize, &b.NumBlocks, b.Size)
	}
	for i := range cfg.Badger {
		b := &cfg.Badger[i]
		geometry(&b.BlockSize, &b.NumBlocks, b.Size)
	}
	for i := range cfg.S3 {
		b := &cfg.S3[i]
		geometry(&b.BlockSize, &b.NumBlocks, b.Size)
	}
}

// GetDefaultConfig returns a configuration with every default applied
// and no devices.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
