package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// yamlSafePath keeps Windows backslashes out of double-quoted YAML.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "debug"
api:
  port: 8081
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8081 {
		t.Errorf("Expected API port 8081, got %d", cfg.API.Port)
	}
	if cfg.Accel.MaxTasksPerChannel != 0x800 {
		t.Errorf("Expected 2048 tasks per channel, got %d", cfg.Accel.MaxTasksPerChannel)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
shutdown_timeout: 5s
accel:
  max_tasks_per_channel: 64
  opcode_overrides:
    crc32c: software
  modules:
    software:
      compression_level: 9
    dma:
      enabled: true
      workers: 2
    cryptodev:
      enabled: true
      driver: crypto_qat
  crypto_keys:
    - name: key0
      cipher: AES_XTS
      key: 00112233445566778899aabbccddeeff
      key2: ffeeddccbbaa99887766554433221100
      module: cryptodev
bdevs:
  malloc:
    - name: Malloc0
      size: 64MiB
  badger:
    - name: Badger0
      path: "`+yamlSafePath(dir)+`/badger"
      block_size: 4096
      num_blocks: 16
  crypto:
    - name: crypt0
      base_bdev: Malloc0
      key_name: key0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Accel.OpcodeOverrides["crc32c"] != "software" {
		t.Errorf("Expected crc32c override, got %v", cfg.Accel.OpcodeOverrides)
	}

	dma := cfg.Accel.Modules.DMA
	if !dma.Enabled || dma.Workers != 2 || dma.RingSize != 1024 {
		t.Errorf("Unexpected dma config: %+v", dma)
	}
	cd := cfg.Accel.Modules.Cryptodev
	if !cd.Enabled || cd.Driver != "crypto_qat" || cd.QueueDepth != 128 {
		t.Errorf("Unexpected cryptodev config: %+v", cd)
	}
	if cfg.Accel.Modules.Software.CompressionLevel != 9 {
		t.Errorf("Expected compression level 9, got %d", cfg.Accel.Modules.Software.CompressionLevel)
	}

	if len(cfg.Accel.CryptoKeys) != 1 || cfg.Accel.CryptoKeys[0].Params().Key2 == "" {
		t.Fatalf("Unexpected crypto keys: %+v", cfg.Accel.CryptoKeys)
	}

	m := cfg.Bdevs.Malloc[0]
	if m.BlockSize != 512 || m.NumBlocks != (64<<20)/512 {
		t.Errorf("Expected 512 byte blocks derived from size, got %d x %d", m.BlockSize, m.NumBlocks)
	}
	if cfg.Bdevs.Badger[0].BlockSize != 4096 || cfg.Bdevs.Badger[0].NumBlocks != 16 {
		t.Errorf("Unexpected badger geometry: %+v", cfg.Bdevs.Badger[0])
	}
	if c := cfg.Bdevs.Crypto[0]; c.BaseBdev != "Malloc0" || c.KeyName != "key0" {
		t.Errorf("Unexpected crypto bdev: %+v", c)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidSize(t *testing.T) {
	path := writeConfig(t, `
bdevs:
  malloc:
    - name: Malloc0
      size: lots
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for an invalid size")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
`)
	t.Setenv("DITTOACCEL_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected env override WARN, got %q", cfg.Logging.Level)
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := MustLoad(path)
	if err == nil {
		t.Fatal("Expected error for a missing explicit file")
	}
	if !strings.Contains(err.Error(), "dittoaccel config init") {
		t.Errorf("Expected init instructions, got: %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := SampleConfig()
	cfg.Accel.OpcodeOverrides = map[string]string{"fill": "software"}
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 && os.PathSeparator == '/' {
		t.Errorf("Expected owner-only permissions, got %v", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Bdevs.Malloc[0].Size != cfg.Bdevs.Malloc[0].Size {
		t.Errorf("Size not preserved: %v != %v", loaded.Bdevs.Malloc[0].Size, cfg.Bdevs.Malloc[0].Size)
	}
	if loaded.Accel.OpcodeOverrides["fill"] != "software" {
		t.Errorf("Overrides not preserved: %v", loaded.Accel.OpcodeOverrides)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "dittoaccel", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in an empty directory")
	}
}
