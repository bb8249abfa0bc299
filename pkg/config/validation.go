package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/accel/cryptodev"
	"github.com/marmos91/dittoaccel/pkg/accel/dma"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report yaml paths ("accel.crypto_keys[0].cipher") instead of Go
		// field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags, then the relations between sections.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		return err
	}

	var errs []error
	errs = append(errs, validateProfiling(&cfg.Telemetry.Profiling)...)
	errs = append(errs, validateAccel(&cfg.Accel)...)
	errs = append(errs, validateBdevs(cfg)...)
	return errors.Join(errs...)
}

func validateProfiling(cfg *ProfilingConfig) []error {
	var errs []error
	for _, pt := range cfg.ProfileTypes {
		if !telemetry.ValidProfileType(pt) {
			errs = append(errs, fmt.Errorf("telemetry.profiling.profile_types: unknown profile type %q", pt))
		}
	}
	return errs
}

// ModuleNames returns the modules the configuration registers.
func (c *AccelConfig) ModuleNames() []string {
	names := []string{accel.SoftwareModuleName}
	if c.Modules.DMA.Enabled {
		names = append(names, dma.Name)
	}
	if c.Modules.Cryptodev.Enabled {
		names = append(names, cryptodev.Name)
	}
	return names
}

func validateAccel(cfg *AccelConfig) []error {
	var errs []error

	modules := make(map[string]bool)
	for _, n := range cfg.ModuleNames() {
		modules[n] = true
	}

	for opname, module := range cfg.OpcodeOverrides {
		if _, err := accel.ParseOpcode(opname); err != nil {
			errs = append(errs, fmt.Errorf("accel.opcode_overrides: %w", err))
		}
		if !modules[module] {
			errs = append(errs, fmt.Errorf("accel.opcode_overrides.%s: module %q is not enabled", opname, module))
		}
	}

	seen := make(map[string]bool)
	for i, k := range cfg.CryptoKeys {
		if seen[k.Name] {
			errs = append(errs, fmt.Errorf("accel.crypto_keys[%d]: duplicate key name %q", i, k.Name))
		}
		seen[k.Name] = true
		if k.Module != "" && !modules[k.Module] {
			errs = append(errs, fmt.Errorf("accel.crypto_keys[%d]: module %q is not enabled", i, k.Module))
		}
		if k.Cipher == accel.CipherAESXTS && k.Key2 == "" {
			errs = append(errs, fmt.Errorf("accel.crypto_keys[%d]: %s requires key2", i, accel.CipherAESXTS))
		}
	}
	return errs
}

func validateBdevs(cfg *Config) []error {
	var errs []error

	names := make(map[string]bool)
	add := func(kind, name string) {
		if names[name] {
			errs = append(errs, fmt.Errorf("bdevs.%s: duplicate bdev name %q", kind, name))
		}
		names[name] = true
	}
	for _, b := range cfg.Bdevs.Malloc {
		add("malloc", b.Name)
	}
	for _, b := range cfg.Bdevs.Badger {
		add("badger", b.Name)
		if b.Path == "" && !b.InMemory {
			errs = append(errs, fmt.Errorf("bdevs.badger: %s needs a path or in_memory", b.Name))
		}
	}
	for _, b := range cfg.Bdevs.S3 {
		add("s3", b.Name)
	}

	keys := make(map[string]bool)
	for _, k := range cfg.Accel.CryptoKeys {
		keys[k.Name] = true
	}
	claimed := make(map[string]string)

	// Crypto bdevs may stack on base devices or on crypto bdevs listed
	// before them.
	for i, c := range cfg.Bdevs.Crypto {
		if !names[c.BaseBdev] {
			errs = append(errs, fmt.Errorf("bdevs.crypto[%d]: base bdev %q is not configured", i, c.BaseBdev))
		}
		if owner, ok := claimed[c.BaseBdev]; ok {
			errs = append(errs, fmt.Errorf("bdevs.crypto[%d]: base bdev %q is already used by %q", i, c.BaseBdev, owner))
		}
		claimed[c.BaseBdev] = c.Name

		switch {
		case c.KeyName != "":
			if !keys[c.KeyName] && cfg.Accel.ReplayFile == "" {
				errs = append(errs, fmt.Errorf("bdevs.crypto[%d]: key %q is not configured", i, c.KeyName))
			}
		case c.Key == "":
			errs = append(errs, fmt.Errorf("bdevs.crypto[%d]: %s needs key_name or key", i, c.Name))
		}
		add("crypto", c.Name)
	}
	return errs
}
