package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/accel/cryptodev"
	"github.com/marmos91/dittoaccel/pkg/accel/dma"
	"github.com/marmos91/dittoaccel/pkg/accel/software"
	"github.com/marmos91/dittoaccel/pkg/bdev"
	"github.com/marmos91/dittoaccel/pkg/bdev/badger"
	"github.com/marmos91/dittoaccel/pkg/bdev/crypto"
	"github.com/marmos91/dittoaccel/pkg/bdev/malloc"
	"github.com/marmos91/dittoaccel/pkg/bdev/s3"
	"github.com/marmos91/dittoaccel/pkg/config"
)

// Initialize builds a runtime from cfg:
//
//  1. register the software module
//  2. replay the startup entries of the replay file
//  3. register dma and cryptodev when configured or replayed
//  4. apply the configured opcode overrides and start the framework
//  5. replay the runtime entries, then create the configured keys
//  6. create malloc, badger and s3 bdevs, then crypto bdevs in order
//
// On failure everything built so far is torn down.
func Initialize(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	r := New(cfg, opts...)
	if err := r.init(ctx); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
		defer cancel()
		if cerr := r.Shutdown(cleanupCtx); cerr != nil {
			logger.Warn("Cleanup after failed initialization", logger.KeyError, cerr)
		}
		return nil, err
	}
	return r, nil
}

// modulePlan collects the optional modules to register.
type modulePlan struct {
	dma       bool
	cryptodev bool
	driver    string
}

func (r *Runtime) init(ctx context.Context) error {
	cfg := r.cfg

	r.fw = accel.New(
		accel.WithMaxTasksPerChannel(cfg.Accel.MaxTasksPerChannel),
		accel.WithMetrics(r.accelMetrics),
	)
	if err := software.Register(r.fw, cfg.Accel.Modules.Software); err != nil {
		return fmt.Errorf("register software module: %w", err)
	}

	entries, err := loadReplayFile(cfg.Accel.ReplayFile)
	if err != nil {
		return err
	}

	plan := modulePlan{
		dma:       cfg.Accel.Modules.DMA.Enabled,
		cryptodev: cfg.Accel.Modules.Cryptodev.Enabled,
	}
	replayer := newReplayer(&plan)
	if err := replayer.Apply(r.fw, entries, accel.PhaseStartup); err != nil {
		return err
	}
	if err := r.registerModules(plan); err != nil {
		return err
	}

	for opname, module := range cfg.Accel.OpcodeOverrides {
		op, err := accel.ParseOpcode(opname)
		if err != nil {
			return err
		}
		if err := r.fw.AssignOpcode(op, module); err != nil {
			return err
		}
	}

	_, span := telemetry.StartSpan(ctx, telemetry.SpanFrameworkStart)
	err = r.fw.Start()
	telemetry.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("start accel framework: %w", err)
	}

	if err := replayer.Apply(r.fw, entries, accel.PhaseRuntime); err != nil {
		return err
	}
	if err := r.createKeys(ctx); err != nil {
		return err
	}
	if err := r.createBdevs(ctx); err != nil {
		return err
	}

	logger.Info("Runtime initialized",
		"modules", len(r.fw.Modules()),
		"crypto_keys", len(r.fw.CryptoKeys()),
		"bdevs", len(r.bdevs.List()))
	return nil
}

// newReplayer extends the framework replayer with the module enable
// methods. They only mark modules in plan; registration happens after the
// startup phase so the configuration file keeps the last word on module
// settings.
func newReplayer(plan *modulePlan) *accel.Replayer {
	rp := accel.NewReplayer()
	rp.Handle(dma.MethodScan, accel.PhaseStartup, func(*accel.Framework, json.RawMessage) error {
		plan.dma = true
		return nil
	})
	rp.Handle(cryptodev.MethodEnable, accel.PhaseStartup, func(*accel.Framework, json.RawMessage) error {
		plan.cryptodev = true
		return nil
	})
	rp.Handle(cryptodev.MethodSetDriver, accel.PhaseStartup, func(_ *accel.Framework, params json.RawMessage) error {
		var p cryptodev.SetDriverParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
		}
		plan.driver = p.DriverName
		return nil
	})
	return rp
}

func (r *Runtime) registerModules(plan modulePlan) error {
	mods := r.cfg.Accel.Modules

	if plan.dma {
		if err := dma.Register(r.fw, mods.DMA.Config); err != nil {
			return fmt.Errorf("register dma module: %w", err)
		}
	}
	if plan.cryptodev {
		cdCfg := mods.Cryptodev.Config
		// A replayed driver applies only when the file does not enable
		// the module itself.
		if plan.driver != "" && !mods.Cryptodev.Enabled {
			cdCfg.Driver = plan.driver
		}
		if err := cryptodev.Register(r.fw, cdCfg); err != nil {
			return fmt.Errorf("register cryptodev module: %w", err)
		}
	}
	return nil
}

// createKeys creates the configured keys. A key already restored from the
// replay file is kept.
func (r *Runtime) createKeys(ctx context.Context) error {
	for _, kc := range r.cfg.Accel.CryptoKeys {
		if _, err := r.fw.GetCryptoKey(kc.Name); err == nil {
			logger.Info("Crypto key restored from replay file", logger.KeyKeyName, kc.Name)
			continue
		}

		_, span := telemetry.StartKeySpan(ctx, telemetry.SpanKeyCreate, kc.Name,
			telemetry.Cipher(kc.Cipher), telemetry.Module(kc.Module))
		_, err := r.fw.CreateCryptoKey(kc.Module, kc.Params())
		telemetry.EndSpan(span, err)
		if err != nil {
			return fmt.Errorf("create crypto key %s: %w", kc.Name, err)
		}
	}
	return nil
}

func (r *Runtime) createBdevs(ctx context.Context) error {
	b := r.cfg.Bdevs

	for _, mc := range b.Malloc {
		d, err := malloc.New(mc.Config)
		if err := r.register(d, err); err != nil {
			return fmt.Errorf("malloc bdev %s: %w", mc.Name, err)
		}
	}
	for _, bc := range b.Badger {
		d, err := badger.Open(bc.Config)
		if err := r.register(d, err); err != nil {
			return fmt.Errorf("badger bdev %s: %w", bc.Name, err)
		}
	}
	for _, sc := range b.S3 {
		d, err := s3.NewFromConfig(ctx, sc.Config)
		if err := r.register(d, err); err != nil {
			return fmt.Errorf("s3 bdev %s: %w", sc.Name, err)
		}
	}

	for _, opts := range b.Crypto {
		_, span := telemetry.StartSpan(ctx, telemetry.SpanBdevCreate)
		span.SetAttributes(telemetry.Bdev(opts.Name), telemetry.BaseBdev(opts.BaseBdev))
		_, err := crypto.Create(r.bdevs, r.fw, opts, crypto.WithMetrics(r.bdevMetrics))
		telemetry.EndSpan(span, err)
		if err != nil {
			return fmt.Errorf("crypto bdev %s: %w", opts.Name, err)
		}
	}
	return nil
}

// register adds a freshly opened device, closing it if registration
// fails.
func (r *Runtime) register(d bdev.Device, openErr error) error {
	if openErr != nil {
		return openErr
	}
	if err := r.bdevs.Register(d); err != nil {
		_ = d.Close()
		return err
	}
	return nil
}

// loadReplayFile returns the entries of path. A missing file has none.
func loadReplayFile(path string) ([]accel.RawConfigEntry, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No replay file yet", logger.KeyPath, path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := accel.LoadConfigEntries(f)
	if err != nil {
		return nil, fmt.Errorf("replay file %s: %w", path, err)
	}
	logger.Info("Replay file loaded", logger.KeyPath, path, "entries", len(entries))
	return entries, nil
}
