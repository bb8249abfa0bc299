// Package runtime builds the acceleration framework and the block devices
// from configuration, runs them next to the API and metrics servers, and
// tears everything down in dependency order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
	"github.com/marmos91/dittoaccel/pkg/bdev/crypto"
	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/marmos91/dittoaccel/pkg/metrics"
)

// DefaultShutdownTimeout bounds the whole teardown.
const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is an HTTP server (API, metrics) run alongside the
// framework.
type AuxiliaryServer interface {
	// Start serves until ctx is cancelled or the server fails.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
	// Port returns the TCP port the server listens on.
	Port() int
}

// Runtime owns the framework, the bdev manager and the auxiliary servers.
type Runtime struct {
	mu  sync.RWMutex
	cfg *config.Config

	fw    *accel.Framework
	bdevs *bdev.Manager

	accelMetrics metrics.AccelMetrics
	bdevMetrics  metrics.BdevMetrics

	apiServer     AuxiliaryServer
	metricsServer AuxiliaryServer

	shutdownTimeout time.Duration

	serveOnce    sync.Once
	served       bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithAccelMetrics records framework metrics. A nil value disables them.
func WithAccelMetrics(m metrics.AccelMetrics) Option {
	return func(r *Runtime) { r.accelMetrics = m }
}

// WithBdevMetrics records crypto bdev I/O metrics. A nil value disables
// them.
func WithBdevMetrics(m metrics.BdevMetrics) Option {
	return func(r *Runtime) { r.bdevMetrics = m }
}

// New returns an empty runtime for cfg. Initialize builds and starts it.
func New(cfg *config.Config, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:             cfg,
		bdevs:           bdev.NewManager(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	if cfg != nil && cfg.ShutdownTimeout > 0 {
		r.shutdownTimeout = cfg.ShutdownTimeout
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Framework returns the acceleration framework, or nil before Initialize.
func (r *Runtime) Framework() *accel.Framework {
	return r.fw
}

// Bdevs returns the block device manager.
func (r *Runtime) Bdevs() *bdev.Manager {
	return r.bdevs
}

// BdevMetrics returns the bdev metrics, or nil when disabled.
func (r *Runtime) BdevMetrics() metrics.BdevMetrics {
	return r.bdevMetrics
}

// Config returns the active configuration.
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetShutdownTimeout sets the teardown bound. Zero restores the default.
func (r *Runtime) SetShutdownTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultShutdownTimeout
	}
	r.shutdownTimeout = d
}

// SetAPIServer sets the REST API server. Must be called before Serve.
func (r *Runtime) SetAPIServer(s AuxiliaryServer) {
	if r.served {
		panic("cannot set API server after Serve() has been called")
	}
	r.apiServer = s
}

// SetMetricsServer sets the metrics server. Must be called before Serve.
func (r *Runtime) SetMetricsServer(s AuxiliaryServer) {
	if r.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	r.metricsServer = s
}

// Serve runs the auxiliary servers until ctx is cancelled or one of them
// fails, then shuts everything down.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime already served")
	r.serveOnce.Do(func() {
		r.served = true
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting dittoaccel runtime")

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	for _, s := range []AuxiliaryServer{r.apiServer, r.metricsServer} {
		if s == nil {
			continue
		}
		go func(s AuxiliaryServer) {
			if err := s.Start(srvCtx); err != nil {
				errChan <- err
			}
		}(s)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
	case err := <-errChan:
		logger.Error("Auxiliary server failed - initiating shutdown", logger.KeyError, err)
		serveErr = err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancelShutdown()

	for _, s := range []AuxiliaryServer{r.apiServer, r.metricsServer} {
		if s == nil {
			continue
		}
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Warn("Auxiliary server stop failed", "port", s.Port(), logger.KeyError, err)
		}
	}

	if err := r.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	logger.Info("dittoaccel runtime stopped")
	return serveErr
}

// Shutdown persists the replay file, deletes every crypto bdev top of
// stack first, closes the remaining bdevs and finishes the framework. Only
// the first call does any work.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.shutdownErr = r.shutdown(ctx)
	})
	return r.shutdownErr
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var errs []error

	if r.fw != nil && r.fw.Started() {
		if err := r.saveReplayFile(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.deleteCryptoBdevs(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.bdevs.CloseAll(); err != nil {
		errs = append(errs, fmt.Errorf("close bdevs: %w", err))
	}

	if r.fw != nil {
		ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFrameworkFinish)
		err := r.fw.Shutdown(ctx)
		if errors.Is(err, accel.ErrShutdown) {
			err = nil
		}
		telemetry.EndSpan(span, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("finish accel framework: %w", err))
		}
	}
	return errors.Join(errs...)
}

// deleteCryptoBdevs deletes unclaimed crypto bdevs until none is left, so
// stacked devices go before the devices beneath them.
func (r *Runtime) deleteCryptoBdevs(ctx context.Context) error {
	for {
		var target string
		for _, info := range r.bdevs.List() {
			if d, err := r.bdevs.Get(info.Name); err == nil && info.ClaimedBy == "" {
				if _, ok := d.(*crypto.Device); ok {
					target = info.Name
					break
				}
			}
		}
		if target == "" {
			return nil
		}

		_, span := telemetry.StartSpan(ctx, telemetry.SpanBdevDelete)
		span.SetAttributes(telemetry.Bdev(target))
		done := make(chan error, 1)
		crypto.Delete(r.bdevs, target, func(err error) { done <- err })

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		telemetry.EndSpan(span, err)
		if err != nil {
			return fmt.Errorf("delete crypto bdev %s: %w", target, err)
		}
	}
}

// saveReplayFile writes the configuration dump next to the configured
// replay file and renames it into place.
func (r *Runtime) saveReplayFile() error {
	path := r.Config().Accel.ReplayFile
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("replay file: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("replay file: %w", err)
	}
	if err := r.fw.WriteConfig(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("replay file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replay file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replay file: %w", err)
	}
	logger.Info("Replay file written", logger.KeyPath, path)
	return nil
}

// ApplyConfig takes a reloaded configuration. The log level changes
// immediately; framework and bdev changes need a restart.
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	r.mu.Lock()
	old := r.cfg
	r.cfg = cfg
	r.mu.Unlock()

	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		logger.Warn("Ignoring reloaded log level", logger.KeyError, err)
	} else if old == nil || old.Logging.Level != cfg.Logging.Level {
		logger.Info("Log level changed", "level", cfg.Logging.Level)
	}

	if old != nil && (!reflect.DeepEqual(old.Accel, cfg.Accel) || !reflect.DeepEqual(old.Bdevs, cfg.Bdevs)) {
		logger.Warn("Accel or bdev configuration changed, restart to apply")
	}
}

// WatchConfig reloads path on change and applies it with ApplyConfig.
func (r *Runtime) WatchConfig(path string) error {
	return config.Watch(path, r.ApplyConfig)
}
