// Package controlplane assembles the dittoaccel daemon.
//
// The control plane owns:
//   - Runtime: the accel framework and the block devices
//   - API server: REST management of keys and crypto bdevs
//   - Metrics server: Prometheus endpoint (optional)
//
// Usage:
//
//	cp, err := controlplane.New(ctx, &controlplane.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	return cp.Serve(ctx)
package controlplane

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/marmos91/dittoaccel/pkg/controlplane/api"
	"github.com/marmos91/dittoaccel/pkg/controlplane/runtime"
)

// ControlPlane ties the runtime to its HTTP servers.
type ControlPlane struct {
	runtime   *runtime.Runtime
	apiServer *api.Server
}

// Options configures the ControlPlane.
type Options struct {
	// Config is the validated daemon configuration.
	Config *config.Config

	// Metrics holds the collectors and server from
	// config.InitializeMetrics. The zero value disables metrics.
	Metrics config.MetricsResult
}

// New initializes the runtime and creates the API server. The servers do
// not listen until Serve.
func New(ctx context.Context, opts *Options) (*ControlPlane, error) {
	if opts == nil || opts.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	rt, err := runtime.Initialize(ctx, opts.Config,
		runtime.WithAccelMetrics(opts.Metrics.Accel),
		runtime.WithBdevMetrics(opts.Metrics.Bdev),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}

	apiServer, err := api.NewServer(opts.Config.API, api.Deps{
		Accel:       rt.Framework(),
		Bdevs:       rt.Bdevs(),
		BdevMetrics: rt.BdevMetrics(),
	})
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	rt.SetAPIServer(apiServer)
	logger.Info("API server configured", "port", apiServer.Port())

	if opts.Metrics.Server != nil {
		rt.SetMetricsServer(opts.Metrics.Server)
		logger.Info("Metrics enabled", "port", opts.Metrics.Server.Port())
	} else {
		logger.Info("Metrics collection disabled")
	}

	return &ControlPlane{runtime: rt, apiServer: apiServer}, nil
}

// Runtime returns the runtime.
func (cp *ControlPlane) Runtime() *runtime.Runtime {
	return cp.runtime
}

// APIServer returns the API server.
func (cp *ControlPlane) APIServer() *api.Server {
	return cp.apiServer
}

// Serve runs until ctx is cancelled, then shuts everything down.
func (cp *ControlPlane) Serve(ctx context.Context) error {
	return cp.runtime.Serve(ctx)
}
