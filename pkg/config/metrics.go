package config

import (
	"github.com/marmos91/dittoaccel/pkg/metrics"
)

// MetricsResult holds what InitializeMetrics created. Every field is nil
// when metrics are disabled.
type MetricsResult struct {
	Server *metrics.Server
	Accel  metrics.AccelMetrics
	Bdev   metrics.BdevMetrics
}

// InitializeMetrics creates the registry, the collectors and the metrics
// server when cfg.Metrics.Enabled is set. It must run before the
// framework and the bdevs are built so they pick the collectors up.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	metrics.InitRegistry()
	return MetricsResult{
		Server: metrics.NewServer(cfg.Metrics.Port),
		Accel:  metrics.NewAccelMetrics(),
		Bdev:   metrics.NewBdevMetrics(),
	}
}
