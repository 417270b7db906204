// Package telemetry owns the process Prometheus registry and its /metrics
// endpoint. Components register their own collectors against Registry().
package telemetry

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "patient-service"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// PoolStatsFunc reports connection pool sizes: in use, idle and total.
type PoolStatsFunc func() (active, idle, total int64)

type Provider struct {
	cfg      Config
	registry *prometheus.Registry
}

// NewProvider returns a registry preloaded with Go runtime, process and
// build info collectors.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Service build information; always 1.",
			ConstLabels: prometheus.Labels{
				"service":     cfg.ServiceName,
				"version":     cfg.ServiceVersion,
				"environment": cfg.Environment,
			},
		}, func() float64 { return 1 }),
	)
	return &Provider{cfg: cfg, registry: reg}
}

func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// RegisterPoolStats exposes db_pool_connections{state} read from stats at
// scrape time.
func (p *Provider) RegisterPoolStats(driver string, stats PoolStatsFunc) {
	gauge := func(state string, pick func(a, i, t int64) int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "db_pool_connections",
			Help:        "Database connections by state.",
			ConstLabels: prometheus.Labels{"driver": driver, "state": state},
		}, func() float64 {
			a, i, t := stats()
			return float64(pick(a, i, t))
		})
	}
	p.registry.MustRegister(
		gauge("active", func(a, _, _ int64) int64 { return a }),
		gauge("idle", func(_, i, _ int64) int64 { return i }),
		gauge("total", func(_, _, t int64) int64 { return t }),
	)
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Registry: p.registry,
	}))
}
