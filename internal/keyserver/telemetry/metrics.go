// Package telemetry provides opt-in, low-overhead Prometheus metrics for
// the key-memory service. It is designed to be safe to call from hot
// paths: when disabled, all public functions are no-ops.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the behavior of the telemetry module.
//
// MetricsAddr, when non-empty, starts a dedicated HTTP server that serves
// /metrics. If you already expose Prometheus elsewhere, leave it empty and
// register promhttp yourself.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g., ":9090". Empty to disable the standalone endpoint
}

var modEnabled atomic.Bool

var (
	lookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymem_lookups_total",
		Help: "Total lookup requests by outcome (hit, miss)",
	}, []string{"outcome"})
	tieBreaksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keymem_tiebreaks_total",
		Help: "Total lookups where more than one slot matched and the highest-index rule decided",
	})
	slotProgramsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keymem_slot_programs_total",
		Help: "Total host-side slot programmings",
	})
	lookupSteps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "keymem_lookup_steps",
		Help:    "Engine steps per lookup transaction",
		Buckets: []float64{4, 8, 12, 16, 24, 32},
	})
	validSlots = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "keymem_valid_slots",
		Help: "Number of slots currently valid per algorithm domain",
	}, []string{"domain"})
)

func init() {
	// Register eagerly. If no Prometheus endpoint is exposed, the
	// registration is harmless.
	prometheus.MustRegister(lookupsTotal, tieBreaksTotal, slotProgramsTotal, lookupSteps, validSlots)
}

// Enable configures the module. Safe to call multiple times; subsequent
// calls replace the config.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether the telemetry module is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveLookup records one completed lookup transaction.
func ObserveLookup(found bool, matches, steps int) {
	if !modEnabled.Load() {
		return
	}
	if found {
		lookupsTotal.WithLabelValues("hit").Inc()
	} else {
		lookupsTotal.WithLabelValues("miss").Inc()
	}
	if matches > 1 {
		tieBreaksTotal.Inc()
	}
	lookupSteps.Observe(float64(steps))
}

// ObserveSlotProgram records one host-side slot programming.
func ObserveSlotProgram() {
	if !modEnabled.Load() {
		return
	}
	slotProgramsTotal.Inc()
}

// SetValidSlots updates the per-domain valid-slot gauge.
func SetValidSlots(domain string, n int) {
	if !modEnabled.Load() {
		return
	}
	validSlots.WithLabelValues(domain).Set(float64(n))
}

// startMetricsEndpoint exposes /metrics on the given addr in a background
// goroutine. Safe to call multiple times; only one server per unique addr
// will be started (best-effort).
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
