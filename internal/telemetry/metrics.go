// Package telemetry exposes the daemon's runtime state as Prometheus
// metrics, mirroring the teacher's per-component RegisterCollectors
// pattern (components/memory) with a single flat registration here since
// earlyoomd has only one subsystem worth instrumenting.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/earlyoomd/earlyoomd/internal/config"
)

var (
	memAvailablePct = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "earlyoomd",
		Name:      "mem_available_pct",
		Help:      "Most recently observed MemAvailable as a percentage of total memory.",
	})
	swapFreePct = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "earlyoomd",
		Name:      "swap_free_pct",
		Help:      "Most recently observed SwapFree as a percentage of total swap.",
	})
	killsBySignal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earlyoomd",
		Name:      "kills_total",
		Help:      "Number of kill escalator invocations, by terminal signal sent.",
	}, []string{"signal"})
	emergencyInvocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "earlyoomd",
		Name:      "emergency_invocations_total",
		Help:      "Number of times the emergency kill sweep fired.",
	})
)

// Register installs every collector into reg. Call once at startup; reg is
// typically prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{memAvailablePct, swapFreePct, killsBySignal, emergencyInvocations} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveMemory records the latest snapshot percentages (spec §3).
func ObserveMemory(memAvailPct, swapFreePctVal float64) {
	memAvailablePct.Set(memAvailPct)
	swapFreePct.Set(swapFreePctVal)
}

// ObserveKill increments the per-signal kill counter.
func ObserveKill(sig config.Signal) {
	killsBySignal.WithLabelValues(signalLabel(sig)).Inc()
}

// ObserveEmergency increments the emergency-invocation counter.
func ObserveEmergency() {
	emergencyInvocations.Inc()
}

func signalLabel(sig config.Signal) string {
	switch sig {
	case config.SigTerm:
		return "term"
	case config.SigKill:
		return "kill"
	default:
		return "none"
	}
}
