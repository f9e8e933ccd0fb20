package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records submission pipeline activity.
type EngineMetrics struct {
	Attempts          *prometheus.CounterVec
	Outcomes          *prometheus.CounterVec
	PollRounds        prometheus.Counter
	FallbackEstimates prometheus.Counter
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registered on the
// default registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tronforge",
				Subsystem: "submit",
				Name:      "attempts_total",
				Help:      "Submission attempts segmented by strategy and mode.",
			}, []string{"strategy", "mode"}),
			Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tronforge",
				Subsystem: "submit",
				Name:      "outcomes_total",
				Help:      "Terminal submission outcomes segmented by disposition.",
			}, []string{"outcome"}),
			PollRounds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tronforge",
				Subsystem: "submit",
				Name:      "poll_rounds_total",
				Help:      "Confirmation polling rounds performed.",
			}),
			FallbackEstimates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tronforge",
				Subsystem: "estimate",
				Name:      "fallbacks_total",
				Help:      "Resource estimates that degraded to the conservative fallback.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.Attempts,
			engineRegistry.Outcomes,
			engineRegistry.PollRounds,
			engineRegistry.FallbackEstimates,
		)
	})
	return engineRegistry
}
