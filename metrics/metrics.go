// Package metrics provides Prometheus instrumentation for conversation runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anchorbench"

// Model-call kinds used as the "kind" label value.
const (
	KindPrimary   = "primary"
	KindProbe     = "probe"
	KindJudge     = "judge"
	KindEmbedding = "embedding"
)

var (
	// driverRequestDuration is a histogram of model API call duration.
	driverRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "driver_request_duration_seconds",
			Help:      "Duration of model driver API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "kind"},
	)

	// driverRequestsTotal is a counter of model API calls.
	driverRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_requests_total",
			Help:      "Total number of model driver API calls",
		},
		[]string{"provider", "model", "kind", "status"}, // status: success, error
	)

	// driverTokensTotal is a counter of tokens consumed by driver calls.
	driverTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_tokens_total",
			Help:      "Total tokens consumed by model driver calls",
		},
		[]string{"provider", "model", "direction"}, // direction: input, output
	)

	// evaluatorDuration is a histogram of evaluator execution duration.
	evaluatorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluator_duration_seconds",
			Help:      "Duration of evaluator passes in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"evaluator"},
	)

	// branchTurnsTotal is a counter of completed assistant turns per branch.
	branchTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_turns_total",
			Help:      "Total assistant turns completed, by scenario branch",
		},
		[]string{"scenario", "branch", "status"}, // status: success, error
	)

	// transcriptsWrittenTotal is a counter of persisted branch transcripts.
	transcriptsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_written_total",
			Help:      "Total branch transcripts written",
		},
	)

	// runsActive is a gauge of currently running scenarios.
	runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of scenario runs currently in flight",
		},
	)

	// wsClients is a gauge of connected dashboard websocket clients.
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Number of connected dashboard websocket clients",
		},
	)

	// allMetrics is the list of collectors for registration.
	allMetrics = []prometheus.Collector{
		driverRequestDuration,
		driverRequestsTotal,
		driverTokensTotal,
		evaluatorDuration,
		branchTurnsTotal,
		transcriptsWrittenTotal,
		runsActive,
		wsClients,
	}

	registry = prometheus.NewRegistry()
)

func init() {
	for _, collector := range allMetrics {
		registry.MustRegister(collector)
	}
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Registry returns the package registry, for tests or custom exposition.
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns an http.Handler serving the package registry, for mounting
// at /metrics on an existing server.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordDriverRequest records one model driver call.
func RecordDriverRequest(provider, model, kind, status string, durationSeconds float64) {
	driverRequestDuration.WithLabelValues(provider, model, kind).Observe(durationSeconds)
	driverRequestsTotal.WithLabelValues(provider, model, kind, status).Inc()
}

// RecordDriverTokens records token consumption for one call.
func RecordDriverTokens(provider, model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		driverTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		driverTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordEvaluator records one evaluator pass.
func RecordEvaluator(name string, durationSeconds float64) {
	evaluatorDuration.WithLabelValues(name).Observe(durationSeconds)
}

// RecordBranchTurn records a completed or failed assistant turn for a branch.
func RecordBranchTurn(scenario, branch, status string) {
	branchTurnsTotal.WithLabelValues(scenario, branch, status).Inc()
}

// RecordTranscriptWritten records one persisted branch transcript.
func RecordTranscriptWritten() {
	transcriptsWrittenTotal.Inc()
}

// RecordRunStart marks a scenario run as in flight.
func RecordRunStart() {
	runsActive.Inc()
}

// RecordRunEnd marks a scenario run as finished.
func RecordRunEnd() {
	runsActive.Dec()
}

// RecordWSClientConnect tracks a dashboard websocket connection.
func RecordWSClientConnect() {
	wsClients.Inc()
}

// RecordWSClientDisconnect tracks a dashboard websocket disconnect.
func RecordWSClientDisconnect() {
	wsClients.Dec()
}
