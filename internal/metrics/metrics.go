package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NormalizeRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outfitcast_normalize_runs_total",
		Help: "Total ragged normalization runs",
	})
	NormalizeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outfitcast_normalize_errors_total",
		Help: "Normalization runs rejected because of a malformed outfit",
	})
	NormalizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outfitcast_normalize_duration_seconds",
		Help:    "Normalization duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	OutfitsNormalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outfitcast_outfits_normalized_total",
		Help: "Outfits padded into dense tensors",
	})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outfitcast_cache_lookups_total",
		Help: "Dataset cache lookups by result",
	}, []string{"result"})
	WeatherRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outfitcast_weather_requests_total",
		Help: "Weather provider lookups by source (api, cache)",
	}, []string{"source"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outfitcast_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	Predictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outfitcast_predictions_total",
		Help: "Outfits scored by the classifier",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outfitcast_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outfitcast_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(NormalizeRuns, NormalizeErrors, NormalizeDuration, OutfitsNormalized,
		CacheLookups, WeatherRequests, APIRetries, Predictions, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"). Empty addr disables it.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveNormalizeDuration records a run duration.
func ObserveNormalizeDuration(start time.Time) {
	NormalizeDuration.Observe(time.Since(start).Seconds())
}

// IncCacheLookup counts a cache lookup ("hit" or "miss").
func IncCacheLookup(result string) { CacheLookups.WithLabelValues(result).Inc() }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
