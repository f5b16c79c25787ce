// Package metrics holds the Prometheus collectors shared by the ingestion jobs.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketdata"

// Set is a registry plus the collectors registered on it.
type Set struct {
	Registry *prometheus.Registry

	Units         *prometheus.CounterVec
	UnitFailures  *prometheus.CounterVec
	InFlight      *prometheus.GaugeVec
	PeakInFlight  *prometheus.GaugeVec
	Records       *prometheus.CounterVec
	RowsCommitted *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// New builds a Set on a fresh registry with Go and process collectors.
func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Set{
		Registry: reg,
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_units_total",
			Help:      "Fetch units completed, by orchestrator scope and outcome.",
		}, []string{"scope", "outcome"}),
		UnitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_unit_failures_total",
			Help:      "Swallowed fetch unit failures, by scope and kind.",
		}, []string{"scope", "kind"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight",
			Help:      "Fetch units currently holding a concurrency slot.",
		}, []string{"scope"}),
		PeakInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight_peak",
			Help:      "Highest observed in-flight count for the current run.",
		}, []string{"scope"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records seen by the persistence stage, by entity and disposition.",
		}, []string{"entity", "disposition"}),
		RowsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_committed_total",
			Help:      "Rows changed by committed runs.",
		}, []string{"job"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"job", "status"}),
	}

	reg.MustRegister(s.Units, s.UnitFailures, s.InFlight, s.PeakInFlight, s.Records, s.RowsCommitted, s.RunDuration)
	return s
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}

var (
	globalMu  sync.Mutex
	globalSet *Set
)

// M returns the process-wide Set, creating it on first use.
func M() *Set {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalSet == nil {
		globalSet = New()
	}
	return globalSet
}
