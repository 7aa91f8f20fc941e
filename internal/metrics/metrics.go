package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DerivationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bhf_derivations_total",
		Help: "Total stats derivations, by resulting layout kind",
	}, []string{"layout"})
	DeriveFaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bhf_derive_faults_total",
		Help: "Measurements degraded to zero because of a geometry fault",
	}, []string{"stage"})
	LayoutProbesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bhf_layout_probes_total",
		Help: "Geometry record types probed for a bounds field layout",
	})
	LayoutUnresolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bhf_layout_unresolved_total",
		Help: "Geometry record types whose bounds layout could not be resolved",
	})
	SelectionChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bhf_selection_changes_total",
		Help: "Selection changes observed by the frame loop",
	})
	BindingClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bhf_binding_clients",
		Help: "Connected binding websocket clients",
	})
)

func init() {
	prometheus.MustRegister(
		DerivationsTotal,
		DeriveFaultsTotal,
		LayoutProbesTotal,
		LayoutUnresolvedTotal,
		SelectionChangesTotal,
		BindingClients,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
