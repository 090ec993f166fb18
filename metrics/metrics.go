// Package metrics exposes Prometheus counters for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Impact report outcome labels.
const (
	OutcomeImpacts = "impacts"
	OutcomeClean   = "clean"
)

// Collaborator labels for dispatch failures.
const (
	CollaboratorEvent        = "event"
	CollaboratorNotification = "notification"
)

// Metrics holds the workflow counters.
type Metrics struct {
	// Transitions counts applied transitions, labeled by action.
	Transitions *prometheus.CounterVec

	// ImpactReports counts impact detections, labeled by outcome.
	ImpactReports *prometheus.CounterVec

	// CollaboratorFailures counts swallowed dispatch failures, labeled by
	// collaborator.
	CollaboratorFailures *prometheus.CounterVec
}

// New registers the workflow counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compmap_workflow_transitions_total",
			Help: "Subprocess workflow transitions applied, by action.",
		}, []string{"action"}),
		ImpactReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compmap_impact_reports_total",
			Help: "Impact detections performed, by outcome.",
		}, []string{"outcome"}),
		CollaboratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compmap_collaborator_failures_total",
			Help: "Best-effort collaborator dispatch failures, by collaborator.",
		}, []string{"collaborator"}),
	}
}
