package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	taskPlanner = "task_planner"

	jobsSubmittedTotal  = "jobs_submitted_total"
	jobTransitionsTotal = "job_transitions_total"

	// Labels
	jobStateLabel = "state"
)

var jobTransitionsLabels = []string{
	jobStateLabel,
}

/**
* Metrics definition
**/
var jobsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: taskPlanner,
		Name:      jobsSubmittedTotal,
		Help:      "number of total jobs submitted",
	},
)

var jobTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: taskPlanner,
		Name:      jobTransitionsTotal,
		Help:      "number of job state transitions partitioned by the state entered",
	},
	jobTransitionsLabels,
)

func IncreaseJobsSubmittedTotalMetric() {
	jobsSubmittedTotalMetric.Inc()
}

func IncreaseJobTransitionsTotalMetric(state string) {
	labels := prometheus.Labels{
		jobStateLabel: state,
	}
	jobTransitionsTotalMetric.With(labels).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobTransitionsTotalMetric)
}
