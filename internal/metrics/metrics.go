package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uplight"

// Annotation result labels.
const (
	AnnotationSuccess = "success"
	AnnotationError   = "error"
	AnnotationSkipped = "skipped"
)

var (
	roundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of completed check rounds, partitioned by job.",
		},
		[]string{"job"},
	)

	roundDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Round latency in seconds, partitioned by job.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"job"},
	)

	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Total number of persisted check results, partitioned by location and outcome.",
		},
		[]string{"location", "outcome"},
	)

	checkRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_retries_total",
			Help:      "Total number of extra probe attempts, partitioned by location.",
		},
		[]string{"location"},
	)

	incidentsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_opened_total",
			Help:      "Total number of incidents opened, partitioned by cause.",
		},
		[]string{"cause"},
	)

	incidentsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_resolved_total",
			Help:      "Total number of incidents resolved, partitioned by cause.",
		},
		[]string{"cause"},
	)

	notificationsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of failed notification deliveries, partitioned by sink.",
		},
		[]string{"sink"},
	)

	annotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotations_total",
			Help:      "Total number of incident annotation attempts, partitioned by result.",
		},
		[]string{"result"},
	)

	dispatchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of executor transport failures, partitioned by location.",
		},
		[]string{"location"},
	)
)

// Register attaches the Uplight collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		roundsTotal,
		roundDurationSeconds,
		checksTotal,
		checkRetriesTotal,
		incidentsOpenedTotal,
		incidentsResolvedTotal,
		notificationsFailedTotal,
		annotationsTotal,
		dispatchErrorsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRound records a finished round of the given job.
func ObserveRound(job string, duration time.Duration) {
	roundsTotal.WithLabelValues(job).Inc()
	if duration < 0 {
		duration = 0
	}
	roundDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveCheck records one persisted result and its extra attempts.
func ObserveCheck(location, outcome string, retries int) {
	checksTotal.WithLabelValues(location, outcome).Inc()
	if retries > 0 {
		checkRetriesTotal.WithLabelValues(location).Add(float64(retries))
	}
}

func IncidentOpened(cause string) {
	incidentsOpenedTotal.WithLabelValues(cause).Inc()
}

func IncidentResolved(cause string) {
	incidentsResolvedTotal.WithLabelValues(cause).Inc()
}

func NotificationFailed(sink string) {
	notificationsFailedTotal.WithLabelValues(sink).Inc()
}

// ObserveAnnotation counts an annotation attempt. Unknown labels count as errors.
func ObserveAnnotation(result string) {
	switch result {
	case AnnotationSuccess, AnnotationSkipped:
	default:
		result = AnnotationError
	}
	annotationsTotal.WithLabelValues(result).Inc()
}

func DispatchError(location string) {
	dispatchErrorsTotal.WithLabelValues(location).Inc()
}
