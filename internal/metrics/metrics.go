package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	clashChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planboard",
			Name:      "clash_checks_total",
			Help:      "Count of clash checks by path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	clashesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "planboard",
			Name:      "clashes_found_total",
			Help:      "Count of bookings reported as clashing.",
		},
	)

	downtimeDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planboard",
			Name:      "downtime_decision_total",
			Help:      "Count of decisions taken on clashing downtimes.",
		},
		[]string{"decision"},
	)

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planboard",
			Name:      "api_requests_total",
			Help:      "Count of persistence API requests by operation and result.",
		},
		[]string{"operation", "result"},
	)

	scheduleCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planboard",
			Name:      "schedule_cache_total",
			Help:      "Schedule cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(clashChecks, clashesFound, downtimeDecision, apiRequests, scheduleCache)
	})
}

// IncClashCheck counts a clash lookup. path is "local" or "remote", outcome
// is "clash", "no_clash" or "unknown".
func IncClashCheck(path, outcome string) {
	clashChecks.WithLabelValues(path, outcome).Inc()
}

func AddClashesFound(n int) {
	clashesFound.Add(float64(n))
}

func IncDowntimeDecision(decision string) {
	downtimeDecision.WithLabelValues(decision).Inc()
}

func IncAPIRequest(operation, result string) {
	apiRequests.WithLabelValues(operation, result).Inc()
}

func IncScheduleCache(hit bool) {
	if hit {
		scheduleCache.WithLabelValues("hit").Inc()
		return
	}
	scheduleCache.WithLabelValues("miss").Inc()
}
