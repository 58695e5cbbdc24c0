package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations by scope (project|global) and result (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuetrail_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"scope", "permission", "result"},
	)

	// VisibilityChecks counts visibility decisions by subject (project|issue|time_entry|container).
	VisibilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuetrail_visibility_checks_total",
			Help: "Total number of visibility decisions",
		},
		[]string{"subject", "result"},
	)

	// WorkflowDecisions counts transition decisions by result and reason.
	WorkflowDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuetrail_workflow_decisions_total",
			Help: "Total number of workflow transition decisions",
		},
		[]string{"result", "reason"},
	)

	// StatusConflicts counts status writes rejected by the compare-and-swap guard.
	StatusConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issuetrail_status_conflicts_total",
			Help: "Status transitions lost to a concurrent writer",
		},
	)

	// CacheLookups counts membership and role cache lookups by cache and outcome (hit|miss|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuetrail_cache_lookups_total",
			Help: "Authorization cache lookups",
		},
		[]string{"cache", "outcome"},
	)

	// HTTPDenials counts requests rejected with 401 or 403 by route.
	HTTPDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuetrail_http_denials_total",
			Help: "Requests rejected as unauthenticated or forbidden",
		},
		[]string{"path", "status"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "issuetrail_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ResultLabel maps a boolean decision onto the result label used by the counters.
func ResultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
