package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "environment_remote_calls_total",
		Help: "Calls to the remote provisioning API by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	workflowsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "environment_workflows_finished_total",
		Help: "Workflows that reached a terminal state, by type and status.",
	}, []string{"type", "status"})

	expiryActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "environment_expiry_actions_total",
		Help: "Compensation actions taken by the access-expiry reconciler.",
	}, []string{"action"})
)

func RemoteCall(endpoint, outcome string) {
	remoteCalls.WithLabelValues(endpoint, outcome).Inc()
}

func WorkflowFinished(workflowType, status string) {
	workflowsFinished.WithLabelValues(workflowType, status).Inc()
}

func ExpiryAction(action string) {
	expiryActions.WithLabelValues(action).Inc()
}
