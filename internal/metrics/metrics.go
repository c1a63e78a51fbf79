// Package metrics exposes the orchestrator's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_provision_total",
		Help: "Provisioning requests by outcome.",
	}, []string{"outcome"})

	ShapeFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_shape_fallback_total",
		Help: "Launch attempts that fell back from the requested shape, by reason.",
	}, []string{"reason"})

	DriftDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_drift_detected_total",
		Help: "Provider-side resources found deleted outside the platform.",
	})

	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_reconcile_total",
		Help: "Post-launch reconcile workflows by outcome.",
	}, []string{"outcome"})

	ActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_instance_action_total",
		Help: "Instance actions by action and outcome.",
	}, []string{"action", "outcome"})

	TeardownTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_teardown_total",
		Help: "Boundary teardowns by outcome.",
	}, []string{"outcome"})
)
