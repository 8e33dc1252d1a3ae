package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CircuitState is 0 closed, 1 open, 2 half-open.
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ticketing_gateway_circuit_state",
		Help: "Current circuit breaker state per payment gateway.",
	}, []string{"gateway"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_gateway_requests_total",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	Fulfillments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_fulfillment_total",
		Help: "Fulfillment attempts by outcome.",
	}, []string{"outcome"})

	FulfillmentStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_fulfillment_step_failures_total",
		Help: "Best-effort fulfillment step failures by step.",
	}, []string{"step"})
)
