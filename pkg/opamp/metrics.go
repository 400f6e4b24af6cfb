package opamp

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "otelagent_opamp"

// clientMetrics tracks control plane traffic.
//
// Metrics:
//   - otelagent_opamp_messages_sent_total: messages answered by the control plane, by kind
//   - otelagent_opamp_send_failures_total: messages that failed in transport, by kind
//   - otelagent_opamp_remote_configs_total: remote configs processed, by status
//   - otelagent_opamp_sequence_number: sequence number of the next message
type clientMetrics struct {
	messagesSent   *prometheus.CounterVec
	sendFailures   *prometheus.CounterVec
	remoteConfigs  *prometheus.CounterVec
	sequenceNumber prometheus.Gauge
}

// newClientMetrics creates the client metrics and registers them when reg is
// non-nil.
func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages answered by the control plane",
			},
			[]string{"kind"},
		),
		sendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "send_failures_total",
				Help:      "Total number of messages that failed to reach the control plane",
			},
			[]string{"kind"},
		),
		remoteConfigs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "remote_configs_total",
				Help:      "Total number of remote configs processed",
			},
			[]string{"status"},
		),
		sequenceNumber: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sequence_number",
				Help:      "Sequence number of the next outgoing message",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.messagesSent,
			m.sendFailures,
			m.remoteConfigs,
			m.sequenceNumber,
		)
	}
	return m
}
