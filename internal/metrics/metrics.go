package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the procedure counters of one simulation run. Each run owns
// its registry so several runs can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsEstablished *prometheus.CounterVec
	ConnectionFailures     *prometheus.CounterVec
	HandoversStarted       *prometheus.CounterVec
	HandoversCompleted     *prometheus.CounterVec
	HandoverFailures       *prometheus.CounterVec
	Timeouts               *prometheus.CounterVec
	UeContexts             *prometheus.GaugeVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ConnectionsEstablished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_established_total",
				Help:      "RRC connections that reached the connected state",
			},
			[]string{"cell"},
		),
		ConnectionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_failures_total",
				Help:      "RRC connection attempts that failed",
			},
			[]string{"reason"},
		),
		HandoversStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handovers_started_total",
				Help:      "Handover commands relayed to UEs by a source cell",
			},
			[]string{"cell"},
		),
		HandoversCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handovers_completed_total",
				Help:      "Handovers completed at a target cell",
			},
			[]string{"cell"},
		),
		HandoverFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handover_failures_total",
				Help:      "Handovers aborted during preparation or execution",
			},
			[]string{"reason"},
		),
		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Protocol supervision timers that expired",
			},
			[]string{"timer"},
		),
		UeContexts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ue_contexts",
				Help:      "UE contexts currently held by a cell",
			},
			[]string{"cell"},
		),
	}
	m.Registry.MustRegister(
		m.ConnectionsEstablished,
		m.ConnectionFailures,
		m.HandoversStarted,
		m.HandoversCompleted,
		m.HandoverFailures,
		m.Timeouts,
		m.UeContexts,
	)
	return m
}

func cellLabel(cellId uint16) string {
	return fmt.Sprintf("%d", cellId)
}

func (m *Metrics) ConnectionEstablished(cellId uint16) {
	m.ConnectionsEstablished.WithLabelValues(cellLabel(cellId)).Inc()
}

func (m *Metrics) ConnectionFailed(reason string) {
	m.ConnectionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandoverStarted(cellId uint16) {
	m.HandoversStarted.WithLabelValues(cellLabel(cellId)).Inc()
}

func (m *Metrics) HandoverCompleted(cellId uint16) {
	m.HandoversCompleted.WithLabelValues(cellLabel(cellId)).Inc()
}

func (m *Metrics) HandoverFailed(reason string) {
	m.HandoverFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) TimerExpired(timer string) {
	m.Timeouts.WithLabelValues(timer).Inc()
}

func (m *Metrics) SetUeContexts(cellId uint16, n int) {
	m.UeContexts.WithLabelValues(cellLabel(cellId)).Set(float64(n))
}

// Snapshot gathers every sample as "name{label=value,...}" -> value.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			key := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
