// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the gateway's ambient counters, grounded on the
// teacher's coap/api/metrics.go decorator pattern (request counters
// registered against a prometheus registerer rather than threaded
// through every call by hand). Each Gateway owns its own Registry
// instead of registering against prometheus.DefaultRegisterer, so that
// more than one Gateway (e.g. one per test) can exist in a process
// without a duplicate-registration panic.
type Metrics struct {
	Registry *prometheus.Registry

	DroppedPackets prometheus.Counter
	LostClients    prometheus.Counter
	ClientsActive  prometheus.Gauge
}

// NewMetrics registers and returns the gateway's metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DroppedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttsn",
			Subsystem: "gateway",
			Name:      "dropped_packets_total",
			Help:      "Inbound sensor-network datagrams dropped before dispatch.",
		}),
		LostClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttsn",
			Subsystem: "gateway",
			Name:      "lost_clients_total",
			Help:      "Clients transitioned to Lost on keep-alive expiry.",
		}),
		ClientsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mqttsn",
			Subsystem: "gateway",
			Name:      "clients_active",
			Help:      "Clients currently in the Active state.",
		}),
	}
	m.Registry.MustRegister(m.DroppedPackets, m.LostClients, m.ClientsActive)
	return m
}
