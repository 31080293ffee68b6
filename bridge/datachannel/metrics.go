/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	pluginsCreated   prometheus.Counter
	pluginsActive    prometheus.Gauge
	connects         prometheus.Counter
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	errors           prometheus.Counter
}

// newMetrics registers the datachannel collectors. It returns nil when no
// registerer is given, all methods of a nil metrics are no-ops.
func newMetrics(registerer prometheus.Registerer) *metrics {
	if registerer == nil {
		return nil
	}

	m := &metrics{
		pluginsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datachannel_plugins_created_total",
			Help: "Total number of created datachannel plugins",
		}),
		pluginsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datachannel_plugins_active",
			Help: "Number of existing datachannel plugins",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datachannel_room_connects_total",
			Help: "Total number of room connect requests",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datachannel_messages_sent_total",
			Help: "Total number of data channel messages sent",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datachannel_messages_received_total",
			Help: "Total number of data channel messages received",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datachannel_errors_total",
			Help: "Total number of signaling and peer connection errors",
		}),
	}

	registerer.MustRegister(
		m.pluginsCreated,
		m.pluginsActive,
		m.connects,
		m.messagesSent,
		m.messagesReceived,
		m.errors,
	)

	return m
}

func (m *metrics) pluginAdded() {
	if m != nil {
		m.pluginsCreated.Inc()
		m.pluginsActive.Inc()
	}
}

func (m *metrics) pluginRemoved() {
	if m != nil {
		m.pluginsActive.Dec()
	}
}

func (m *metrics) connect() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *metrics) messageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *metrics) messageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *metrics) failed() {
	if m != nil {
		m.errors.Inc()
	}
}
