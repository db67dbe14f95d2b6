// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_gateway"

// Metrics holds the gateway collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive        prometheus.Gauge
	StateTransitions      *prometheus.CounterVec
	ReconnectsScheduled   prometheus.Counter
	SessionsTerminated    *prometheus.CounterVec
	WebhookForwards       *prometheus.CounterVec
	DeviceStatusReports   *prometheus.CounterVec
	MessagesSent          *prometheus.CounterVec
	SinkPublishes         *prometheus.CounterVec
	HandlerPanics         prometheus.Counter
	ConfigReloadTimestamp prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions with an instantiated protocol client",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by target state",
		}, []string{"state"}),
		ReconnectsScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnection attempts scheduled after a transient close",
		}),
		SessionsTerminated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions torn down by reason",
		}, []string{"reason"}),
		WebhookForwards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_forwards_total",
			Help:      "Inbound messages forwarded to the downstream webhook by result",
		}, []string{"result"}),
		DeviceStatusReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_status_reports_total",
			Help:      "Device status notifications by status and result",
		}, []string{"status", "result"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages by result",
		}, []string{"result"}),
		SinkPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publishes_total",
			Help:      "Lifecycle events published to sinks by sink and result",
		}, []string{"sink", "result"}),
		HandlerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Panics recovered while handling session events",
		}),
		ConfigReloadTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_reload_timestamp_seconds",
			Help:      "Unix time of the last successful configuration reload",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

func (m *Metrics) Transition(state string) {
	if m != nil {
		m.StateTransitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m != nil {
		m.ReconnectsScheduled.Inc()
	}
}

func (m *Metrics) Terminated(reason string) {
	if m != nil {
		m.SessionsTerminated.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Webhook(result string) {
	if m != nil {
		m.WebhookForwards.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DeviceStatus(status, result string) {
	if m != nil {
		m.DeviceStatusReports.WithLabelValues(status, result).Inc()
	}
}

func (m *Metrics) MessageSent(result string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SinkPublish(sink, result string) {
	if m != nil {
		m.SinkPublishes.WithLabelValues(sink, result).Inc()
	}
}

func (m *Metrics) Panic() {
	if m != nil {
		m.HandlerPanics.Inc()
	}
}

func (m *Metrics) ConfigReloaded(unix float64) {
	if m != nil {
		m.ConfigReloadTimestamp.Set(unix)
	}
}
