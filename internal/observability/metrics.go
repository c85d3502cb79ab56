package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveCalls       prometheus.Gauge
	PresenceEvents    *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	WSDropped         *prometheus.CounterVec
	TypingEvents      *prometheus.CounterVec
	MessageStatus     *prometheus.CounterVec
	ReactionEvents    *prometheus.CounterVec
	CallTransitions   *prometheus.CounterVec
	IceCandidates     *prometheus.CounterVec
	PersistOps        *prometheus.CounterVec
	StatusEvents      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the relay instruments on reg. Passing nil uses the
// default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of users with a registered connection.",
		}),
		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of call sessions not yet in a terminal state.",
		}),
		PresenceEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Presence transitions by event.",
		}, []string{"event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_total",
			Help:      "Outbound frames dropped because a connection queue was full or closed.",
		}, []string{"type"}),
		TypingEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_events_total",
			Help:      "Typing indicator transitions by event.",
		}, []string{"event"}),
		MessageStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_status_total",
			Help:      "Message status advances by target status.",
		}, []string{"status"}),
		ReactionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaction_events_total",
			Help:      "Reaction mutations by action.",
		}, []string{"action"}),
		CallTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transitions_total",
			Help:      "Call session transitions by resulting status.",
		}, []string{"status"}),
		IceCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ice_candidates_total",
			Help:      "ICE candidates by handling action.",
		}, []string{"action"}),
		PersistOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_ops_total",
			Help:      "External store writes by operation and result.",
		}, []string{"op", "result"}),
		StatusEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_events_total",
			Help:      "Status post notifications by event.",
		}, []string{"event"}),
	}
}

func (m *Metrics) ObservePresence(event string) {
	if m != nil {
		m.PresenceEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ObserveTyping(event string) {
	if m != nil {
		m.TypingEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ObserveMessageStatus(status string) {
	if m != nil {
		m.MessageStatus.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveReaction(action string) {
	if m != nil {
		m.ReactionEvents.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) ObserveCallTransition(status string) {
	if m != nil {
		m.CallTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveIceCandidate(action string) {
	if m != nil {
		m.IceCandidates.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) ObservePersist(op, result string) {
	if m != nil {
		m.PersistOps.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) ObserveStatusEvent(event string) {
	if m != nil {
		m.StatusEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m != nil {
		m.WSMessages.WithLabelValues(direction, msgType).Inc()
	}
}

func (m *Metrics) ObserveDropped(msgType string) {
	if m != nil {
		m.WSDropped.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) SetActiveConnections(n int) {
	if m != nil {
		m.ActiveConnections.Set(float64(n))
	}
}

func (m *Metrics) SetActiveCalls(n int) {
	if m != nil {
		m.ActiveCalls.Set(float64(n))
	}
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
