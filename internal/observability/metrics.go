package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "frames_total",
			Help:      "Incoming frames routed by the session reader.",
		},
		[]string{"result"},
	)
	controlReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "control_replies_total",
			Help:      "Control-plane replies delivered to the correlator.",
		},
		[]string{"kind"},
	)
	asyncMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "async_messages_total",
			Help:      "Endpoint data messages routed to mailboxes.",
		},
	)
	writeAcks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "write_acks_total",
			Help:      "Acknowledged endpoint writes.",
		},
	)
	controlledEndpoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "controlled_endpoints",
			Help:      "Endpoints currently under exclusive control.",
		},
	)
	mailboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "serial_keel",
			Subsystem: "session",
			Name:      "mailbox_depth",
			Help:      "Messages buffered per endpoint mailbox.",
		},
		[]string{"endpoint"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionFrames,
			controlReplies,
			asyncMessages,
			writeAcks,
			controlledEndpoints,
			mailboxDepth,
		)
	})
}

func RecordFrame(result string) {
	RegisterMetrics()
	sessionFrames.WithLabelValues(result).Inc()
}

func RecordControlReply(kind string) {
	RegisterMetrics()
	controlReplies.WithLabelValues(kind).Inc()
}

func RecordAsyncMessage() {
	RegisterMetrics()
	asyncMessages.Inc()
}

func RecordWriteAck() {
	RegisterMetrics()
	writeAcks.Inc()
}

func SetControlledEndpoints(n int) {
	RegisterMetrics()
	controlledEndpoints.Set(float64(n))
}

func SetMailboxDepth(endpoint string, depth int) {
	RegisterMetrics()
	mailboxDepth.WithLabelValues(endpoint).Set(float64(depth))
}
