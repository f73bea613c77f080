package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	controlRequests *prometheus.CounterVec
	selfPings       *prometheus.CounterVec
	notifySends     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		controlRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_control_requests_total",
				Help: "Total control requests handled, by operation",
			},
			[]string{"operation"},
		),
		selfPings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_self_pings_total",
				Help: "Total loopback pings issued by the main loop, by result",
			},
			[]string{"result"},
		),
		notifySends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_notify_sends_total",
				Help: "Total supervisor notifications attempted, by token and result",
			},
			[]string{"token", "result"},
		),
	}
}

// recordSend counts a SendIfEnabled outcome. Sends skipped because forwarding is off are not counted.
func (m *metrics) recordSend(token string, sent bool, err error) {
	switch {
	case err != nil:
		m.notifySends.WithLabelValues(token, "error").Inc()
	case sent:
		m.notifySends.WithLabelValues(token, "ok").Inc()
	}
}

func (m *metrics) recordPing(err error) {
	if err != nil {
		m.selfPings.WithLabelValues("error").Inc()
		return
	}
	m.selfPings.WithLabelValues("ok").Inc()
}
