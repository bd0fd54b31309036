package httpserver

import (
	"net/http"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	wishesInserted   prometheus.Counter
	wishesBurned     prometheus.Counter
	requestsLimited  prometheus.Counter
	realtimeClients  prometheus.Gauge
	realtimeMessages *prometheus.CounterVec
}

// newMetrics registers the server's collectors on a private registry so
// several servers can live in one process.
func newMetrics(board *domain.Board) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		wishesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanterns_wishes_inserted_total",
			Help: "Wishes accepted by POST /api/wishes.",
		}),
		wishesBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanterns_wishes_burned_total",
			Help: "Successful burn updates.",
		}),
		requestsLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanterns_requests_rate_limited_total",
			Help: "Wish submissions rejected by the rate limiter.",
		}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanterns_realtime_clients",
			Help: "Open realtime WebSocket connections.",
		}),
		realtimeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lanterns_realtime_messages_total",
			Help: "Change events written to realtime clients, by event type.",
		}, []string{"event_type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.wishesInserted,
		m.wishesBurned,
		m.requestsLimited,
		m.realtimeClients,
		m.realtimeMessages,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lanterns_board_active_wishes",
			Help: "Wishes currently floating on the board.",
		}, func() float64 { return float64(len(board.Active())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lanterns_board_total_wishes",
			Help: "Wishes launched so far, burned ones included.",
		}, func() float64 { return float64(board.Total()) }),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
