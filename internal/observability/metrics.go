// Package observability concentra as métricas Prometheus do serviço.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "companychat"

// Metrics agrupa os coletores registrados pelo serviço
type Metrics struct {
	// StreamsStarted conta gerações iniciadas. Labels: generator
	StreamsStarted *prometheus.CounterVec
	// StreamsFinished conta streams encerrados. Labels: outcome (done ou código de erro)
	StreamsFinished *prometheus.CounterVec
	// StreamsActive é o número de gerações em andamento
	StreamsActive prometheus.Gauge
	// Subscribers é o número de consumidores conectados
	Subscribers prometheus.Gauge
	// Attaches conta conexões a streams. Labels: mode (new, attach, resume)
	Attaches *prometheus.CounterVec
	// Fragments conta fragmentos de conteúdo emitidos
	Fragments prometheus.Counter
	// FirstFragment mede o tempo até o primeiro fragmento
	FirstFragment prometheus.Histogram
	// StreamDuration mede a duração total da geração. Labels: outcome
	StreamDuration *prometheus.HistogramVec
	// HandlesSwept conta handles descartados pela retenção
	HandlesSwept prometheus.Counter

	// HTTPRequests conta requisições HTTP. Labels: method, route, status
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration mede a latência HTTP (streams incluídos). Labels: method, route
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registra os coletores em reg. Em testes use
// prometheus.NewRegistry() para evitar registros duplicados.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		StreamsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "started_total",
			Help:      "Total de gerações iniciadas",
		}, []string{"generator"}),
		StreamsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "finished_total",
			Help:      "Total de streams encerrados por resultado",
		}, []string{"outcome"}),
		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Gerações em andamento",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Consumidores conectados a streams",
		}),
		Attaches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "attaches_total",
			Help:      "Total de conexões a streams por modo",
		}, []string{"mode"}),
		Fragments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Total de fragmentos de conteúdo emitidos",
		}),
		FirstFragment: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "first_fragment_seconds",
			Help:      "Tempo até o primeiro fragmento",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "duration_seconds",
			Help:      "Duração total da geração",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		HandlesSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "handles_swept_total",
			Help:      "Handles descartados após a janela de retenção",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total de requisições HTTP",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latência das requisições HTTP",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

// Handler expõe as métricas no formato de texto do Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware registra contagem e latência de cada requisição pela rota
// do gin (não pelo path bruto)
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
