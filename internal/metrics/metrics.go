package metrics

import (
	"net/http"
	"strconv"
	"time"

	"quiz-attempt-service/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ app.Recorder = (*Metrics)(nil)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	attemptsStarted  prometheus.Counter
	submissions      *prometheus.CounterVec
	scoreIncrements  prometheus.Counter
	scoreboardPoints prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		attemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Attempts created from a quiz snapshot",
		}),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Submission outcomes",
			},
			[]string{"outcome"},
		),
		scoreIncrements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scoreboard_increments_total",
			Help: "Submissions that raised a user's scoreboard total",
		}),
		scoreboardPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scoreboard_points_added_total",
			Help: "Sum of deltas applied to scoreboard totals",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.attemptsStarted,
		m.submissions,
		m.scoreIncrements,
		m.scoreboardPoints,
	)
	return m
}

func (m *Metrics) AttemptStarted() {
	m.attemptsStarted.Inc()
}

func (m *Metrics) AttemptSubmitted(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScoreRaised(delta int) {
	m.scoreIncrements.Inc()
	if delta > 0 {
		m.scoreboardPoints.Add(float64(delta))
	}
}

// Middleware records request counts and latencies by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
