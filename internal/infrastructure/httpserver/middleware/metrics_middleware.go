package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddleware holds the Prometheus metrics
type MetricsMiddleware struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetricsMiddleware creates a new metrics middleware instance
func NewMetricsMiddleware(requestsTotal *prometheus.CounterVec, requestDuration *prometheus.HistogramVec) *MetricsMiddleware {
	return &MetricsMiddleware{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

// CollectHTTPMetrics records every request under its route pattern, so intercepted
// paths share the catch-all label, split by the X-Cache outcome.
func (m *MetricsMiddleware) CollectHTTPMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// let echo write the error first so the recorded status is the real one
				c.Error(err)
				err = nil
			}

			duration := time.Since(start).Seconds()
			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			outcome := c.Response().Header().Get("X-Cache")
			if outcome == "" {
				outcome = "none"
			}

			m.requestsTotal.WithLabelValues(method, path, status, outcome).Inc()
			m.requestDuration.WithLabelValues(method, path, outcome).Observe(duration)

			return err
		}
	}
}
