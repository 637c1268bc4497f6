package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	Control *ControlAuthMiddleware
	Logging *LoggingMiddleware
	Metrics *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	logger *logrus.Logger,
	controlSecret string,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		Control: NewControlAuthMiddleware(controlSecret, logger),
		Logging: NewLoggingMiddleware(logger),
		Metrics: NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
