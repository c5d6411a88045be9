// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SourceSingle = "single"
	SourceBulk   = "bulk"

	EffectEmail = "email"
	EffectVisa  = "visa_ack"
	EffectSim   = "sim_ack"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RidersCreatedTotal    *prometheus.CounterVec
	SideEffectsTotal      *prometheus.CounterVec
	AuthorizationsTotal   *prometheus.CounterVec
	OTPVerificationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RidersCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_riders_created_total",
				Help: "Riders created, by creation path",
			},
			[]string{"source"},
		),
		SideEffectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_onboarding_side_effects_total",
				Help: "Onboarding side effects by kind and outcome",
			},
			[]string{"effect", "outcome"},
		),
		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_authorization_decisions_total",
				Help: "Permission checks by result",
			},
			[]string{"result"},
		),
		OTPVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_otp_verifications_total",
				Help: "Registration OTP verifications by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RidersCreatedTotal,
		m.SideEffectsTotal,
		m.AuthorizationsTotal,
		m.OTPVerificationsTotal,
	)

	return m
}

// NewNop returns metrics registered on a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// SideEffect records the outcome of one onboarding side effect.
func (m *Metrics) SideEffect(effect string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.SideEffectsTotal.WithLabelValues(effect, outcome).Inc()
}

// Authorization records an allow or deny decision.
func (m *Metrics) Authorization(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.AuthorizationsTotal.WithLabelValues(result).Inc()
}

// OTPVerification records whether a registration code was accepted.
func (m *Metrics) OTPVerification(ok bool) {
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	m.OTPVerificationsTotal.WithLabelValues(result).Inc()
}

// RiderCreated counts a rider created through source.
func (m *Metrics) RiderCreated(source string) {
	m.RidersCreatedTotal.WithLabelValues(source).Inc()
}

// GinMiddleware instruments requests by their route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
