package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_login_total",
			Help: "Total number of login attempts",
		},
	)

	// SSO callback counter
	SSOCallbackCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_sso_callback_total",
			Help: "Total number of SSO callback logins",
		},
	)

	// Tenant resolution counter by source
	ResolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_resolutions_total",
			Help: "Total number of tenant resolutions by source",
		},
		[]string{"source"}, // "primary", "membership", "idp", "domain", "default"
	)

	// Tenant-context misses on guarded routes
	TenantContextMissingCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_context_missing_total",
			Help: "Total number of requests rejected for missing tenant context",
		},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // type can be "missing_token", "invalid_token", "db_error" etc.
	)

	// Job run counter by type, terminal status and trigger origin
	JobRunCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_job_runs_total",
			Help: "Total number of scheduled job runs by outcome",
		},
		[]string{"job_type", "status", "triggered_by"},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Job run duration
	JobRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_job_run_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active sessions
	ActiveSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenancy_active_sessions",
			Help: "Number of currently active sessions",
		},
	)

	// Registered per-tenant schedule handles
	ScheduleHandlesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_schedule_handles",
			Help: "Number of active per-tenant schedule triggers",
		},
		[]string{"job_type"},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_info",
			Help: "Information about the tenancy service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(SSOCallbackCounter)
	prometheus.MustRegister(ResolutionCounter)
	prometheus.MustRegister(TenantContextMissingCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(JobRunCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(JobRunDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveSessionsGauge)
	prometheus.MustRegister(ScheduleHandlesGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordResolution increments the resolution counter for the given source
func RecordResolution(source string) {
	ResolutionCounter.With(prometheus.Labels{"source": source}).Inc()
}

// RecordJobRun increments the job run counter for a terminal run
func RecordJobRun(jobType, status, triggeredBy string) {
	JobRunCounter.With(prometheus.Labels{
		"job_type":     jobType,
		"status":       status,
		"triggered_by": triggeredBy,
	}).Inc()
}

// ObserveJobRunDuration records how long a job run took
func ObserveJobRunDuration(jobType string, d time.Duration) {
	JobRunDuration.With(prometheus.Labels{"job_type": jobType}).Observe(d.Seconds())
}

// SetScheduleHandles records the current registry size for a job type
func SetScheduleHandles(jobType string, count int) {
	ScheduleHandlesGauge.With(prometheus.Labels{"job_type": jobType}).Set(float64(count))
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Process the request
			err := next(c)

			// Track request count and duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": c.Path(),
				"method":   c.Request().Method,
				"status":   status,
			}).Inc()
			RequestDuration.With(prometheus.Labels{
				"endpoint": c.Path(),
				"method":   c.Request().Method,
				"status":   status,
			}).Observe(duration)

			return err
		}
	}
}
