package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	intakeTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_turns_total",
			Help: "Conversation turns processed, by outcome.",
		},
		[]string{"outcome"},
	)
	complaintsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_created_total",
			Help: "Complaints created, by department code.",
		},
		[]string{"department"},
	)
	complaintTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transitions_total",
			Help: "Complaint lifecycle transitions, by action.",
		},
		[]string{"action"},
	)
	classifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "classification_failures_total",
			Help: "Total classifications that fell back to the default department.",
		},
	)
	classifySuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "classification_success_total",
			Help: "Total successful AI classifications.",
		},
	)
	classifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classification_latency_seconds",
			Help:    "AI classification latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	llmFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_fallback_total",
			Help: "Model calls answered by the secondary provider.",
		},
	)
	notifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification pushes that failed, by kind.",
		},
		[]string{"kind"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency, intakeTurns, complaintsCreated, complaintTransitions,
		classifyFailures, classifySuccess, classifyLatency, llmFallbacks, notifyFailures, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncIntakeTurn(outcome string) {
	intakeTurns.WithLabelValues(outcome).Inc()
}

func IncComplaintCreated(departmentCode string) {
	complaintsCreated.WithLabelValues(departmentCode).Inc()
}

func IncComplaintTransition(action string) {
	complaintTransitions.WithLabelValues(action).Inc()
}

func IncClassifyFailure() {
	classifyFailures.Inc()
}

func IncClassifySuccess() {
	classifySuccess.Inc()
}

func ObserveClassifyLatency(d time.Duration) {
	classifyLatency.Observe(d.Seconds())
}

func IncLLMFallback() {
	llmFallbacks.Inc()
}

func IncNotifyFailure(kind string) {
	notifyFailures.WithLabelValues(kind).Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
