package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Ledger operations
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Successful ledger operations",
		},
		[]string{"op"}, // topup_apply|sell_charge|topup_create
	)
	OperationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_failed_total",
			Help: "Failed ledger operations by reason",
		},
		[]string{"op", "reason"},
	)

	// Sale job queue
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sale_queue_depth",
			Help: "Current sale job queue depth",
		},
	)
	QueueJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sale_queue_jobs_total",
			Help: "Sale jobs consumed from the queue by outcome",
		},
		[]string{"outcome"}, // applied|rejected|retried|dropped
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationsFailed)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueJobsTotal)
}
