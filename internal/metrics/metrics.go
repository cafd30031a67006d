// Package metrics - Prometheus метрики сервиса синхронизации.
// Экспортируются через /metrics (promhttp в api.SetupRoutes).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradesync"

// ============ Синхронизация ============

// SyncRuns - завершённые запуски пайплайна по результату (ok или вид ошибки)
var SyncRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Total number of sync pipeline runs by result",
	},
	[]string{"result"},
)

// SyncDuration - длительность пайплайна целиком
var SyncDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Sync pipeline duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"source"},
)

// TradesImported - сохранённые сделки по виду источника
var TradesImported = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "trades_imported_total",
		Help:      "Total number of trades upserted",
	},
	[]string{"source"},
)

// RecordsSkipped - записи, отброшенные нормализатором
var RecordsSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_skipped_total",
		Help:      "Total number of records rejected by normalization",
	},
	[]string{"source"},
)

// RateLimited - отказы лимитера
var RateLimited = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "rate_limited_total",
		Help:      "Number of sync requests rejected by the rate limiter",
	},
)

// RateLimiterKeys - ключи, которые лимитер держит в памяти
var RateLimiterKeys = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "rate_limiter_keys",
		Help:      "Number of user keys tracked by the sync rate limiter",
	},
)

// ============ Провайдеры ============

// ProviderLatency - время запроса к провайдеру
var ProviderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "request_duration_ms",
		Help:      "Provider request latency in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	},
	[]string{"provider", "operation"},
)

// ProviderRequests - запросы к провайдеру по результату
var ProviderRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Total number of provider requests by result",
	},
	[]string{"provider", "operation", "result"}, // result: ok, rejected, error
)

// ============ HTTP ============

// HTTPDuration - длительность обработки HTTP запроса
var HTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// ============ Вспомогательные функции ============

// RecordSync записывает результат запуска синхронизации
func RecordSync(result, source string, imported, skipped int, d time.Duration) {
	SyncRuns.WithLabelValues(result).Inc()
	if source == "" {
		source = "none"
	}
	SyncDuration.WithLabelValues(source).Observe(d.Seconds())
	if imported > 0 {
		TradesImported.WithLabelValues(source).Add(float64(imported))
	}
	if skipped > 0 {
		RecordsSkipped.WithLabelValues(source).Add(float64(skipped))
	}
}

// RecordProviderRequest записывает один запрос к провайдеру
func RecordProviderRequest(provider, operation, result string, d time.Duration) {
	ProviderLatency.WithLabelValues(provider, operation).Observe(float64(d.Microseconds()) / 1000)
	ProviderRequests.WithLabelValues(provider, operation, result).Inc()
}

// RecordRateLimited увеличивает счётчик отказов лимитера
func RecordRateLimited() {
	RateLimited.Inc()
}

// SetRateLimiterKeys выставляет число отслеживаемых ключей лимитера
func SetRateLimiterKeys(n int) {
	RateLimiterKeys.Set(float64(n))
}

// RecordHTTPRequest записывает обработанный HTTP запрос
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
