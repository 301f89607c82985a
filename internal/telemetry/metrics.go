package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Task Runner'а.
var (
	// TaskDispositions — исходы обработки задач по имени задачи и исходу
	// (executed, fresh_cache, superseded, presence_lost, retry_scheduled,
	// gave_up, publish_failed, ...).
	TaskDispositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_task_dispositions_total",
		Help: "Task runner invocations by task name and disposition",
	}, []string{"task", "disposition"})

	// TaskFailures — ошибки выполнения доменной логики задач.
	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_task_failures_total",
		Help: "Domain execution failures by task name",
	}, []string{"task"})

	// TaskDuration — длительность выполнения доменной логики.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mist_task_duration_seconds",
		Help:    "Domain execution duration by task name",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms .. ~2.7m
	}, []string{"task"})

	// CacheHits — срабатывания отсечки по свежему кэшу.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_cache_hits_total",
		Help: "Fresh cache hits by task name",
	}, []string{"task"})

	// DeployOutcomes — завершения deployment-скриптов (succeeded/failed).
	DeployOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_deploy_outcomes_total",
		Help: "Deployment script runs by outcome",
	}, []string{"outcome"})

	// SweptRecords — записи кэша, удалённые sweeper'ом.
	SweptRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_swept_records_total",
		Help: "Expired cache records removed by the sweeper",
	})

	// HTTPRequests — запросы к API по шаблону маршрута и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_http_requests_total",
		Help: "API requests by route pattern and status code",
	}, []string{"method", "path", "status"})
)

// ObserveTaskDuration записывает длительность выполнения задачи.
func ObserveTaskDuration(task string, d time.Duration) {
	TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}
