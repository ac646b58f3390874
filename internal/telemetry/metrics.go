package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики агента, экспортируемые на /metrics. Регистрируются один раз
// при загрузке пакета на стандартный реестр prometheus.
var (
	// StateTransitions считает переходы state machine по имени
	// состояния, в которое машина только что вошла.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upparat_state_transitions_total",
		Help: "Количество переходов state machine по состояниям.",
	}, []string{"state"})

	// DownloadBytes считает суммарный объём скачанных байт артефактов.
	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upparat_download_bytes_total",
		Help: "Суммарное число байт, полученных downloader-ом.",
	})

	// HookInvocations считает запуски hook-ов по команде и итоговому статусу.
	HookInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upparat_hook_invocations_total",
		Help: "Количество завершений hook-ов по команде и статусу.",
	}, []string{"hook", "status"})

	// JobsInFlight — 1, если сейчас есть job в обработке, иначе 0.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upparat_jobs_in_flight",
		Help: "1, если в данный момент обрабатывается job, иначе 0.",
	})
)
