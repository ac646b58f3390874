// Package inbox реализует единственную multi-producer/single-consumer
// очередь, через которую все фоновые источники событий (bus I/O
// горутина, hook-раннеры, downloader, сигналы ОС) передают события в
// однопоточный state machine event loop.
package inbox

import "github.com/shaiso/upparat/internal/jobs"

// Name — имя события. Группируется по происхождению: переходы
// state machine, bus I/O, жизненный цикл hook-а, сигналы процесса.
type Name string

const (
	// Enter/Exit — имена служебных событий входа/выхода состояния.
	// Машина их в inbox не ставит: она вызывает OnEnter/OnExit
	// состояний напрямую.
	Enter Name = "enter"
	Exit  Name = "exit"

	NoJobsPending           Name = "no-jobs-pending"
	JobsAvailable           Name = "jobs-available"
	JobSelected             Name = "job-selected"
	SelectJobInterrupted    Name = "select-job-interrupted"
	JobInstallationDone     Name = "job-installation-done"
	JobInstallationComplete Name = "job-installation-complete"
	JobVerified             Name = "job-verified"
	JobRevoked              Name = "job-revoked"

	DownloadCompleted   Name = "download-completed"
	DownloadInterrupted Name = "download-interrupted"

	InstallationDone        Name = "installation-done"
	InstallationInterrupted Name = "installation-interrupted"

	RestartInterrupted Name = "restart-interrupted"

	// MQTTMessageReceived — сырое сообщение с bus-а.
	MQTTMessageReceived Name = "mqtt-message-received"
	// MQTTSubscribed/MQTTUnsubscribed — завершение подписки/отписки,
	// доставленное уже с привязанным топиком (см. internal/bus).
	MQTTSubscribed   Name = "mqtt-subscribed"
	MQTTUnsubscribed Name = "mqtt-unsubscribed"

	// ExitSignalSent — получен SIGINT/SIGTERM.
	ExitSignalSent Name = "exit-signal"

	// Hook — промежуточное или терминальное событие запущенного hook-а.
	Hook Name = "hook"
)

// HookStatus — под-статус события Hook.
type HookStatus string

const (
	HookStatusOutput    HookStatus = "output"
	HookStatusCompleted HookStatus = "completed"
	HookStatusFailed    HookStatus = "failed"
	HookStatusTimedOut  HookStatus = "timed_out"
)

// ExecutionSummaries переносит разбор pending job executions из
// fetch_jobs/monitor в select_job.
type ExecutionSummaries struct {
	InProgress []jobs.ExecutionSummary
	Queued     []jobs.ExecutionSummary
}

// Event — таговое объединение: имя плюс набор именованных данных.
// Поля, не относящиеся к событию данного имени, остаются нулевыми —
// прямой аналог python-овского `pysm.Event(name, **cargo)`, выраженный
// как структура с типизированными полями вместо произвольного
// map[string]any на каждом месте использования.
type Event struct {
	Name Name

	// MQTT cargo.
	Topic   string
	Payload []byte

	// Hook cargo.
	HookCommand string
	HookStatus  HookStatus
	HookMessage string

	// Job cargo — job, переносимый между состояниями машины.
	Job *jobs.Job

	// Summaries cargo — выдача fetch_jobs/monitor для select_job.
	Summaries *ExecutionSummaries
}

// New создаёт событие без cargo.
func New(name Name) Event {
	return Event{Name: name}
}

// WithMQTT создаёт mqtt-message-received событие.
func WithMQTT(topic string, payload []byte) Event {
	return Event{Name: MQTTMessageReceived, Topic: topic, Payload: payload}
}

// WithTopic создаёт mqtt-subscribed/mqtt-unsubscribed событие.
func WithTopic(name Name, topic string) Event {
	return Event{Name: name, Topic: topic}
}

// WithHook создаёт hook-событие.
func WithHook(command string, status HookStatus, message string) Event {
	return Event{Name: Hook, HookCommand: command, HookStatus: status, HookMessage: message}
}

// WithJob создаёт событие с привязанным job (download-completed).
func WithJob(name Name, job jobs.Job) Event {
	return Event{Name: name, Job: &job}
}

// WithSummaries создаёт jobs-available событие.
func WithSummaries(inProgress, queued []jobs.ExecutionSummary) Event {
	return Event{Name: JobsAvailable, Summaries: &ExecutionSummaries{InProgress: inProgress, Queued: queued}}
}
