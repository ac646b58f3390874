// Package jobs описывает модель данных cloud-issued update job и
// чистые функции протокола топиков/payload-ов AWS IoT Jobs-style канала.
package jobs

import "strings"

// JobIDPrefix — namespace, которому должны принадлежать все job id,
// которые этот агент готов обрабатывать. Jobs с чужим префиксом
// полностью игнорируются (могут быть созданы другим сервисом в том же
// cloud-аккаунте).
const JobIDPrefix = "upparat_"

// IsOwnJobID проверяет принадлежность job id этому агенту.
func IsOwnJobID(id string) bool {
	return strings.HasPrefix(id, JobIDPrefix)
}

// Status — top-level статус job, как его видит cloud.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFailed     Status = "FAILED"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusCanceled   Status = "CANCELED"
	StatusTimedOut   Status = "TIMED_OUT"
	StatusRejected   Status = "REJECTED"
	StatusRemoved    Status = "REMOVED"
)

// ProgressSubState — device-defined под-статусы для IN_PROGRESS обновлений.
type ProgressSubState string

const (
	ProgressDownloadStart          ProgressSubState = "download_start"
	ProgressDownloadProgress       ProgressSubState = "download_progress"
	ProgressDownloadInterrupt      ProgressSubState = "download_interrupt"
	ProgressInstallationStart      ProgressSubState = "installation_start"
	ProgressInstallationProgress   ProgressSubState = "installation_progress"
	ProgressInstallationInterrupt  ProgressSubState = "installation_interrupt"
	ProgressRebootStart            ProgressSubState = "reboot_start"
	ProgressRebootInterrupt        ProgressSubState = "reboot_interrupt"
	ProgressErrorMultipleInProgress ProgressSubState = "error_multiple_in_progress"
)

// SuccessSubState — device-defined под-статусы для SUCCEEDED обновлений.
type SuccessSubState string

const (
	SuccessVersionAlreadyInstalled SuccessSubState = "version_already_installed"
	SuccessNoInstallationHook      SuccessSubState = "no_installation_hook_provided"
	SuccessNoRestartHook           SuccessSubState = "no_restart_hook_provided"
	SuccessCompleteSoftRestart     SuccessSubState = "complete_soft_restart"
	SuccessCompleteNoVersionCheck  SuccessSubState = "complete_no_version_check"
	SuccessCompleteNoReadyCheck    SuccessSubState = "complete_no_ready_check"
	SuccessCompleteReady           SuccessSubState = "complete_ready"
)

// FailureSubState — device-defined под-статусы для FAILED обновлений.
type FailureSubState string

const (
	FailureInstallationHookFailed FailureSubState = "installation_hook_failed"
	FailureDownloadHookFailed     FailureSubState = "download_hook_failed"
	FailureRestartHookFailed      FailureSubState = "restart_hook_failed"
	FailureVersionHookFailed      FailureSubState = "version_hook_failed"
	FailureReadyHookFailed        FailureSubState = "ready_hook_failed"
	FailureVersionMismatch        FailureSubState = "version_mismatch"
)

// StatusDetails — внутреннее под-состояние, persist-ится в cloud рядом
// с top-level статусом, чтобы после ребута устройство могло
// восстановить, где оно остановилось.
type StatusDetails struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// Job — immutable снимок cloud-issued update job. Job никогда не
// мутируется локально; переходы статуса публикуются в cloud, а не
// записываются обратно в это значение.
type Job struct {
	ID            string
	Status        Status
	FileURL       string
	Version       string
	Force         bool
	Meta          string
	StatusDetails *StatusDetails
}

// InternalState возвращает device-defined под-состояние job, если
// cloud его вернул, иначе пустую строку.
func (j Job) InternalState() string {
	if j.StatusDetails == nil {
		return ""
	}
	return j.StatusDetails.State
}

// FilePath возвращает путь к артефакту для данного job внутри
// download-директории. Детерминирован по id job-а: два разных job
// никогда не делят один и тот же локальный путь.
func FilePath(downloadDir, jobID string) string {
	return downloadDir + "/" + jobID
}

// parseForce реализует решение по Open Question спецификации:
// force может прийти как JSON bool или как строка из документированного
// набора truthy-значений.
func parseForce(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "yes", "true", "on", "1":
			return true
		}
	}
	return false
}
