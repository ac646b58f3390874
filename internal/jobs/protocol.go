package jobs

import (
	"encoding/json"
	"fmt"
)

// jobsBase возвращает базовый топик для job-control канала этого
// устройства.
func jobsBase(thingName string) string {
	return fmt.Sprintf("$aws/things/%s/jobs/", thingName)
}

// GetPendingJobExecutions — топик, на который публикуется запрос
// списка pending job executions.
func GetPendingJobExecutions(thingName string) string {
	return jobsBase(thingName) + "get"
}

// GetPendingJobExecutionsResponse — топик-фильтр ответа на запрос
// pending job executions. Пустой stateFilter означает подписку и на
// accepted, и на rejected ("+").
func GetPendingJobExecutionsResponse(thingName, stateFilter string) string {
	if stateFilter == "" {
		stateFilter = "+"
	}
	return jobsBase(thingName) + "get/" + stateFilter
}

// PendingJobsResponse — топик нотификаций о новых/изменённых pending jobs.
func PendingJobsResponse(thingName string) string {
	return jobsBase(thingName) + "notify"
}

// UpdateJobExecution — топик, на который публикуется обновление
// статуса конкретного job.
func UpdateJobExecution(thingName, jobID string) string {
	return jobsBase(thingName) + jobID + "/update"
}

// DescribeJobExecution — топик запроса описания конкретного job.
func DescribeJobExecution(thingName, jobID string) string {
	return jobsBase(thingName) + jobID + "/get"
}

// DescribeJobExecutionResponse — топик-фильтр ответа на запрос описания job.
func DescribeJobExecutionResponse(thingName, jobID, stateFilter string) string {
	if stateFilter == "" {
		stateFilter = "+"
	}
	return jobsBase(thingName) + jobID + "/get/" + stateFilter
}

// statusUpdatePayload — JSON-форма обновления статуса, публикуемого
// устройством.
type statusUpdatePayload struct {
	Status        Status        `json:"status"`
	StatusDetails StatusDetails `json:"statusDetails"`
}

// BuildStatusUpdate строит payload для публикации на UpdateJobExecution.
// Пустое сообщение сериализуется как "none", как того требует протокол.
func BuildStatusUpdate(status Status, state, message string) ([]byte, error) {
	if message == "" {
		message = "none"
	}
	return json.Marshal(statusUpdatePayload{
		Status: status,
		StatusDetails: StatusDetails{
			State:   state,
			Message: message,
		},
	})
}

// ExecutionSummary — одна запись в списке pending job executions,
// возвращаемых fetch_jobs/monitor топиками.
type ExecutionSummary struct {
	JobID    string `json:"jobId"`
	QueuedAt int64  `json:"queuedAt"`
}

// PendingExecutionsResponse — тело ответа на get-pending-job-executions.
type PendingExecutionsResponse struct {
	InProgressJobs []ExecutionSummary `json:"inProgressJobs"`
	QueuedJobs     []ExecutionSummary `json:"queuedJobs"`
}

// jobsNotifyPayload — тело нотификации на топике pending-notify.
type jobsNotifyPayload struct {
	Jobs struct {
		InProgress []ExecutionSummary `json:"IN_PROGRESS"`
		Queued     []ExecutionSummary `json:"QUEUED"`
	} `json:"jobs"`
}

// ParseNotifyPayload разбирает нотификацию pending-notify и
// отфильтровывает executions, не принадлежащие этому агенту.
func ParseNotifyPayload(raw []byte) (inProgress, queued []ExecutionSummary, err error) {
	var payload jobsNotifyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("unmarshal notify payload: %w", err)
	}
	return filterOwn(payload.Jobs.InProgress), filterOwn(payload.Jobs.Queued), nil
}

// ParsePendingExecutionsResponse разбирает accepted-ответ
// get-pending-job-executions (плоские ключи inProgressJobs/queuedJobs,
// в отличие от вложенной формы нотификации на notify-топике) и
// отфильтровывает executions, не принадлежащие этому агенту.
func ParsePendingExecutionsResponse(raw []byte) (inProgress, queued []ExecutionSummary, err error) {
	var payload PendingExecutionsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("unmarshal get-pending response: %w", err)
	}
	return filterOwn(payload.InProgressJobs), filterOwn(payload.QueuedJobs), nil
}

func filterOwn(summaries []ExecutionSummary) []ExecutionSummary {
	out := make([]ExecutionSummary, 0, len(summaries))
	for _, s := range summaries {
		if IsOwnJobID(s.JobID) {
			out = append(out, s)
		}
	}
	return out
}

// InProgressJobIDs извлекает id IN_PROGRESS job-ов из нотификации
// pending-notify (вложенная форма jobs.IN_PROGRESS, не плоский ответ
// get-pending), используется job-cancellation watcher-ом при проверке
// payload'а нотификации на предмет withdraw конкретного job.
func InProgressJobIDs(raw []byte) []string {
	var payload struct {
		Jobs struct {
			InProgress []struct {
				JobID string `json:"jobId"`
			} `json:"IN_PROGRESS"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	ids := make([]string, 0, len(payload.Jobs.InProgress))
	for _, j := range payload.Jobs.InProgress {
		ids = append(ids, j.JobID)
	}
	return ids
}

// jobDocument — форма cloud-issued job document, доставляемого в
// describe-job-execution ответе.
type jobDocument struct {
	File    string `json:"file"`
	Version string `json:"version"`
	Force   any    `json:"force,omitempty"`
	Meta    string `json:"meta,omitempty"`
}

type jobExecution struct {
	JobID         string         `json:"jobId"`
	Status        Status         `json:"status"`
	JobDocument   jobDocument    `json:"jobDocument"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
}

type describeExecutionResponse struct {
	Execution jobExecution `json:"execution"`
}

// ParseJobExecution разбирает тело accepted-ответа describe-job-execution
// в Job-значение.
func ParseJobExecution(raw []byte) (Job, error) {
	var resp describeExecutionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Job{}, fmt.Errorf("unmarshal job execution: %w", err)
	}

	exec := resp.Execution
	return Job{
		ID:            exec.JobID,
		Status:        exec.Status,
		FileURL:       exec.JobDocument.File,
		Version:       exec.JobDocument.Version,
		Force:         parseForce(exec.JobDocument.Force),
		Meta:          exec.JobDocument.Meta,
		StatusDetails: exec.StatusDetails,
	}, nil
}

// RejectedMessage разбирает тело rejected-ответа describe-job-execution
// для логирования причины отказа.
func RejectedMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return string(raw)
	}
	return payload.Message
}
