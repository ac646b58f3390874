package statemachine

import (
	"fmt"

	"github.com/shaiso/upparat/internal/jobs"
)

// publishProgress публикует IN_PROGRESS статус с заданным под-состоянием.
func publishProgress(env *Env, jobID string, sub jobs.ProgressSubState, message string) {
	publishStatus(env, jobID, jobs.StatusInProgress, string(sub), message)
}

// publishSucceeded публикует SUCCEEDED статус с заданным под-состоянием.
func publishSucceeded(env *Env, jobID string, sub jobs.SuccessSubState, message string) {
	publishStatus(env, jobID, jobs.StatusSucceeded, string(sub), message)
}

// publishFailed публикует FAILED статус с заданным под-состоянием.
func publishFailed(env *Env, jobID string, sub jobs.FailureSubState, message string) {
	publishStatus(env, jobID, jobs.StatusFailed, string(sub), message)
}

func publishStatus(env *Env, jobID string, status jobs.Status, sub, message string) {
	payload, err := jobs.BuildStatusUpdate(status, sub, message)
	if err != nil {
		env.Logger.Error("build status update failed", "job_id", jobID, "error", err)
		return
	}
	topic := jobs.UpdateJobExecution(env.Cfg.Broker.ThingName, jobID)
	if err := env.Bus.Publish(topic, payload); err != nil {
		env.Logger.Error("publish status update failed", "job_id", jobID, "error", err)
	}
}

// failAll провал каждого id из ids с одним и тем же sub-состоянием и
// сообщением, перечисляющим все затронутые id (используется
// select_job при обнаружении более одного IN_PROGRESS job-а).
func failAll(env *Env, ids []string, sub jobs.ProgressSubState, allIDs []string) {
	message := fmt.Sprintf("Multiple in-progress jobs: %v", allIDs)
	for _, id := range ids {
		publishStatus(env, id, jobs.StatusFailed, string(sub), message)
	}
}
