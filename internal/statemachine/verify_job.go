package statemachine

import (
	"time"

	"github.com/shaiso/upparat/internal/hooks"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

// verifyJobRuntime хранит the handle запущенного version hook-а, если
// он сейчас выполняется. Поле живёт только пока машина в состоянии
// verify_job — однопоточный диспетчер гарантирует отсутствие гонок.
type verifyJobRuntime struct {
	versionHook *hooks.Handle
}

// NewVerifyJobState решает, что делать с только что выбранным job-ом:
// для QUEUED проверяет установленную версию, для IN_PROGRESS после
// перезагрузки распознаёт точку, на которой агент остановился.
func NewVerifyJobState() State {
	rt := &verifyJobRuntime{}

	js := &JobProcessingState{name: VerifyJob}

	js.setup = func(env *Env) {
		job := env.Job
		if job == nil {
			return
		}

		switch job.Status {
		case jobs.StatusQueued:
			if job.Force || env.Cfg.Hooks.Version == "" {
				env.Inbox.Put(inbox.New(inbox.JobVerified))
				return
			}
			rt.versionHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
				Command:       env.Cfg.Hooks.Version,
				Args:          []string{job.Meta},
				RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
				MaxRetries:    env.Cfg.Hooks.MaxRetries,
			}, time.Now())

		case jobs.StatusInProgress:
			if job.InternalState() == string(jobs.ProgressRebootStart) {
				env.Inbox.Put(inbox.New(inbox.JobInstallationDone))
				return
			}
			env.Inbox.Put(inbox.New(inbox.JobVerified))

		default:
			env.Logger.Error("verify_job entered with unexpected job status", "job_id", job.ID, "status", string(job.Status))
		}
	}

	js.teardown = func(env *Env) {
		rt.versionHook = nil
	}

	js.onJobCancelled = func(env *Env) {
		if rt.versionHook != nil {
			rt.versionHook.Stop()
			rt.versionHook = nil
		}
		env.Inbox.Put(inbox.New(inbox.JobRevoked))
	}

	js.handle = func(env *Env, e inbox.Event) Name {
		job := env.Job
		switch e.Name {
		case inbox.Hook:
			if job == nil || e.HookCommand != env.Cfg.Hooks.Version {
				return ""
			}
			switch e.HookStatus {
			case inbox.HookStatusCompleted:
				if e.HookMessage == job.Version {
					publishSucceeded(env, job.ID, jobs.SuccessVersionAlreadyInstalled, "")
					return FetchJobs
				}
				return Download
			case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
				publishFailed(env, job.ID, jobs.FailureVersionHookFailed, e.HookMessage)
				return FetchJobs
			}
			return ""

		case inbox.JobVerified:
			return Download

		case inbox.JobInstallationDone:
			return VerifyInstallation

		case inbox.JobRevoked:
			return FetchJobs
		}
		return ""
	}

	return js
}
