package statemachine

import (
	"strconv"
	"time"

	"github.com/shaiso/upparat/internal/hooks"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

type restartRuntime struct {
	restartHook *hooks.Handle
}

// NewRestartState запускает restart hook. reboot_start — это не
// только прогресс-маркер для cloud, но и сигнал, который verify_job
// распознаёт после перезагрузки устройства, чтобы понять, что job
// уже дошёл до этой точки.
func NewRestartState() State {
	rt := &restartRuntime{}
	js := &JobProcessingState{name: Restart}

	js.setup = func(env *Env) {
		job := env.Job
		if job == nil {
			return
		}

		if env.Cfg.Hooks.Restart == "" {
			publishSucceeded(env, job.ID, jobs.SuccessNoRestartHook, "")
			env.Inbox.Put(inbox.New(inbox.RestartInterrupted))
			return
		}

		publishProgress(env, job.ID, jobs.ProgressRebootStart, "")
		rt.restartHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
			Command:       env.Cfg.Hooks.Restart,
			Args:          []string{job.Meta, strconv.FormatBool(job.Force)},
			RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
			MaxRetries:    env.Cfg.Hooks.MaxRetries,
		}, time.Now())
	}

	js.teardown = func(env *Env) {
		if rt.restartHook != nil {
			rt.restartHook.Stop()
			rt.restartHook = nil
		}
	}

	js.onJobCancelled = func(env *Env) {
		if rt.restartHook != nil {
			rt.restartHook.Stop()
			rt.restartHook = nil
		}
		env.Inbox.Put(inbox.New(inbox.RestartInterrupted))
	}

	js.handle = func(env *Env, e inbox.Event) Name {
		job := env.Job
		switch e.Name {
		case inbox.Hook:
			if job == nil || e.HookCommand != env.Cfg.Hooks.Restart {
				return ""
			}
			switch e.HookStatus {
			case inbox.HookStatusCompleted:
				publishSucceeded(env, job.ID, jobs.SuccessCompleteSoftRestart, "")
				return FetchJobs
			case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
				publishFailed(env, job.ID, jobs.FailureRestartHookFailed, e.HookMessage)
				return FetchJobs
			}
			return ""

		case inbox.RestartInterrupted:
			return FetchJobs
		}
		return ""
	}

	return js
}
