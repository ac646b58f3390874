package statemachine

import (
	"time"

	"github.com/shaiso/upparat/internal/hooks"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

type installRuntime struct {
	installHook *hooks.Handle
}

// NewInstallState запускает install hook с артефактом, загруженным
// предыдущим состоянием. Без install hook-а агент ведёт себя как
// простой file-distribution инструмент: job считается успешным сразу.
func NewInstallState() State {
	rt := &installRuntime{}
	js := &JobProcessingState{name: Install}

	js.setup = func(env *Env) {
		job := env.Job
		if job == nil {
			return
		}

		if env.Cfg.Hooks.Install == "" {
			publishSucceeded(env, job.ID, jobs.SuccessNoInstallationHook, "")
			env.Inbox.Put(inbox.New(inbox.InstallationInterrupted))
			return
		}

		publishProgress(env, job.ID, jobs.ProgressInstallationStart, "")
		rt.installHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
			Command:       env.Cfg.Hooks.Install,
			Args:          []string{job.Meta, env.FilePath},
			RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
			MaxRetries:    env.Cfg.Hooks.MaxRetries,
		}, time.Now())
	}

	js.teardown = func(env *Env) {
		if rt.installHook != nil {
			rt.installHook.Stop()
			rt.installHook = nil
		}
	}

	js.onJobCancelled = func(env *Env) {
		if rt.installHook != nil {
			rt.installHook.Stop()
			rt.installHook = nil
		}
		env.Inbox.Put(inbox.New(inbox.InstallationInterrupted))
	}

	js.handle = func(env *Env, e inbox.Event) Name {
		job := env.Job
		switch e.Name {
		case inbox.Hook:
			if job == nil || e.HookCommand != env.Cfg.Hooks.Install {
				return ""
			}
			switch e.HookStatus {
			case inbox.HookStatusOutput:
				publishProgress(env, job.ID, jobs.ProgressInstallationProgress, e.HookMessage)
				return ""
			case inbox.HookStatusCompleted:
				return Restart
			case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
				publishFailed(env, job.ID, jobs.FailureInstallationHookFailed, e.HookMessage)
				return FetchJobs
			}
			return ""

		case inbox.InstallationInterrupted:
			return FetchJobs
		}
		return ""
	}

	return js
}
