package statemachine

import (
	"fmt"
	"time"

	"github.com/shaiso/upparat/internal/hooks"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

type verifyInstallationRuntime struct {
	versionHook *hooks.Handle
	readyHook   *hooks.Handle
}

// NewVerifyInstallationState выполняет post-install проверки: версия
// (если включена) и готовность сервиса (если включена). Это последний
// шаг перед возвратом в fetch_jobs.
func NewVerifyInstallationState() State {
	rt := &verifyInstallationRuntime{}
	js := &JobProcessingState{name: VerifyInstallation}

	js.setup = func(env *Env) {
		job := env.Job
		if job == nil {
			return
		}

		if job.Force || env.Cfg.Hooks.Version == "" {
			publishSucceeded(env, job.ID, jobs.SuccessCompleteNoVersionCheck, "")
			env.Inbox.Put(inbox.New(inbox.JobInstallationComplete))
			return
		}

		rt.versionHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
			Command:       env.Cfg.Hooks.Version,
			Args:          []string{job.Meta},
			RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
			MaxRetries:    env.Cfg.Hooks.MaxRetries,
		}, time.Now())
	}

	js.teardown = func(env *Env) {
		rt.versionHook = nil
		rt.readyHook = nil
	}

	js.onJobCancelled = func(env *Env) {
		if rt.versionHook != nil {
			rt.versionHook.Stop()
			rt.versionHook = nil
		}
		if rt.readyHook != nil {
			rt.readyHook.Stop()
			rt.readyHook = nil
		}
		env.Inbox.Put(inbox.New(inbox.JobInstallationComplete))
	}

	js.handle = func(env *Env, e inbox.Event) Name {
		job := env.Job
		if job == nil {
			if e.Name == inbox.JobInstallationComplete {
				return FetchJobs
			}
			return ""
		}

		switch e.Name {
		case inbox.Hook:
			switch e.HookCommand {
			case env.Cfg.Hooks.Version:
				return handleVersionHookEvent(env, rt, job, e)
			case env.Cfg.Hooks.Ready:
				return handleReadyHookEvent(env, rt, job, e)
			}
			return ""

		case inbox.JobInstallationComplete:
			return FetchJobs
		}
		return ""
	}

	return js
}

func handleVersionHookEvent(env *Env, rt *verifyInstallationRuntime, job *jobs.Job, e inbox.Event) Name {
	switch e.HookStatus {
	case inbox.HookStatusCompleted:
		if e.HookMessage != job.Version {
			publishFailed(env, job.ID, jobs.FailureVersionMismatch,
				fmt.Sprintf("expected %s, got %s", job.Version, e.HookMessage))
			return FetchJobs
		}
		if env.Cfg.Hooks.Ready == "" {
			publishSucceeded(env, job.ID, jobs.SuccessCompleteNoReadyCheck, "")
			return FetchJobs
		}
		rt.readyHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
			Command:       env.Cfg.Hooks.Ready,
			Args:          []string{job.Meta},
			RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
			MaxRetries:    env.Cfg.Hooks.MaxRetries,
		}, time.Now())
		return ""

	case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
		publishFailed(env, job.ID, jobs.FailureVersionHookFailed, e.HookMessage)
		return FetchJobs
	}
	return ""
}

func handleReadyHookEvent(env *Env, rt *verifyInstallationRuntime, job *jobs.Job, e inbox.Event) Name {
	switch e.HookStatus {
	case inbox.HookStatusCompleted:
		publishSucceeded(env, job.ID, jobs.SuccessCompleteReady, "")
		return FetchJobs
	case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
		publishFailed(env, job.ID, jobs.FailureReadyHookFailed, e.HookMessage)
		return FetchJobs
	}
	return ""
}
