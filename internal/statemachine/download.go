package statemachine

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shaiso/upparat/internal/downloader"
	"github.com/shaiso/upparat/internal/hooks"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

type downloadRuntime struct {
	downloadHook *hooks.Handle
	download     *downloader.Handle
}

// NewDownloadState запускает опциональный pre-download hook, затем
// резюмируемую загрузку артефакта в download-директорию.
func NewDownloadState() State {
	rt := &downloadRuntime{}
	js := &JobProcessingState{name: Download}

	js.setup = func(env *Env) {
		job := env.Job
		if job == nil {
			return
		}

		target := jobs.FilePath(env.Cfg.Service.DownloadLocation, job.ID)
		purgeStaleDownloads(env, target)

		publishProgress(env, job.ID, jobs.ProgressDownloadStart, "")

		if env.Cfg.Hooks.Download != "" && !job.Force {
			rt.downloadHook = hooks.Run(env.Ctx, env.Inbox, hooks.Config{
				Command:       env.Cfg.Hooks.Download,
				Args:          []string{job.Meta},
				RetryInterval: time.Duration(env.Cfg.Hooks.RetryInterval) * time.Second,
				MaxRetries:    env.Cfg.Hooks.MaxRetries,
			}, time.Now())
			return
		}

		startDownload(env, rt, *job, target)
	}

	js.teardown = func(env *Env) {
		if rt.downloadHook != nil {
			rt.downloadHook.Stop()
			rt.downloadHook = nil
		}
		if rt.download != nil {
			rt.download.Stop()
			rt.download = nil
		}
	}

	js.onJobCancelled = func(env *Env) {
		if rt.downloadHook != nil {
			rt.downloadHook.Stop()
			rt.downloadHook = nil
		}
		if rt.download != nil {
			rt.download.Stop()
			rt.download = nil
		}
		env.Inbox.Put(inbox.New(inbox.DownloadInterrupted))
	}

	js.handle = func(env *Env, e inbox.Event) Name {
		job := env.Job
		switch e.Name {
		case inbox.Hook:
			if job == nil || e.HookCommand != env.Cfg.Hooks.Download {
				return ""
			}
			switch e.HookStatus {
			case inbox.HookStatusCompleted:
				target := jobs.FilePath(env.Cfg.Service.DownloadLocation, job.ID)
				startDownload(env, rt, *job, target)
				return ""
			case inbox.HookStatusFailed, inbox.HookStatusTimedOut:
				publishFailed(env, job.ID, jobs.FailureDownloadHookFailed, e.HookMessage)
				return FetchJobs
			}
			return ""

		case inbox.DownloadCompleted:
			if e.Job != nil {
				env.Job = e.Job
				env.FilePath = e.Job.FileURL
			}
			return Install

		case inbox.DownloadInterrupted:
			if job != nil {
				publishProgress(env, job.ID, jobs.ProgressDownloadInterrupt, "")
			}
			return FetchJobs
		}
		return ""
	}

	return js
}

func startDownload(env *Env, rt *downloadRuntime, job jobs.Job, target string) {
	progress := func(total int64) {
		publishProgress(env, job.ID, jobs.ProgressDownloadProgress, strconv.FormatInt(total, 10))
	}
	rt.download = downloader.Run(env.Ctx, env.Inbox, job, target, progress)
}

// purgeStaleDownloads убирает файлы, оставшиеся от другого job-а, не
// трогая частичный файл этого же job-а (позволяет резюмировать).
func purgeStaleDownloads(env *Env, target string) {
	entries, err := os.ReadDir(env.Cfg.Service.DownloadLocation)
	if err != nil {
		env.Logger.Error("list download location failed", "error", err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(env.Cfg.Service.DownloadLocation, entry.Name())
		if path == target {
			continue
		}
		if err := os.Remove(path); err != nil {
			env.Logger.Warn("remove stale download artifact failed", "path", path, "error", err)
		}
	}
}
