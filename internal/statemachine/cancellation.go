package statemachine

import (
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

// JobProcessingState компонует cancellation watcher в verify_job,
// download, install, restart и verify_installation: на входе
// подписывается на топик нотификаций о pending jobs, на выходе
// отписывается, и на каждое полученное сообщение этого топика
// проверяет, остался ли текущий job в списке in-progress, прежде чем
// передать сообщение состоянию. Любое другое событие идёт напрямую в
// handle.
type JobProcessingState struct {
	name Name

	// setup/teardown — дополнительное поведение входа/выхода состояния
	// сверх подписки cancellation watcher-а.
	setup    func(env *Env)
	teardown func(env *Env)

	// onJobCancelled останавливает запущенные hook-и/загрузки и
	// публикует state-local interruption событие.
	onJobCancelled func(env *Env)

	// handle обрабатывает всё, что не было перехвачено cancellation
	// watcher-ом.
	handle func(env *Env, e inbox.Event) Name
}

func (s *JobProcessingState) Name() Name { return s.name }

func (s *JobProcessingState) OnEnter(env *Env) {
	topic := jobs.PendingJobsResponse(env.Cfg.Broker.ThingName)
	if _, _, err := env.Bus.Subscribe(topic, 1); err != nil {
		env.Logger.Error("subscribe to cancellation topic failed", "state", string(s.name), "error", err)
	}
	if s.setup != nil {
		s.setup(env)
	}
}

func (s *JobProcessingState) OnExit(env *Env) {
	if s.teardown != nil {
		s.teardown(env)
	}
	topic := jobs.PendingJobsResponse(env.Cfg.Broker.ThingName)
	if _, _, err := env.Bus.Unsubscribe(topic); err != nil {
		env.Logger.Error("unsubscribe from cancellation topic failed", "state", string(s.name), "error", err)
	}
}

func (s *JobProcessingState) HandleEvent(env *Env, e inbox.Event) Name {
	if e.Name == inbox.MQTTMessageReceived && env.Job != nil {
		notifyTopic := jobs.PendingJobsResponse(env.Cfg.Broker.ThingName)
		if e.Topic == notifyTopic {
			if !containsID(jobs.InProgressJobIDs(e.Payload), env.Job.ID) {
				env.Logger.Info("job cancelled server-side", "job_id", env.Job.ID, "state", string(s.name))
				s.onJobCancelled(env)
				return ""
			}
		}
	}
	return s.handle(env, e)
}

func containsID(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
