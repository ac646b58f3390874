package statemachine

import (
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

// NewMonitorState ждёт пассивно: подписывается на нотификации о
// pending jobs и просыпается только когда cloud что-то присылает.
func NewMonitorState() State {
	s := &BasicState{name: Monitor}
	topic := func(env *Env) string { return jobs.PendingJobsResponse(env.Cfg.Broker.ThingName) }

	s.setup = func(env *Env) {
		if _, _, err := env.Bus.Subscribe(topic(env), 1); err != nil {
			env.Logger.Error("subscribe pending-notify failed", "error", err)
		}
	}
	s.teardown = func(env *Env) {
		if _, _, err := env.Bus.Unsubscribe(topic(env)); err != nil {
			env.Logger.Error("unsubscribe pending-notify failed", "error", err)
		}
	}
	s.handle = func(env *Env, e inbox.Event) Name {
		if e.Name != inbox.MQTTMessageReceived || e.Topic != topic(env) {
			return ""
		}
		inProgress, queued, err := jobs.ParseNotifyPayload(e.Payload)
		if err != nil {
			env.Logger.Error("parse pending-notify failed", "error", err)
			return ""
		}
		if len(inProgress) == 0 && len(queued) == 0 {
			return ""
		}
		env.Summaries = &inbox.ExecutionSummaries{InProgress: inProgress, Queued: queued}
		return SelectJob
	}
	return s
}
