package statemachine

import (
	"strings"

	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

// NewFetchJobsState спрашивает broker о pending job executions и
// решает, есть ли что выбирать, или идти в monitor ждать нотификаций.
func NewFetchJobsState() State {
	s := &BasicState{name: FetchJobs}
	s.setup = func(env *Env) {
		env.Job = nil
		env.FilePath = ""
		responseTopic := jobs.GetPendingJobExecutionsResponse(env.Cfg.Broker.ThingName, "")
		if _, _, err := env.Bus.Subscribe(responseTopic, 1); err != nil {
			env.Logger.Error("subscribe get-pending response failed", "error", err)
		}
	}
	s.handle = func(env *Env, e inbox.Event) Name {
		responseBase := jobs.GetPendingJobExecutionsResponse(env.Cfg.Broker.ThingName, "")
		responseBase = strings.TrimSuffix(responseBase, "+")

		switch {
		case e.Name == inbox.MQTTSubscribed && e.Topic == responseBase+"+":
			requestTopic := jobs.GetPendingJobExecutions(env.Cfg.Broker.ThingName)
			if err := env.Bus.Publish(requestTopic, nil); err != nil {
				env.Logger.Error("publish get-pending request failed", "error", err)
			}
			return ""

		case e.Name == inbox.MQTTMessageReceived && strings.HasPrefix(e.Topic, responseBase):
			if strings.HasSuffix(e.Topic, "/rejected") {
				env.Logger.Warn("get-pending-job-executions rejected", "message", jobs.RejectedMessage(e.Payload))
				return Monitor
			}
			inProgress, queued, err := jobs.ParsePendingExecutionsResponse(e.Payload)
			if err != nil {
				env.Logger.Error("parse get-pending response failed", "error", err)
				return ""
			}
			if len(inProgress) == 0 && len(queued) == 0 {
				return Monitor
			}
			env.Summaries = &inbox.ExecutionSummaries{InProgress: inProgress, Queued: queued}
			return SelectJob
		}
		return ""
	}
	return s
}
