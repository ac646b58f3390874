package statemachine

import (
	"sort"

	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
)

// selectJobState содержит состояние, прожитое ровно в рамках одного
// захода в select_job: id job-а, чьё описание сейчас запрошено.
// Безопасно как обычное поле, потому что диспетчер однопоточный.
type selectJobState struct {
	*BasicState
	pendingID string
}

// NewSelectJobState выбирает ровно один pending job из summaries,
// собранных fetch_jobs/monitor, и запрашивает его полное описание.
func NewSelectJobState() State {
	s := &selectJobState{}
	s.BasicState = &BasicState{name: SelectJob}

	s.setup = func(env *Env) {
		id, ok := chooseJob(env)
		if !ok {
			env.Inbox.Put(inbox.New(inbox.SelectJobInterrupted))
			return
		}
		s.pendingID = id
		responseTopic := jobs.DescribeJobExecutionResponse(env.Cfg.Broker.ThingName, id, "")
		if _, _, err := env.Bus.Subscribe(responseTopic, 1); err != nil {
			env.Logger.Error("subscribe describe-job-execution response failed", "job_id", id, "error", err)
		}
	}

	s.handle = func(env *Env, e inbox.Event) Name {
		switch e.Name {
		case inbox.SelectJobInterrupted:
			return FetchJobs

		case inbox.MQTTSubscribed:
			if s.pendingID == "" {
				return ""
			}
			expected := jobs.DescribeJobExecutionResponse(env.Cfg.Broker.ThingName, s.pendingID, "")
			if e.Topic != expected {
				return ""
			}
			requestTopic := jobs.DescribeJobExecution(env.Cfg.Broker.ThingName, s.pendingID)
			if err := env.Bus.Publish(requestTopic, nil); err != nil {
				env.Logger.Error("publish describe-job-execution request failed", "job_id", s.pendingID, "error", err)
			}
			return ""

		case inbox.MQTTMessageReceived:
			if s.pendingID == "" {
				return ""
			}
			expectedPrefix := trimWildcard(jobs.DescribeJobExecutionResponse(env.Cfg.Broker.ThingName, s.pendingID, ""))
			if len(e.Topic) < len(expectedPrefix) || e.Topic[:len(expectedPrefix)] != expectedPrefix {
				return ""
			}
			if hasSuffix(e.Topic, "/rejected") {
				env.Logger.Warn("describe-job-execution rejected", "job_id", s.pendingID, "message", jobs.RejectedMessage(e.Payload))
				s.pendingID = ""
				return FetchJobs
			}
			job, err := jobs.ParseJobExecution(e.Payload)
			if err != nil {
				env.Logger.Error("parse job execution failed", "job_id", s.pendingID, "error", err)
				s.pendingID = ""
				return FetchJobs
			}
			s.pendingID = ""
			env.Job = &job
			return VerifyJob
		}
		return ""
	}

	return s
}

// chooseJob применяет правила выбора: единственный in-progress job
// побеждает; более одного in-progress — жёсткая ошибка; иначе
// старейший queued job; иначе нечего выбирать.
func chooseJob(env *Env) (string, bool) {
	if env.Summaries == nil {
		return "", false
	}

	if len(env.Summaries.InProgress) > 1 {
		ids := make([]string, 0, len(env.Summaries.InProgress))
		for _, s := range env.Summaries.InProgress {
			ids = append(ids, s.JobID)
		}
		failAll(env, ids, jobs.ProgressErrorMultipleInProgress, ids)
		return "", false
	}

	if len(env.Summaries.InProgress) == 1 {
		return env.Summaries.InProgress[0].JobID, true
	}

	if len(env.Summaries.Queued) > 0 {
		queued := append([]jobs.ExecutionSummary(nil), env.Summaries.Queued...)
		sort.Slice(queued, func(i, j int) bool { return queued[i].QueuedAt < queued[j].QueuedAt })
		return queued[0].JobID, true
	}

	return "", false
}

func trimWildcard(topic string) string {
	if len(topic) > 0 && topic[len(topic)-1] == '+' {
		return topic[:len(topic)-1]
	}
	return topic
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
