package statemachine

import (
	"testing"

	"github.com/shaiso/upparat/internal/config"
	"github.com/shaiso/upparat/internal/inbox"
)

func newFetchJobsTestEnv() *Env {
	env := newTestEnv()
	env.Cfg = &config.Config{Broker: config.Broker{ThingName: "device-1"}}
	return env
}

func TestFetchJobsHandleAcceptedResponseSelectsJob(t *testing.T) {
	s := NewFetchJobsState()
	env := newFetchJobsTestEnv()

	raw := []byte(`{
		"inProgressJobs": [],
		"queuedJobs": [{"jobId": "upparat_a", "queuedAt": 1}]
	}`)
	topic := "$aws/things/device-1/jobs/get/accepted"

	next := s.HandleEvent(env, inbox.WithMQTT(topic, raw))
	if next != SelectJob {
		t.Fatalf("HandleEvent() = %v, want %v", next, SelectJob)
	}
	if env.Summaries == nil || len(env.Summaries.Queued) != 1 || env.Summaries.Queued[0].JobID != "upparat_a" {
		t.Errorf("env.Summaries = %+v, want one queued job upparat_a", env.Summaries)
	}
}

func TestFetchJobsHandleAcceptedResponseNoJobsGoesToMonitor(t *testing.T) {
	s := NewFetchJobsState()
	env := newFetchJobsTestEnv()

	raw := []byte(`{"inProgressJobs": [], "queuedJobs": []}`)
	topic := "$aws/things/device-1/jobs/get/accepted"

	next := s.HandleEvent(env, inbox.WithMQTT(topic, raw))
	if next != Monitor {
		t.Fatalf("HandleEvent() = %v, want %v", next, Monitor)
	}
}

func TestFetchJobsHandleRejectedGoesToMonitor(t *testing.T) {
	s := NewFetchJobsState()
	env := newFetchJobsTestEnv()

	topic := "$aws/things/device-1/jobs/get/rejected"
	next := s.HandleEvent(env, inbox.WithMQTT(topic, []byte(`{"message": "no such thing"}`)))
	if next != Monitor {
		t.Fatalf("HandleEvent() = %v, want %v", next, Monitor)
	}
}

func TestFetchJobsHandleUnrelatedTopicIsNoOp(t *testing.T) {
	s := NewFetchJobsState()
	env := newFetchJobsTestEnv()

	next := s.HandleEvent(env, inbox.WithMQTT("$aws/things/device-1/jobs/notify", []byte(`{}`)))
	if next != "" {
		t.Fatalf("HandleEvent() = %v, want no transition for unrelated topic", next)
	}
}
