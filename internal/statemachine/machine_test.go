package statemachine

import (
	"log/slog"
	"os"
	"testing"

	"github.com/shaiso/upparat/internal/inbox"
)

// fakeState - минимальная реализация State для проверки диспетчеризации
// машины без реального bus/hooks/downloader.
type fakeState struct {
	name           Name
	entered, exited int
	onHandle       func(e inbox.Event) Name
}

func (s *fakeState) Name() Name { return s.name }
func (s *fakeState) OnEnter(env *Env) { s.entered++ }
func (s *fakeState) OnExit(env *Env)  { s.exited++ }
func (s *fakeState) HandleEvent(env *Env, e inbox.Event) Name {
	if s.onHandle == nil {
		return ""
	}
	return s.onHandle(e)
}

func newTestEnv() *Env {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return &Env{Logger: logger}
}

func TestMachineInitializeEntersInitialState(t *testing.T) {
	fetch := &fakeState{name: FetchJobs}
	monitor := &fakeState{name: Monitor}

	m := New(newTestEnv(), []State{fetch, monitor})
	m.Initialize()

	if fetch.entered != 1 {
		t.Errorf("fetch.entered = %d, want 1", fetch.entered)
	}
	if m.Current() != FetchJobs {
		t.Errorf("Current() = %v, want %v", m.Current(), FetchJobs)
	}
}

func TestMachineDispatchTransitionsBetweenStates(t *testing.T) {
	fetch := &fakeState{name: FetchJobs}
	monitor := &fakeState{name: Monitor}
	fetch.onHandle = func(e inbox.Event) Name {
		if e.Name == inbox.NoJobsPending {
			return Monitor
		}
		return ""
	}

	m := New(newTestEnv(), []State{fetch, monitor})
	m.Initialize()
	m.Dispatch(inbox.New(inbox.NoJobsPending))

	if fetch.exited != 1 {
		t.Errorf("fetch.exited = %d, want 1", fetch.exited)
	}
	if monitor.entered != 1 {
		t.Errorf("monitor.entered = %d, want 1", monitor.entered)
	}
	if m.Current() != Monitor {
		t.Errorf("Current() = %v, want %v", m.Current(), Monitor)
	}
}

func TestMachineDispatchNoTransitionOnEmptyEventResult(t *testing.T) {
	fetch := &fakeState{name: FetchJobs}
	fetch.onHandle = func(e inbox.Event) Name { return "" }

	m := New(newTestEnv(), []State{fetch})
	m.Initialize()
	m.Dispatch(inbox.New(inbox.ExitSignalSent))

	if fetch.exited != 0 {
		t.Errorf("fetch.exited = %d, want 0 (no transition)", fetch.exited)
	}
	if m.Current() != FetchJobs {
		t.Errorf("Current() = %v, want unchanged %v", m.Current(), FetchJobs)
	}
}

func TestMachineDispatchUnknownStateIsNoOp(t *testing.T) {
	fetch := &fakeState{name: FetchJobs}
	fetch.onHandle = func(e inbox.Event) Name { return Name("does-not-exist") }

	m := New(newTestEnv(), []State{fetch})
	m.Initialize()
	m.Dispatch(inbox.New(inbox.ExitSignalSent))

	if fetch.exited != 0 {
		t.Errorf("fetch.exited = %d, want 0 when target state is unknown", fetch.exited)
	}
	if m.Current() != FetchJobs {
		t.Errorf("Current() = %v, want unchanged %v", m.Current(), FetchJobs)
	}
}

func TestMachineDescribeGraphReturnsStaticTable(t *testing.T) {
	m := New(newTestEnv(), []State{&fakeState{name: FetchJobs}})
	graph := m.DescribeGraph()
	if len(graph) == 0 {
		t.Fatal("DescribeGraph() returned empty map")
	}
	if _, ok := graph[FetchJobs]; !ok {
		t.Errorf("DescribeGraph() missing entry for %v", FetchJobs)
	}
}
