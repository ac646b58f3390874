// Package statemachine реализует однопоточный event loop,
// проводящий один update job через восемь состояний: от обнаружения
// до post-reboot верификации.
package statemachine

import (
	"context"
	"log/slog"

	"github.com/shaiso/upparat/internal/bus"
	"github.com/shaiso/upparat/internal/config"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
	"github.com/shaiso/upparat/internal/telemetry"
)

// Name — идентификатор состояния.
type Name string

const (
	FetchJobs          Name = "fetch_jobs"
	Monitor            Name = "monitor"
	SelectJob          Name = "select_job"
	VerifyJob          Name = "verify_job"
	Download           Name = "download"
	Install            Name = "install"
	Restart            Name = "restart"
	VerifyInstallation Name = "verify_installation"
)

// State — поведение одного состояния машины. OnEnter/OnExit
// вызываются машиной напрямую при входе/выходе; HandleEvent обрабатывает
// всё остальное и возвращает имя следующего состояния либо "" если
// событие не вызывает перехода.
type State interface {
	Name() Name
	OnEnter(env *Env)
	OnExit(env *Env)
	HandleEvent(env *Env, e inbox.Event) Name
}

// Env — окружение, разделяемое всеми состояниями: доступ к bus-у,
// конфигурации и текущему job-у машины. Аналог back-reference на
// root_machine в источнике, выраженный явной структурой вместо
// указателя на саму машину.
type Env struct {
	Ctx    context.Context
	Bus    *bus.Client
	Cfg    *config.Config
	Inbox  *inbox.Inbox
	Logger *slog.Logger

	// Job — job, которым владеет текущая цепочка состояний
	// (select_job..verify_installation). nil вне этой цепочки.
	Job *jobs.Job

	// FilePath — путь к артефакту текущего job-а, известный начиная с
	// download-completed.
	FilePath string

	// Summaries — выдача fetch_jobs/monitor, потребляемая select_job.
	Summaries *inbox.ExecutionSummaries
}

// Machine — диспетчерская таблица (state, event) → next state плюс
// текущее состояние.
type Machine struct {
	env     *Env
	states  map[Name]State
	current State
}

// New строит машину из восьми состояний и переводит её в fetch_jobs.
func New(env *Env, states []State) *Machine {
	m := &Machine{env: env, states: make(map[Name]State, len(states))}
	for _, s := range states {
		m.states[s.Name()] = s
	}
	m.current = m.states[FetchJobs]
	return m
}

// Initialize выполняет OnEnter начального состояния. Должен быть
// вызван ровно один раз перед первым Dispatch.
func (m *Machine) Initialize() {
	m.current.OnEnter(m.env)
}

// Current возвращает имя текущего состояния.
func (m *Machine) Current() Name {
	return m.current.Name()
}

// DescribeGraph возвращает таблицу переходов в виде, пригодном для
// логирования/диагностики при старте.
func (m *Machine) DescribeGraph() map[Name][]Name {
	// Статическая таблица переходов, совпадающая с transitions.go;
	// вынесена отдельно, чтобы её можно было напечатать без
	// диспетчеризации реальных событий.
	return transitionGraph
}

// Dispatch обрабатывает одно событие: делегирует текущему состоянию,
// и если оно вернуло имя другого состояния, выполняет OnExit текущего,
// переключается, и выполняет OnEnter нового. Dispatch никогда не
// блокируется и не обращается к inbox-у сам — вызывающая сторона
// передаёт уже взятое из inbox событие.
func (m *Machine) Dispatch(e inbox.Event) {
	next := m.current.HandleEvent(m.env, e)
	if next == "" || next == m.current.Name() {
		return
	}

	nextState, ok := m.states[next]
	if !ok {
		m.env.Logger.Error("dispatch to unknown state", "state", string(next))
		return
	}

	m.env.Logger.Info("state changed", "from", string(m.current.Name()), "to", string(next))

	m.current.OnExit(m.env)
	m.current = nextState
	m.current.OnEnter(m.env)

	telemetry.StateTransitions.WithLabelValues(string(next)).Inc()
	if m.env.Job != nil {
		telemetry.JobsInFlight.Set(1)
	} else {
		telemetry.JobsInFlight.Set(0)
	}
}

// Run блокируется на inbox-е до отмены ctx, диспетчеризуя каждое
// взятое событие. Это единственный метод, выполняющий взятие из
// inbox-а — весь остальной код машины синхронен и без блокировок.
func (m *Machine) Run(ctx context.Context) {
	m.Initialize()
	for {
		e, err := m.env.Inbox.Take(ctx)
		if err != nil {
			return
		}
		m.Dispatch(e)
	}
}
