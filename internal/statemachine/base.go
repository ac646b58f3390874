package statemachine

import "github.com/shaiso/upparat/internal/inbox"

// BasicState — состояния без job-cancellation watcher-а: fetch_jobs,
// monitor, select_job. Ни одно из них ещё не владеет выбранным job-ом
// на протяжении всего своего времени жизни, поэтому cancellation
// watcher не применим (см. §4.5 — он компонуется только в состояния,
// обрабатывающие уже выбранный job).
type BasicState struct {
	name     Name
	setup    func(env *Env)
	teardown func(env *Env)
	handle   func(env *Env, e inbox.Event) Name
}

func (s *BasicState) Name() Name { return s.name }

func (s *BasicState) OnEnter(env *Env) {
	if s.setup != nil {
		s.setup(env)
	}
}

func (s *BasicState) OnExit(env *Env) {
	if s.teardown != nil {
		s.teardown(env)
	}
}

func (s *BasicState) HandleEvent(env *Env, e inbox.Event) Name {
	if s.handle == nil {
		return ""
	}
	return s.handle(env, e)
}
