package inbox

import "context"

// defaultCapacity — буфер канала. Производители никогда не блокируются
// на нормальной нагрузке (одно устройство, один job за раз), но
// небольшой буфер избавляет bus I/O горутину от блокировки на каждое
// входящее сообщение, пока event loop занят предыдущим.
const defaultCapacity = 64

// Inbox — единственная multi-producer/single-consumer очередь событий,
// питающая state machine. Потокобезопасна по построению: Go-канал.
type Inbox struct {
	events chan Event
}

// New создаёт Inbox с буфером по умолчанию.
func New() *Inbox {
	return &Inbox{events: make(chan Event, defaultCapacity)}
}

// Put ставит событие в очередь. Блокируется только если буфер
// переполнен, что означает event loop не успевает обрабатывать —
// производители (bus, hooks, downloader) не должны сами решать что
// делать в этом случае, поэтому Put не принимает context и всегда
// в конце концов доставляет событие.
func (b *Inbox) Put(e Event) {
	b.events <- e
}

// Take блокируется до следующего события или отмены ctx.
func (b *Inbox) Take(ctx context.Context) (Event, error) {
	select {
	case e := <-b.events:
		return e, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
