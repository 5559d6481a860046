package updates

import (
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
)

// Subscription - bounded queue of events, when consumer is slow the oldest events are dropped
type Subscription struct {
	ID uuid.UUID

	ch      chan Event
	dropped atomic.Uint64
	closed  bool
	mgr     *Manager
	once    sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped - number of events evicted because queue was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close - unsubscribes, events channel will be closed
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mgr.unsubscribe(s)
	})
}

// push - called under manager subscribers lock
func (s *Subscription) push(e Event) {
	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- e:
			return
		default:
		}

		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (m *Manager) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = m.opts.SubscriberBuffer
	}

	s := &Subscription{
		ID:  uuid.Must(uuid.NewV4()),
		ch:  make(chan Event, buffer),
		mgr: m,
	}

	m.subMx.Lock()
	m.subs[s.ID] = s
	m.subMx.Unlock()

	return s
}

func (m *Manager) unsubscribe(s *Subscription) {
	m.subMx.Lock()
	defer m.subMx.Unlock()

	delete(m.subs, s.ID)
	s.closed = true
	close(s.ch)
}

func (m *Manager) emit(e Event) {
	if e == nil {
		return
	}

	m.subMx.RLock()
	defer m.subMx.RUnlock()

	for _, s := range m.subs {
		s.push(e)
	}
}
