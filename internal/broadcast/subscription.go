package broadcast

import (
	"sync"

	"github.com/pscheid92/serverlist/internal/domain"
)

// Subscription is one registered callback for a session's auth state.
type Subscription struct {
	broker    *Broker
	sessionID string
	fn        func(domain.AuthState)
	mailbox   chan domain.AuthState
	done      chan struct{}
	stopOnce  sync.Once

	// received is owned by the broker goroutine.
	received bool
}

func newSubscription(b *Broker, sessionID string, fn func(domain.AuthState)) *Subscription {
	return &Subscription{
		broker:    b,
		sessionID: sessionID,
		fn:        fn,
		mailbox:   make(chan domain.AuthState, 1),
		done:      make(chan struct{}),
	}
}

// Seed delivers an initial state unless a published state already reached this subscription.
func (s *Subscription) Seed(state domain.AuthState) error {
	return s.broker.send(seedCmd{sub: s, state: state})
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	if err := s.broker.send(unsubscribeCmd{sub: s}); err != nil {
		s.stop()
	}
}

func (s *Subscription) start() {
	go s.run()
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case state := <-s.mailbox:
			s.fn(state)
		}
	}
}

// offer replaces any undelivered state with the new one. Only the broker goroutine writes.
func (s *Subscription) offer(state domain.AuthState) {
	select {
	case s.mailbox <- state:
		return
	default:
	}

	select {
	case <-s.mailbox:
	default:
	}

	select {
	case s.mailbox <- state:
	default:
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
