package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/serverlist/internal/domain"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

// ErrStopped is returned by commands issued after the broker has shut down.
var ErrStopped = errors.New("broker stopped")

// brokerCmd is the command interface for the Broker actor.
type brokerCmd interface{ isBrokerCmd() }

type baseBrokerCmd struct{}

func (baseBrokerCmd) isBrokerCmd() {}

type subscribeCmd struct {
	baseBrokerCmd
	sessionID string
	sub       *Subscription
	reply     chan struct{}
}

type unsubscribeCmd struct {
	baseBrokerCmd
	sub *Subscription
}

type publishCmd struct {
	baseBrokerCmd
	state domain.AuthState
}

type seedCmd struct {
	baseBrokerCmd
	sub   *Subscription
	state domain.AuthState
}

type subscriberCountCmd struct {
	baseBrokerCmd
	sessionID string
	reply     chan int
}

type stopCmd struct {
	baseBrokerCmd
}

// Broker fans auth-state changes out to the subscribers of each session.
// A single goroutine owns the subscriber table; each subscription delivers from a
// one-slot mailbox on its own goroutine, so a slow callback only ever sees the latest state.
type Broker struct {
	cmdCh       chan brokerCmd
	clock       clockwork.Clock
	subscribers map[string]map[*Subscription]struct{}
	done        chan struct{}
	stopTimeout time.Duration
}

func NewBroker(clock clockwork.Clock) *Broker {
	b := &Broker{
		cmdCh:       make(chan brokerCmd, 256),
		clock:       clock,
		subscribers: make(map[string]map[*Subscription]struct{}),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go b.run()
	return b
}

// Subscribe registers fn for the session. fn runs on the subscription's own goroutine.
func (b *Broker) Subscribe(sessionID string, fn func(domain.AuthState)) (*Subscription, error) {
	sub := newSubscription(b, sessionID, fn)
	reply := make(chan struct{}, 1)
	if err := b.send(subscribeCmd{sessionID: sessionID, sub: sub, reply: reply}); err != nil {
		return nil, err
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-reply:
		return sub, nil
	case <-b.done:
		return nil, ErrStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// Publish delivers state to every current subscriber of state.SessionID.
func (b *Broker) Publish(state domain.AuthState) error {
	return b.send(publishCmd{state: state})
}

// PublishAuthState lets the broker act as a single-instance publisher.
func (b *Broker) PublishAuthState(_ context.Context, state domain.AuthState) error {
	return b.Publish(state)
}

// SubscriberCount returns the number of subscribers for a session, or -1 on timeout.
func (b *Broker) SubscriberCount(sessionID string) int {
	reply := make(chan int, 1)
	if err := b.send(subscriberCountCmd{sessionID: sessionID, reply: reply}); err != nil {
		return -1
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-b.done:
		return -1
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the broker down and ends every subscription.
// Blocks until the actor goroutine has exited or the timeout is reached.
func (b *Broker) Stop() {
	if err := b.send(stopCmd{}); err != nil {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Auth-state broker stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Auth-state broker stop timeout exceeded", "timeout", b.stopTimeout)
	}
}

func (b *Broker) send(cmd brokerCmd) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

func (b *Broker) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Auth-state broker panic recovered", "panic", r)
			b.closeAll()
		}
	}()

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case subscribeCmd:
			b.handleSubscribe(c)
		case unsubscribeCmd:
			b.handleUnsubscribe(c)
		case publishCmd:
			b.handlePublish(c)
		case seedCmd:
			if !c.sub.received {
				c.sub.offer(c.state)
			}
		case subscriberCountCmd:
			c.reply <- len(b.subscribers[c.sessionID])
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Auth-state broker received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broker) handleSubscribe(c subscribeCmd) {
	subs, ok := b.subscribers[c.sessionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.subscribers[c.sessionID] = subs
	}
	subs[c.sub] = struct{}{}
	c.sub.start()

	slog.Debug("Auth-state subscriber registered", "subscribers", len(subs))
	c.reply <- struct{}{}
}

func (b *Broker) handleUnsubscribe(c unsubscribeCmd) {
	subs, ok := b.subscribers[c.sub.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[c.sub]; !ok {
		return
	}

	delete(subs, c.sub)
	c.sub.stop()
	if len(subs) == 0 {
		delete(b.subscribers, c.sub.sessionID)
	}
}

func (b *Broker) handlePublish(c publishCmd) {
	for sub := range b.subscribers[c.state.SessionID] {
		sub.received = true
		sub.offer(c.state)
	}
}

func (b *Broker) handleStop() {
	total := 0
	for _, subs := range b.subscribers {
		total += len(subs)
	}
	slog.Info("Auth-state broker shutting down", "sessions", len(b.subscribers), "subscribers", total)
	b.closeAll()
}

func (b *Broker) closeAll() {
	for sessionID, subs := range b.subscribers {
		for sub := range subs {
			sub.stop()
		}
		delete(b.subscribers, sessionID)
	}
}
