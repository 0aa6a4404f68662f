// Package session owns the consumer-side state of one live subscription: the
// event channel, the deduplication gate, the identity cache and the
// notification dispatcher. Everything is constructed on Subscribe and dropped
// on Unsubscribe; nothing lives in ambient globals.
package session

import (
	"context"

	"github.com/btouchard/beacon/internal/client"
	"github.com/btouchard/beacon/internal/dedup"
	"github.com/btouchard/beacon/internal/event"
	"github.com/btouchard/beacon/internal/notify"
	"github.com/btouchard/beacon/internal/resolve"
)

// Options configures one subscription.
type Options struct {
	Credentials client.CredentialProvider
	Transport   client.Transport
	Scheduler   client.Scheduler // nil → real timers

	Stories resolve.StoryFetcher
	Users   resolve.UserFetcher

	Capability notify.Capability // nil → in-app only
	InApp      notify.InAppSink
	Prompter   notify.Prompter

	// Optional lifecycle observers, forwarded from the channel.
	OnConnect    func()
	OnDisconnect func()
}

// Session is one active subscription.
type Session struct {
	channel    *client.Channel
	gate       *dedup.Gate
	cache      *resolve.Cache
	dispatcher *notify.Dispatcher
}

// Subscribe builds the per-subscription state, runs the one-time notification
// permission negotiation, and opens the event channel.
func Subscribe(ctx context.Context, opts Options) *Session {
	s := &Session{
		gate:  dedup.NewGate(0),
		cache: resolve.NewCache(opts.Stories, opts.Users),
	}
	s.dispatcher = notify.NewDispatcher(opts.Capability, opts.InApp, s.cache)
	s.dispatcher.NegotiatePermission(ctx, opts.Prompter)

	s.channel = client.Subscribe(ctx, client.Options{
		Credentials:  opts.Credentials,
		Transport:    opts.Transport,
		Scheduler:    opts.Scheduler,
		OnConnect:    opts.OnConnect,
		OnDisconnect: opts.OnDisconnect,
		OnEvent: func(e event.Event) {
			s.consume(ctx, e)
		},
	})
	return s
}

// consume runs the consumer pipeline for one delivered event: dedup filter,
// label enrichment, notification. Channel callbacks arrive serially, so no
// locking is needed here.
func (s *Session) consume(ctx context.Context, e event.Event) {
	key := e.Key()
	if s.gate.Seen(key) {
		return
	}
	s.gate.Mark(key)
	s.dispatcher.HandleEvent(ctx, e)
}

// State reports the channel's connection state.
func (s *Session) State() client.State {
	return s.channel.State()
}

// Unsubscribe tears the subscription down. No notification fires afterwards.
func (s *Session) Unsubscribe() {
	s.channel.Unsubscribe()
}
