package bus

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/peer"
)

type (
	Filter  func(msg InboundMessage) bool
	Handler func(ctx context.Context, msg InboundMessage)
)

// Subscription is a single handler over a fixed set of bare channel ids.
// Its identity is stable for its lifetime; a new channel set means a new
// Subscription.
type Subscription struct {
	id      uint64
	chats   map[int64]struct{}
	filter  Filter
	handler Handler
}

func (s *Subscription) ID() uint64 { return s.id }

// Chats returns the subscribed channel ids in ascending order.
func (s *Subscription) Chats() []int64 {
	ids := make([]int64, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Subscription) accepts(msg InboundMessage) bool {
	if _, ok := s.chats[peer.ChannelID(msg.ChatID)]; !ok {
		return false
	}
	return s.filter == nil || s.filter(msg)
}

// Dispatcher routes messages consumed from a MessageBus to subscriptions.
type Dispatcher struct {
	bus    *MessageBus
	nextID atomic.Uint64

	mu   sync.RWMutex
	subs map[uint64]*Subscription
}

func NewDispatcher(mb *MessageBus) *Dispatcher {
	return &Dispatcher{
		bus:  mb,
		subs: make(map[uint64]*Subscription),
	}
}

func (d *Dispatcher) Subscribe(chatIDs []int64, filter Filter, handler Handler) *Subscription {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}
	sub := &Subscription{
		id:      d.nextID.Add(1),
		chats:   chats,
		filter:  filter,
		handler: handler,
	}

	d.mu.Lock()
	d.subs[sub.id] = sub
	d.mu.Unlock()

	logger.DebugCF("bus", "Subscription added", map[string]any{
		"subscription": sub.id,
		"chats":        len(chats),
	})
	return sub
}

// Unsubscribe removes sub and reports whether it was registered.
func (d *Dispatcher) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	d.mu.Lock()
	_, ok := d.subs[sub.id]
	delete(d.subs, sub.id)
	d.mu.Unlock()
	return ok
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Dispatch delivers msg to every accepting subscription and returns how many
// handlers ran.
func (d *Dispatcher) Dispatch(ctx context.Context, msg InboundMessage) int {
	d.mu.RLock()
	targets := make([]*Subscription, 0, len(d.subs))
	for _, s := range d.subs {
		if s.accepts(msg) {
			targets = append(targets, s)
		}
	}
	d.mu.RUnlock()

	for _, s := range targets {
		s.handler(ctx, msg)
	}
	return len(targets)
}

// Run consumes the bus until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		d.Dispatch(ctx, msg)
	}
}
