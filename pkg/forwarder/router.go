// Package forwarder routes link-bearing posts from monitored Telegram
// channels to Discord channels and notifies users whose reminder groups match.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/tinyland-inc/telecord/pkg/bus"
	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/metering"
	"github.com/tinyland-inc/telecord/pkg/peer"
	"github.com/tinyland-inc/telecord/pkg/reminders"
)

// ErrAccessRevoked marks destination errors that will not heal on retry,
// such as the bot losing access to a channel.
var ErrAccessRevoked = errors.New("destination access revoked")

const (
	DefaultOnlineNotice = "Bot online"
	DefaultSendTimeout  = 30 * time.Second

	reminderHeader = "\n\nVocê me pediu para te lembrar dos grupos:\n"
)

var (
	linkPattern     = regexp.MustCompile(`https?://\S`) // scheme plus at least one character
	newlineRunRegex = regexp.MustCompile(`(\r?\n)+`)
)

type Source interface {
	Subscribe(chatIDs []int64, filter bus.Filter, handler bus.Handler) (*bus.Subscription, error)
	Unsubscribe(sub *bus.Subscription) error
}

// Destination delivers text to channels and users. Errors that will never
// succeed on retry must wrap ErrAccessRevoked.
type Destination interface {
	Send(ctx context.Context, channelID int64, text string) error
	SendDirect(ctx context.Context, userID int64, text string) error
}

type Registry interface {
	Snapshot(ctx context.Context) ([]channels.SourceChannel, []channels.DestinationChannel, error)
	Refresh(ctx context.Context) ([]channels.SourceChannel, []channels.DestinationChannel, error)
	RemoveDestinationChannel(ctx context.Context, id int64) error
}

type Matcher interface {
	FindMatchingGroups(ctx context.Context, message string) (map[int64][]string, error)
}

type Option func(*Router)

func WithMeter(m *metering.Store) Option {
	return func(r *Router) { r.meter = m }
}

func WithOnlineNotice(text string) Option {
	return func(r *Router) {
		if text != "" {
			r.notice = text
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

type Router struct {
	source   Source
	dest     Destination
	registry Registry
	matcher  Matcher

	meter       *metering.Store
	notice      string
	sendTimeout time.Duration

	mu           sync.Mutex
	running      bool
	sub          *bus.Subscription
	watched      []int64
	sources      map[int64]channels.SourceChannel
	destinations []int64
}

func New(source Source, dest Destination, registry Registry, matcher Matcher, opts ...Option) *Router {
	r := &Router{
		source:      source,
		dest:        dest,
		registry:    registry,
		matcher:     matcher,
		notice:      DefaultOnlineNotice,
		sendTimeout: DefaultSendTimeout,
		sources:     make(map[int64]channels.SourceChannel),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads the registry and subscribes to the monitored channels. It is a
// no-op when already running.
func (r *Router) Start(ctx context.Context) error {
	sources, dests, err := r.registry.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	r.apply(sources, dests)
	sub, err := r.source.Subscribe(r.watched, r.relevant, r.HandleMessage)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.sub = sub
	r.running = true

	logger.InfoCF("forwarder", "Forwarder started", map[string]any{
		"sources":      len(r.watched),
		"destinations": len(r.destinations),
	})
	return nil
}

// Stop removes the subscription this router installed. It is a no-op when
// not running.
func (r *Router) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}

	r.running = false
	if r.sub == nil {
		// a failed resubscribe left nothing installed
		return nil
	}
	err := r.source.Unsubscribe(r.sub)
	r.sub = nil
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	logger.InfoC("forwarder", "Forwarder stopped")
	return nil
}

func (r *Router) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Subscription returns the live subscription, or nil when stopped.
func (r *Router) Subscription() *bus.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

// ReloadChannels re-reads the channel sets from the database and
// resubscribes only if the monitored id set changed.
func (r *Router) ReloadChannels(ctx context.Context) error {
	sources, dests, err := r.registry.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.watched
	r.apply(sources, dests)
	if !r.running || slices.Equal(previous, r.watched) {
		return nil
	}

	if r.sub != nil {
		if err := r.source.Unsubscribe(r.sub); err != nil {
			logger.WarnCF("forwarder", "Failed to remove previous subscription", map[string]any{"error": err.Error()})
		}
		r.sub = nil
	}

	sub, err := r.source.Subscribe(r.watched, r.relevant, r.HandleMessage)
	if err != nil {
		// forget the set so the next reload retries
		r.watched = nil
		return fmt.Errorf("resubscribe: %w", err)
	}
	r.sub = sub

	logger.InfoCF("forwarder", "Resubscribed to source channels", map[string]any{
		"before": len(previous),
		"after":  len(r.watched),
	})
	return nil
}

// apply replaces the caches; callers hold r.mu.
func (r *Router) apply(sources []channels.SourceChannel, dests []channels.DestinationChannel) {
	r.sources = make(map[int64]channels.SourceChannel, len(sources))
	ids := make([]int64, 0, len(sources))
	for _, s := range sources {
		r.sources[s.ID] = s
		ids = append(ids, s.ID)
	}
	slices.Sort(ids)
	r.watched = ids

	r.destinations = make([]int64, 0, len(dests))
	for _, d := range dests {
		r.destinations = append(r.destinations, d.ID)
	}
}

// OnBotReady reloads channels and announces the bot in every destination,
// dropping destinations that permanently rejected the notice.
func (r *Router) OnBotReady(ctx context.Context) error {
	if err := r.ReloadChannels(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	dests := slices.Clone(r.destinations)
	r.mu.Unlock()

	tasks := make([]task, 0, len(dests))
	for _, id := range dests {
		tasks = append(tasks, r.channelTask(id, r.notice))
	}
	results := r.runAll(ctx, tasks)

	for _, res := range results {
		if res.err != nil && !errors.Is(res.err, ErrAccessRevoked) {
			logger.WarnCF("forwarder", "Online notice failed", map[string]any{
				"channel_id": res.target,
				"error":      res.err.Error(),
			})
		}
	}
	return nil
}

// Report summarizes one handled message.
type Report struct {
	Relevant  bool
	Forwarded int
	Notified  int
	Failed    int
	Removed   []int64
}

// HandleMessage is the subscription handler.
func (r *Router) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	r.Process(ctx, msg)
}

// Process forwards msg and dispatches reminder notifications. All deliveries
// run concurrently and one failure never stops the others.
func (r *Router) Process(ctx context.Context, msg bus.InboundMessage) Report {
	if !r.relevant(msg) {
		return Report{}
	}
	report := Report{Relevant: true}

	text := Normalize(msg.Text)
	channelID := peer.ChannelID(msg.ChatID)

	r.mu.Lock()
	src, registered := r.sources[channelID]
	dests := slices.Clone(r.destinations)
	r.mu.Unlock()

	var tasks []task
	if registered && src.Forward {
		for _, id := range dests {
			tasks = append(tasks, r.channelTask(id, text))
		}
	}

	matches, err := r.matcher.FindMatchingGroups(ctx, msg.Text)
	if err != nil {
		logger.ErrorCF("forwarder", "Reminder matching failed", map[string]any{
			"channel_id": channelID,
			"error":      err.Error(),
		})
	}
	for userID, groups := range matches {
		tasks = append(tasks, r.directTask(userID, ReminderText(text, groups)))
	}

	if len(tasks) == 0 {
		return report
	}

	for _, res := range r.runAll(ctx, tasks) {
		switch {
		case res.err == nil && res.kind == metering.KindChannel:
			report.Forwarded++
		case res.err == nil:
			report.Notified++
		default:
			report.Failed++
			if res.removed {
				report.Removed = append(report.Removed, res.target)
			}
			logger.WarnCF("forwarder", "Delivery failed", map[string]any{
				"kind":   string(res.kind),
				"target": res.target,
				"error":  res.err.Error(),
			})
		}
	}

	logger.DebugCF("forwarder", "Message handled", map[string]any{
		"channel_id": channelID,
		"registered": registered,
		"forwarded":  report.Forwarded,
		"notified":   report.Notified,
		"failed":     report.Failed,
	})
	return report
}

func (r *Router) relevant(msg bus.InboundMessage) bool {
	return linkPattern.MatchString(msg.Text)
}

// Normalize collapses runs of line breaks into a single newline.
func Normalize(text string) string {
	return newlineRunRegex.ReplaceAllString(text, "\n")
}

// ReminderText builds the direct message sent to a user whose groups matched.
func ReminderText(text string, groups []string) string {
	return text + reminderHeader + reminders.FormatList(groups)
}

type task struct {
	kind   metering.Kind
	target int64
	run    func(ctx context.Context) error
}

type result struct {
	kind    metering.Kind
	target  int64
	err     error
	removed bool
}

func (r *Router) channelTask(channelID int64, text string) task {
	return task{
		kind:   metering.KindChannel,
		target: channelID,
		run: func(ctx context.Context) error {
			return r.dest.Send(ctx, channelID, text)
		},
	}
}

func (r *Router) directTask(userID int64, text string) task {
	return task{
		kind:   metering.KindDirect,
		target: userID,
		run: func(ctx context.Context) error {
			return r.dest.SendDirect(ctx, userID, text)
		},
	}
}

func (r *Router) runAll(ctx context.Context, tasks []task) []result {
	results := make([]result, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
			defer cancel()

			err := t.run(sendCtx)
			res := result{kind: t.kind, target: t.target, err: err}
			if err != nil && t.kind == metering.KindChannel && errors.Is(err, ErrAccessRevoked) {
				res.removed = r.removeDestination(ctx, t.target, err)
			}
			if r.meter != nil {
				r.meter.Record(t.kind, t.target, err)
			}
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}

// removeDestination drops a destination that permanently rejected us.
func (r *Router) removeDestination(ctx context.Context, channelID int64, cause error) bool {
	err := r.registry.RemoveDestinationChannel(ctx, channelID)
	if err != nil && !errors.Is(err, channels.ErrChannelNotFound) {
		logger.ErrorCF("forwarder", "Failed to remove revoked destination", map[string]any{
			"channel_id": channelID,
			"error":      err.Error(),
		})
		return false
	}

	r.mu.Lock()
	r.destinations = slices.DeleteFunc(r.destinations, func(id int64) bool { return id == channelID })
	r.mu.Unlock()

	logger.WarnCF("forwarder", "Destination removed after access was revoked", map[string]any{
		"channel_id": channelID,
		"cause":      cause.Error(),
	})
	return true
}
