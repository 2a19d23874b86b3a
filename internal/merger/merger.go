// Package merger folds push-channel events into local state: new messages
// land in cached timelines and bump the conversation list, status changes
// patch entries in place, and snapshots rebuild the list wholesale. Events
// for conversations that are not cached only touch the list; their history
// is fetched fresh when the conversation is opened.
package merger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/roster"
)

// ActiveSource reports which conversation the thread view is showing, so
// inbound messages for it do not flag the conversation unread.
type ActiveSource interface {
	Active() string
}

// Merger consumes push events off the bus and applies them.
type Merger struct {
	bus    *bus.Bus
	cache  *chat.Cache
	roster *roster.Projector
	active ActiveSource
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a merger.
func New(b *bus.Bus, cache *chat.Cache, r *roster.Projector, active ActiveSource, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		bus:    b,
		cache:  cache,
		roster: r,
		active: active,
		logger: logger.Named("merger"),
	}
}

// Start subscribes to push events and begins merging.
func (m *Merger) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	events, unsub := m.bus.Subscribe("push.", 256)
	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				m.handle(evt)
			}
		}
	}()

	m.logger.Info("merger started")
	return nil
}

// Stop shuts the merge loop down.
func (m *Merger) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.logger.Info("merger stopped")
}

func (m *Merger) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushMessageCreated:
		msg, ok := evt.Payload.(chat.Message)
		if !ok {
			m.logger.Warn("unexpected payload for message.created", zap.String("kind", evt.Kind))
			return
		}
		m.mergeMessage(msg)
	case bus.KindPushMessageUpdated:
		change, ok := evt.Payload.(chat.StatusEvent)
		if !ok {
			m.logger.Warn("unexpected payload for message.updated", zap.String("kind", evt.Kind))
			return
		}
		m.mergeStatus(change)
	case bus.KindPushSnapshot:
		convs, ok := evt.Payload.([]chat.Conversation)
		if !ok {
			m.logger.Warn("unexpected payload for snapshot", zap.String("kind", evt.Kind))
			return
		}
		m.roster.Replace(convs)
		m.publishRosterUpdated()
	}
}

func (m *Merger) mergeMessage(msg chat.Message) {
	if tl, ok := m.cache.Get(msg.ConversationID); ok {
		if tl.Append(msg) {
			m.publish(bus.Event{
				Kind:      bus.KindTimelineAppended,
				Timestamp: time.Now(),
				Payload:   bus.Appended{ConversationID: msg.ConversationID, ID: msg.ID},
			})
			m.publish(bus.Event{
				Kind:      bus.KindTimelineUpdated,
				Timestamp: time.Now(),
				Payload:   bus.TimelineRef{ConversationID: msg.ConversationID},
			})
		}
	}

	unread := msg.Direction == chat.Inbound && !m.isActive(msg.ConversationID)
	m.roster.Bump(msg.ConversationID, preview(msg), msg.Timestamp, unread)
	m.publishRosterUpdated()
}

func (m *Merger) mergeStatus(change chat.StatusEvent) {
	tl, ok := m.cache.Get(change.ConversationID)
	if !ok {
		// Not cached: the patched status arrives with the history fetch
		// when the conversation is next opened.
		return
	}
	if tl.UpdateStatus(change.ID, change.Status, change.Error) {
		m.publish(bus.Event{
			Kind:      bus.KindTimelineUpdated,
			Timestamp: time.Now(),
			Payload:   bus.TimelineRef{ConversationID: change.ConversationID},
		})
	}
}

func (m *Merger) isActive(conversationID string) bool {
	return m.active != nil && m.active.Active() == conversationID
}

func (m *Merger) publishRosterUpdated() {
	m.publish(bus.Event{Kind: bus.KindRosterUpdated, Timestamp: time.Now()})
}

func (m *Merger) publish(evt bus.Event) {
	m.bus.Publish(evt)
}

func preview(msg chat.Message) string {
	if msg.Kind == chat.KindText {
		return msg.Body
	}
	return "[" + string(msg.Kind) + "]"
}
