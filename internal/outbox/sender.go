// Package outbox sends messages optimistically: every send is visible in
// the timeline as a pending entry before the platform confirms it, then the
// provisional entry is reconciled in place with the server's version. A
// failed or timed-out send stays in the timeline as failed so the user can
// retry it.
package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
)

// Transport is the slice of the REST client the sender needs.
type Transport interface {
	SendText(ctx context.Context, conversationID, body string) (chat.Message, error)
	RequestUploadTarget(ctx context.Context, mimeType, kind, filename string) (*api.UploadTarget, error)
	UploadBytes(ctx context.Context, uploadURL, mimeType string, data []byte) error
	SendFromStorage(ctx context.Context, conversationID, storageRef string, kind chat.Kind) (chat.Message, error)
}

// draft keeps what we need to replay a failed send.
type draft struct {
	conversationID string
	kind           chat.Kind
	body           string
	mimeType       string
	filename       string
	data           []byte
}

// Sender owns the optimistic send flow.
type Sender struct {
	transport Transport
	cache     *chat.Cache
	bus       *bus.Bus
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.Mutex
	drafts map[chat.MessageID]draft
}

// New creates a sender. A zero timeout falls back to 30s.
func New(transport Transport, cache *chat.Cache, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{
		transport: transport,
		cache:     cache,
		bus:       b,
		logger:    logger.Named("outbox"),
		timeout:   timeout,
		drafts:    make(map[chat.MessageID]draft),
	}
}

// SendText inserts a pending text message into the conversation's timeline
// and dispatches it in the background. Returns the provisional id.
func (s *Sender) SendText(conversationID, body string) chat.MessageID {
	d := draft{conversationID: conversationID, kind: chat.KindText, body: body}
	return s.dispatch(d)
}

// SendMedia inserts a pending media message and dispatches the upload chain
// in the background. Returns the provisional id.
func (s *Sender) SendMedia(conversationID string, kind chat.Kind, mimeType, filename string, data []byte) chat.MessageID {
	d := draft{
		conversationID: conversationID,
		kind:           kind,
		body:           filename,
		mimeType:       mimeType,
		filename:       filename,
		data:           data,
	}
	return s.dispatch(d)
}

// Retry re-dispatches a failed send under the same provisional id, flipping
// its timeline entry back to pending. Returns false if the id is unknown or
// its entry is not failed.
func (s *Sender) Retry(id chat.MessageID) bool {
	s.mu.Lock()
	d, ok := s.drafts[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	tl, cached := s.cache.Get(d.conversationID)
	if !cached {
		return false
	}
	found := false
	for _, m := range tl.Messages() {
		if m.ID == id {
			found = m.Status == chat.StatusFailed
			break
		}
	}
	if !found {
		return false
	}

	tl.UpdateStatus(id, chat.StatusPending, "")
	s.publishTimelineUpdated(d.conversationID)
	go s.deliver(id, d)
	return true
}

// LastFailed returns the most recent failed outbound entry of a
// conversation, for the retry keybinding.
func (s *Sender) LastFailed(conversationID string) (chat.Message, bool) {
	tl, ok := s.cache.Get(conversationID)
	if !ok {
		return chat.Message{}, false
	}
	msgs := tl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == chat.Outbound && msgs[i].Status == chat.StatusFailed {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

func (s *Sender) dispatch(d draft) chat.MessageID {
	id := chat.ProvisionalID(uuid.NewString())

	previewRef := ""
	if d.kind != chat.KindText {
		previewRef = d.filename
	}

	tl := s.cache.GetOrCreate(d.conversationID)
	tl.Append(chat.Message{
		ID:             id,
		ConversationID: d.conversationID,
		Direction:      chat.Outbound,
		Kind:           d.kind,
		Body:           d.body,
		Timestamp:      time.Now().UnixMilli(),
		Status:         chat.StatusPending,
		PreviewRef:     previewRef,
	})

	s.mu.Lock()
	s.drafts[id] = d
	s.mu.Unlock()

	s.publishTimelineUpdated(d.conversationID)
	go s.deliver(id, d)
	return id
}

// deliver runs the platform round trip for one provisional entry and
// reconciles the timeline with the outcome.
func (s *Sender) deliver(id chat.MessageID, d draft) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	confirmed, err := s.send(ctx, d)
	if err != nil {
		reason := failureReason(err)
		s.logger.Warn("send failed",
			zap.String("conversation", d.conversationID),
			zap.Stringer("provisional", id),
			zap.Error(err))
		s.markFailed(id, d.conversationID, reason)
		return
	}

	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()

	tl, ok := s.cache.Get(d.conversationID)
	if ok {
		// If the push channel already echoed the confirmed message,
		// ReplaceID drops the provisional entry instead of duplicating.
		tl.ReplaceID(id, confirmed)
	}

	s.publish(bus.Event{
		Kind:      bus.KindSendAcked,
		Timestamp: time.Now(),
		Payload: bus.SendAck{
			ConversationID: d.conversationID,
			Provisional:    id,
			Confirmed:      confirmed.ID,
		},
	})
	s.publishTimelineUpdated(d.conversationID)
}

func (s *Sender) send(ctx context.Context, d draft) (chat.Message, error) {
	if d.kind == chat.KindText {
		return s.transport.SendText(ctx, d.conversationID, d.body)
	}

	target, err := s.transport.RequestUploadTarget(ctx, d.mimeType, string(d.kind), d.filename)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.transport.UploadBytes(ctx, target.UploadURL, d.mimeType, d.data); err != nil {
		return chat.Message{}, err
	}
	return s.transport.SendFromStorage(ctx, d.conversationID, target.StorageRef, d.kind)
}

func (s *Sender) markFailed(id chat.MessageID, conversationID, reason string) {
	if tl, ok := s.cache.Get(conversationID); ok {
		tl.UpdateStatus(id, chat.StatusFailed, reason)
	}
	s.publish(bus.Event{
		Kind:      bus.KindSendFailed,
		Timestamp: time.Now(),
		Payload: bus.SendFailure{
			ConversationID: conversationID,
			ID:             id,
			Reason:         reason,
		},
	})
	s.publishTimelineUpdated(conversationID)
}

func (s *Sender) publishTimelineUpdated(conversationID string) {
	s.publish(bus.Event{
		Kind:      bus.KindTimelineUpdated,
		Timestamp: time.Now(),
		Payload:   bus.TimelineRef{ConversationID: conversationID},
	})
}

func (s *Sender) publish(evt bus.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
